// Package neo4j mirrors the lineage graph (chat, ideation, script, message)
// into Neo4j so it can be browsed as a graph.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/pkg/logger"
)

const (
	queryTimeout = 10 * time.Second
	labelChars   = 80
)

type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

type Node struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{driver: driver, database: database}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) write(ctx context.Context, query string, params map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

const projectChatQuery = `
	MERGE (c:Chat {id: $id})
	SET c.timestamp = $timestamp,
	    c.created_at = $created_at
`

const projectIdeationQuery = `
	MERGE (c:Chat {id: $chat_id})
	MERGE (i:Ideation {id: $id})
	SET i.label = $label,
	    i.process_time = $process_time,
	    i.created_at = $created_at
	MERGE (c)-[:HAS_IDEATION]->(i)
`

const projectScriptQuery = `
	MERGE (i:Ideation {id: $ideation_id})
	MERGE (s:Script {id: $id})
	SET s.label = $label,
	    s.chat_id = $chat_id,
	    s.mr_beast_score = $mr_beast_score,
	    s.george_blackman_score = $george_blackman_score,
	    s.created_at = $created_at
	MERGE (i)-[:HAS_SCRIPT]->(s)
`

const projectMessageQuery = `
	MERGE (c:Chat {id: $chat_id})
	MERGE (m:Message {id: $id})
	SET m.label = $label,
	    m.message_type = $message_type,
	    m.category = $category,
	    m.created_at = $created_at
	MERGE (c)-[:HAS_MESSAGE]->(m)
`

func (c *Client) ProjectChat(ctx context.Context, chat *models.Chat) error {
	if err := c.write(ctx, projectChatQuery, chatParams(chat)); err != nil {
		return fmt.Errorf("failed to project chat: %w", err)
	}
	logger.Debug("Chat projected", zap.String("chat_id", chat.ID.Hex()))
	return nil
}

func (c *Client) ProjectIdeation(ctx context.Context, ideation *models.Ideation) error {
	if err := c.write(ctx, projectIdeationQuery, ideationParams(ideation)); err != nil {
		return fmt.Errorf("failed to project ideation: %w", err)
	}
	logger.Debug("Ideation projected", zap.String("ideation_id", ideation.ID.Hex()))
	return nil
}

func (c *Client) ProjectScript(ctx context.Context, script *models.Script) error {
	if err := c.write(ctx, projectScriptQuery, scriptParams(script)); err != nil {
		return fmt.Errorf("failed to project script: %w", err)
	}
	logger.Debug("Script projected", zap.String("script_id", script.ID.Hex()))
	return nil
}

func (c *Client) ProjectMessage(ctx context.Context, message *models.Message) error {
	if err := c.write(ctx, projectMessageQuery, messageParams(message)); err != nil {
		return fmt.Errorf("failed to project message: %w", err)
	}
	logger.Debug("Message projected", zap.String("message_id", message.ID.Hex()))
	return nil
}

func chatParams(chat *models.Chat) map[string]interface{} {
	return map[string]interface{}{
		"id":         chat.ID.Hex(),
		"timestamp":  chat.Timestamp,
		"created_at": chat.CreatedAt.UnixMilli(),
	}
}

func ideationParams(ideation *models.Ideation) map[string]interface{} {
	return map[string]interface{}{
		"id":           ideation.ID.Hex(),
		"chat_id":      ideation.ChatID.Hex(),
		"label":        shorten(ideation.InitialInput),
		"process_time": ideation.ProcessTime,
		"created_at":   ideation.CreatedAt.UnixMilli(),
	}
}

func scriptParams(script *models.Script) map[string]interface{} {
	return map[string]interface{}{
		"id":                    script.ID.Hex(),
		"ideation_id":           script.IdeationID.Hex(),
		"chat_id":               script.ChatID.Hex(),
		"label":                 shorten(script.Script),
		"mr_beast_score":        script.MrBeastScore,
		"george_blackman_score": script.GeorgeBlackmanScore,
		"created_at":            script.CreatedAt.UnixMilli(),
	}
}

func messageParams(message *models.Message) map[string]interface{} {
	return map[string]interface{}{
		"id":           message.ID.Hex(),
		"chat_id":      message.ChatID.Hex(),
		"label":        shorten(message.Message),
		"message_type": string(message.MessageType),
		"category":     string(message.Category),
		"created_at":   message.CreatedAt.UnixMilli(),
	}
}

const chatGraphQuery = `
	MATCH (c:Chat {id: $chat_id})
	OPTIONAL MATCH (c)-[r]->(n)
	OPTIONAL MATCH (n)-[:HAS_SCRIPT]->(s:Script)
	RETURN c.id AS chat_id, type(r) AS rel, n.id AS node_id, labels(n) AS node_labels,
	       n.label AS node_label, s.id AS script_id, s.label AS script_label
`

// ChatGraph returns the nodes and edges reachable from one chat. It returns
// models.ErrNotFound when the chat has never been projected.
func (c *Client) ChatGraph(ctx context.Context, chatID string) (*Graph, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, chatGraphQuery, map[string]interface{}{"chat_id": chatID})
	if err != nil {
		return nil, fmt.Errorf("failed to query chat graph: %w", err)
	}

	var rows []graphRow
	for result.Next(ctx) {
		record := result.Record()
		row := graphRow{}
		row.rel = stringValue(record, "rel")
		row.nodeID = stringValue(record, "node_id")
		row.nodeLabel = stringValue(record, "node_label")
		row.scriptID = stringValue(record, "script_id")
		row.scriptLabel = stringValue(record, "script_label")
		if v, ok := record.Get("node_labels"); ok {
			if labels, ok := v.([]interface{}); ok && len(labels) > 0 {
				row.nodeKind, _ = labels[0].(string)
			}
		}
		rows = append(rows, row)
	}
	if err = result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: chat %s has no graph", models.ErrNotFound, chatID)
	}

	graph := buildGraph(chatID, rows)
	logger.Info("Chat graph loaded",
		zap.String("chat_id", chatID),
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)),
	)
	return graph, nil
}

type graphRow struct {
	rel         string
	nodeID      string
	nodeKind    string
	nodeLabel   string
	scriptID    string
	scriptLabel string
}

// buildGraph folds query rows into a de-duplicated node and edge list with
// the chat first.
func buildGraph(chatID string, rows []graphRow) *Graph {
	g := &Graph{
		Nodes: []Node{{ID: chatID, Kind: "Chat"}},
		Edges: []Edge{},
	}
	seenNodes := map[string]bool{chatID: true}
	seenEdges := map[Edge]bool{}

	addNode := func(n Node) {
		if n.ID == "" || seenNodes[n.ID] {
			return
		}
		seenNodes[n.ID] = true
		g.Nodes = append(g.Nodes, n)
	}
	addEdge := func(e Edge) {
		if e.From == "" || e.To == "" || seenEdges[e] {
			return
		}
		seenEdges[e] = true
		g.Edges = append(g.Edges, e)
	}

	for _, row := range rows {
		if row.nodeID == "" {
			continue
		}
		addNode(Node{ID: row.nodeID, Kind: row.nodeKind, Label: row.nodeLabel})
		addEdge(Edge{From: chatID, To: row.nodeID, Type: row.rel})
		if row.scriptID != "" {
			addNode(Node{ID: row.scriptID, Kind: "Script", Label: row.scriptLabel})
			addEdge(Edge{From: row.nodeID, To: row.scriptID, Type: "HAS_SCRIPT"})
		}
	}
	return g
}

func stringValue(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= labelChars {
		return s
	}
	return string(r[:labelChars]) + "..."
}

package neo4j

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/content-agent/backend/internal/models"
)

func TestBuildGraphDeduplicates(t *testing.T) {
	rows := []graphRow{
		{rel: "HAS_IDEATION", nodeID: "i1", nodeKind: "Ideation", nodeLabel: "cold", scriptID: "s1"},
		{rel: "HAS_IDEATION", nodeID: "i1", nodeKind: "Ideation", nodeLabel: "cold", scriptID: "s2"},
		{rel: "HAS_MESSAGE", nodeID: "m1", nodeKind: "Message"},
	}

	g := buildGraph("c1", rows)

	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"c1", "i1", "s1", "s2", "m1"}, ids)
	assert.Len(t, g.Edges, 4)
	assert.Contains(t, g.Edges, Edge{From: "i1", To: "s2", Type: "HAS_SCRIPT"})
	assert.Contains(t, g.Edges, Edge{From: "c1", To: "m1", Type: "HAS_MESSAGE"})
}

func TestBuildGraphChatOnly(t *testing.T) {
	g := buildGraph("c1", []graphRow{{}})

	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "Chat", g.Nodes[0].Kind)
	assert.NotNil(t, g.Edges)
	assert.Empty(t, g.Edges)
}

func TestScriptParams(t *testing.T) {
	s := &models.Script{
		ID:                  primitive.NewObjectID(),
		IdeationID:          primitive.NewObjectID(),
		ChatID:              primitive.NewObjectID(),
		Script:              strings.Repeat("a", 200),
		MrBeastScore:        81,
		GeorgeBlackmanScore: 74.5,
		CreatedAt:           time.UnixMilli(1700000000000),
	}

	p := scriptParams(s)
	assert.Equal(t, s.ID.Hex(), p["id"])
	assert.Equal(t, s.IdeationID.Hex(), p["ideation_id"])
	assert.Equal(t, 74.5, p["george_blackman_score"])
	assert.Equal(t, int64(1700000000000), p["created_at"])
	assert.Len(t, p["label"], labelChars+3)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short"))
	assert.Equal(t, strings.Repeat("é", labelChars)+"...", shorten(strings.Repeat("é", labelChars+5)))
}

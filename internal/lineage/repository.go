// Package lineage reads and writes the chat -> ideation -> script and
// chat -> message document graph. References between documents are plain
// embedded ObjectIDs; the repository checks them where a write depends on them.
package lineage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/metrics"
	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/storage/docstore"
	"github.com/content-agent/backend/pkg/logger"
)

// Projector mirrors lineage writes into a secondary view such as a graph
// database. Calls happen after the document write succeeded.
type Projector interface {
	ProjectChat(ctx context.Context, chat *models.Chat) error
	ProjectIdeation(ctx context.Context, ideation *models.Ideation) error
	ProjectScript(ctx context.Context, script *models.Script) error
	ProjectMessage(ctx context.Context, message *models.Message) error
}

type Repository struct {
	store     docstore.Store
	projector Projector
	now       func() time.Time
}

type Option func(*Repository)

func WithProjector(p Projector) Option {
	return func(r *Repository) { r.projector = p }
}

// WithClock replaces the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func NewRepository(store docstore.Store, opts ...Option) *Repository {
	r := &Repository{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) CreateChat(ctx context.Context, timestamp string) (*models.Chat, error) {
	if strings.TrimSpace(timestamp) == "" {
		return nil, fmt.Errorf("%w: timestamp is required", models.ErrMalformedInput)
	}

	chat := &models.Chat{Timestamp: timestamp, CreatedAt: r.now().UTC()}
	id, err := r.insert(ctx, models.CollectionChat, chat)
	if err != nil {
		return nil, err
	}
	chat.ID = id

	r.project(ctx, "chat", id, func() error { return r.projector.ProjectChat(ctx, chat) })
	return chat, nil
}

func (r *Repository) UpdateChatInitialMessage(ctx context.Context, chatID, message string) error {
	id, err := models.ParseID("chat_id", chatID)
	if err != nil {
		return err
	}

	if err := r.store.UpdateField(ctx, models.CollectionChat, id, "initial_message", message); err != nil {
		return fmt.Errorf("failed to update chat %s: %w", chatID, err)
	}
	return nil
}

// ListChats returns every chat. There is no pagination.
func (r *Repository) ListChats(ctx context.Context) ([]models.Chat, error) {
	chats := []models.Chat{}
	if err := r.store.Find(ctx, models.CollectionChat, bson.M{}, nil, &chats); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

func (r *Repository) ChatExists(ctx context.Context, chatID primitive.ObjectID) (bool, error) {
	var chats []models.Chat
	err := r.store.Find(ctx, models.CollectionChat, bson.M{"_id": chatID}, &docstore.FindOptions{Limit: 1}, &chats)
	if err != nil {
		return false, fmt.Errorf("failed to look up chat %s: %w", chatID.Hex(), err)
	}
	return len(chats) > 0, nil
}

// InsertIdeation persists a finished ideate-and-research run. ID and
// CreatedAt are assigned here.
func (r *Repository) InsertIdeation(ctx context.Context, ideation *models.Ideation) (primitive.ObjectID, error) {
	if ideation.ChatID.IsZero() {
		return primitive.NilObjectID, fmt.Errorf("%w: chat_id is required", models.ErrMalformedInput)
	}

	ideation.ID = primitive.NilObjectID
	ideation.CreatedAt = r.now().UTC()
	id, err := r.insert(ctx, models.CollectionIdeation, ideation)
	if err != nil {
		return primitive.NilObjectID, err
	}
	ideation.ID = id

	r.project(ctx, "ideation", id, func() error { return r.projector.ProjectIdeation(ctx, ideation) })
	return id, nil
}

// LatestIdeation returns the most recently created ideation of a chat, or
// nil when the chat has none.
func (r *Repository) LatestIdeation(ctx context.Context, chatID string) (*models.Ideation, error) {
	id, err := models.ParseID("chat_id", chatID)
	if err != nil {
		return nil, err
	}

	var ideations []models.Ideation
	opts := &docstore.FindOptions{Sort: docstore.NewestFirst(), Limit: 1}
	if err := r.store.Find(ctx, models.CollectionIdeation, bson.M{"chat_id": id}, opts, &ideations); err != nil {
		return nil, fmt.Errorf("failed to load ideation for chat %s: %w", chatID, err)
	}
	if len(ideations) == 0 {
		return nil, nil
	}
	return &ideations[0], nil
}

// IdeationInChat reports whether the ideation exists and belongs to the chat.
func (r *Repository) IdeationInChat(ctx context.Context, ideationID, chatID primitive.ObjectID) (bool, error) {
	var ideations []models.Ideation
	filter := bson.M{"_id": ideationID, "chat_id": chatID}
	if err := r.store.Find(ctx, models.CollectionIdeation, filter, &docstore.FindOptions{Limit: 1}, &ideations); err != nil {
		return false, fmt.Errorf("failed to look up ideation %s: %w", ideationID.Hex(), err)
	}
	return len(ideations) > 0, nil
}

func (r *Repository) InsertScript(ctx context.Context, script *models.Script) (primitive.ObjectID, error) {
	if script.IdeationID.IsZero() || script.ChatID.IsZero() {
		return primitive.NilObjectID, fmt.Errorf("%w: ideation_id and chat_id are required", models.ErrMalformedInput)
	}

	script.ID = primitive.NilObjectID
	script.CreatedAt = r.now().UTC()
	id, err := r.insert(ctx, models.CollectionScripts, script)
	if err != nil {
		return primitive.NilObjectID, err
	}
	script.ID = id

	r.project(ctx, "script", id, func() error { return r.projector.ProjectScript(ctx, script) })
	return id, nil
}

// ScriptsForIdeation returns the scripts that match both identifiers.
func (r *Repository) ScriptsForIdeation(ctx context.Context, ideationID, chatID string) ([]models.Script, error) {
	iid, err := models.ParseID("ideation_id", ideationID)
	if err != nil {
		return nil, err
	}
	cid, err := models.ParseID("chat_id", chatID)
	if err != nil {
		return nil, err
	}

	var scripts []models.Script
	filter := bson.M{"ideation_id": iid, "chat_id": cid}
	opts := &docstore.FindOptions{Sort: docstore.OldestFirst()}
	if err := r.store.Find(ctx, models.CollectionScripts, filter, opts, &scripts); err != nil {
		return nil, fmt.Errorf("failed to load scripts: %w", err)
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("%w: no scripts for ideation %s in chat %s", models.ErrNotFound, ideationID, chatID)
	}
	return scripts, nil
}

type SaveMessageInput struct {
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
	ChatID      string `json:"chat_id"`
}

func (in SaveMessageInput) validate() (*models.Message, error) {
	var missing []string
	if in.Message == "" {
		missing = append(missing, "message")
	}
	if in.MessageType == "" {
		missing = append(missing, "message_type")
	}
	if in.Timestamp == "" {
		missing = append(missing, "timestamp")
	}
	if in.ChatID == "" {
		missing = append(missing, "chat_id")
	}
	if in.Category == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", models.ErrMalformedInput, strings.Join(missing, ", "))
	}

	msgType := models.MessageType(in.MessageType)
	if !msgType.Valid() {
		return nil, fmt.Errorf("%w: message_type %q must be one of agent1, agent2, user", models.ErrMalformedInput, in.MessageType)
	}
	category := models.MessageCategory(in.Category)
	if !category.Valid() {
		return nil, fmt.Errorf("%w: category %q must be one of script, set, text", models.ErrMalformedInput, in.Category)
	}

	chatID, err := models.ParseID("chat_id", in.ChatID)
	if err != nil {
		return nil, err
	}

	return &models.Message{
		Message:     in.Message,
		MessageType: msgType,
		Category:    category,
		Timestamp:   in.Timestamp,
		ChatID:      chatID,
	}, nil
}

// SaveMessage validates every field before writing anything.
func (r *Repository) SaveMessage(ctx context.Context, in SaveMessageInput) (*models.Message, error) {
	msg, err := in.validate()
	if err != nil {
		return nil, err
	}

	msg.CreatedAt = r.now().UTC()
	id, err := r.insert(ctx, models.CollectionMessage, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id

	r.project(ctx, "message", id, func() error { return r.projector.ProjectMessage(ctx, msg) })
	return msg, nil
}

// MessagesForChat returns a chat's messages in insertion order.
func (r *Repository) MessagesForChat(ctx context.Context, chatID string) ([]models.Message, error) {
	id, err := models.ParseID("chat_id", chatID)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	opts := &docstore.FindOptions{Sort: docstore.OldestFirst()}
	if err := r.store.Find(ctx, models.CollectionMessage, bson.M{"chat_id": id}, opts, &messages); err != nil {
		return nil, fmt.Errorf("failed to load messages for chat %s: %w", chatID, err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no messages for chat %s", models.ErrNotFound, chatID)
	}
	return messages, nil
}

func (r *Repository) insert(ctx context.Context, collection string, doc interface{}) (primitive.ObjectID, error) {
	id, err := r.store.Insert(ctx, collection, doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to persist %s: %w", collection, err)
	}
	metrics.RecordDocumentPersisted(collection)
	return id, nil
}

func (r *Repository) project(ctx context.Context, kind string, id primitive.ObjectID, fn func() error) {
	if r.projector == nil {
		return
	}
	if err := fn(); err != nil {
		logger.Warn("Lineage projection failed",
			zap.String("kind", kind),
			zap.String("id", id.Hex()),
			zap.Error(err),
		)
	}
}

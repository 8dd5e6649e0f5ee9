package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names. They match the collections the content tool has always
// written to, so existing databases keep working.
const (
	CollectionChat     = "Chat"
	CollectionIdeation = "Ideation"
	CollectionScripts  = "Scripts"
	CollectionMessage  = "Message"
	CollectionSession  = "Session"
)

// SessionTTL is the fixed lifetime recorded on every session.
const SessionTTL = 24 * time.Hour

// Payload is a structured stage output. Nested documents decode back into
// Payload so results round-trip through the store unchanged.
type Payload map[string]interface{}

type Chat struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Timestamp      string             `bson:"timestamp" json:"timestamp"`
	InitialMessage string             `bson:"initial_message,omitempty" json:"initial_message,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

type Ideation struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	InitialInput   string             `bson:"initial_input" json:"initial_input"`
	IdeationResult Payload            `bson:"ideation_result" json:"ideation_result"`
	ResearchResult Payload            `bson:"research_result" json:"research_result"`
	ProcessTime    float64            `bson:"process_time" json:"process_time"`
	ChatID         primitive.ObjectID `bson:"chat_id" json:"chat_id"`
	Timestamp      float64            `bson:"timestamp" json:"timestamp"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// Script is one scripting-stage output. InitialInput holds the ideation
// result the script was written from.
type Script struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	IdeationID          primitive.ObjectID `bson:"ideation_id" json:"ideation_id"`
	ChatID              primitive.ObjectID `bson:"chat_id" json:"chat_id"`
	InitialInput        Payload            `bson:"initial_input" json:"initial_input"`
	Script              string             `bson:"script" json:"script"`
	MrBeastScore        float64            `bson:"mr_beast_score" json:"mr_beast_score"`
	GeorgeBlackmanScore float64            `bson:"george_blackman_score" json:"george_blackman_score"`
	ProcessTime         float64            `bson:"process_time" json:"process_time"`
	Timestamp           float64            `bson:"timestamp" json:"timestamp"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
}

type MessageType string

const (
	MessageTypeAgent1 MessageType = "agent1"
	MessageTypeAgent2 MessageType = "agent2"
	MessageTypeUser   MessageType = "user"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeAgent1, MessageTypeAgent2, MessageTypeUser:
		return true
	}
	return false
}

type MessageCategory string

const (
	CategoryScript MessageCategory = "script"
	CategorySet    MessageCategory = "set"
	CategoryText   MessageCategory = "text"
)

func (c MessageCategory) Valid() bool {
	switch c {
	case CategoryScript, CategorySet, CategoryText:
		return true
	}
	return false
}

type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Message     string             `bson:"message" json:"message"`
	MessageType MessageType        `bson:"message_type" json:"message_type"`
	Category    MessageCategory    `bson:"category" json:"category"`
	Timestamp   string             `bson:"timestamp" json:"timestamp"`
	ChatID      primitive.ObjectID `bson:"chat_id" json:"chat_id"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Login     time.Time          `bson:"login" json:"login"`
	Expiry    time.Time          `bson:"expiry" json:"expiry"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// NewSession builds a session whose expiry is exactly SessionTTL after login.
func NewSession(login time.Time) *Session {
	return &Session{
		Login:     login,
		Expiry:    login.Add(SessionTTL),
		CreatedAt: login,
	}
}

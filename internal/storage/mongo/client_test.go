package mongo

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/storage/docstore"
)

var testStore *Client

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start mongo container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testStore, err = NewClient(ctx, Config{
		URI:            fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		Database:       "content_test",
		ConnectTimeout: 30 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to mongo: %v", err)
	}

	code := m.Run()

	_ = testStore.Close(ctx)
	_ = container.Terminate(ctx)

	os.Exit(code)
}

func requireStore(t *testing.T) *Client {
	t.Helper()
	if testStore == nil {
		t.Skip("mongo integration tests are skipped in -short mode")
	}
	return testStore
}

type entry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ChatID    primitive.ObjectID `bson:"chat_id"`
	Label     string             `bson:"label"`
	CreatedAt time.Time          `bson:"created_at"`
}

func TestInsertAndFindNewestFirst(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	collection := "entries_" + primitive.NewObjectID().Hex()
	chatID := primitive.NewObjectID()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, label := range []string{"first", "second", "third"} {
		id, err := s.Insert(ctx, collection, entry{
			ChatID:    chatID,
			Label:     label,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		assert.False(t, id.IsZero())
	}
	_, err := s.Insert(ctx, collection, entry{ChatID: primitive.NewObjectID(), Label: "other", CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	var got []entry
	err = s.Find(ctx, collection, bson.M{"chat_id": chatID}, &docstore.FindOptions{Sort: docstore.NewestFirst(), Limit: 1}, &got)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "third", got[0].Label)

	got = nil
	err = s.Find(ctx, collection, bson.M{"chat_id": chatID}, &docstore.FindOptions{Sort: docstore.OldestFirst()}, &got)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Label)
}

func TestUpdateField(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	collection := "entries_" + primitive.NewObjectID().Hex()

	id, err := s.Insert(ctx, collection, entry{Label: "before", CreatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.UpdateField(ctx, collection, id, "label", "after"))

	var got []entry
	require.NoError(t, s.Find(ctx, collection, bson.M{"_id": id}, nil, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "after", got[0].Label)

	err = s.UpdateField(ctx, collection, primitive.NewObjectID(), "label", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

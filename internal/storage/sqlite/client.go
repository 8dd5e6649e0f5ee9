// Package sqlite is an embedded document store backend. Documents are kept
// as BSON blobs and queried with the shared docstore evaluation helpers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/storage/docstore"
	"github.com/content-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	c := &Client{db: db}
	if err := c.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return c, nil
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL UNIQUE,
		body BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, seq);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) Insert(ctx context.Context, collection string, doc interface{}) (primitive.ObjectID, error) {
	raw, id, err := docstore.PrepareInsert(doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}

	query := `INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`
	if _, err := c.db.ExecContext(ctx, query, collection, id.Hex(), []byte(raw)); err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: failed to insert into %s: %v", models.ErrStoreFailure, collection, err)
	}

	logger.Debug("Document inserted", zap.String("collection", collection), zap.String("id", id.Hex()))
	return id, nil
}

func (c *Client) Find(ctx context.Context, collection string, filter bson.M, opts *docstore.FindOptions, results interface{}) error {
	docs, err := c.load(ctx, collection)
	if err != nil {
		return err
	}

	matched, err := docstore.Query(docs, filter, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	if err := docstore.DecodeAll(matched, results); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	return nil
}

// load returns every document of a collection in insertion order.
func (c *Client) load(ctx context.Context, collection string) ([]bson.Raw, error) {
	query := `SELECT body FROM documents WHERE collection = ? ORDER BY seq`

	rows, err := c.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query %s: %v", models.ErrStoreFailure, collection, err)
	}
	defer rows.Close()

	var docs []bson.Raw
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %v", models.ErrStoreFailure, err)
		}
		docs = append(docs, bson.Raw(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}

	return docs, nil
}

func (c *Client) UpdateField(ctx context.Context, collection string, id primitive.ObjectID, field string, value interface{}) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	defer tx.Rollback()

	var body []byte
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id.Hex()).Scan(&body)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: no document %s in %s", models.ErrNotFound, id.Hex(), collection)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read document: %v", models.ErrStoreFailure, err)
	}

	updated, err := docstore.SetField(bson.Raw(body), field, value)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET body = ? WHERE id = ?`, []byte(updated), id.Hex()); err != nil {
		return fmt.Errorf("%w: failed to update document: %v", models.ErrStoreFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Close()
}

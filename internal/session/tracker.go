// Package session records login sessions. Expiry is informational; nothing
// in the service refuses a request because a session has expired.
package session

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/metrics"
	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/storage/docstore"
	"github.com/content-agent/backend/pkg/logger"
)

// Cache holds the expiry of the most recent session.
type Cache interface {
	SetLatestSessionExpiry(ctx context.Context, expiry time.Time) error
	GetLatestSessionExpiry(ctx context.Context) (time.Time, bool, error)
}

type Tracker struct {
	store docstore.Store
	cache Cache
	now   func() time.Time
}

func NewTracker(store docstore.Store, cache Cache) *Tracker {
	return &Tracker{store: store, cache: cache, now: time.Now}
}

func (t *Tracker) Create(ctx context.Context) (*models.Session, error) {
	s := models.NewSession(t.now().UTC())

	id, err := t.store.Insert(ctx, models.CollectionSession, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.ID = id
	metrics.RecordDocumentPersisted(models.CollectionSession)

	if t.cache != nil {
		if err := t.cache.SetLatestSessionExpiry(ctx, s.Expiry); err != nil {
			logger.Warn("Failed to cache session expiry", zap.Error(err))
		}
	}

	return s, nil
}

// Latest returns the expiry of the most recently created session, or nil when
// no session has been recorded.
func (t *Tracker) Latest(ctx context.Context) (*time.Time, error) {
	if t.cache != nil {
		expiry, ok, err := t.cache.GetLatestSessionExpiry(ctx)
		switch {
		case err != nil:
			logger.Warn("Session cache read failed", zap.Error(err))
		case ok:
			metrics.RecordCache("session", true)
			return &expiry, nil
		default:
			metrics.RecordCache("session", false)
		}
	}

	var sessions []models.Session
	opts := &docstore.FindOptions{
		Sort:  []docstore.SortKey{{Field: "login", Descending: true}, {Field: "_id", Descending: true}},
		Limit: 1,
	}
	if err := t.store.Find(ctx, models.CollectionSession, bson.M{}, opts, &sessions); err != nil {
		return nil, fmt.Errorf("failed to load latest session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	expiry := sessions[0].Expiry
	if t.cache != nil {
		if err := t.cache.SetLatestSessionExpiry(ctx, expiry); err != nil {
			logger.Warn("Failed to cache session expiry", zap.Error(err))
		}
	}
	return &expiry, nil
}

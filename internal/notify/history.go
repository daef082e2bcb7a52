package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SUF145/call-geo/common/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	dbTimeout               = 3 * time.Second
	notificationsCollection = "notifications"
)

// History stores every notification that was posted.
type History interface {
	Record(ctx context.Context, n Notification) error
	Recent(ctx context.Context, limit int64) ([]Notification, error)
}

// Recorder posts through a Manager and records each successful post. A
// failed record is logged and does not fail the post.
type Recorder struct {
	Manager
	history History
}

func NewRecorder(m Manager, h History) *Recorder {
	return &Recorder{Manager: m, history: h}
}

func (r *Recorder) Notify(ctx context.Context, n Notification) error {
	if n.PostedAt.IsZero() {
		n.PostedAt = time.Now().UTC()
	}
	if err := r.Manager.Notify(ctx, n); err != nil {
		return err
	}
	if err := r.history.Record(ctx, n); err != nil {
		logger.WarnCtx(ctx, "Failed to record notification", "notification_id", n.ID, "error", err)
	}
	return nil
}

type MongoHistory struct {
	collection *mongo.Collection
}

func NewMongoHistory(db *mongo.Database) *MongoHistory {
	return &MongoHistory{collection: db.Collection(notificationsCollection)}
}

func (h *MongoHistory) Record(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := h.collection.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (h *MongoHistory) Recent(ctx context.Context, limit int64) ([]Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "posted_at", Value: -1}}).SetLimit(limit)
	cursor, err := h.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := make([]Notification, 0)
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, nil
}

// MemoryHistory keeps the most recent notifications in process.
type MemoryHistory struct {
	mu    sync.Mutex
	items []Notification
	max   int
}

func NewMemoryHistory(max int) *MemoryHistory {
	return &MemoryHistory{max: max}
}

func (h *MemoryHistory) Record(_ context.Context, n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, n)
	if h.max > 0 && len(h.items) > h.max {
		h.items = h.items[len(h.items)-h.max:]
	}
	return nil
}

// Recent returns newest first.
func (h *MemoryHistory) Recent(_ context.Context, limit int64) ([]Notification, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Notification, 0, len(h.items))
	for i := len(h.items) - 1; i >= 0; i-- {
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, h.items[i])
	}
	return out, nil
}

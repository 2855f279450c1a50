package audit

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"lojinha.org/internal/ids"
	"lojinha.org/internal/obs"
)

// Action tags a product history record.
type Action string

const (
	ActionCreated Action = "created"
	ActionEdited  Action = "edited"
	ActionDeleted Action = "deleted"
)

// Record is one immutable product history entry. Before/After are JSON
// snapshots of the product fields; nil means no state on that side
// (created has no before, deleted has no after).
type Record struct {
	ID         string          `json:"id"`
	ProductID  int64           `json:"entity_id"`
	ActorID    int64           `json:"actor_id"`
	Action     Action          `json:"action"`
	OccurredAt time.Time       `json:"timestamp"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
	Note       string          `json:"note,omitempty"`
}

// Store persists history records. Append only; nothing updates or deletes
// a record once written.
type Store interface {
	Append(ctx context.Context, rec Record) error
	ListByProduct(ctx context.Context, productID int64) ([]Record, error)
	ListByActor(ctx context.Context, actorID int64) ([]Record, error)
}

// Recorder writes history records as a side effect of product mutations.
// Appends are best-effort: by the time Record runs the mutation has already
// succeeded, so a failed write is logged for operators and swallowed
// instead of failing the request.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record appends one history entry with a server-assigned timestamp.
// before/after may be nil; non-nil values are marshalled to JSON snapshots.
func (r *Recorder) Record(ctx context.Context, productID, actorID int64, action Action, before, after any, note string) {
	rec := Record{
		ID:         ids.New(),
		ProductID:  productID,
		ActorID:    actorID,
		Action:     action,
		OccurredAt: r.now().UTC(),
		Note:       note,
	}

	var err error
	if rec.Before, err = marshalSnapshot(before); err == nil {
		rec.After, err = marshalSnapshot(after)
	}
	if err == nil {
		err = r.store.Append(ctx, rec)
	}
	if err != nil {
		obs.HistoryWriteFailed()
		obs.LogRequest(map[string]any{
			"ts":         r.now().UTC().Format(time.RFC3339Nano),
			"level":      "error",
			"msg":        "product_history_write_failed",
			"product_id": productID,
			"actor_id":   actorID,
			"action":     string(action),
			"error":      err.Error(),
		})
	}
}

// ListForProduct returns a product's history, newest first. Unlike Record,
// reads fail normally.
func (r *Recorder) ListForProduct(ctx context.Context, productID int64) ([]Record, error) {
	return r.store.ListByProduct(ctx, productID)
}

// ListForActor returns the records written for a given acting user, newest
// first.
func (r *Recorder) ListForActor(ctx context.Context, actorID int64) ([]Record, error) {
	return r.store.ListByActor(ctx, actorID)
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// InMemoryStore implements Store for tests and local runs.
type InMemoryStore struct {
	mu   sync.Mutex
	recs []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *InMemoryStore) ListByProduct(ctx context.Context, productID int64) ([]Record, error) {
	return s.list(func(r Record) bool { return r.ProductID == productID }), nil
}

func (s *InMemoryStore) ListByActor(ctx context.Context, actorID int64) ([]Record, error) {
	return s.list(func(r Record) bool { return r.ActorID == actorID }), nil
}

func (s *InMemoryStore) list(match func(Record) bool) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.recs {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out
}

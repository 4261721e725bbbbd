package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/third-eye/overseer/pkg/store"
)

// notifyLimit keeps NOTIFY payloads under PostgreSQL's 8000-byte cap, with
// headroom for protocol overhead.
const notifyLimit = 7900

// Publisher journals a pipeline event and broadcasts it to subscribers.
// The journal write happens first; a broadcast is never observed for an
// event that was not persisted.
type Publisher interface {
	Publish(ctx context.Context, evt *store.PipelineEvent) error
}

// Broadcaster fans a serialized message out to local channel subscribers.
// Implemented by ConnectionManager.
type Broadcaster interface {
	Broadcast(channel string, message []byte)
}

// PGPublisher persists the event and issues pg_notify in a single
// transaction, so the insert and the notification commit atomically.
// Listeners on other pods receive the NOTIFY and fan out locally.
type PGPublisher struct {
	db *sql.DB
}

// NewPGPublisher creates a publisher over the database handle.
func NewPGPublisher(db *sql.DB) *PGPublisher {
	return &PGPublisher{db: db}
}

func (p *PGPublisher) Publish(ctx context.Context, evt *store.PipelineEvent) error {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	dataJSON, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO pipeline_events (session_id, type, eye, ok, code, tool_version, md, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		evt.SessionID, string(evt.Type), evt.Eye, evt.OK, nullIfEmpty(evt.Code),
		evt.ToolVersion, evt.MD, dataJSON, evt.CreatedAt,
	).Scan(&evt.ID)
	if err != nil {
		return fmt.Errorf("persist pipeline event: %w", err)
	}

	notifyPayload, err := marshalForNotify(evt)
	if err != nil {
		return err
	}

	// pg_notify is transactional; the notification fires at COMMIT, after
	// the insert is durable.
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)",
		SessionChannel(evt.SessionID), notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event transaction: %w", err)
	}
	return nil
}

// LocalPublisher journals through the event store and broadcasts in-process.
// Used for single-process deployments and tests, where no cross-pod
// distribution is needed.
type LocalPublisher struct {
	events      store.EventStore
	broadcaster Broadcaster
}

// NewLocalPublisher creates a publisher over the event store and local
// broadcaster.
func NewLocalPublisher(events store.EventStore, broadcaster Broadcaster) *LocalPublisher {
	return &LocalPublisher{events: events, broadcaster: broadcaster}
}

func (p *LocalPublisher) Publish(ctx context.Context, evt *store.PipelineEvent) error {
	id, err := p.events.AppendEvent(ctx, evt)
	if err != nil {
		return err
	}
	evt.ID = id
	payload, err := json.Marshal(MessageFromEvent(evt))
	if err != nil {
		return fmt.Errorf("marshal event message: %w", err)
	}
	p.broadcaster.Broadcast(SessionChannel(evt.SessionID), payload)
	return nil
}

// marshalForNotify serializes the event for NOTIFY delivery, replacing
// oversized payloads with a minimal envelope that keeps only the routing
// fields. Clients seeing truncated=true fetch the full event over REST.
func marshalForNotify(evt *store.PipelineEvent) (string, error) {
	payload, err := json.Marshal(MessageFromEvent(evt))
	if err != nil {
		return "", fmt.Errorf("marshal NOTIFY payload: %w", err)
	}
	if len(payload) <= notifyLimit {
		return string(payload), nil
	}

	truncated, err := json.Marshal(EventMessage{
		Type:      string(evt.Type),
		SessionID: evt.SessionID,
		TS:        evt.CreatedAt,
		EventID:   evt.ID,
		Eye:       evt.Eye,
		Truncated: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal truncated NOTIFY payload: %w", err)
	}
	return string(truncated), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

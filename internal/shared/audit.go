package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog is one row of audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditPort is implemented by audit sinks.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}

// Execer runs a statement without returning rows. *pgxpool.Pool and pgx.Tx
// satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertAuditLog = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES (NULLIF($1, 0), $2, $3, $4, $5, $6)`

// AuditWriter appends audit rows through db.
type AuditWriter struct {
	db  Execer
	now func() time.Time
}

// NewAuditWriter returns a writer backed by db.
func NewAuditWriter(db Execer) *AuditWriter {
	return &AuditWriter{db: db, now: time.Now}
}

// Record stores log. A zero ActorID is filled from the request context and a
// zero At from the writer clock.
func (w *AuditWriter) Record(ctx context.Context, log AuditLog) error {
	if w == nil || w.db == nil {
		return errors.New("audit writer not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action, entity and entity id")
	}
	if log.ActorID == 0 {
		log.ActorID = ActorFromContext(ctx)
	}
	if log.At.IsZero() {
		log.At = w.now()
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = w.db.Exec(ctx, insertAuditLog, log.ActorID, log.Action, log.Entity, log.EntityID, meta, log.At.UTC())
	return err
}

// Package journal appends routing decisions and execution outcomes to
// Postgres. It is an optional audit trail: correctness never depends on it,
// and a missing DSN disables it entirely.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/liquidroute/liquidroute/internal/router"
	"github.com/liquidroute/liquidroute/internal/venue"
)

const schema = `
CREATE TABLE IF NOT EXISTS routing_decisions (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL,
	strategy   TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	total_cost DOUBLE PRECISION NOT NULL,
	decision   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS execution_outcomes (
	id            BIGSERIAL PRIMARY KEY,
	venue_id      TEXT NOT NULL,
	requested_qty DOUBLE PRECISION NOT NULL,
	filled_qty    DOUBLE PRECISION NOT NULL,
	avg_price     DOUBLE PRECISION NOT NULL,
	latency_ms    DOUBLE PRECISION NOT NULL,
	failed        BOOLEAN NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_order ON routing_decisions (order_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_venue ON execution_outcomes (venue_id, recorded_at);
`

// Journal writes the audit trail. Safe for concurrent use; failures are
// logged and swallowed so the trading path is never blocked on storage.
type Journal struct {
	db *sqlx.DB
}

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect journal db: %w", err)
	}
	db.SetMaxOpenConns(4)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// NewWithDB wraps an existing connection, for tests.
func NewWithDB(db *sqlx.DB) *Journal { return &Journal{db: db} }

// Close releases the connection pool.
func (j *Journal) Close() error { return j.db.Close() }

// RecordDecision appends one routing decision.
func (j *Journal) RecordDecision(ctx context.Context, decision *router.RoutingDecision) {
	payload, err := json.Marshal(decision)
	if err != nil {
		log.Warn().Err(err).Str("decision", decision.ID).Msg("Journal: cannot encode decision")
		return
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO routing_decisions (id, order_id, strategy, confidence, total_cost, decision, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		decision.ID, decision.OrderID, decision.Strategy,
		decision.Confidence, decision.TotalCost, payload, decision.CreatedAt)
	if err != nil {
		log.Warn().Err(err).Str("decision", decision.ID).Msg("Journal: decision insert failed")
	}
}

// RecordOutcome appends one execution outcome.
func (j *Journal) RecordOutcome(ctx context.Context, outcome venue.ExecutionOutcome) {
	ts := outcome.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO execution_outcomes (venue_id, requested_qty, filled_qty, avg_price, latency_ms, failed, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		outcome.VenueID, outcome.RequestedQty, outcome.FilledQty,
		outcome.AvgFillPrice, outcome.LatencyMs, outcome.Failed, ts)
	if err != nil {
		log.Warn().Err(err).Str("venue", outcome.VenueID).Msg("Journal: outcome insert failed")
	}
}

// DecisionCount reports rows for diagnostics endpoints.
func (j *Journal) DecisionCount(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM routing_decisions`)
	return n, err
}

// Package ledger projects the reward pipeline's events into a Postgres
// audit trail: a write-only, append-only record of every reward, mint,
// schedule change, and lock-parameter change a block's on-finalize pass
// emitted, for external reporting and reconciliation.
package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kulupu-go/kulupu/rewards"
)

// Config holds database connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	MaxConns int32
}

// Ledger wraps a Postgres connection pool dedicated to the reward-event
// audit trail.
type Ledger struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies connectivity before returning.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.MaxConns,
	)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: failed to ping database: %w", err)
	}

	return &Ledger{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (l *Ledger) Close() {
	l.pool.Close()
}

// Migrate creates the reward_events table if it does not already exist.
func (l *Ledger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reward_events (
			id BIGSERIAL PRIMARY KEY,
			block_number BIGINT NOT NULL,
			kind SMALLINT NOT NULL,
			author BYTEA,
			destination BYTEA,
			amount NUMERIC,
			reward NUMERIC,
			mints JSONB,
			lock_period SMALLINT,
			lock_divide SMALLINT,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ledger: failed to migrate: %w", err)
	}

	_, err = l.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS reward_events_block_number_idx ON reward_events (block_number)
	`)
	if err != nil {
		return fmt.Errorf("ledger: failed to create index: %w", err)
	}
	return nil
}

// RecordEvents appends every event the pipeline's OnFinalize pass emitted
// for blockNumber to the audit trail, in a single transaction.
func (l *Ledger) RecordEvents(ctx context.Context, blockNumber rewards.BlockNumber, events []rewards.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range events {
		mintsJSON, err := encodeMints(ev.Mints)
		if err != nil {
			return fmt.Errorf("ledger: failed to marshal mints: %w", err)
		}

		var amount, reward *string
		if ev.Amount != nil {
			s := ev.Amount.String()
			amount = &s
		}
		if ev.Reward != nil {
			s := ev.Reward.String()
			reward = &s
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reward_events
				(block_number, kind, author, destination, amount, reward, mints, lock_period, lock_divide)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			blockNumber,
			int(ev.Kind),
			accountBytes(ev.Author),
			accountBytes(ev.Destination),
			amount,
			reward,
			mintsJSON,
			ev.LockParams.Period,
			ev.LockParams.Divide,
		)
		if err != nil {
			return fmt.Errorf("ledger: failed to insert event: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// encodeMints serializes a mints map (account -> amount) into the JSON blob
// stored in reward_events.mints, keying by hex-encoded account so the
// result round-trips through a column type with no native byte-map support.
func encodeMints(mints map[rewards.AccountID]rewards.Balance) ([]byte, error) {
	if len(mints) == 0 {
		return nil, nil
	}
	encoded := make(map[string]string, len(mints))
	for account, amount := range mints {
		encoded[hex.EncodeToString(account[:])] = amount.String()
	}
	return json.Marshal(encoded)
}

func accountBytes(a rewards.AccountID) []byte {
	if a == (rewards.AccountID{}) {
		return nil
	}
	return a[:]
}

// AuthorHistory is one row of an author's reward history.
type AuthorHistory struct {
	BlockNumber rewards.BlockNumber
	Amount      string
	RecordedAt  time.Time
}

// AuthorHistory returns every EventRewarded row recorded for author, most
// recent first.
func (l *Ledger) AuthorHistory(ctx context.Context, author rewards.AccountID) ([]AuthorHistory, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT block_number, amount, recorded_at
		FROM reward_events
		WHERE kind = $1 AND author = $2
		ORDER BY block_number DESC
	`, int(rewards.EventRewarded), author[:])
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to query author history: %w", err)
	}
	defer rows.Close()

	var history []AuthorHistory
	for rows.Next() {
		var h AuthorHistory
		var amount *string
		if err := rows.Scan(&h.BlockNumber, &amount, &h.RecordedAt); err != nil {
			return nil, fmt.Errorf("ledger: failed to scan author history row: %w", err)
		}
		if amount != nil {
			h.Amount = *amount
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// ScheduleChanges returns every EventRewardChanged/EventMintsChanged row
// recorded, most recent first, for audit review of how the emission curve
// evolved over time.
func (l *Ledger) ScheduleChanges(ctx context.Context, limit int) ([]rewards.Event, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT kind, reward, mints
		FROM reward_events
		WHERE kind IN ($1, $2)
		ORDER BY block_number DESC
		LIMIT $3
	`, int(rewards.EventRewardChanged), int(rewards.EventMintsChanged), limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to query schedule changes: %w", err)
	}
	defer rows.Close()

	var events []rewards.Event
	for rows.Next() {
		var kind int
		var reward *string
		var mintsJSON []byte
		if err := rows.Scan(&kind, &reward, &mintsJSON); err != nil {
			return nil, fmt.Errorf("ledger: failed to scan schedule change row: %w", err)
		}

		ev := rewards.Event{Kind: rewards.EventKind(kind)}
		if reward != nil {
			if amount, ok := new(big.Int).SetString(*reward, 10); ok {
				ev.Reward = amount
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

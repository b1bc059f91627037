// Package postgrescli keeps the audit trail: engine events and custody transfers.
package postgrescli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Lavizord/roulette-server/internal/custody"
	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/logger"
)

type PostgresCli struct {
	DB *sql.DB
}

func NewPostgresCli(user, password, dbname, host, port, sslmode string) (*PostgresCli, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=%s", user, password, dbname, host, port, sslmode)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Ping to make sure the connection is valid
	err = db.Ping()
	if err != nil {
		return nil, err
	}

	return &PostgresCli{DB: db}, nil
}

func (pc *PostgresCli) Close() {
	pc.DB.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS round_events (
		id BIGSERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		round_id BIGINT NOT NULL,
		bet_id BIGINT,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS round_events_round_idx ON round_events (round_id)`,
	`CREATE TABLE IF NOT EXISTS custody_transfers (
		id TEXT PRIMARY KEY,
		counterparty TEXT NOT NULL,
		token_id TEXT NOT NULL,
		from_addr TEXT NOT NULL,
		to_addr TEXT NOT NULL,
		round_id BIGINT NOT NULL,
		bet_id BIGINT,
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// CreateDb creates the audit tables when they are missing.
func (pc *PostgresCli) CreateDb(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := pc.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error creating schema: %w", err)
		}
	}
	return nil
}

func nullID(id uint64) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}

// SaveTransfer implements custody.Recorder.
func (pc *PostgresCli) SaveTransfer(ctx context.Context, t custody.Transfer) error {
	query := `
		INSERT INTO custody_transfers (
			id, counterparty, token_id, from_addr, to_addr, round_id, bet_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := pc.DB.ExecContext(ctx, query,
		t.ID,
		t.Counterparty,
		t.TokenID,
		t.From,
		t.To,
		int64(t.RoundID),
		nullID(t.BetID),
		string(t.Reason),
		t.At,
	)
	if err != nil {
		return fmt.Errorf("error inserting transfer: %w", err)
	}
	return nil
}

func (pc *PostgresCli) SaveEvent(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("error marshalling event: %w", err)
	}
	query := `
		INSERT INTO round_events (kind, round_id, bet_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = pc.DB.ExecContext(ctx, query, string(ev.Kind), int64(ev.RoundID), nullID(ev.BetID), payload, ev.At)
	if err != nil {
		return fmt.Errorf("error inserting event: %w", err)
	}
	return nil
}

// RoundEvents returns the audit trail of a round, oldest first.
func (pc *PostgresCli) RoundEvents(ctx context.Context, roundID uint64) ([]models.Event, error) {
	rows, err := pc.DB.QueryContext(ctx, `SELECT payload FROM round_events WHERE round_id = $1 ORDER BY id`, int64(roundID))
	if err != nil {
		return nil, fmt.Errorf("error fetching events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		var ev models.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("error decoding event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventSink appends every engine event to round_events. Whitelist events carry no round and
// are stored with round_id 0.
type EventSink struct {
	Cli *PostgresCli
}

func (s EventSink) Notify(ctx context.Context, ev models.Event) {
	if err := s.Cli.SaveEvent(ctx, ev); err != nil {
		logger.Default.Errorf("[PostgresCli] - %s event of round %d not audited: %v", ev.Kind, ev.RoundID, err)
	}
}

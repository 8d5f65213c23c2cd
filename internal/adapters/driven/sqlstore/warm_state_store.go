package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.WarmStateStore = (*WarmStateStore)(nil)

// WarmStateStore implements driven.WarmStateStore on the cache database
type WarmStateStore struct {
	db *DB
}

// NewWarmStateStore creates a new WarmStateStore
func NewWarmStateStore(db *DB) *WarmStateStore {
	return &WarmStateStore{db: db}
}

const warmStateColumns = "domain, status, last_warm_at, next_warm_at, error, started_at, completed_at"

// Save creates or updates the state of a domain
func (s *WarmStateStore) Save(ctx context.Context, state *domain.WarmState) error {
	if state == nil {
		return fmt.Errorf("%w: nil warm state", domain.ErrInvalidInput)
	}
	if _, err := domain.ParseDomain(string(state.Domain)); err != nil {
		return err
	}

	query := s.db.Rebind(`
		INSERT INTO warm_states (` + warmStateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (domain) DO UPDATE SET
			status = EXCLUDED.status,
			last_warm_at = EXCLUDED.last_warm_at,
			next_warm_at = EXCLUDED.next_warm_at,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`)

	_, err := s.db.ExecContext(ctx, query,
		string(state.Domain),
		string(state.Status),
		nullTime(state.LastWarmAt),
		nullTime(state.NextWarmAt),
		state.Error,
		nullTime(state.StartedAt),
		nullTime(state.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save warm state: %w", err)
	}
	return nil
}

// Get retrieves the state of a domain
func (s *WarmStateStore) Get(ctx context.Context, d domain.Domain) (*domain.WarmState, error) {
	query := s.db.Rebind("SELECT " + warmStateColumns + " FROM warm_states WHERE domain = ?")

	state, err := scanWarmState(s.db.QueryRowContext(ctx, query, string(d)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get warm state: %w", err)
	}
	return state, nil
}

// List retrieves every stored state ordered by domain
func (s *WarmStateStore) List(ctx context.Context) ([]*domain.WarmState, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+warmStateColumns+" FROM warm_states ORDER BY domain")
	if err != nil {
		return nil, fmt.Errorf("list warm states: %w", err)
	}
	defer rows.Close()

	states := make([]*domain.WarmState, 0)
	for rows.Next() {
		state, err := scanWarmState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan warm state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func scanWarmState(row rowScanner) (*domain.WarmState, error) {
	var state domain.WarmState
	var d, status string
	var lastWarmAt, nextWarmAt, startedAt, completedAt sql.NullInt64

	if err := row.Scan(&d, &status, &lastWarmAt, &nextWarmAt, &state.Error, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	state.Domain = domain.Domain(d)
	state.Status = domain.WarmStatus(status)
	state.LastWarmAt = timePtr(lastWarmAt)
	state.NextWarmAt = timePtr(nextWarmAt)
	state.StartedAt = timePtr(startedAt)
	state.CompletedAt = timePtr(completedAt)
	return &state, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: UnixNano(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := FromUnixNano(n.Int64)
	return &t
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/accountable/internal/model"
)

const (
	keyLastSettlementDate = "last_settlement_date"
	leaderboardKeyPrefix  = "leaderboard_handle:"
)

// StateStore holds process-wide scalars: the settlement guard and the
// published leaderboard handles.
type StateStore struct {
	db *sql.DB
}

func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db}
}

// Get returns the value for key and whether it was set.
func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM process_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %q: %w", key, err)
	}
	return value, true, nil
}

func (s *StateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO process_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// LastSettlementDate returns the date of the last completed settlement, or
// "" if none has run.
func (s *StateStore) LastSettlementDate(ctx context.Context) (model.Date, error) {
	v, _, err := s.Get(ctx, keyLastSettlementDate)
	if err != nil {
		return "", err
	}
	return model.Date(v), nil
}

func (s *StateStore) SetLastSettlementDate(ctx context.Context, d model.Date) error {
	return s.Set(ctx, keyLastSettlementDate, string(d))
}

// LeaderboardHandle returns the artifact handle last published for
// community, or "" if nothing was published yet.
func (s *StateStore) LeaderboardHandle(ctx context.Context, community string) (string, error) {
	v, _, err := s.Get(ctx, leaderboardKeyPrefix+community)
	return v, err
}

func (s *StateStore) SetLeaderboardHandle(ctx context.Context, community, handle string) error {
	return s.Set(ctx, leaderboardKeyPrefix+community, handle)
}

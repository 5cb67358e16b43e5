package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/accountable/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.MemberRecord, error) {
	m := model.NewMemberRecord("")
	var lastLog, warnedAt, joinedAt, removedAt sql.NullTime
	var protectedUntil sql.NullString

	err := scanner.Scan(
		&m.ID, &m.Community, &lastLog, &m.WeeklyPoints, &m.TotalPoints,
		&protectedUntil, &warnedAt, &joinedAt, &removedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.LastValidLogAt = timePtr(lastLog)
	m.WarnedAt = timePtr(warnedAt)
	m.JoinedAt = timePtr(joinedAt)
	m.RemovedAt = timePtr(removedAt)
	if protectedUntil.Valid {
		d := model.Date(protectedUntil.String)
		m.ProtectedUntil = &d
	}
	return m, nil
}

const memberCols = `id, community, last_valid_log_at, weekly_points, total_points, protected_until, warned_at, joined_at, removed_at, created_at, updated_at`

// Get returns the record for id, or nil if none exists.
func (s *MemberStore) Get(ctx context.Context, id string) (*model.MemberRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	if err := s.loadEntries(ctx, map[string]*model.MemberRecord{m.ID: m}, `WHERE member_id = ?`, id); err != nil {
		return nil, err
	}
	if err := s.loadLeave(ctx, map[string]*model.MemberRecord{m.ID: m}, `WHERE member_id = ?`, id); err != nil {
		return nil, err
	}
	return m, nil
}

// GetOrCreate returns the record for id, creating an empty one first if the
// member has never been seen. This is the only way records come into being.
func (s *MemberStore) GetOrCreate(ctx context.Context, id string) (*model.MemberRecord, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO members (id) VALUES (?)`, id); err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("member %s vanished after insert", id)
	}
	return m, nil
}

// Put writes the full record, including its ledger and leave counters, in a
// single transaction. Nothing is written if any step fails.
func (s *MemberStore) Put(ctx context.Context, m *model.MemberRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var protectedUntil any
	if m.ProtectedUntil != nil {
		protectedUntil = string(*m.ProtectedUntil)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO members (id, community, last_valid_log_at, weekly_points, total_points, protected_until, warned_at, joined_at, removed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   community = excluded.community,
		   last_valid_log_at = excluded.last_valid_log_at,
		   weekly_points = excluded.weekly_points,
		   total_points = excluded.total_points,
		   protected_until = excluded.protected_until,
		   warned_at = excluded.warned_at,
		   joined_at = excluded.joined_at,
		   removed_at = excluded.removed_at,
		   updated_at = excluded.updated_at`,
		m.ID, m.Community, nullTime(m.LastValidLogAt), m.WeeklyPoints, m.TotalPoints,
		protectedUntil, nullTime(m.WarnedAt), nullTime(m.JoinedAt), nullTime(m.RemovedAt), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_entries WHERE member_id = ?`, m.ID); err != nil {
		return fmt.Errorf("clear daily entries: %w", err)
	}
	for _, day := range m.DailyPoints.Dates() {
		e := m.DailyPoints[day]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO daily_entries (member_id, day, kind, points) VALUES (?, ?, ?, ?)`,
			m.ID, string(day), string(e.Kind), e.Points,
		); err != nil {
			return fmt.Errorf("insert daily entry %s: %w", day, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM leave_usage WHERE member_id = ?`, m.ID); err != nil {
		return fmt.Errorf("clear leave usage: %w", err)
	}
	for month, used := range m.LeaveUsed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO leave_usage (member_id, month, used) VALUES (?, ?, ?)`,
			m.ID, month, used,
		); err != nil {
			return fmt.Errorf("insert leave usage %s: %w", month, err)
		}
	}

	return tx.Commit()
}

// ListIDs returns every member id, ordered by creation.
func (s *MemberStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM members ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list member ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ScanAll returns every record in creation order.
func (s *MemberStore) ScanAll(ctx context.Context) ([]*model.MemberRecord, error) {
	return s.list(ctx, ``)
}

// ListByCommunity returns the records last seen in community, in creation
// order.
func (s *MemberStore) ListByCommunity(ctx context.Context, community string) ([]*model.MemberRecord, error) {
	return s.list(ctx, `WHERE community = ?`, community)
}

func (s *MemberStore) list(ctx context.Context, where string, args ...any) ([]*model.MemberRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberCols+` FROM members `+where+` ORDER BY created_at ASC, rowid ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	var members []*model.MemberRecord
	byID := make(map[string]*model.MemberRecord)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	rows.Close()

	if len(members) == 0 {
		return members, nil
	}
	if err := s.loadEntries(ctx, byID, ``); err != nil {
		return nil, err
	}
	if err := s.loadLeave(ctx, byID, ``); err != nil {
		return nil, err
	}
	return members, nil
}

// loadEntries fills the ledgers of the given members. Rows for members not
// in byID are ignored.
func (s *MemberStore) loadEntries(ctx context.Context, byID map[string]*model.MemberRecord, where string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, `SELECT member_id, day, kind, points FROM daily_entries `+where, args...)
	if err != nil {
		return fmt.Errorf("list daily entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memberID, day, kind string
		var points int
		if err := rows.Scan(&memberID, &day, &kind, &points); err != nil {
			return fmt.Errorf("scan daily entry: %w", err)
		}
		m, ok := byID[memberID]
		if !ok {
			continue
		}
		m.DailyPoints[model.Date(day)] = model.DayEntry{Kind: model.EntryKind(kind), Points: points}
	}
	return rows.Err()
}

func (s *MemberStore) loadLeave(ctx context.Context, byID map[string]*model.MemberRecord, where string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, `SELECT member_id, month, used FROM leave_usage `+where, args...)
	if err != nil {
		return fmt.Errorf("list leave usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memberID, month string
		var used int
		if err := rows.Scan(&memberID, &month, &used); err != nil {
			return fmt.Errorf("scan leave usage: %w", err)
		}
		if m, ok := byID[memberID]; ok {
			m.LeaveUsed[month] = used
		}
	}
	return rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

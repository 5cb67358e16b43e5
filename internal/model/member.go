package model

import (
	"sort"
	"time"
)

// Date is a calendar date in the reference timezone, formatted YYYY-MM-DD.
// Dates compare correctly as strings.
type Date string

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", err
	}
	return Date(s), nil
}

// AddDays returns the date n calendar days after d.
func (d Date) AddDays(n int) Date {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return d
	}
	return DateOf(t.AddDate(0, 0, n))
}

// MonthKey returns the YYYY-MM key for the month containing d.
func (d Date) MonthKey() string {
	if len(d) < 7 {
		return ""
	}
	return string(d[:7])
}

func (d Date) String() string {
	return string(d)
}

// MonthKey returns the YYYY-MM key for t in t's location.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

type EntryKind string

const (
	EntryScore     EntryKind = "score"
	EntryProtected EntryKind = "protected"
)

// DayEntry is one ledger entry: either a signed score or a protected
// (leave-covered) day with no score.
type DayEntry struct {
	Kind   EntryKind `json:"kind"`
	Points int       `json:"points"`
}

func Score(points int) DayEntry {
	return DayEntry{Kind: EntryScore, Points: points}
}

func Protected() DayEntry {
	return DayEntry{Kind: EntryProtected}
}

func (e DayEntry) IsProtected() bool {
	return e.Kind == EntryProtected
}

// Ledger maps a date to the single entry recorded for it.
type Ledger map[Date]DayEntry

// Has reports whether an entry exists for d.
func (l Ledger) Has(d Date) bool {
	_, ok := l[d]
	return ok
}

// Record stores e for d unless an entry already exists. It reports whether
// the entry was written.
func (l Ledger) Record(d Date, e DayEntry) bool {
	if l.Has(d) {
		return false
	}
	l[d] = e
	return true
}

// Dates returns the recorded dates in ascending order.
func (l Ledger) Dates() []Date {
	dates := make([]Date, 0, len(l))
	for d := range l {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates
}

// MemberRecord is the accountability state for one community member.
type MemberRecord struct {
	ID             string         `json:"id"`
	Community      string         `json:"community"`
	LastValidLogAt *time.Time     `json:"last_valid_log_at"`
	WeeklyPoints   int            `json:"weekly_points"`
	TotalPoints    int            `json:"total_points"`
	DailyPoints    Ledger         `json:"daily_points"`
	LeaveUsed      map[string]int `json:"leave_used"`
	ProtectedUntil *Date          `json:"protected_until"`
	WarnedAt       *time.Time     `json:"warned_at"`
	JoinedAt       *time.Time     `json:"joined_at"`
	RemovedAt      *time.Time     `json:"removed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewMemberRecord returns an empty record for id.
func NewMemberRecord(id string) *MemberRecord {
	return &MemberRecord{
		ID:          id,
		DailyPoints: Ledger{},
		LeaveUsed:   map[string]int{},
	}
}

// IsProtected reports whether day falls inside the protection window.
func (m *MemberRecord) IsProtected(day Date) bool {
	return m.ProtectedUntil != nil && day <= *m.ProtectedUntil
}

// IsRemoved reports whether the member has been removed from the community.
func (m *MemberRecord) IsRemoved() bool {
	return m.RemovedAt != nil
}

// AddPoints applies delta to both the weekly and total accumulators.
func (m *MemberRecord) AddPoints(delta int) {
	m.WeeklyPoints += delta
	m.TotalPoints += delta
}

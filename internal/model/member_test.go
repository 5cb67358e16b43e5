package model

import (
	"testing"
	"time"
)

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC on Jan 31 is already Feb 1 in IST.
	ts := time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC).In(loc)
	if got := DateOf(ts); got != "2025-02-01" {
		t.Errorf("DateOf = %q, want %q", got, "2025-02-01")
	}
	if got := MonthKey(ts); got != "2025-02" {
		t.Errorf("MonthKey = %q, want %q", got, "2025-02")
	}
}

func TestDateAddDays(t *testing.T) {
	tests := []struct {
		d    Date
		n    int
		want Date
	}{
		{"2025-03-10", 1, "2025-03-11"},
		{"2025-02-28", 1, "2025-03-01"},
		{"2024-12-31", 1, "2025-01-01"},
		{"2025-03-10", 0, "2025-03-10"},
		{"2025-03-01", -1, "2025-02-28"},
	}
	for _, tt := range tests {
		if got := tt.d.AddDays(tt.n); got != tt.want {
			t.Errorf("%s.AddDays(%d) = %s, want %s", tt.d, tt.n, got, tt.want)
		}
	}
}

func TestDateMonthKey(t *testing.T) {
	if got := Date("2025-07-04").MonthKey(); got != "2025-07" {
		t.Errorf("MonthKey = %q, want %q", got, "2025-07")
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2025-13-01"); err == nil {
		t.Error("expected error for invalid month")
	}
	d, err := ParseDate("2025-06-30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d != "2025-06-30" {
		t.Errorf("date = %q", d)
	}
}

func TestLedgerRecordOncePerDate(t *testing.T) {
	l := Ledger{}
	if !l.Record("2025-05-01", Score(11)) {
		t.Fatal("first record should succeed")
	}
	if l.Record("2025-05-01", Protected()) {
		t.Error("second record on the same date should be refused")
	}
	if got := l["2025-05-01"]; got.IsProtected() || got.Points != 11 {
		t.Errorf("entry = %+v, want score 11", got)
	}
}

func TestLedgerDatesSorted(t *testing.T) {
	l := Ledger{}
	l.Record("2025-05-03", Score(1))
	l.Record("2025-05-01", Score(2))
	l.Record("2025-05-02", Protected())

	dates := l.Dates()
	want := []Date{"2025-05-01", "2025-05-02", "2025-05-03"}
	if len(dates) != len(want) {
		t.Fatalf("len = %d, want %d", len(dates), len(want))
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d] = %s, want %s", i, dates[i], want[i])
		}
	}
}

func TestMemberIsProtected(t *testing.T) {
	m := NewMemberRecord("u1")
	if m.IsProtected("2025-05-01") {
		t.Error("no window set, should not be protected")
	}
	until := Date("2025-05-02")
	m.ProtectedUntil = &until
	if !m.IsProtected("2025-05-01") || !m.IsProtected("2025-05-02") {
		t.Error("window is inclusive")
	}
	if m.IsProtected("2025-05-03") {
		t.Error("day after window should not be protected")
	}
}

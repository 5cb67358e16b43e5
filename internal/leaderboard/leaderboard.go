package leaderboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukerupert/accountable/internal/model"
)

// DefaultSize is how many members a published leaderboard shows.
const DefaultSize = 20

type Entry struct {
	Rank     int    `json:"rank"`
	MemberID string `json:"member_id"`
	Points   int    `json:"points"`
}

// Rank orders members by weekly points, highest first, and keeps the top n.
// Removed members are left out. Ties keep their input order.
func Rank(members []*model.MemberRecord, n int) []Entry {
	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		if m.IsRemoved() {
			continue
		}
		entries = append(entries, Entry{MemberID: m.ID, Points: m.WeeklyPoints})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})

	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Render formats entries as a chat message, mentioning each member.
func Render(entries []Entry) string {
	var b strings.Builder
	b.WriteString("🏆 **Leaderboard (running total)**")
	if len(entries) == 0 {
		b.WriteString("\nNo entries yet.")
		return b.String()
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%d. <@%s> - **%d pts**", e.Rank, e.MemberID, e.Points)
	}
	return b.String()
}

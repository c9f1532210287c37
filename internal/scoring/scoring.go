// Package scoring ranks users from report history. Rankings are recomputed
// from the full collections on every call; ties keep collection order.
package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/jmerrifield20/opengov/internal/model"
)

// TopN is how many citizen rows are always shown.
const TopN = 5

const (
	pointsPerResolved = 10
	pointsPerReport   = 1
)

// CitizenRow is one line of the impact leaderboard.
type CitizenRow struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	Points        int    `json:"points"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

// RankCitizens scores every user by 10 points per resolved report they
// authored plus 1 per report authored, highest first. Rank is the 1-based
// position in the sorted list.
func RankCitizens(users []*model.User, reports []*model.Report, currentUserID string) []CitizenRow {
	total := make(map[string]int)
	resolved := make(map[string]int)
	for _, r := range reports {
		total[r.CitizenID]++
		if r.Status == model.StatusResolved {
			resolved[r.CitizenID]++
		}
	}

	rows := make([]CitizenRow, len(users))
	for i, u := range users {
		rows[i] = CitizenRow{
			UserID:        u.ID,
			Username:      u.Name,
			Points:        pointsPerResolved*resolved[u.ID] + pointsPerReport*total[u.ID],
			IsCurrentUser: currentUserID != "" && u.ID == currentUserID,
		}
	}
	slices.SortStableFunc(rows, func(a, b CitizenRow) int { return b.Points - a.Points })
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// CitizenLeaderboard returns the top rows of RankCitizens. When the current
// user ranks below the top rows their own row is appended with its real rank.
func CitizenLeaderboard(users []*model.User, reports []*model.Report, currentUserID string) []CitizenRow {
	ranked := RankCitizens(users, reports, currentUserID)
	if len(ranked) <= TopN {
		return ranked
	}
	board := slices.Clone(ranked[:TopN])
	for _, row := range ranked[TopN:] {
		if row.IsCurrentUser {
			board = append(board, row)
			break
		}
	}
	return board
}

// AuthorityRow is one line of the authority performance board.
type AuthorityRow struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	Points        int    `json:"points"`
	ResolvedCount int    `json:"resolvedCount"`
	// AvgResolution is AvgResolutionHours formatted for display.
	AvgResolution      string  `json:"avgResolutionTime"`
	AvgResolutionHours float64 `json:"avgResolutionHours"`
	// RawPoints is the unrounded score the ranking sorts on.
	RawPoints float64 `json:"rawPoints"`
}

// RankAuthorities scores every authority by 10 points per report they claimed
// and resolved, minus their mean resolution time in hours. Scores may be
// negative. Every authority is included.
func RankAuthorities(users []*model.User, reports []*model.Report) []AuthorityRow {
	rows := make([]AuthorityRow, 0, len(users))
	for _, u := range users {
		if !u.IsAuthority() {
			continue
		}
		var n int
		var hours float64
		for _, r := range reports {
			if r.AssignedTo() != u.ID {
				continue
			}
			d, ok := r.ResolutionTime()
			if !ok {
				continue
			}
			n++
			hours += d.Hours()
		}
		var avg float64
		if n > 0 {
			avg = hours / float64(n)
		}
		raw := float64(pointsPerResolved*n) - avg
		rows = append(rows, AuthorityRow{
			UserID:             u.ID,
			Username:           u.Name,
			Points:             roundHalfUp(raw),
			ResolvedCount:      n,
			AvgResolution:      fmt.Sprintf("%.2f hours", avg),
			AvgResolutionHours: avg,
			RawPoints:          raw,
		})
	}
	slices.SortStableFunc(rows, func(a, b AuthorityRow) int {
		switch {
		case a.RawPoints > b.RawPoints:
			return -1
		case a.RawPoints < b.RawPoints:
			return 1
		}
		return 0
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// roundHalfUp rounds to the nearest integer with halves going towards
// positive infinity, so -2.5 becomes -2.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

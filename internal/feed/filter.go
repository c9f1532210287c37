// Package feed computes the read-side views of the report collection:
// filtered lists, the community feed, per-viewer redaction and dashboard
// aggregates. Every function here is pure.
package feed

import (
	"slices"
	"strings"

	"github.com/jmerrifield20/opengov/internal/model"
)

// Criteria selects reports. Zero-valued fields do not constrain.
type Criteria struct {
	Status   model.Status
	Category model.Category
	// Query is matched case-insensitively as a substring of the title,
	// description or location.
	Query   string
	OwnerID string
	// PublicOnly restricts the result to public reports regardless of the
	// other fields. It is the only gate for community listings.
	PublicOnly bool
}

// Filter returns the reports matching c in input order. The input slice and
// its reports are never modified; the result shares report pointers with it.
func Filter(reports []*model.Report, c Criteria) []*model.Report {
	q := strings.ToLower(c.Query)
	out := make([]*model.Report, 0, len(reports))
	for _, r := range reports {
		if c.PublicOnly && !r.IsPublic {
			continue
		}
		if c.Status != "" && r.Status != c.Status {
			continue
		}
		if c.Category != "" && r.Category != c.Category {
			continue
		}
		if c.OwnerID != "" && r.CitizenID != c.OwnerID {
			continue
		}
		if q != "" && !matches(r, q) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matches(r *model.Report, q string) bool {
	return strings.Contains(strings.ToLower(r.Title), q) ||
		strings.Contains(strings.ToLower(r.Description), q) ||
		strings.Contains(strings.ToLower(r.Location), q)
}

// CommunityFeed returns public reports ordered by upvotes, highest first.
// Reports with equal upvotes keep their collection order.
func CommunityFeed(reports []*model.Report) []*model.Report {
	out := Filter(reports, Criteria{PublicOnly: true})
	slices.SortStableFunc(out, func(a, b *model.Report) int {
		return b.Upvotes - a.Upvotes
	})
	return out
}

// ViewFor returns the report as viewer may see it. Internal notes are removed
// for anyone who is not an authority, including anonymous viewers.
func ViewFor(r *model.Report, viewer *model.User) *model.Report {
	if viewer.IsAuthority() || len(r.InternalNotes) == 0 {
		return r
	}
	cp := r.Clone()
	cp.InternalNotes = nil
	return cp
}

// ViewAllFor applies ViewFor to each report.
func ViewAllFor(reports []*model.Report, viewer *model.User) []*model.Report {
	out := make([]*model.Report, len(reports))
	for i, r := range reports {
		out[i] = ViewFor(r, viewer)
	}
	return out
}

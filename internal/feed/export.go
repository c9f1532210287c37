package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jmerrifield20/opengov/internal/model"
)

var csvHeader = []string{
	"id", "title", "category", "status", "location", "latitude", "longitude",
	"citizenName", "assignedToName", "upvotes", "downvotes", "comments",
	"createdAt", "updatedAt", "resolvedAt",
}

// WriteCSV writes one row per report with a header row.
func WriteCSV(w io.Writer, reports []*model.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range reports {
		if err := cw.Write(csvRow(r)); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r *model.Report) []string {
	var assignee, resolved string
	if r.Assignment != nil {
		assignee = r.Assignment.AuthorityName
	}
	if t, ok := r.ResolvedAt(); ok {
		resolved = t.Format(time.RFC3339)
	}
	return []string{
		r.ID,
		r.Title,
		string(r.Category),
		string(r.Status),
		r.Location,
		coord(r.Latitude),
		coord(r.Longitude),
		r.CitizenName,
		assignee,
		strconv.Itoa(r.Upvotes),
		strconv.Itoa(r.Downvotes),
		strconv.Itoa(len(r.Comments)),
		r.CreatedAt.Format(time.RFC3339),
		r.UpdatedAt.Format(time.RFC3339),
		resolved,
	}
}

func coord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

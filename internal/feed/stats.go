package feed

import "github.com/jmerrifield20/opengov/internal/model"

// Stats are the dashboard counters.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
	Rejected   int `json:"rejected"`
}

// Summarize counts reports per status.
func Summarize(reports []*model.Report) Stats {
	var s Stats
	for _, r := range reports {
		s.Total++
		switch r.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusInProgress:
			s.InProgress++
		case model.StatusResolved:
			s.Resolved++
		case model.StatusRejected:
			s.Rejected++
		}
	}
	return s
}

package model

import (
	"encoding/json"
	"time"
)

// reportJSON is the flat record layout shared with the browser client's
// local store. Keys are camelCase and status-dependent fields sit at top level.
type reportJSON struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Category       Category   `json:"category"`
	Status         Status     `json:"status"`
	Location       string     `json:"location"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	Images         []string   `json:"images,omitempty"`
	CitizenID      string     `json:"citizenId"`
	CitizenName    string     `json:"citizenName"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	AssignedToName string     `json:"assignedToName,omitempty"`
	InternalNotes  []Note     `json:"internalNotes,omitempty"`
	Comments       []Comment  `json:"comments,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	IsPublic       bool       `json:"isPublic"`
	Upvotes        int        `json:"upvotes"`
	Downvotes      int        `json:"downvotes"`
	UpvotedBy      []string   `json:"upvotedBy,omitempty"`
	DownvotedBy    []string   `json:"downvotedBy,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Report) MarshalJSON() ([]byte, error) {
	w := reportJSON{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		Status:        r.Status,
		Location:      r.Location,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		Images:        r.Images,
		CitizenID:     r.CitizenID,
		CitizenName:   r.CitizenName,
		InternalNotes: r.InternalNotes,
		Comments:      r.Comments,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		IsPublic:      r.IsPublic,
		Upvotes:       r.Upvotes,
		Downvotes:     r.Downvotes,
		UpvotedBy:     r.UpvotedBy,
		DownvotedBy:   r.DownvotedBy,
	}
	if r.Assignment != nil {
		w.AssignedTo = r.Assignment.AuthorityID
		w.AssignedToName = r.Assignment.AuthorityName
	}
	if r.Resolution != nil {
		t := r.Resolution.ResolvedAt
		w.ResolvedAt = &t
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Report) UnmarshalJSON(data []byte) error {
	var w reportJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Report{
		ID:            w.ID,
		Title:         w.Title,
		Description:   w.Description,
		Category:      w.Category,
		Location:      w.Location,
		Latitude:      w.Latitude,
		Longitude:     w.Longitude,
		Images:        w.Images,
		Status:        w.Status,
		CitizenID:     w.CitizenID,
		CitizenName:   w.CitizenName,
		IsPublic:      w.IsPublic,
		Comments:      w.Comments,
		InternalNotes: w.InternalNotes,
		Upvotes:       w.Upvotes,
		Downvotes:     w.Downvotes,
		UpvotedBy:     w.UpvotedBy,
		DownvotedBy:   w.DownvotedBy,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
	if w.AssignedTo != "" {
		r.Assignment = &Assignment{AuthorityID: w.AssignedTo, AuthorityName: w.AssignedToName}
	}
	if w.ResolvedAt != nil {
		r.Resolution = &Resolution{ResolvedAt: *w.ResolvedAt}
	}
	return nil
}

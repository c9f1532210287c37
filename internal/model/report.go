package model

import (
	"slices"
	"time"
)

// MaxImages is the upper bound on evidence photos attached to one report.
const MaxImages = 5

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Terminal reports whether no further transition is normally possible from s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// Category classifies the kind of civic issue.
type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategorySafety         Category = "safety"
	CategoryEnvironment    Category = "environment"
	CategoryUtilities      Category = "utilities"
	CategoryOther          Category = "other"
)

// Categories lists every category.
var Categories = []Category{
	CategoryInfrastructure, CategorySafety, CategoryEnvironment, CategoryUtilities, CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// VoteKind is the direction of a community vote.
type VoteKind string

const (
	VoteUp   VoteKind = "upvote"
	VoteDown VoteKind = "downvote"
)

// Valid reports whether k is upvote or downvote.
func (k VoteKind) Valid() bool {
	return k == VoteUp || k == VoteDown
}

// Comment is a public remark on a report. Comments are append-only.
type Comment struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Note is an internal remark visible to authorities only. Notes are append-only.
type Note struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Timestamp  time.Time `json:"timestamp"`
}

// Assignment records the authority that claimed a report. It is set by the
// first transition into in_progress and never reassigned.
type Assignment struct {
	AuthorityID   string
	AuthorityName string
}

// Resolution exists once a report has reached the resolved state.
// ResolvedAt is the time of the first transition into resolved.
type Resolution struct {
	ResolvedAt time.Time
}

// Report is a citizen-submitted civic issue.
//
// Status-dependent data lives in optional variants: Assignment is present once
// an authority has claimed the report, Resolution once it has been resolved.
// The serialized form flattens both back into assignedTo, assignedToName and
// resolvedAt (see json.go).
type Report struct {
	ID          string
	Title       string
	Description string
	Category    Category
	Location    string
	Latitude    *float64
	Longitude   *float64
	Images      []string

	Status     Status
	Assignment *Assignment
	Resolution *Resolution

	CitizenID   string
	CitizenName string

	IsPublic bool

	Comments      []Comment
	InternalNotes []Note

	Upvotes     int
	Downvotes   int
	UpvotedBy   []string
	DownvotedBy []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssignedTo returns the id of the claiming authority, or "" when unassigned.
func (r *Report) AssignedTo() string {
	if r.Assignment == nil {
		return ""
	}
	return r.Assignment.AuthorityID
}

// ResolvedAt returns the first resolution time and whether one exists.
func (r *Report) ResolvedAt() (time.Time, bool) {
	if r.Resolution == nil {
		return time.Time{}, false
	}
	return r.Resolution.ResolvedAt, true
}

// ResolutionTime returns how long the report took to resolve.
// ok is false unless the report is currently resolved.
func (r *Report) ResolutionTime() (d time.Duration, ok bool) {
	if r.Status != StatusResolved || r.Resolution == nil {
		return 0, false
	}
	return r.Resolution.ResolvedAt.Sub(r.CreatedAt), true
}

// HasUpvoted reports whether userID is in the upvote set.
func (r *Report) HasUpvoted(userID string) bool {
	return slices.Contains(r.UpvotedBy, userID)
}

// HasDownvoted reports whether userID is in the downvote set.
func (r *Report) HasDownvoted(userID string) bool {
	return slices.Contains(r.DownvotedBy, userID)
}

// Clone returns a deep copy of r. Engines mutate clones so a failed operation
// leaves the caller's report untouched.
func (r *Report) Clone() *Report {
	cp := *r
	if r.Latitude != nil {
		lat := *r.Latitude
		cp.Latitude = &lat
	}
	if r.Longitude != nil {
		lng := *r.Longitude
		cp.Longitude = &lng
	}
	if r.Assignment != nil {
		a := *r.Assignment
		cp.Assignment = &a
	}
	if r.Resolution != nil {
		res := *r.Resolution
		cp.Resolution = &res
	}
	cp.Images = slices.Clone(r.Images)
	cp.Comments = slices.Clone(r.Comments)
	cp.InternalNotes = slices.Clone(r.InternalNotes)
	cp.UpvotedBy = slices.Clone(r.UpvotedBy)
	cp.DownvotedBy = slices.Clone(r.DownvotedBy)
	return &cp
}

// Normalize repairs vote bookkeeping read from an untrusted substrate:
// duplicate voter ids are collapsed, an id present in both sets is removed
// from both, and the counts are recomputed from the sets.
func (r *Report) Normalize() {
	up := dedupe(r.UpvotedBy)
	down := dedupe(r.DownvotedBy)

	both := make(map[string]struct{})
	for _, id := range up {
		if slices.Contains(down, id) {
			both[id] = struct{}{}
		}
	}
	if len(both) > 0 {
		inBoth := func(id string) bool { _, ok := both[id]; return ok }
		up = slices.DeleteFunc(up, inBoth)
		down = slices.DeleteFunc(down, inBoth)
		if len(up) == 0 {
			up = nil
		}
		if len(down) == 0 {
			down = nil
		}
	}

	r.UpvotedBy = up
	r.DownvotedBy = down
	r.Upvotes = len(up)
	r.Downvotes = len(down)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Package voting keeps per-user upvote/downvote bookkeeping on reports.
package voting

import (
	"fmt"
	"slices"

	"github.com/jmerrifield20/opengov/internal/model"
)

// Engine applies toggle voting under a Policy.
type Engine struct {
	policy model.Policy
}

// New creates a voting Engine.
func New(policy model.Policy) *Engine {
	return &Engine{policy: policy}
}

// Vote records voter's kind vote on a copy of report.
//
// Casting the same kind twice retracts it. Casting the opposite kind first
// retracts the earlier vote, so a user id is never in both voter sets.
// updatedAt is left alone: a double vote yields the exact pre-vote record.
func (e *Engine) Vote(report *model.Report, voter *model.User, kind model.VoteKind) (*model.Report, error) {
	if voter == nil {
		return nil, model.ErrUnauthenticated
	}
	if !kind.Valid() {
		return nil, model.Invalid("kind", "must be upvote or downvote")
	}
	if !e.policy.AllowSelfVote && voter.ID == report.CitizenID {
		return nil, fmt.Errorf("%w: authors cannot vote on their own report", model.ErrPermission)
	}

	r := report.Clone()
	same, other := &r.UpvotedBy, &r.DownvotedBy
	if kind == model.VoteDown {
		same, other = other, same
	}

	if slices.Contains(*same, voter.ID) {
		*same = remove(*same, voter.ID)
	} else {
		*other = remove(*other, voter.ID)
		*same = append(*same, voter.ID)
	}
	r.Upvotes = len(r.UpvotedBy)
	r.Downvotes = len(r.DownvotedBy)
	return r, nil
}

// Tally returns the net score of a report.
func Tally(r *model.Report) int {
	return r.Upvotes - r.Downvotes
}

func remove(ids []string, id string) []string {
	out := slices.DeleteFunc(ids, func(v string) bool { return v == id })
	if len(out) == 0 {
		return nil
	}
	return out
}

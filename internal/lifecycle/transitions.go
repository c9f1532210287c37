package lifecycle

import (
	"slices"

	"github.com/jmerrifield20/opengov/internal/model"
)

// edges lists the forward transitions. in_progress -> in_progress is a repeat
// claim: the status is unchanged and the assignment is kept.
var edges = map[model.Status][]model.Status{
	model.StatusPending:    {model.StatusInProgress, model.StatusResolved, model.StatusRejected},
	model.StatusInProgress: {model.StatusInProgress, model.StatusResolved, model.StatusRejected},
}

// reopenEdges apply only when the policy allows reopening.
var reopenEdges = []model.Status{model.StatusPending, model.StatusInProgress}

func (e *Engine) allowed(from, to model.Status) bool {
	if from.Terminal() {
		if !e.policy.AllowReopen {
			return false
		}
		return slices.Contains(reopenEdges, to)
	}
	return slices.Contains(edges[from], to)
}

// CanTransition reports whether a report in from may move to to under the
// engine's policy. Role checks are not included.
func (e *Engine) CanTransition(from, to model.Status) bool {
	return e.allowed(from, to)
}

package model

// Policy holds the deployment-level switches for behavior the report model
// leaves open.
type Policy struct {
	// AllowReopen permits resolved or rejected reports to move back to
	// pending or in_progress. The original resolution time is kept, so a
	// reopened report is the one case where resolvedAt is set while the
	// status is not resolved. ResolutionTime reports nothing until the
	// report is resolved again. With AllowReopen off, resolvedAt is set
	// exactly when the status is resolved.
	AllowReopen bool
	// AllowSelfVote permits citizens to vote on reports they authored.
	AllowSelfVote bool
}

// DefaultPolicy is terminal states sticky, self-votes allowed.
func DefaultPolicy() Policy {
	return Policy{AllowReopen: false, AllowSelfVote: true}
}

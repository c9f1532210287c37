// Package lifecycle implements report creation, author edits, status
// transitions and the append-only note and comment logs.
//
// Every operation works on a deep copy of the input report: on error the
// caller's value is untouched, on success the updated copy is returned.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/opengov/internal/model"
)

// Engine applies lifecycle rules under a Policy.
type Engine struct {
	policy model.Policy
	now    func() time.Time
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how report, note and comment ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New creates an Engine.
func New(policy model.Policy, opts ...Option) *Engine {
	e := &Engine{
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() model.Policy { return e.policy }

// CreateReport files a new pending report authored by a citizen.
func (e *Engine) CreateReport(author *model.User, content model.Content) (*model.Report, error) {
	if author == nil {
		return nil, model.ErrUnauthenticated
	}
	if !author.IsCitizen() {
		return nil, fmt.Errorf("%w: only citizens can file reports", model.ErrPermission)
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	r := &model.Report{
		ID:          e.newID(),
		Status:      model.StatusPending,
		CitizenID:   author.ID,
		CitizenName: author.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	setContent(r, content)
	return r.Clone(), nil
}

// EditReport applies an author's patch to a pending report. Reports an
// authority has started acting on are locked for everyone.
func (e *Engine) EditReport(report *model.Report, author *model.User, patch model.Patch) (*model.Report, error) {
	if report.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: report %s is %s and can no longer be edited", model.ErrInvalidState, report.ID, report.Status)
	}
	if author == nil {
		return nil, model.ErrUnauthenticated
	}
	if author.ID != report.CitizenID {
		return nil, fmt.Errorf("%w: only the author can edit report %s", model.ErrPermission, report.ID)
	}

	content := patch.Apply(report)
	if err := content.Validate(); err != nil {
		return nil, err
	}

	r := report.Clone()
	setContent(r, content)
	r.UpdatedAt = e.now()
	return r.Clone(), nil
}

// TransitionStatus moves a report to next on behalf of an authority.
//
// Moving into in_progress claims the report for the actor unless another
// authority already holds it. The first move into resolved stamps the
// resolution time; it is never cleared or overwritten afterwards.
func (e *Engine) TransitionStatus(report *model.Report, actor *model.User, next model.Status) (*model.Report, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	if !actor.IsAuthority() {
		return nil, fmt.Errorf("%w: only authorities can change report status", model.ErrPermission)
	}
	if !next.Valid() {
		return nil, model.Invalid("status", fmt.Sprintf("must be one of %v", model.Statuses))
	}
	if !e.allowed(report.Status, next) {
		return nil, fmt.Errorf("%w: cannot move report %s from %s to %s", model.ErrInvalidState, report.ID, report.Status, next)
	}

	now := e.now()
	r := report.Clone()
	r.Status = next
	switch next {
	case model.StatusInProgress:
		if r.Assignment == nil {
			r.Assignment = &model.Assignment{AuthorityID: actor.ID, AuthorityName: actor.Name}
		}
	case model.StatusResolved:
		if r.Resolution == nil {
			r.Resolution = &model.Resolution{ResolvedAt: now}
		}
	}
	r.UpdatedAt = now
	return r, nil
}

// AddInternalNote appends an authority-only note.
func (e *Engine) AddInternalNote(report *model.Report, actor *model.User, text string) (*model.Report, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	if !actor.IsAuthority() {
		return nil, fmt.Errorf("%w: only authorities can add internal notes", model.ErrPermission)
	}
	if strings.TrimSpace(text) == "" {
		return nil, model.Invalid("text", "must not be blank")
	}

	now := e.now()
	r := report.Clone()
	r.InternalNotes = append(r.InternalNotes, model.Note{
		ID:         e.newID(),
		Text:       text,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Timestamp:  now,
	})
	r.UpdatedAt = now
	return r, nil
}

// AddComment appends a public comment. Any signed-in user may comment on
// any report.
func (e *Engine) AddComment(report *model.Report, actor *model.User, text string) (*model.Report, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" {
		return nil, model.Invalid("text", "must not be blank")
	}

	now := e.now()
	r := report.Clone()
	r.Comments = append(r.Comments, model.Comment{
		ID:         e.newID(),
		Text:       text,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		CreatedAt:  now,
	})
	r.UpdatedAt = now
	return r, nil
}

func setContent(r *model.Report, c model.Content) {
	r.Title = c.Title
	r.Description = c.Description
	r.Category = c.Category
	r.Location = c.Location
	r.Latitude = c.Latitude
	r.Longitude = c.Longitude
	r.Images = c.Images
	r.IsPublic = c.IsPublic
}

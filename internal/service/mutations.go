package service

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/opengov/internal/activity"
	"github.com/jmerrifield20/opengov/internal/events"
	"github.com/jmerrifield20/opengov/internal/feed"
	"github.com/jmerrifield20/opengov/internal/model"
	"go.uber.org/zap"
)

// Create files a new report for a citizen.
func (s *ReportService) Create(ctx context.Context, author *model.User, content model.Content) (*model.Report, error) {
	s.mu.Lock()
	r, err := s.lifecycle.CreateReport(author, content)
	if err == nil {
		err = s.appendReport(ctx, r)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.metrics.ReportCreated()
	s.logger.Info("report created", zap.String("report_id", r.ID), zap.String("citizen_id", r.CitizenID))
	s.record(ctx, author, r, activity.ActionCreated, "Report created", r)
	s.publish(ctx, events.ReportCreated, r, author, map[string]any{
		"title":    r.Title,
		"category": r.Category,
		"isPublic": r.IsPublic,
	})
	return feed.ViewFor(r, author), nil
}

func (s *ReportService) appendReport(ctx context.Context, r *model.Report) error {
	return s.reports.Update(ctx, func(all []*model.Report) ([]*model.Report, error) {
		return append(normalized(all), r), nil
	})
}

// Edit applies the author's patch to a pending report.
func (s *ReportService) Edit(ctx context.Context, author *model.User, id string, patch model.Patch) (*model.Report, error) {
	_, after, err := s.mutate(ctx, id, func(r *model.Report) (*model.Report, error) {
		return s.lifecycle.EditReport(r, author, patch)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, author, after, activity.ActionEdited, "Report details updated", patch)
	s.publish(ctx, events.ReportUpdated, after, author, patch)
	return feed.ViewFor(after, author), nil
}

// Transition moves a report to next on behalf of an authority. Activity,
// events and the author e-mail follow only an actual change of status.
func (s *ReportService) Transition(ctx context.Context, actor *model.User, id string, next model.Status) (*model.Report, error) {
	before, after, err := s.mutate(ctx, id, func(r *model.Report) (*model.Report, error) {
		return s.lifecycle.TransitionStatus(r, actor, next)
	})
	if err != nil {
		return nil, err
	}

	if before.Status == after.Status {
		s.logger.Debug("repeat claim left status unchanged",
			zap.String("report_id", id),
			zap.String("status", string(after.Status)),
			zap.String("actor_id", actor.ID),
		)
		return feed.ViewFor(after, actor), nil
	}

	s.metrics.StatusTransition(before.Status, after.Status)
	s.logger.Info("report status changed",
		zap.String("report_id", id),
		zap.String("from", string(before.Status)),
		zap.String("to", string(after.Status)),
		zap.String("actor_id", actor.ID),
	)
	payload := events.StatusChangedPayload{
		OldStatus:  string(before.Status),
		NewStatus:  string(after.Status),
		AssignedTo: after.AssignedTo(),
	}
	desc := fmt.Sprintf("Status changed from %s to %s", before.Status, after.Status)
	s.record(ctx, actor, after, activity.ActionStatusChanged, desc, payload)
	s.publish(ctx, events.ReportStatusChanged, after, actor, payload)
	s.notify(ctx, after, before.Status)
	return feed.ViewFor(after, actor), nil
}

// AddNote appends an internal note.
func (s *ReportService) AddNote(ctx context.Context, actor *model.User, id, text string) (*model.Report, error) {
	_, after, err := s.mutate(ctx, id, func(r *model.Report) (*model.Report, error) {
		return s.lifecycle.AddInternalNote(r, actor, text)
	})
	if err != nil {
		return nil, err
	}
	note := after.InternalNotes[len(after.InternalNotes)-1]
	s.record(ctx, actor, after, activity.ActionNoteAdded, "Internal note added", note)
	s.publish(ctx, events.ReportNoteAdded, after, actor, map[string]string{"noteId": note.ID})
	return feed.ViewFor(after, actor), nil
}

// AddComment appends a public comment.
func (s *ReportService) AddComment(ctx context.Context, actor *model.User, id, text string) (*model.Report, error) {
	_, after, err := s.mutate(ctx, id, func(r *model.Report) (*model.Report, error) {
		if actor != nil && !canSee(r, actor) {
			return nil, fmt.Errorf("%w: report %s", model.ErrNotFound, id)
		}
		return s.lifecycle.AddComment(r, actor, text)
	})
	if err != nil {
		return nil, err
	}
	c := after.Comments[len(after.Comments)-1]
	s.record(ctx, actor, after, activity.ActionCommented, "Comment added", c)
	s.publish(ctx, events.ReportCommented, after, actor, c)
	return feed.ViewFor(after, actor), nil
}

// Vote toggles voter's vote on a report.
func (s *ReportService) Vote(ctx context.Context, voter *model.User, id string, kind model.VoteKind) (*model.Report, error) {
	_, after, err := s.mutate(ctx, id, func(r *model.Report) (*model.Report, error) {
		if voter != nil && !canSee(r, voter) {
			return nil, fmt.Errorf("%w: report %s", model.ErrNotFound, id)
		}
		return s.voting.Vote(r, voter, kind)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.VoteCast(kind)
	s.publish(ctx, events.ReportVoted, after, voter, events.VotedPayload{
		Kind:      string(kind),
		Upvotes:   after.Upvotes,
		Downvotes: after.Downvotes,
	})
	return feed.ViewFor(after, voter), nil
}

// mutate applies fn to the report with id and writes the collection back.
// A stored report that fails validation cannot be mutated.
func (s *ReportService) mutate(ctx context.Context, id string, fn func(*model.Report) (*model.Report, error)) (before, after *model.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.reports.Update(ctx, func(all []*model.Report) ([]*model.Report, error) {
		all = normalized(all)
		idx := -1
		for i, r := range all {
			if r.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: report %s", model.ErrNotFound, id)
		}

		before = all[idx]
		if err := before.Validate(); err != nil {
			return nil, fmt.Errorf("stored report %s is malformed: %w", id, err)
		}
		next, err := fn(before)
		if err != nil {
			return nil, err
		}
		after = next
		all[idx] = after
		return all, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// ── Side effects ─────────────────────────────────────────────────────────

func (s *ReportService) record(ctx context.Context, actor *model.User, r *model.Report, action, desc string, payload any) {
	if s.ledger == nil {
		return
	}
	_, err := s.ledger.Append(ctx, activity.Record{
		ReportID:    r.ID,
		UserID:      actor.ID,
		UserName:    actor.Name,
		Action:      action,
		Description: desc,
	}, payload)
	s.metrics.ActivityAppended(err == nil)
	if err != nil {
		s.logger.Error("activity append failed (non-fatal)",
			zap.String("report_id", r.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *ReportService) publish(ctx context.Context, eventType string, r *model.Report, actor *model.User, payload any) {
	if s.publisher == nil {
		return
	}
	e, err := events.New(eventType, r.ID, actor.ID, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, e)
	}
	s.metrics.EventPublished(eventType, err == nil)
	if err != nil {
		s.logger.Warn("event publish failed (non-fatal)",
			zap.String("event_type", eventType),
			zap.String("report_id", r.ID),
			zap.Error(err),
		)
	}
}

func (s *ReportService) notify(ctx context.Context, r *model.Report, old model.Status) {
	if s.notifier == nil {
		return
	}
	author, err := s.users.Get(ctx, r.CitizenID)
	if err != nil {
		s.logger.Warn("status email skipped: author lookup failed",
			zap.String("report_id", r.ID),
			zap.Error(err),
		)
		return
	}
	if err := s.notifier.StatusChanged(ctx, author, r, old); err != nil {
		s.logger.Warn("status email failed (non-fatal)",
			zap.String("report_id", r.ID),
			zap.Error(err),
		)
	}
}

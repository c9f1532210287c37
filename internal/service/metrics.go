package service

import "github.com/jmerrifield20/opengov/internal/model"

// Metrics receives counters from ReportService.
type Metrics interface {
	ReportCreated()
	StatusTransition(from, to model.Status)
	VoteCast(kind model.VoteKind)
	EventPublished(eventType string, ok bool)
	ActivityAppended(ok bool)
}

type nopMetrics struct{}

func (nopMetrics) ReportCreated() {}

func (nopMetrics) StatusTransition(_, _ model.Status) {}

func (nopMetrics) VoteCast(model.VoteKind) {}

func (nopMetrics) EventPublished(string, bool) {}

func (nopMetrics) ActivityAppended(bool) {}

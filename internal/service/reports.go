// Package service runs the report and user operations against the store.
//
// Each mutating call loads the full collection, applies one engine operation
// to one report and writes the collection back, all under a mutex. Activity
// entries, domain events and e-mails follow a successful write; their
// failures are logged and never fail the call.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jmerrifield20/opengov/internal/activity"
	"github.com/jmerrifield20/opengov/internal/events"
	"github.com/jmerrifield20/opengov/internal/feed"
	"github.com/jmerrifield20/opengov/internal/lifecycle"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/scoring"
	"github.com/jmerrifield20/opengov/internal/store"
	"github.com/jmerrifield20/opengov/internal/voting"
	"go.uber.org/zap"
)

// userLookup is satisfied by *UserService.
type userLookup interface {
	Get(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
}

// statusNotifier is satisfied by *email.Notifier.
type statusNotifier interface {
	StatusChanged(ctx context.Context, author *model.User, report *model.Report, old model.Status) error
}

// ReportService is the read-modify-write boundary around the report
// collection.
type ReportService struct {
	mu        sync.Mutex
	reports   *store.Collection[*model.Report]
	users     userLookup
	lifecycle *lifecycle.Engine
	voting    *voting.Engine
	ledger    activity.Ledger
	publisher events.Publisher
	notifier  statusNotifier
	metrics   Metrics
	logger    *zap.Logger
}

// NewReportService creates a ReportService. The ledger, publisher, notifier
// and metrics are optional and configured with the Set methods.
func NewReportService(
	reports *store.Collection[*model.Report],
	users userLookup,
	lc *lifecycle.Engine,
	votes *voting.Engine,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		reports:   reports,
		users:     users,
		lifecycle: lc,
		voting:    votes,
		metrics:   nopMetrics{},
		logger:    logger,
	}
}

// SetLedger configures the activity ledger.
func (s *ReportService) SetLedger(l activity.Ledger) { s.ledger = l }

// SetPublisher configures the domain event publisher.
func (s *ReportService) SetPublisher(p events.Publisher) { s.publisher = p }

// SetNotifier configures author e-mail notifications.
func (s *ReportService) SetNotifier(n statusNotifier) { s.notifier = n }

// SetMetrics configures the metrics sink.
func (s *ReportService) SetMetrics(m Metrics) { s.metrics = m }

// ── Reads ────────────────────────────────────────────────────────────────

// load returns the stored reports with vote bookkeeping repaired.
func (s *ReportService) load(ctx context.Context) ([]*model.Report, error) {
	all, err := s.reports.Load(ctx)
	if err != nil {
		return nil, err
	}
	return normalized(all), nil
}

// normalized drops nil entries and repairs vote bookkeeping in place.
func normalized(all []*model.Report) []*model.Report {
	out := all[:0]
	for _, r := range all {
		if r == nil {
			continue
		}
		r.Normalize()
		out = append(out, r)
	}
	return out
}

// loadValid returns only the structurally valid reports.
func (s *ReportService) loadValid(ctx context.Context) ([]*model.Report, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Report, 0, len(all))
	for _, r := range all {
		if err := r.Validate(); err != nil {
			s.logger.Warn("skipping invalid report record", zap.String("report_id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// canSee reports whether viewer may read r at all. Private reports are
// visible to their author and to authorities.
func canSee(r *model.Report, viewer *model.User) bool {
	return r.IsPublic || viewer.IsAuthority() || (viewer != nil && viewer.ID == r.CitizenID)
}

// Get returns one report as viewer may see it.
func (s *ReportService) Get(ctx context.Context, viewer *model.User, id string) (*model.Report, error) {
	all, err := s.loadValid(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.ID == id && canSee(r, viewer) {
			return feed.ViewFor(r, viewer), nil
		}
	}
	return nil, fmt.Errorf("%w: report %s", model.ErrNotFound, id)
}

// List filters the reports viewer may see.
func (s *ReportService) List(ctx context.Context, viewer *model.User, c feed.Criteria) ([]*model.Report, error) {
	all, err := s.loadValid(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]*model.Report, 0, len(all))
	for _, r := range all {
		if canSee(r, viewer) {
			visible = append(visible, r)
		}
	}
	return feed.ViewAllFor(feed.Filter(visible, c), viewer), nil
}

// Community returns the public feed, most upvoted first.
func (s *ReportService) Community(ctx context.Context, viewer *model.User) ([]*model.Report, error) {
	all, err := s.loadValid(ctx)
	if err != nil {
		return nil, err
	}
	return feed.ViewAllFor(feed.CommunityFeed(all), viewer), nil
}

// Stats counts reports per status. Citizens get counts over their own
// reports, authorities over all of them.
func (s *ReportService) Stats(ctx context.Context, viewer *model.User) (feed.Stats, error) {
	if viewer == nil {
		return feed.Stats{}, model.ErrUnauthenticated
	}
	all, err := s.loadValid(ctx)
	if err != nil {
		return feed.Stats{}, err
	}
	if !viewer.IsAuthority() {
		all = feed.Filter(all, feed.Criteria{OwnerID: viewer.ID})
	}
	return feed.Summarize(all), nil
}

// Export writes the reports matching c as CSV. Authorities only.
func (s *ReportService) Export(ctx context.Context, actor *model.User, c feed.Criteria, w io.Writer) error {
	if actor == nil {
		return model.ErrUnauthenticated
	}
	if !actor.IsAuthority() {
		return fmt.Errorf("%w: only authorities can export reports", model.ErrPermission)
	}
	all, err := s.loadValid(ctx)
	if err != nil {
		return err
	}
	return feed.WriteCSV(w, feed.Filter(all, c))
}

// CitizenLeaderboard ranks users by impact points.
func (s *ReportService) CitizenLeaderboard(ctx context.Context, currentUserID string) ([]scoring.CitizenRow, error) {
	users, reports, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return scoring.CitizenLeaderboard(users, reports, currentUserID), nil
}

// AuthorityLeaderboard ranks authorities by resolution performance.
func (s *ReportService) AuthorityLeaderboard(ctx context.Context) ([]scoring.AuthorityRow, error) {
	users, reports, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return scoring.RankAuthorities(users, reports), nil
}

func (s *ReportService) snapshot(ctx context.Context) ([]*model.User, []*model.Report, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	reports, err := s.loadValid(ctx)
	if err != nil {
		return nil, nil, err
	}
	return users, reports, nil
}

// Activity returns the ledger entries for a report. Authorities and the
// report's author may read it.
func (s *ReportService) Activity(ctx context.Context, viewer *model.User, id string) ([]*activity.Entry, error) {
	if viewer == nil {
		return nil, model.ErrUnauthenticated
	}
	r, err := s.Get(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if !viewer.IsAuthority() && viewer.ID != r.CitizenID {
		return nil, fmt.Errorf("%w: activity is visible to the author and authorities", model.ErrPermission)
	}
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.ForReport(ctx, id)
}

// VerifyActivity checks the ledger hash chain.
func (s *ReportService) VerifyActivity(ctx context.Context) error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Verify(ctx)
}

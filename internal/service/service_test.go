package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jmerrifield20/opengov/internal/activity"
	"github.com/jmerrifield20/opengov/internal/events"
	"github.com/jmerrifield20/opengov/internal/feed"
	"github.com/jmerrifield20/opengov/internal/lifecycle"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/service"
	"github.com/jmerrifield20/opengov/internal/store"
	"github.com/jmerrifield20/opengov/internal/voting"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Stubs ────────────────────────────────────────────────────────────────

type stubPublisher struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (p *stubPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func (p *stubPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

type stubNotifier struct {
	sent []string
}

func (n *stubNotifier) StatusChanged(_ context.Context, author *model.User, r *model.Report, old model.Status) error {
	n.sent = append(n.sent, author.Email+":"+string(old)+"->"+string(r.Status))
	return nil
}

// ── Fixture ──────────────────────────────────────────────────────────────

type fixture struct {
	blobs     *store.MemoryStore
	users     *service.UserService
	reports   *service.ReportService
	ledger    *activity.MemoryLedger
	publisher *stubPublisher
	notifier  *stubNotifier

	dana, lee, works, parks *model.User
}

func newFixture(t *testing.T, policy model.Policy) *fixture {
	t.Helper()
	logger := zap.NewNop()
	f := &fixture{
		blobs:     store.NewMemoryStore(),
		ledger:    activity.NewMemoryLedger(),
		publisher: &stubPublisher{},
		notifier:  &stubNotifier{},
	}
	f.users = service.NewUserService(store.NewCollection[model.User](f.blobs, store.UsersKey, logger), logger)
	f.reports = service.NewReportService(
		store.NewCollection[*model.Report](f.blobs, store.ReportsKey, logger),
		f.users,
		lifecycle.New(policy),
		voting.New(policy),
		logger,
	)
	f.reports.SetLedger(f.ledger)
	f.reports.SetPublisher(f.publisher)
	f.reports.SetNotifier(f.notifier)

	f.dana = f.register(t, "dana@example.org", "Dana", model.RoleCitizen)
	f.lee = f.register(t, "lee@example.org", "Lee", model.RoleCitizen)
	f.works = f.register(t, "works@city.gov", "Public Works", model.RoleAuthority)
	f.parks = f.register(t, "parks@city.gov", "Parks Dept", model.RoleAuthority)
	return f
}

func (f *fixture) register(t *testing.T, email, name string, role model.Role) *model.User {
	t.Helper()
	u, err := f.users.Register(ctx, email, name, role)
	if err != nil {
		t.Fatalf("Register %s: %v", email, err)
	}
	return u
}

func (f *fixture) create(t *testing.T, author *model.User, public bool) *model.Report {
	t.Helper()
	r, err := f.reports.Create(ctx, author, model.Content{
		Title:       "Overflowing bin",
		Description: "Not emptied for two weeks",
		Category:    model.CategoryEnvironment,
		Location:    "Market Square",
		IsPublic:    public,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

// ── Users ────────────────────────────────────────────────────────────────

func TestRegister_duplicateEmail(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	if _, err := f.users.Register(ctx, "DANA@example.org", "Dana Two", model.RoleCitizen); !errors.Is(err, service.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegister_validates(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	if _, err := f.users.Register(ctx, "x@example.org", "X", "mayor"); !model.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestGetByEmail(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	u, err := f.users.GetByEmail(ctx, " Works@City.gov ")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if u.ID != f.works.ID {
		t.Errorf("got %s, want %s", u.ID, f.works.ID)
	}
	if _, err := f.users.GetByEmail(ctx, "nobody@example.org"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ── Reports ──────────────────────────────────────────────────────────────

func TestCreate_persistsAndRecords(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	r := f.create(t, f.dana, true)

	got, err := f.reports.Get(ctx, f.lee, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != r.Title || got.Status != model.StatusPending {
		t.Errorf("reloaded = %+v", got)
	}
	entries, _ := f.ledger.ForReport(ctx, r.ID)
	if len(entries) != 1 || entries[0].Action != activity.ActionCreated || entries[0].UserName != "Dana" {
		t.Errorf("ledger = %+v", entries)
	}
	if types := f.publisher.types(); len(types) != 1 || types[0] != events.ReportCreated {
		t.Errorf("events = %v", types)
	}
}

func TestCreate_authorityForbidden(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	_, err := f.reports.Create(ctx, f.works, model.Content{Title: "t", Description: "d", Category: model.CategoryOther, Location: "l"})
	if !errors.Is(err, model.ErrPermission) {
		t.Errorf("expected ErrPermission, got %v", err)
	}
}

func TestTransition_flowNotifiesAuthor(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	r := f.create(t, f.dana, true)

	if _, err := f.reports.Transition(ctx, f.works, r.ID, model.StatusInProgress); err != nil {
		t.Fatalf("claim: %v", err)
	}
	again, err := f.reports.Transition(ctx, f.parks, r.ID, model.StatusInProgress)
	if err != nil {
		t.Fatalf("repeat claim: %v", err)
	}
	if again.AssignedTo() != f.works.ID {
		t.Errorf("assignment stolen by %s", again.AssignedTo())
	}
	done, err := f.reports.Transition(ctx, f.parks, r.ID, model.StatusResolved)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := done.ResolvedAt(); !ok {
		t.Error("resolvedAt not set")
	}

	if _, err := f.reports.Transition(ctx, f.works, r.ID, model.StatusPending); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("reopen: expected ErrInvalidState, got %v", err)
	}
	if _, err := f.reports.Edit(ctx, f.dana, r.ID, model.Patch{}); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("edit resolved: expected ErrInvalidState, got %v", err)
	}

	want := []string{"dana@example.org:pending->in_progress", "dana@example.org:in_progress->resolved"}
	if strings.Join(f.notifier.sent, ",") != strings.Join(want, ",") {
		t.Errorf("emails = %v, want %v", f.notifier.sent, want)
	}
	if err := f.reports.VerifyActivity(ctx); err != nil {
		t.Errorf("VerifyActivity: %v", err)
	}
}

func TestTransition_repeatClaimHasNoSideEffects(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	r := f.create(t, f.dana, true)
	if _, err := f.reports.Transition(ctx, f.works, r.ID, model.StatusInProgress); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := f.reports.Transition(ctx, f.parks, r.ID, model.StatusInProgress); err != nil {
		t.Fatalf("repeat claim: %v", err)
	}

	entries, _ := f.ledger.ForReport(ctx, r.ID)
	if len(entries) != 2 {
		t.Errorf("ledger has %d entries, want created + one status change", len(entries))
	}
	want := []string{events.ReportCreated, events.ReportStatusChanged}
	if got := f.publisher.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("emails = %v", f.notifier.sent)
	}
}

func TestTransition_citizenForbidden(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	r := f.create(t, f.dana, true)
	if _, err := f.reports.Transition(ctx, f.dana, r.ID, model.StatusResolved); !errors.Is(err, model.ErrPermission) {
		t.Errorf("expected ErrPermission, got %v", err)
	}
}

func TestTransition_unknownReport(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	if _, err := f.reports.Transition(ctx, f.works, "nope", model.StatusResolved); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVisibility_privateAndNotes(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	r := f.create(t, f.dana, false)
	if _, err := f.reports.AddNote(ctx, f.works, r.ID, "needs a crane"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	if _, err := f.reports.Get(ctx, f.lee, r.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("other citizen: expected ErrNotFound, got %v", err)
	}
	own, err := f.reports.Get(ctx, f.dana, r.ID)
	if err != nil {
		t.Fatalf("author Get: %v", err)
	}
	if own.InternalNotes != nil {
		t.Error("author sees internal notes")
	}
	staff, err := f.reports.Get(ctx, f.parks, r.ID)
	if err != nil {
		t.Fatalf("authority Get: %v", err)
	}
	if len(staff.InternalNotes) != 1 {
		t.Errorf("authority notes = %+v", staff.InternalNotes)
	}

	community, err := f.reports.Community(ctx, f.works)
	if err != nil {
		t.Fatalf("Community: %v", err)
	}
	if len(community) != 0 {
		t.Errorf("private report in community feed")
	}
	if _, err := f.reports.Vote(ctx, f.lee, r.ID, model.VoteUp); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("vote on hidden report: expected ErrNotFound, got %v", err)
	}
}

func TestList_restrictsCitizensToVisible(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	f.create(t, f.dana, false)
	f.create(t, f.lee, true)
	f.create(t, f.lee, false)

	for _, tc := range []struct {
		viewer *model.User
		want   int
	}{
		{f.dana, 2},
		{f.lee, 2},
		{f.works, 3},
		{nil, 1},
	} {
		got, err := f.reports.List(ctx, tc.viewer, feed.Criteria{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != tc.want {
			t.Errorf("viewer %v: %d reports, want %d", tc.viewer, len(got), tc.want)
		}
	}
}

func TestVote_toggleThroughStore(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	r := f.create(t, f.dana, true)

	if _, err := f.reports.Vote(ctx, f.lee, r.ID, model.VoteUp); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	down, err := f.reports.Vote(ctx, f.lee, r.ID, model.VoteDown)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if down.Upvotes != 0 || down.Downvotes != 1 {
		t.Errorf("counts %d/%d", down.Upvotes, down.Downvotes)
	}
	back, err := f.reports.Vote(ctx, f.lee, r.ID, model.VoteDown)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if back.Downvotes != 0 || back.DownvotedBy != nil || !back.UpdatedAt.Equal(r.UpdatedAt) {
		t.Errorf("retraction did not restore: %+v", back)
	}
	if _, err := f.reports.Vote(ctx, nil, r.ID, model.VoteUp); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSelfVotePolicy(t *testing.T) {
	f := newFixture(t, model.Policy{AllowSelfVote: false})
	r := f.create(t, f.dana, true)
	if _, err := f.reports.Vote(ctx, f.dana, r.ID, model.VoteUp); !errors.Is(err, model.ErrPermission) {
		t.Errorf("expected ErrPermission, got %v", err)
	}
}

func TestPublisherFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	f.publisher.err = errors.New("broker down")
	r := f.create(t, f.dana, true)
	if _, err := f.reports.AddComment(ctx, f.lee, r.ID, "+1"); err != nil {
		t.Errorf("AddComment with failing publisher: %v", err)
	}
}

func TestLeaderboards(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, f.create(t, f.dana, true).ID)
	}
	for _, id := range ids[:2] {
		if _, err := f.reports.Transition(ctx, f.works, id, model.StatusInProgress); err != nil {
			t.Fatal(err)
		}
		if _, err := f.reports.Transition(ctx, f.works, id, model.StatusResolved); err != nil {
			t.Fatal(err)
		}
	}

	citizens, err := f.reports.CitizenLeaderboard(ctx, f.lee.ID)
	if err != nil {
		t.Fatalf("CitizenLeaderboard: %v", err)
	}
	if citizens[0].UserID != f.dana.ID || citizens[0].Points != 23 {
		t.Errorf("top citizen = %+v", citizens[0])
	}

	authorities, err := f.reports.AuthorityLeaderboard(ctx)
	if err != nil {
		t.Fatalf("AuthorityLeaderboard: %v", err)
	}
	if len(authorities) != 2 || authorities[0].UserID != f.works.ID || authorities[0].ResolvedCount != 2 {
		t.Errorf("authorities = %+v", authorities)
	}
}

func TestExport_authorityOnly(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	f.create(t, f.dana, true)

	var buf bytes.Buffer
	if err := f.reports.Export(ctx, f.dana, feed.Criteria{}, &buf); !errors.Is(err, model.ErrPermission) {
		t.Errorf("citizen export: expected ErrPermission, got %v", err)
	}
	if err := f.reports.Export(ctx, f.works, feed.Criteria{}, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Errorf("csv lines = %d, want 2", lines)
	}
}

func TestStats_scopedByRole(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	f.create(t, f.dana, true)
	f.create(t, f.lee, true)

	mine, err := f.reports.Stats(ctx, f.dana)
	if err != nil {
		t.Fatal(err)
	}
	all, err := f.reports.Stats(ctx, f.works)
	if err != nil {
		t.Fatal(err)
	}
	if mine.Total != 1 || all.Total != 2 || all.Pending != 2 {
		t.Errorf("mine=%+v all=%+v", mine, all)
	}
}

func TestMalformedRecordsSurviveWriteBack(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	r := f.create(t, f.dana, true)

	raw, _ := f.blobs.Get(ctx, store.ReportsKey)
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatal(err)
	}
	records = append(records, json.RawMessage(`{"id":"legacy","status":"archived"}`))
	patched, _ := json.Marshal(records)
	_ = f.blobs.Set(ctx, store.ReportsKey, patched)

	if _, err := f.reports.AddComment(ctx, f.lee, r.ID, "still there"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if _, err := f.reports.AddComment(ctx, f.lee, "legacy", "hello"); !model.IsValidation(err) {
		t.Errorf("mutating malformed record: expected ValidationError, got %v", err)
	}
	raw, _ = f.blobs.Get(ctx, store.ReportsKey)
	if !strings.Contains(string(raw), `"id":"legacy"`) {
		t.Error("malformed record was dropped on write-back")
	}
}

func TestUndecodableRecordDoesNotEraseCollection(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	r1 := f.create(t, f.dana, true)
	r2 := f.create(t, f.lee, true)

	raw, _ := f.blobs.Get(ctx, store.ReportsKey)
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatal(err)
	}
	records = append(records[:1], append([]json.RawMessage{json.RawMessage(`{"id":"legacy","upvotes":"many"}`)}, records[1:]...)...)
	patched, _ := json.Marshal(records)
	_ = f.blobs.Set(ctx, store.ReportsKey, patched)

	got, err := f.reports.List(ctx, f.works, feed.Criteria{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List = %d reports, want 2", len(got))
	}
	if _, err := f.reports.AddComment(ctx, f.lee, r1.ID, "still here"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if _, err := f.reports.AddComment(ctx, f.lee, "legacy", "hello"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("undecodable record: expected ErrNotFound, got %v", err)
	}
	r3 := f.create(t, f.dana, false)

	raw, _ = f.blobs.Get(ctx, store.ReportsKey)
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Fatalf("stored %d records, want 4: %s", len(records), raw)
	}
	if string(records[1]) != `{"id":"legacy","upvotes":"many"}` {
		t.Errorf("undecodable record not kept in place: %s", records[1])
	}
	for i, id := range []string{r1.ID, "", r2.ID, r3.ID} {
		if id != "" && !strings.Contains(string(records[i]), `"id":"`+id+`"`) {
			t.Errorf("record %d = %s, want id %s", i, records[i], id)
		}
	}
}

func TestUndecodableUserDoesNotEraseUsers(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())

	raw, _ := f.blobs.Get(ctx, store.UsersKey)
	patched := bytes.Replace(raw, []byte("["), []byte(`[{"id":"old","createdAt":"yesterday"},`), 1)
	_ = f.blobs.Set(ctx, store.UsersKey, patched)

	f.register(t, "new@example.org", "New", model.RoleCitizen)
	if _, err := f.users.Get(ctx, f.dana.ID); err != nil {
		t.Errorf("existing user lost: %v", err)
	}
	raw, _ = f.blobs.Get(ctx, store.UsersKey)
	if !strings.Contains(string(raw), `"createdAt":"yesterday"`) {
		t.Errorf("undecodable user dropped: %s", raw)
	}
}

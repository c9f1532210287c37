package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/opengov/internal/activity"
	"github.com/jmerrifield20/opengov/internal/handler"
	"github.com/jmerrifield20/opengov/internal/health"
	"github.com/jmerrifield20/opengov/internal/identity"
	"github.com/jmerrifield20/opengov/internal/lifecycle"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/service"
	"github.com/jmerrifield20/opengov/internal/store"
	"github.com/jmerrifield20/opengov/internal/voting"
	"go.uber.org/zap"
)

// ── Setup ────────────────────────────────────────────────────────────────

// switchableStore fails every call while down is set.
type switchableStore struct {
	store.Store
	down bool
}

var errBackendDown = errors.New("backend down")

func (s *switchableStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.down {
		return nil, errBackendDown
	}
	return s.Store.Get(ctx, key)
}

func (s *switchableStore) Set(ctx context.Context, key string, value []byte) error {
	if s.down {
		return errBackendDown
	}
	return s.Store.Set(ctx, key, value)
}

type testServer struct {
	blobs    *switchableStore
	router   *gin.Engine
	sessions *identity.SessionIssuer
	ledger   *activity.MemoryLedger
}

func setupRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	blobs := &switchableStore{Store: store.NewMemoryStore()}
	users := service.NewUserService(store.NewCollection[model.User](blobs, store.UsersKey, logger), logger)
	policy := model.DefaultPolicy()
	reports := service.NewReportService(
		store.NewCollection[*model.Report](blobs, store.ReportsKey, logger),
		users,
		lifecycle.New(policy),
		voting.New(policy),
		logger,
	)
	ledger := activity.NewMemoryLedger()
	reports.SetLedger(ledger)
	reports.SetMetrics(handler.PrometheusRecorder{})

	sessions, err := identity.NewSessionIssuer([]byte("test-secret-0123456789"), "opengov-test", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionIssuer: %v", err)
	}
	auth := handler.NewAuthenticator(sessions, users, logger)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewUserHandler(users, sessions, auth, logger).Register(v1)
	handler.NewReportHandler(reports, auth, logger).Register(v1)
	handler.NewActivityHandler(ledger, reports, auth, logger).Register(v1)
	return &testServer{blobs: blobs, router: r, sessions: sessions, ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func expect(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
}

// signUp registers a user and returns the session token and user id.
func (s *testServer) signUp(t *testing.T, email, name string, role model.Role) (string, string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/users", "", map[string]any{
		"email": email, "name": name, "role": role,
	})
	expect(t, w, http.StatusCreated)
	resp := decode(t, w)
	user := resp["user"].(map[string]any)
	return resp["token"].(string), user["id"].(string)
}

func (s *testServer) createReport(t *testing.T, token string, public bool) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/reports", token, map[string]any{
		"title":       "Broken streetlight",
		"description": "Dark corner since Monday",
		"category":    "safety",
		"location":    "5th and Main",
		"isPublic":    public,
	})
	expect(t, w, http.StatusCreated)
	return decode(t, w)["id"].(string)
}

// ── Users and sessions ───────────────────────────────────────────────────

func TestSignUp_duplicateEmail409(t *testing.T) {
	s := setupRouter(t)
	s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)

	w := s.do(t, http.MethodPost, "/api/v1/users", "", map[string]any{
		"email": "DANA@example.org", "name": "Other Dana",
	})
	expect(t, w, http.StatusConflict)
}

func TestSignUp_invalidEmail400(t *testing.T) {
	s := setupRouter(t)
	w := s.do(t, http.MethodPost, "/api/v1/users", "", map[string]any{
		"email": "not-an-address", "name": "Dana",
	})
	expect(t, w, http.StatusBadRequest)
	if f := decode(t, w)["field"]; f != "email" {
		t.Errorf("expected field=email, got %v", f)
	}
}

func TestSignIn(t *testing.T) {
	s := setupRouter(t)
	_, id := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)

	w := s.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]any{"email": "dana@example.org"})
	expect(t, w, http.StatusOK)
	token := decode(t, w)["token"].(string)

	w = s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	expect(t, w, http.StatusOK)
	if got := decode(t, w)["id"]; got != id {
		t.Errorf("expected id %s, got %v", id, got)
	}

	w = s.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]any{"email": "nobody@example.org"})
	expect(t, w, http.StatusUnauthorized)
}

func TestMe_requiresSession(t *testing.T) {
	s := setupRouter(t)
	expect(t, s.do(t, http.MethodGet, "/api/v1/users/me", "", nil), http.StatusUnauthorized)
	expect(t, s.do(t, http.MethodGet, "/api/v1/users/me", "garbage", nil), http.StatusUnauthorized)
}

func TestMe_unknownUser401(t *testing.T) {
	s := setupRouter(t)
	token, err := s.sessions.Issue("ghost", "Ghost", string(model.RoleCitizen))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	expect(t, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil), http.StatusUnauthorized)
}

func TestMe_storageFailureIsNot401(t *testing.T) {
	s := setupRouter(t)
	token, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)

	s.blobs.down = true
	expect(t, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil), http.StatusServiceUnavailable)
	expect(t, s.do(t, http.MethodGet, "/api/v1/reports", token, nil), http.StatusServiceUnavailable)

	s.blobs.down = false
	expect(t, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil), http.StatusOK)
}

// ── Reports ──────────────────────────────────────────────────────────────

func TestCreateReport_errors(t *testing.T) {
	s := setupRouter(t)
	citizen, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	authority, _ := s.signUp(t, "works@city.gov", "Public Works", model.RoleAuthority)

	body := map[string]any{
		"title": "Pothole", "description": "Deep", "category": "infrastructure", "location": "Elm St",
	}
	expect(t, s.do(t, http.MethodPost, "/api/v1/reports", "", body), http.StatusUnauthorized)
	expect(t, s.do(t, http.MethodPost, "/api/v1/reports", authority, body), http.StatusForbidden)

	body["title"] = "  "
	w := s.do(t, http.MethodPost, "/api/v1/reports", citizen, body)
	expect(t, w, http.StatusBadRequest)
	if f := decode(t, w)["field"]; f != "title" {
		t.Errorf("expected field=title, got %v", f)
	}
}

func TestReportLifecycle(t *testing.T) {
	s := setupRouter(t)
	citizen, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	authority, worksID := s.signUp(t, "works@city.gov", "Public Works", model.RoleAuthority)
	id := s.createReport(t, citizen, true)
	base := "/api/v1/reports/" + id

	w := s.do(t, http.MethodPatch, base, citizen, map[string]any{"title": "Streetlight out"})
	expect(t, w, http.StatusOK)
	if got := decode(t, w)["title"]; got != "Streetlight out" {
		t.Errorf("expected edited title, got %v", got)
	}

	expect(t, s.do(t, http.MethodPost, base+"/status", citizen, map[string]any{"status": "in_progress"}), http.StatusForbidden)

	w = s.do(t, http.MethodPost, base+"/status", authority, map[string]any{"status": "in_progress"})
	expect(t, w, http.StatusOK)
	resp := decode(t, w)
	if resp["assignedTo"] != worksID || resp["assignedToName"] != "Public Works" {
		t.Errorf("expected claim by Public Works, got %v / %v", resp["assignedTo"], resp["assignedToName"])
	}

	// Editing is locked once work has started.
	expect(t, s.do(t, http.MethodPatch, base, citizen, map[string]any{"title": "x"}), http.StatusConflict)

	w = s.do(t, http.MethodPost, base+"/status", authority, map[string]any{"status": "resolved"})
	expect(t, w, http.StatusOK)
	if _, ok := decode(t, w)["resolvedAt"]; !ok {
		t.Error("expected resolvedAt after resolving")
	}

	expect(t, s.do(t, http.MethodPost, base+"/status", authority, map[string]any{"status": "pending"}), http.StatusConflict)
	expect(t, s.do(t, http.MethodPost, base+"/status", authority, map[string]any{"status": "closed"}), http.StatusBadRequest)
	expect(t, s.do(t, http.MethodPost, "/api/v1/reports/missing/status", authority, map[string]any{"status": "resolved"}), http.StatusNotFound)
}

func TestPrivateReportsAndNotes(t *testing.T) {
	s := setupRouter(t)
	dana, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	lee, _ := s.signUp(t, "lee@example.org", "Lee", model.RoleCitizen)
	authority, _ := s.signUp(t, "works@city.gov", "Public Works", model.RoleAuthority)
	id := s.createReport(t, dana, false)
	base := "/api/v1/reports/" + id

	expect(t, s.do(t, http.MethodGet, base, "", nil), http.StatusNotFound)
	expect(t, s.do(t, http.MethodGet, base, lee, nil), http.StatusNotFound)
	expect(t, s.do(t, http.MethodPost, base+"/comments", lee, map[string]any{"text": "me too"}), http.StatusNotFound)

	expect(t, s.do(t, http.MethodPost, base+"/notes", dana, map[string]any{"text": "hi"}), http.StatusForbidden)
	expect(t, s.do(t, http.MethodPost, base+"/notes", authority, map[string]any{"text": "crew on Tuesday"}), http.StatusCreated)

	w := s.do(t, http.MethodGet, base, dana, nil)
	expect(t, w, http.StatusOK)
	if _, ok := decode(t, w)["internalNotes"]; ok {
		t.Error("citizen must not see internal notes")
	}

	w = s.do(t, http.MethodGet, base, authority, nil)
	expect(t, w, http.StatusOK)
	notes, _ := decode(t, w)["internalNotes"].([]any)
	if len(notes) != 1 {
		t.Errorf("expected 1 note for authority, got %d", len(notes))
	}

	w = s.do(t, http.MethodGet, "/api/v1/reports", "", nil)
	expect(t, w, http.StatusOK)
	if n := decode(t, w)["count"]; n != float64(0) {
		t.Errorf("anonymous list must exclude private reports, got count %v", n)
	}
}

func TestListReports_filters(t *testing.T) {
	s := setupRouter(t)
	dana, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	lee, _ := s.signUp(t, "lee@example.org", "Lee", model.RoleCitizen)
	s.createReport(t, dana, true)
	s.createReport(t, lee, true)

	w := s.do(t, http.MethodGet, "/api/v1/reports?owner=me", dana, nil)
	expect(t, w, http.StatusOK)
	if n := decode(t, w)["count"]; n != float64(1) {
		t.Errorf("owner=me: expected 1, got %v", n)
	}

	w = s.do(t, http.MethodGet, "/api/v1/reports?q=STREETLIGHT", "", nil)
	expect(t, w, http.StatusOK)
	if n := decode(t, w)["count"]; n != float64(2) {
		t.Errorf("q: expected 2, got %v", n)
	}

	w = s.do(t, http.MethodGet, "/api/v1/reports?status=resolved", "", nil)
	expect(t, w, http.StatusOK)
	if n := decode(t, w)["count"]; n != float64(0) {
		t.Errorf("status=resolved: expected 0, got %v", n)
	}

	expect(t, s.do(t, http.MethodGet, "/api/v1/reports?status=bogus", "", nil), http.StatusBadRequest)
	expect(t, s.do(t, http.MethodGet, "/api/v1/reports?owner=me", "", nil), http.StatusUnauthorized)
}

func TestVote_toggle(t *testing.T) {
	s := setupRouter(t)
	dana, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	lee, _ := s.signUp(t, "lee@example.org", "Lee", model.RoleCitizen)
	path := "/api/v1/reports/" + s.createReport(t, dana, true) + "/vote"

	w := s.do(t, http.MethodPost, path, lee, map[string]any{"kind": "upvote"})
	expect(t, w, http.StatusOK)
	if got := decode(t, w)["upvotes"]; got != float64(1) {
		t.Errorf("expected 1 upvote, got %v", got)
	}

	w = s.do(t, http.MethodPost, path, lee, map[string]any{"kind": "downvote"})
	expect(t, w, http.StatusOK)
	resp := decode(t, w)
	if resp["upvotes"] != float64(0) || resp["downvotes"] != float64(1) {
		t.Errorf("expected switch to downvote, got %v/%v", resp["upvotes"], resp["downvotes"])
	}

	w = s.do(t, http.MethodPost, path, lee, map[string]any{"kind": "downvote"})
	expect(t, w, http.StatusOK)
	if got := decode(t, w)["downvotes"]; got != float64(0) {
		t.Errorf("expected withdrawn downvote, got %v", got)
	}

	expect(t, s.do(t, http.MethodPost, path, lee, map[string]any{"kind": "sideways"}), http.StatusBadRequest)
	expect(t, s.do(t, http.MethodPost, path, "", map[string]any{"kind": "upvote"}), http.StatusUnauthorized)
}

func TestCommunityFeed_orderedByUpvotes(t *testing.T) {
	s := setupRouter(t)
	dana, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	lee, _ := s.signUp(t, "lee@example.org", "Lee", model.RoleCitizen)
	s.createReport(t, dana, true)
	second := s.createReport(t, dana, true)
	s.createReport(t, dana, false)
	expect(t, s.do(t, http.MethodPost, "/api/v1/reports/"+second+"/vote", lee, map[string]any{"kind": "upvote"}), http.StatusOK)

	w := s.do(t, http.MethodGet, "/api/v1/community", "", nil)
	expect(t, w, http.StatusOK)
	resp := decode(t, w)
	if resp["count"] != float64(2) {
		t.Fatalf("expected 2 public reports, got %v", resp["count"])
	}
	first := resp["reports"].([]any)[0].(map[string]any)
	if first["id"] != second {
		t.Errorf("expected most upvoted report first, got %v", first["id"])
	}
}

func TestStats_requiresSession(t *testing.T) {
	s := setupRouter(t)
	dana, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	s.createReport(t, dana, true)

	expect(t, s.do(t, http.MethodGet, "/api/v1/stats", "", nil), http.StatusUnauthorized)
	w := s.do(t, http.MethodGet, "/api/v1/stats", dana, nil)
	expect(t, w, http.StatusOK)
	if len(w.Body.Bytes()) == 0 {
		t.Error("expected stats body")
	}
}

func TestExport(t *testing.T) {
	s := setupRouter(t)
	dana, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	authority, _ := s.signUp(t, "works@city.gov", "Public Works", model.RoleAuthority)
	s.createReport(t, dana, true)

	expect(t, s.do(t, http.MethodGet, "/api/v1/export.csv", dana, nil), http.StatusForbidden)

	w := s.do(t, http.MethodGet, "/api/v1/export.csv", authority, nil)
	expect(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "id,title,category,status") {
		t.Errorf("unexpected csv: %q", w.Body.String())
	}
}

func TestLeaderboards(t *testing.T) {
	s := setupRouter(t)
	dana, danaID := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	authority, _ := s.signUp(t, "works@city.gov", "Public Works", model.RoleAuthority)
	id := s.createReport(t, dana, true)
	for _, st := range []string{"in_progress", "resolved"} {
		expect(t, s.do(t, http.MethodPost, "/api/v1/reports/"+id+"/status", authority, map[string]any{"status": st}), http.StatusOK)
	}

	w := s.do(t, http.MethodGet, "/api/v1/leaderboard/citizens", dana, nil)
	expect(t, w, http.StatusOK)
	rows := decode(t, w)["leaderboard"].([]any)
	top := rows[0].(map[string]any)
	if top["userId"] != danaID || top["points"] != float64(11) || top["isCurrentUser"] != true {
		t.Errorf("unexpected top citizen row: %v", top)
	}

	w = s.do(t, http.MethodGet, "/api/v1/leaderboard/authorities", "", nil)
	expect(t, w, http.StatusOK)
	rows = decode(t, w)["leaderboard"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 authority row, got %d", len(rows))
	}
	if rows[0].(map[string]any)["resolvedCount"] != float64(1) {
		t.Errorf("expected resolvedCount 1, got %v", rows[0])
	}
}

// ── Activity ─────────────────────────────────────────────────────────────

func TestActivity(t *testing.T) {
	s := setupRouter(t)
	dana, _ := s.signUp(t, "dana@example.org", "Dana", model.RoleCitizen)
	lee, _ := s.signUp(t, "lee@example.org", "Lee", model.RoleCitizen)
	authority, _ := s.signUp(t, "works@city.gov", "Public Works", model.RoleAuthority)
	id := s.createReport(t, dana, true)
	expect(t, s.do(t, http.MethodPost, "/api/v1/reports/"+id+"/status", authority, map[string]any{"status": "in_progress"}), http.StatusOK)

	w := s.do(t, http.MethodGet, "/api/v1/reports/"+id+"/activity", dana, nil)
	expect(t, w, http.StatusOK)
	entries := decode(t, w)["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if a := entries[1].(map[string]any)["action"]; a != activity.ActionStatusChanged {
		t.Errorf("expected status_changed, got %v", a)
	}

	expect(t, s.do(t, http.MethodGet, "/api/v1/reports/"+id+"/activity", lee, nil), http.StatusForbidden)

	w = s.do(t, http.MethodGet, "/api/v1/activity", "", nil)
	expect(t, w, http.StatusOK)
	if n := decode(t, w)["entries"]; n != float64(3) { // genesis + 2
		t.Errorf("expected 3 entries, got %v", n)
	}

	w = s.do(t, http.MethodGet, "/api/v1/activity/verify", "", nil)
	expect(t, w, http.StatusOK)
	if v := decode(t, w)["valid"]; v != true {
		t.Errorf("expected valid=true, got %v", v)
	}
}

// ── Health and middleware ────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := health.New(health.Config{FailThreshold: 1}, zap.NewNop())
	checker.Add("store", health.PingFunc(func(ctx context.Context) error { return errors.New("down") }))

	r := gin.New()
	handler.NewHealthHandler(checker).Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	expect(t, w, http.StatusOK)

	checker.CheckAll(context.Background())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	expect(t, w, http.StatusServiceUnavailable)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	expect(t, w, http.StatusOK)
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	done := make(chan struct{})
	defer close(done)

	r := gin.New()
	r.Use(handler.RateLimiter(1, 2, done))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 204,204,429; got %v", codes)
	}
}

func TestRateLimiter_zeroBurstStillAdmits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	done := make(chan struct{})
	defer close(done)

	rps := 0.2
	r := gin.New()
	r.Use(handler.RateLimiter(rps, int(rps*2), done))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("first request under a low rate: got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.PrometheusMiddleware())
	r.GET("/metrics", handler.MetricsHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	expect(t, w, http.StatusOK)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "opengov_requests_total") {
		t.Error("expected opengov_requests_total in exposition")
	}
}

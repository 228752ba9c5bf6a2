package chi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/mode"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/result"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
	domusage "github.com/tsubouchi/intelligence-agent-maker/internal/domain/usage"
	"github.com/tsubouchi/intelligence-agent-maker/internal/usecase/generation"
	healthuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/health"
)

var testTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

// --- Mocks ---

type mockSearcher struct {
	searchFn func(ctx context.Context, req *request.Request) (result.Set, error)
	lastReq  *request.Request
}

func (m *mockSearcher) Search(ctx context.Context, req *request.Request) (result.Set, error) {
	m.lastReq = req
	return m.searchFn(ctx, req)
}

type mockLibrary struct {
	getFn    func(ctx context.Context, id string) (spec.Document, error)
	listFn   func(ctx context.Context, userID, cursor string, limit int) ([]spec.Document, string, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockLibrary) Get(ctx context.Context, id string) (spec.Document, error) {
	return m.getFn(ctx, id)
}

func (m *mockLibrary) List(ctx context.Context, userID, cursor string, limit int) ([]spec.Document, string, error) {
	return m.listFn(ctx, userID, cursor, limit)
}

func (m *mockLibrary) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

type mockArchives struct {
	entry          domarchive.Entry
	err            error
	items          []domarchive.Item
	favoriteCalled bool
	notesCalled    bool
	lastFavsOnly   bool
}

func (m *mockArchives) Link(context.Context, string, string) error { return m.err }

func (m *mockArchives) Get(context.Context, string, string) (domarchive.Entry, error) {
	return m.entry, m.err
}

func (m *mockArchives) SetFavorite(_ context.Context, _, _ string, fav bool) (domarchive.Entry, error) {
	m.favoriteCalled = true
	m.entry = m.entry.WithFavorite(fav, testTime)
	return m.entry, m.err
}

func (m *mockArchives) SaveNotes(_ context.Context, _, _, notes string) (domarchive.Entry, error) {
	m.notesCalled = true
	e, _ := m.entry.WithNotes(notes, testTime)
	m.entry = e
	return m.entry, m.err
}

func (m *mockArchives) Unlink(context.Context, string, string) error { return m.err }

func (m *mockArchives) List(_ context.Context, _ string, favoritesOnly bool) ([]domarchive.Item, error) {
	m.lastFavsOnly = favoritesOnly
	return m.items, m.err
}

type mockGenerator struct {
	result  generation.Result
	err     error
	called  bool
	lastReq generation.Request
}

func (m *mockGenerator) Generate(_ context.Context, req generation.Request) (generation.Result, error) {
	m.called = true
	m.lastReq = req
	return m.result, m.err
}

type mockPublisher struct {
	id     string
	err    error
	called bool
}

func (m *mockPublisher) Publish(context.Context, generation.Request) (string, error) {
	m.called = true
	return m.id, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- Helpers ---

type mockUsage struct {
	lastPeriod domusage.Period
	reports    []domusage.Report
}

func (m *mockUsage) Report(_ context.Context, period domusage.Period) []domusage.Report {
	m.lastPeriod = period
	return m.reports
}

func testDoc(id string) spec.Document {
	return spec.Reconstruct(id, "user-1", "ECサイト", "# ECサイト基本設計書", "Web", "GCP",
		[]float32{0.1}, metadata.Metadata{Title: "ECサイト", Keywords: []string{"EC"}}, testTime)
}

func newTestRouter(svc Services) http.Handler {
	return NewRouter(NewServer(svc, "push-secret", zap.NewNop()), nil, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}

// --- Search ---

func TestSearch_OK(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(ctx context.Context, _ *request.Request) (result.Set, error) {
		domain.UsageFromContext(ctx).AddEmbeddingTokens(7)
		return result.NewSet([]result.Result{
			result.New(testDoc("a"), 0.9),
			result.Unranked(testDoc("b")),
		}), nil
	}}
	h := newTestRouter(Services{Search: searcher})

	rr := do(t, h, "POST", "/api/v1/search",
		`{"query":"EC","searchMode":"vector","softwareType":"Web","dateRange":30,"techFilters":{"backend":["Go"]}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Embedding-Tokens") != "7" {
		t.Errorf("X-Embedding-Tokens = %q", rr.Header().Get("X-Embedding-Tokens"))
	}

	req := searcher.lastReq
	if req.Mode() != mode.Vector || req.Facets().SoftwareType() != "Web" || req.DateRange().Days() != 30 {
		t.Errorf("camelCase aliases not applied: mode=%s facets=%+v days=%d",
			req.Mode(), req.Facets(), req.DateRange().Days())
	}
	if req.Facets().Tech().IsEmpty() {
		t.Error("tech filters not applied")
	}

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d", len(resp.Results))
	}
	if resp.Results[0].Similarity == nil || *resp.Results[0].Similarity != 0.9 {
		t.Errorf("first similarity = %v", resp.Results[0].Similarity)
	}
	if resp.Results[1].Similarity != nil {
		t.Error("unranked result must omit similarity")
	}
	if resp.Degraded || resp.Note != "" {
		t.Error("primary result must not be marked degraded")
	}
}

func TestSearch_Degraded(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(context.Context, *request.Request) (result.Set, error) {
		return result.NewDegradedSet(nil, "Fallback search method was used"), nil
	}}
	rr := do(t, newTestRouter(Services{Search: searcher}), "POST", "/api/v1/search", `{"query":"EC"}`)

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Degraded || resp.Note != "Fallback search method was used" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Results == nil {
		t.Error("results must serialize as [] not null")
	}
}

func TestSearch_ValidationErrors(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(context.Context, *request.Request) (result.Set, error) {
		t.Error("search must not run")
		return result.Set{}, nil
	}}
	h := newTestRouter(Services{Search: searcher})

	for name, body := range map[string]string{
		"empty query":      `{"query":"  ","search_mode":"text"}`,
		"unknown category": `{"query":"x","tech_filters":{"database":["pg"]}}`,
		"bad date range":   `{"query":"x","date_range":"yesterday"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, "POST", "/api/v1/search", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if e := decodeError(t, rr); e.Code != CodeValidationFailed {
				t.Errorf("code = %s", e.Code)
			}
		})
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	rr := do(t, newTestRouter(Services{}), "POST", "/api/v1/search", `{"query":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != CodeBadRequest {
		t.Errorf("code = %s", e.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"not found", fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"conflict", fmt.Errorf("x: %w", domain.ErrAlreadyExists), http.StatusConflict, CodeAlreadyExists},
		{"rate limited", fmt.Errorf("x: %w", domain.ErrRateLimited), http.StatusTooManyRequests, CodeRateLimited},
		{"provider", fmt.Errorf("x: %w", domain.ErrEmbeddingProviderError), http.StatusBadGateway, CodeProviderError},
		{"store", fmt.Errorf("x: %w", domain.ErrStore), http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"unknown", errors.New("secret dsn leaked"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &mockSearcher{searchFn: func(context.Context, *request.Request) (result.Set, error) {
				return result.Set{}, tt.err
			}}
			rr := do(t, newTestRouter(Services{Search: searcher}), "POST", "/api/v1/search", `{"query":"x"}`)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			e := decodeError(t, rr)
			if e.Code != tt.code {
				t.Errorf("code = %s, want %s", e.Code, tt.code)
			}
			if strings.Contains(e.Message, "secret") || strings.Contains(e.Message, "x:") {
				t.Errorf("message leaks internals: %q", e.Message)
			}
		})
	}
}

// --- Library ---

func TestListSpecs(t *testing.T) {
	var gotUser, gotCursor string
	var gotLimit int
	lib := &mockLibrary{listFn: func(_ context.Context, userID, cursor string, limit int) ([]spec.Document, string, error) {
		gotUser, gotCursor, gotLimit = userID, cursor, limit
		return []spec.Document{testDoc("a")}, "40", nil
	}}
	rr := do(t, newTestRouter(Services{Library: lib}), "GET", "/api/v1/specs?limit=20&cursor=20&user_id=user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if gotUser != "user-1" || gotCursor != "20" || gotLimit != 20 {
		t.Errorf("params = %q %q %d", gotUser, gotCursor, gotLimit)
	}

	var resp SpecListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "a" || resp.Items[0].Metadata.Title != "ECサイト" {
		t.Errorf("items = %+v", resp.Items)
	}
	if resp.NextCursor == nil || *resp.NextCursor != "40" {
		t.Errorf("next cursor = %v", resp.NextCursor)
	}
}

func TestListSpecs_BadLimit(t *testing.T) {
	rr := do(t, newTestRouter(Services{Library: &mockLibrary{}}), "GET", "/api/v1/specs?limit=abc", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestGetSpec_NotFound(t *testing.T) {
	lib := &mockLibrary{getFn: func(_ context.Context, id string) (spec.Document, error) {
		return spec.Document{}, fmt.Errorf("spec %s: %w", id, domain.ErrNotFound)
	}}
	rr := do(t, newTestRouter(Services{Library: lib}), "GET", "/api/v1/specs/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestDeleteSpec(t *testing.T) {
	var gotID string
	lib := &mockLibrary{deleteFn: func(_ context.Context, id string) error {
		gotID = id
		return nil
	}}
	rr := do(t, newTestRouter(Services{Library: lib}), "DELETE", "/api/v1/specs/abc", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if gotID != "abc" {
		t.Errorf("id = %q", gotID)
	}
}

// --- Generation ---

func TestCreateGeneration_Sync(t *testing.T) {
	gen := &mockGenerator{result: generation.Result{ID: "new", Title: "ECサイト", FellBack: true}}
	rr := do(t, newTestRouter(Services{Generation: gen}), "POST", "/api/v1/generations",
		`{"idea":"EC site","userId":"user-1","softwareType":"Web","deployTarget":"GCP"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	want := generation.Request{Idea: "EC site", UserID: "user-1", SoftwareType: "Web", DeployTarget: "GCP"}
	if gen.lastReq != want {
		t.Errorf("request = %+v", gen.lastReq)
	}
	var resp GenerationResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "new" || !resp.MetadataFallback {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCreateGeneration_Published(t *testing.T) {
	gen := &mockGenerator{}
	pub := &mockPublisher{id: "msg-1"}
	rr := do(t, newTestRouter(Services{Generation: gen, Publisher: pub}), "POST", "/api/v1/generations",
		`{"idea":"EC site","user_id":"user-1"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if gen.called {
		t.Error("pipeline must not run in-process when a publisher is configured")
	}
	var resp GenerationAccepted
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MessageID != "msg-1" {
		t.Errorf("message id = %q", resp.MessageID)
	}
}

func TestCreateGeneration_PublishValidatesFirst(t *testing.T) {
	pub := &mockPublisher{id: "msg-1"}
	rr := do(t, newTestRouter(Services{Publisher: pub}), "POST", "/api/v1/generations", `{"idea":"","user_id":"user-1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if pub.called {
		t.Error("invalid request must not be published")
	}
}

// --- Pub/Sub push ---

func pushBody(payload string) string {
	data := base64.StdEncoding.EncodeToString([]byte(payload))
	return `{"message":{"data":"` + data + `","messageId":"m-1"},"subscription":"s"}`
}

func TestPubSubPush(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		genErr error
		status int
		called bool
	}{
		{"ack", "/pubsub/push?token=push-secret", pushBody(`{"idea":"x","userId":"user-1"}`), nil, http.StatusNoContent, true},
		{"bad token", "/pubsub/push?token=nope", pushBody(`{"idea":"x"}`), nil, http.StatusUnauthorized, false},
		{"no message", "/pubsub/push?token=push-secret", `{}`, nil, http.StatusBadRequest, false},
		{"invalid job", "/pubsub/push?token=push-secret", pushBody(`{"idea":""}`),
			domain.NewValidationError("idea", "is required"), http.StatusBadRequest, true},
		{"nack", "/pubsub/push?token=push-secret", pushBody(`{"idea":"x","userId":"user-1"}`),
			fmt.Errorf("insert: %w", domain.ErrStore), http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{err: tt.genErr, result: generation.Result{ID: "new"}}
			rr := do(t, newTestRouter(Services{Generation: gen}), "POST", tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if gen.called != tt.called {
				t.Errorf("generate called = %v, want %v", gen.called, tt.called)
			}
		})
	}
}

// --- Archives ---

func TestPatchArchive(t *testing.T) {
	e, _ := domarchive.New("user-1", "spec-1", testTime)
	arch := &mockArchives{entry: e}
	rr := do(t, newTestRouter(Services{Archives: arch}), "PATCH", "/api/v1/users/user-1/archives/spec-1",
		`{"is_favorite":true,"notes":"memo"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if !arch.favoriteCalled || !arch.notesCalled {
		t.Error("both updates must be applied")
	}
	var resp ArchiveResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsFavorite || resp.Notes != "memo" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestPatchArchive_EmptyBody(t *testing.T) {
	rr := do(t, newTestRouter(Services{Archives: &mockArchives{}}), "PATCH", "/api/v1/users/u/archives/s", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestListArchives(t *testing.T) {
	e, _ := domarchive.New("user-1", "a", testTime)
	arch := &mockArchives{items: []domarchive.Item{{Entry: e, Document: testDoc("a")}}}
	rr := do(t, newTestRouter(Services{Archives: arch}), "GET", "/api/v1/users/user-1/archives?favorites_only=true", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !arch.lastFavsOnly {
		t.Error("favorites_only not bound")
	}
	var resp ArchiveListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Spec.ID != "a" || resp.Items[0].SpecID != "a" {
		t.Errorf("items = %+v", resp.Items)
	}
}

func TestUnlinkArchive_NotFound(t *testing.T) {
	arch := &mockArchives{err: fmt.Errorf("archive: %w", domain.ErrNotFound)}
	rr := do(t, newTestRouter(Services{Archives: arch}), "DELETE", "/api/v1/users/u/archives/s", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

// --- Health ---

func TestHealth(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		code   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h := &mockHealth{report: healthuc.Report{Status: tt.status, Checks: map[string]healthuc.CheckResult{}}}
		rr := do(t, newTestRouter(Services{Health: h}), "GET", "/health", "")
		if rr.Code != tt.code {
			t.Errorf("%s: status = %d, want %d", tt.status, rr.Code, tt.code)
		}
	}
}

// --- Usage ---

func TestGetUsage(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	u := &mockUsage{reports: []domusage.Report{
		domusage.NewReport("embedding", domusage.PeriodDay, start, end, domusage.NewBudget(1000, 1000)),
		domusage.NewReport("generation", domusage.PeriodDay, start, end, domusage.NewBudget(0, 42)),
	}}
	h := newTestRouter(Services{Usage: u})

	rr := do(t, h, http.MethodGet, "/api/v1/usage?period=day", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if u.lastPeriod != domusage.PeriodDay {
		t.Errorf("period = %q", u.lastPeriod)
	}

	var resp UsageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Period != "day" || len(resp.Providers) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	emb := resp.Providers[0]
	if emb.TokensLimit == nil || *emb.TokensLimit != 1000 || *emb.TokensRemaining != 0 || !emb.Exhausted {
		t.Errorf("embedding usage = %+v", emb)
	}
	gen := resp.Providers[1]
	if gen.TokensLimit != nil || gen.TokensRemaining != nil || gen.TokensUsed != 42 {
		t.Errorf("generation usage = %+v", gen)
	}
}

func TestGetUsage_DefaultsToMonth(t *testing.T) {
	u := &mockUsage{}
	rr := do(t, newTestRouter(Services{Usage: u}), http.MethodGet, "/api/v1/usage", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if u.lastPeriod != domusage.PeriodMonth {
		t.Errorf("period = %q, want month", u.lastPeriod)
	}
	if !strings.Contains(rr.Body.String(), `"providers":[]`) {
		t.Errorf("providers must be an empty list: %s", rr.Body.String())
	}
}

func TestGetUsage_BadPeriod(t *testing.T) {
	rr := do(t, newTestRouter(Services{}), http.MethodGet, "/api/v1/usage?period=year", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != CodeValidationFailed {
		t.Errorf("code = %q", e.Code)
	}
}

func TestLiveness(t *testing.T) {
	rr := do(t, newTestRouter(Services{}), "GET", "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("status = %d, body = %q", rr.Code, rr.Body.String())
	}
}

func TestRouter_RequestIDAndNotFound(t *testing.T) {
	rr := do(t, newTestRouter(Services{}), "GET", "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := do(t, h, "GET", "/", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != CodeInternalError {
		t.Errorf("code = %s", e.Code)
	}
}

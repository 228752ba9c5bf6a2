// Package chi serves the HTTP API.
package chi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/daterange"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/filter"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/mode"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/search/request"
	domusage "github.com/tsubouchi/intelligence-agent-maker/internal/domain/usage"
	"github.com/tsubouchi/intelligence-agent-maker/internal/logger"
	"github.com/tsubouchi/intelligence-agent-maker/internal/transport/pubsub"
	"github.com/tsubouchi/intelligence-agent-maker/internal/usecase/generation"
	healthuc "github.com/tsubouchi/intelligence-agent-maker/internal/usecase/health"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Services bundles the use cases the API exposes. Publisher is optional:
// without it generations run synchronously. Without Usage the report is empty.
type Services struct {
	Search     Searcher
	Library    Library
	Archives   Archives
	Generation Generator
	Publisher  Publisher
	Health     HealthChecker
	Usage      UsageReporter
}

// Server implements the HTTP handlers.
type Server struct {
	svc           Services
	pushToken     string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. pushToken guards /pubsub/push when set.
func NewServer(svc Services, pushToken string, logger *zap.Logger) *Server {
	s := &Server{svc: svc, pushToken: pushToken, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, CodeAlreadyExists),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrStore, http.StatusServiceUnavailable, CodeStoreUnavailable),
	}
	return s
}

// Mount registers every route on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/healthz", s.Liveness)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Post("/pubsub/push", s.PubSubPush)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.Search)

		r.Get("/specs", s.ListSpecs)
		r.Get("/specs/{id}", s.GetSpec)
		r.Delete("/specs/{id}", s.DeleteSpec)

		r.Post("/generations", s.CreateGeneration)
		r.Get("/usage", s.GetUsage)

		r.Get("/users/{user}/archives", s.ListArchives)
		r.Put("/users/{user}/archives/{spec}", s.LinkArchive)
		r.Patch("/users/{user}/archives/{spec}", s.PatchArchive)
		r.Delete("/users/{user}/archives/{spec}", s.UnlinkArchive)
	})
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := searchRequestFromDTO(&body)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	set, err := s.svc.Search.Search(ctx, &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, NewSearchResponse(&set))
}

// ListSpecs handles GET /api/v1/specs.
func (s *Server) ListSpecs(w http.ResponseWriter, r *http.Request) {
	var (
		limit  *int
		cursor *string
		userID *string
	)
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid limit")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "cursor", q, &cursor); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid cursor")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "user_id", q, &userID); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid user_id")
		return
	}

	docs, next, err := s.svc.Library.List(r.Context(), deref(userID), deref(cursor), deref(limit))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := SpecListResponse{Items: make([]SpecResponse, len(docs))}
	for i := range docs {
		resp.Items[i] = specToDTO(&docs[i])
	}
	if next != "" {
		resp.NextCursor = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSpec handles GET /api/v1/specs/{id}.
func (s *Server) GetSpec(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Library.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, specToDTO(&doc))
}

// DeleteSpec handles DELETE /api/v1/specs/{id}.
func (s *Server) DeleteSpec(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Library.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateGeneration handles POST /api/v1/generations.
func (s *Server) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var body GenerationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req := generation.Request{
		Idea:         body.Idea,
		UserID:       body.UserID,
		SoftwareType: body.SoftwareType,
		DeployTarget: body.DeployTarget,
	}

	if s.svc.Publisher != nil {
		if err := req.Validate(); err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		id, err := s.svc.Publisher.Publish(r.Context(), req)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, GenerationAccepted{MessageID: id})
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.svc.Generation.Generate(ctx, req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusCreated, GenerationResponse{ID: res.ID, Title: res.Title, MetadataFallback: res.FellBack})
}

// PubSubPush handles POST /pubsub/push. 2xx acknowledges the message; 500 asks
// Pub/Sub to redeliver it.
func (s *Server) PubSubPush(w http.ResponseWriter, r *http.Request) {
	if s.pushToken != "" {
		token := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.pushToken)) != 1 {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid push token")
			return
		}
	}

	req, msgID, err := pubsub.DecodePush(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, safeDomainMessage(err))
		return
	}

	log := logger.FromContextOr(r.Context(), s.logger).With(zap.String("message_id", msgID))
	res, err := s.svc.Generation.Generate(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrValidation):
		log.Warn("Dropping invalid generation job", zap.Error(err))
		writeError(w, http.StatusBadRequest, CodeValidationFailed, safeDomainMessage(err))
	case err != nil:
		log.Error("Generation job failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	default:
		log.Info("Generation job done", zap.String("spec_id", res.ID), zap.Bool("metadata_fallback", res.FellBack))
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListArchives handles GET /api/v1/users/{user}/archives.
func (s *Server) ListArchives(w http.ResponseWriter, r *http.Request) {
	var favoritesOnly *bool
	err := runtime.BindQueryParameter("form", true, false, "favorites_only", r.URL.Query(), &favoritesOnly)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid favorites_only")
		return
	}

	items, err := s.svc.Archives.List(r.Context(), chi.URLParam(r, "user"), deref(favoritesOnly))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := ArchiveListResponse{Items: make([]ArchiveItemResponse, len(items))}
	for i := range items {
		resp.Items[i] = ArchiveItemResponse{
			ArchiveResponse: archiveToDTO(&items[i].Entry),
			Spec:            specToDTO(&items[i].Document),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// LinkArchive handles PUT /api/v1/users/{user}/archives/{spec}.
func (s *Server) LinkArchive(w http.ResponseWriter, r *http.Request) {
	userID, specID := chi.URLParam(r, "user"), chi.URLParam(r, "spec")
	if err := s.svc.Archives.Link(r.Context(), userID, specID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	e, err := s.svc.Archives.Get(r.Context(), userID, specID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archiveToDTO(&e))
}

// PatchArchive handles PATCH /api/v1/users/{user}/archives/{spec}.
func (s *Server) PatchArchive(w http.ResponseWriter, r *http.Request) {
	var body ArchivePatchRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.IsFavorite == nil && body.Notes == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "is_favorite or notes is required")
		return
	}

	userID, specID := chi.URLParam(r, "user"), chi.URLParam(r, "spec")
	var err error
	if body.IsFavorite != nil {
		_, err = s.svc.Archives.SetFavorite(r.Context(), userID, specID, *body.IsFavorite)
	}
	if err == nil && body.Notes != nil {
		_, err = s.svc.Archives.SaveNotes(r.Context(), userID, specID, *body.Notes)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	e, err := s.svc.Archives.Get(r.Context(), userID, specID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archiveToDTO(&e))
}

// UnlinkArchive handles DELETE /api/v1/users/{user}/archives/{spec}.
func (s *Server) UnlinkArchive(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Archives.Unlink(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "spec")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, r, domain.NewValidationError("period", err.Error()))
		return
	}

	resp := UsageResponse{Period: string(period), Providers: []ProviderUsage{}}
	if s.svc.Usage != nil {
		reports := s.svc.Usage.Report(r.Context(), period)
		for i := range reports {
			resp.Providers = append(resp.Providers, usageToDTO(&reports[i]))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Liveness handles GET /healthz.
func (s *Server) Liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func searchRequestFromDTO(body *SearchRequest) (request.Request, error) {
	tech, err := filter.NewTech(body.TechFilters)
	if err != nil {
		return request.Request{}, domain.NewValidationError("tech_filters", err.Error())
	}
	dr, err := daterange.Parse(string(body.DateRange))
	if err != nil {
		return request.Request{}, domain.NewValidationError("date_range", err.Error())
	}
	facets := filter.NewFacets(body.SoftwareType, body.DeployTarget, tech)
	return request.New(body.Query, mode.Parse(body.SearchMode), facets, dr)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.Usage) {
	if usage == nil {
		return
	}
	if usage.Embedded {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens))
	}
	if usage.GenerationTokens > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(usage.GenerationTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message without exposing internals.
// Validation errors carry only the field and reason.
func safeDomainMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
		domain.ErrProvider,
		domain.ErrStore,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

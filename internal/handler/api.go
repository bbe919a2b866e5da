package handler

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/awsl-project/clinicpulse/internal/domain"
	"github.com/awsl-project/clinicpulse/internal/metrics"
	"github.com/awsl-project/clinicpulse/internal/normalize"
	"github.com/awsl-project/clinicpulse/internal/repository"
	"github.com/awsl-project/clinicpulse/internal/stats"
	"github.com/awsl-project/clinicpulse/internal/version"
)

// APIHandler serves the dashboard API. Every request reads one dataset
// snapshot and recomputes its aggregates.
type APIHandler struct {
	repo     repository.DatasetRepository
	selector *metrics.ProfitabilitySelector
	logger   *zap.Logger
	now      func() time.Time
}

func NewAPIHandler(repo repository.DatasetRepository, selector *metrics.ProfitabilitySelector, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if selector == nil {
		selector = metrics.NewProfitabilitySelector()
	}
	return &APIHandler{
		repo:     repo,
		selector: selector,
		logger:   logger.Named("api"),
		now:      time.Now,
	}
}

// NewRouter mounts the API and, when static is non-nil, the dashboard assets.
func NewRouter(api *APIHandler, static http.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(logger))

	r.Get("/health", api.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/overview", api.handleOverview)
		r.Get("/revenue", api.handleRevenue)
		r.Get("/expenses", api.handleExpenses)
		r.Get("/profitability", api.handleProfitability)
		r.Post("/profitability/toggle", api.handleToggle)
		r.Get("/optimize", api.handleOptimize)
		r.Post("/reload", api.handleReload)
	})
	if static != nil {
		r.Handle("/*", static)
	}
	return r
}

type datasetInfo struct {
	Source   string    `json:"source"`
	CycleID  string    `json:"cycleId"`
	LoadedAt time.Time `json:"loadedAt"`
}

func infoOf(ds *domain.Dataset) datasetInfo {
	return datasetInfo{Source: ds.Source, CycleID: ds.CycleID, LoadedAt: ds.LoadedAt}
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ds := h.repo.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Info(),
		"dataset": infoOf(ds),
	})
}

type overviewResponse struct {
	datasetInfo
	Granularity domain.Granularity `json:"granularity"`
	metrics.Overview
}

func (h *APIHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	g, err := stats.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ds := h.repo.Get()
	writeJSON(w, http.StatusOK, overviewResponse{
		datasetInfo: infoOf(ds),
		Granularity: g,
		Overview:    metrics.BuildOverview(ds, g, h.now()),
	})
}

type revenueResponse struct {
	Aggregation *domain.AggregationResult `json:"aggregation"`
	Mix         []metrics.MixEntry        `json:"mix"`
}

func (h *APIHandler) handleRevenue(w http.ResponseWriter, r *http.Request) {
	g, opts, ok := h.aggregationParams(w, r)
	if !ok {
		return
	}
	ds := h.repo.Get()
	writeJSON(w, http.StatusOK, revenueResponse{
		Aggregation: stats.Aggregate(stats.RevenuePoints(ds.Revenue), g, opts),
		Mix:         metrics.RevenueMix(ds.Revenue),
	})
}

type expensesResponse struct {
	Aggregation *domain.AggregationResult `json:"aggregation"`
	Mix         []metrics.MixEntry        `json:"mix"`
	RunRate     float64                   `json:"runRate"`
}

func (h *APIHandler) handleExpenses(w http.ResponseWriter, r *http.Request) {
	g, opts, ok := h.aggregationParams(w, r)
	if !ok {
		return
	}
	ds := h.repo.Get()
	writeJSON(w, http.StatusOK, expensesResponse{
		Aggregation: stats.Aggregate(stats.ExpensePoints(ds.Expenses), g, opts),
		Mix:         metrics.ExpenseMix(ds.Expenses),
		RunRate:     metrics.RunRate(ds, h.now()),
	})
}

type profitabilityRow struct {
	domain.ProfitabilityRow
	Margin float64 `json:"margin"`
}

type profitabilityResponse struct {
	Mode        domain.ProfitabilityMode `json:"mode"`
	Title       string                   `json:"title"`
	ToggleLabel string                   `json:"toggleLabel"`
	Rows        []profitabilityRow       `json:"rows"`
}

func (h *APIHandler) profitability() profitabilityResponse {
	rows := h.selector.Rows(h.repo.Get().Profitability)
	out := make([]profitabilityRow, len(rows))
	for i, row := range rows {
		out[i] = profitabilityRow{ProfitabilityRow: row, Margin: row.Margin()}
	}
	return profitabilityResponse{
		Mode:        h.selector.Mode(),
		Title:       h.selector.Title(),
		ToggleLabel: h.selector.ToggleLabel(),
		Rows:        out,
	}
}

func (h *APIHandler) handleProfitability(w http.ResponseWriter, r *http.Request) {
	if mode := r.URL.Query().Get("mode"); mode != "" {
		if err := h.selector.SetMode(domain.ProfitabilityMode(mode)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, h.profitability())
}

func (h *APIHandler) handleToggle(w http.ResponseWriter, r *http.Request) {
	mode := h.selector.Toggle()
	h.logger.Debug("profitability mode toggled", zap.String("mode", string(mode)))
	writeJSON(w, http.StatusOK, h.profitability())
}

type optimizeResponse struct {
	Suggestions []string                  `json:"suggestions"`
	Trend       *domain.AggregationResult `json:"trend"`
}

func (h *APIHandler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	g, opts, ok := h.aggregationParams(w, r)
	if !ok {
		return
	}
	ds := h.repo.Get()
	writeJSON(w, http.StatusOK, optimizeResponse{
		Suggestions: metrics.Suggestions(ds),
		Trend:       stats.Aggregate(stats.MetricPoints(ds.OptimizationTrend), g, opts),
	})
}

func (h *APIHandler) handleReload(w http.ResponseWriter, r *http.Request) {
	ds, err := h.repo.Reload(r.Context())
	if err != nil {
		h.logger.Error("reload failed, keeping previous dataset", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   err.Error(),
			"dataset": infoOf(ds),
		})
		return
	}
	writeJSON(w, http.StatusOK, infoOf(ds))
}

// aggregationParams reads granularity, start and end. On a bad value it
// answers 400 and reports false.
func (h *APIHandler) aggregationParams(w http.ResponseWriter, r *http.Request) (domain.Granularity, stats.Options, bool) {
	q := r.URL.Query()
	opts := stats.Options{Now: h.now()}

	g, err := stats.ParseGranularity(q.Get("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", opts, false
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start", &opts.Start}, {"end", &opts.End}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		d, err := normalize.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.name+": "+raw)
			return "", opts, false
		}
		*p.dst = d
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
		writeError(w, http.StatusBadRequest, "end precedes start")
		return "", opts, false
	}
	return g, opts, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Package dashboard serves a small web view over the run history: the
// latest run per kind, outputs, match rates and the unmapped-symbol
// backlog. Read-only; runs are started from the command line.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kpatel-quant/fnopipeline/internal/storage"
)

//go:embed web/templates/*
var templateFS embed.FS

//go:embed web/static/*
var staticFS embed.FS

type Server struct {
	router  *chi.Mux
	server  *http.Server
	storage storage.Interface
	logger  *logrus.Logger
	port    int
}

type Config struct {
	Port int
}

// RunView is one run row as the templates and the JSON API render it.
type RunView struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Account   string    `json:"account"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Positions int       `json:"positions"`
	Trades    int       `json:"trades"`
	Reversals int       `json:"reversals"`
	Malformed int       `json:"malformed"`
	Unmapped  int       `json:"unmapped"`
	MatchRate float64   `json:"match_rate"`
	Outputs   []string  `json:"outputs"`
	Errors    []string  `json:"errors"`
	HasErrors bool      `json:"has_errors"`
}

// UnmappedView is one backlog symbol awaiting a mapping sheet entry.
type UnmappedView struct {
	Symbol string    `json:"symbol"`
	Source string    `json:"source"`
	Expiry string    `json:"expiry"`
	Lots   float64   `json:"lots"`
	SeenAt time.Time `json:"seen_at"`
}

// DashboardData backs the main page template.
type DashboardData struct {
	Latest     *RunView
	Runs       []RunView
	Unmapped   []UnmappedView
	LastUpdate time.Time
}

func NewServer(cfg Config, store storage.Interface, logger *logrus.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		storage: store,
		logger:  logger,
		port:    cfg.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	static, err := fs.Sub(staticFS, "web/static")
	if err != nil {
		s.logger.WithError(err).Error("Failed to mount static assets")
	} else {
		s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}

	s.router.Get("/", s.handleDashboard)
	s.router.Get("/api/runs", s.handleGetRuns)
	s.router.Get("/api/run/latest", s.handleGetLatestRun)
	s.router.Get("/api/run/{id}", s.handleGetRun)
	s.router.Get("/api/unmapped", s.handleGetUnmapped)
	s.router.Get("/api/recon", s.handleGetRecon)
	s.router.Get("/health", s.handleHealth)

	s.router.Get("/partials/runs", s.handleRunsPartial)
	s.router.Get("/partials/run/{id}", s.handleRunDetailPartial)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/dashboard.html", "web/templates/runs.html")
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse dashboard template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := tmpl.Execute(w, s.dashboardData()); err != nil {
		s.logger.WithError(err).Error("Failed to execute dashboard template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleGetRuns(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.runViews())
}

func (s *Server) handleGetLatestRun(w http.ResponseWriter, _ *http.Request) {
	latest := s.storage.LatestRun()
	if latest == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, runView(latest))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, found := s.findRun(id)
	if !found {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, view)
}

func (s *Server) handleGetUnmapped(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.unmappedViews())
}

// handleGetRecon returns the most recent reconciliation run, preferring the
// PMS recon over the broker-fill recon.
func (s *Server) handleGetRecon(w http.ResponseWriter, _ *http.Request) {
	for _, kind := range []string{storage.KindRecon, storage.KindBrokers} {
		run, err := s.storage.LastRunOfKind(kind)
		if err == nil && run != nil {
			s.writeJSON(w, runView(run))
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleRunsPartial(w http.ResponseWriter, _ *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/runs.html")
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse runs template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := tmpl.ExecuteTemplate(w, "runs", s.runViews()); err != nil {
		s.logger.WithError(err).Error("Failed to execute runs template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleRunDetailPartial(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/run-detail.html")
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse run detail template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	view, found := s.findRun(id)
	if !found {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if err := tmpl.Execute(w, view); err != nil {
		s.logger.WithError(err).Error("Failed to execute run detail template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) dashboardData() *DashboardData {
	data := &DashboardData{
		Runs:       s.runViews(),
		Unmapped:   s.unmappedViews(),
		LastUpdate: time.Now(),
	}
	if latest := s.storage.LatestRun(); latest != nil {
		v := runView(latest)
		data.Latest = &v
	}
	return data
}

// runViews returns the run history newest first.
func (s *Server) runViews() []RunView {
	history := s.storage.RunHistory()
	views := make([]RunView, 0, len(history))
	for i := range history {
		views = append(views, runView(&history[i]))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].StartedAt.After(views[j].StartedAt) })
	return views
}

func (s *Server) findRun(id string) (RunView, bool) {
	history := s.storage.RunHistory()
	for i := range history {
		if history[i].RunID == id {
			return runView(&history[i]), true
		}
	}
	return RunView{}, false
}

func (s *Server) unmappedViews() []UnmappedView {
	records := s.storage.UnmappedRecords()
	views := make([]UnmappedView, 0, len(records))
	for _, rec := range records {
		expiry := ""
		if !rec.Expiry.IsZero() {
			expiry = rec.Expiry.Format("02/01/2006")
		}
		views = append(views, UnmappedView{
			Symbol: rec.Symbol,
			Source: rec.Source,
			Expiry: expiry,
			Lots:   rec.Lots,
			SeenAt: rec.SeenAt,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Symbol < views[j].Symbol })
	return views
}

func runView(run *storage.RunSummary) RunView {
	duration := ""
	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
	}
	return RunView{
		RunID:     run.RunID,
		Kind:      run.Kind,
		Account:   run.Account,
		StartedAt: run.StartedAt,
		Duration:  duration,
		Positions: run.Positions,
		Trades:    run.Trades,
		Reversals: run.Reversals,
		Malformed: run.Malformed,
		Unmapped:  run.Unmapped,
		MatchRate: run.MatchRate,
		Outputs:   run.Outputs,
		Errors:    run.Errors,
		HasErrors: len(run.Errors) > 0,
	}
}

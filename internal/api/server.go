package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mivvo/internal/analysis"
	"mivvo/internal/config"
	"mivvo/internal/ledger"
	"mivvo/internal/logging"
	"mivvo/internal/metrics"
	"mivvo/internal/report"
	"mivvo/internal/services"
)

// ownerHeader names the account acting on a request. Authentication is the
// shared API token; the header only selects which owner's data is touched.
const ownerHeader = "X-Owner-ID"

// Queue is the slice of the workflow manager the health endpoint reports on.
type Queue interface {
	Running() bool
}

// Server wires HTTP routes to the orchestrator and the credit ledger.
type Server struct {
	cfg          *config.Config
	orchestrator *analysis.Orchestrator
	ledger       *ledger.Store
	reports      *report.Store
	metrics      *metrics.Metrics
	queue        Queue
	logger       *slog.Logger
}

// Options carries the server's collaborators. Metrics and Queue are
// optional; everything else is required.
type Options struct {
	Config       *config.Config
	Orchestrator *analysis.Orchestrator
	Ledger       *ledger.Store
	Reports      *report.Store
	Metrics      *metrics.Metrics
	Queue        Queue
	Logger       *slog.Logger
}

// NewServer constructs the HTTP server facade.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		cfg:          opts.Config,
		orchestrator: opts.Orchestrator,
		ledger:       opts.Ledger,
		reports:      opts.Reports,
		metrics:      opts.Metrics,
		queue:        opts.Queue,
		logger:       logging.NewComponentLogger(logger, "api"),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ownerHeader},
	}))
	r.Use(s.correlate)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", s.handleCreateReport)
			r.Get("/", s.handleListReports)
			r.Get("/{id}", s.handleGetReport)
			r.Post("/{id}/assets", s.handleUploadAsset)
			r.Post("/{id}/analyze", s.handleRequestAnalyze)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/balance", s.handleBalance)
			r.Get("/transactions", s.handleTransactions)
			r.Post("/grants", s.handleGrant)
		})
	})

	return r
}

// correlate copies chi's request ID into the context keys the logging
// package reads, so handler logs carry the correlation id.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = services.WithRequestID(ctx, reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate enforces the shared bearer token when one is configured.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(s.cfg.Paths.APIToken)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			writeErrorMessage(w, http.StatusUnauthorized, "invalid or missing API token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reports.Health(r.Context())
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthView{
		Status:     "ok",
		Workers:    s.queue != nil && s.queue.Running(),
		Reports:    summary.Total,
		Pending:    summary.Pending,
		Processing: summary.Processing,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
	})
}

// owner extracts the acting account from the request. Handlers that touch
// per-account data fail with 422 when the header is absent.
func owner(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(ownerHeader))
	if id == "" {
		return "", services.Wrap(services.ErrValidation, "api", "owner", ownerHeader+" header required", nil)
	}
	return id, nil
}

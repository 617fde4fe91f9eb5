package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"flashliquidity/core/events"
	"flashliquidity/native/flashloan"
	"flashliquidity/observability"
	"flashliquidity/state/ledger"
	"flashliquidity/storage/journal"
)

const moduleName = "flashloand"

// History serves committed operation records.
type History interface {
	List(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// Options wires the server's collaborators.
type Options struct {
	Engine    *flashloan.Engine
	Ledger    *ledger.Ledger
	History   History
	Events    *events.Broadcaster
	Auth      *Authenticator
	RateLimit RateLimit
	Logger    *slog.Logger
}

// Server exposes the flash-liquidity engine over HTTP.
type Server struct {
	engine  *flashloan.Engine
	ledger  *ledger.Ledger
	history History
	events  *events.Broadcaster
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	metrics *observability.FlashLoanMetrics
}

// New validates opts and constructs a server.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  opts.Engine,
		ledger:  opts.Ledger,
		history: opts.History,
		events:  opts.Events,
		auth:    opts.Auth,
		limiter: NewRateLimiter(opts.RateLimit),
		logger:  logger.With(slog.String("component", "http")),
		metrics: observability.FlashLoan(),
	}, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware())
		r.Use(s.limiter.Middleware)

		r.Post("/stake", s.handleStake)
		r.Post("/compound", s.handleCompound)
		r.Post("/unstake", s.handleUnstake)
		r.Post("/borrow", s.handleBorrow)
		r.Post("/repay", s.handleRepay)
		r.Post("/liquidate", s.handleLiquidate)
		r.With(s.auth.Middleware(ScopeAdmin)).Post("/governance", s.handleUpdateGovernance)

		r.Get("/governance", s.handleGovernance)
		r.Get("/pool", s.handlePool)
		r.Get("/quote", s.handleQuote)
		r.Get("/stakers/{owner}/{kind}", s.handleStaker)
		r.Get("/loans/{kind}/{id}", s.handleLoan)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})
	return otelhttp.NewHandler(r, moduleName)
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.ModuleMetrics().Observe(moduleName, route, status, time.Since(start))
	})
}

// execute runs one engine operation inside a ledger transaction and records
// its outcome.
func (s *Server) execute(ctx context.Context, op string, fn func(tx *ledger.Tx) error) error {
	start := time.Now()
	// A borrower's callback that calls back into a mutating route would queue
	// behind the ledger lock its own borrow holds.
	if principal, ok := PrincipalFromContext(ctx); ok && s.engine.BorrowerBusy(principal.Identity) {
		s.metrics.RecordOperation(op, flashloan.Code(flashloan.ErrBorrowInProgress), 0)
		return flashloan.ErrBorrowInProgress
	}
	var pool *flashloan.RewardPool
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if p, err := s.engine.RewardPool(tx); err == nil {
			pool = p
		}
		return nil
	})
	code := flashloan.Code(err)
	s.metrics.RecordOperation(op, code, time.Since(start))
	if err != nil {
		s.logger.Warn("operation rejected", slog.String("op", op), slog.String("reason", code), slog.String("error", err.Error()))
		return err
	}
	if pool != nil {
		s.metrics.SetPool(pool.TotalStaked, pool.ActiveLoanTotal, pool.AccruedFees)
	}
	s.logger.Info("operation committed", slog.String("op", op))
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.View(func(tx *ledger.Tx) error {
		_, err := s.engine.Governance(tx)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

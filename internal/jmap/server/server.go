// Package server exposes the JMAP session resource over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chi-middleware/proxy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"jmapproxy/internal/common/logger"
	"jmapproxy/internal/common/ratelimit"
	"jmapproxy/internal/jmap/protocol"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
	defaultForwardLimit    = 1
)

// Options configures a Server. Account, AccountId, Username, Address and
// Gate are required.
type Options struct {
	Account   protocol.Account
	AccountId protocol.AccountId
	Username  string
	// Address is both the listen address and the authority advertised in
	// session URLs.
	Address string
	Gate    Authenticator

	// Extensions are merged into every session document.
	Extensions map[string]json.RawMessage

	Logger  *slog.Logger
	Limiter *ratelimit.Limiter
	Audit   logger.Logger

	EnableMetrics bool

	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For headers are
	// honoured.
	TrustedProxies []string
	ForwardLimit   int

	ShutdownTimeout time.Duration
}

// Server serves the session document of a single account.
type Server struct {
	opts    Options
	log     *slog.Logger
	metrics *metrics
	audit   *auditTrail
	router  chi.Router
}

// New validates opts and builds the router.
func New(opts Options) (*Server, error) {
	if opts.Gate == nil {
		return nil, errors.New("server: credential gate is required")
	}
	if opts.AccountId == "" {
		return nil, errors.New("server: account id is required")
	}
	if opts.Address == "" {
		return nil, errors.New("server: address is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	audit, err := newAuditTrail(opts.Audit, log)
	if err != nil {
		return nil, fmt.Errorf("server: failed to initialize audit log: %w", err)
	}

	s := &Server{
		opts:    opts,
		log:     log,
		metrics: newMetrics(),
		audit:   audit,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if len(s.opts.TrustedProxies) > 0 {
		r.Use(forwardedHeaders(s.opts.TrustedProxies, s.opts.ForwardLimit))
	}
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	if s.opts.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", s.metrics.handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.observe)
		r.Use(s.throttle)
		r.Use(requireBasicAuth(s.opts.Gate))

		r.Get("/", s.handleSession)
		r.Get(protocol.WellKnownPath, s.handleSession)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Session builds and stamps the document served to authenticated clients.
func (s *Server) Session() (protocol.Session, error) {
	session := protocol.BuildSession(s.opts.Account, s.opts.AccountId, s.opts.Username, s.opts.Address)
	if len(s.opts.Extensions) > 0 {
		session.Extensions = s.opts.Extensions
	}
	return protocol.Stamp(session)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.Session()
	var body []byte
	if err == nil {
		body, err = json.Marshal(session)
	}
	if err != nil {
		logger.LogError(s.log, "Failed to serialize session",
			"error", err,
			"request_id", middleware.GetReqID(r.Context()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if rec := recordFrom(r.Context()); rec != nil {
		rec.state = session.State
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger.LogDebug(s.log, "Failed to write session response", "error", err)
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.LogInfo(s.log, "Serving JMAP session",
		"address", ln.Addr().String(),
		"metrics", s.opts.EnableMetrics,
		"ratelimit", s.opts.Limiter.String())

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.LogInfo(s.log, "Shutting down server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.LogDebug(s.log, "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", statusOf(ww),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

// observe feeds metrics and the audit trail for gated routes.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &requestRecord{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(withRecord(r.Context(), rec)))

		status := statusOf(ww)
		s.metrics.observe(resultFor(status), time.Since(start))
		s.audit.record(r, status, rec.state)
		if status == http.StatusUnauthorized {
			logger.LogWarn(s.log, "Rejected session request",
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()))
		}
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	limiter := s.opts.Limiter
	if !limiter.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(int(limiter.RetryAfter()/time.Second)))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forwardedHeaders(trusted []string, limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = defaultForwardLimit
	}
	opt := proxy.NewForwardedHeadersOptions().
		WithForwardLimit(limit).
		ClearTrustedProxies()
	for _, n := range trusted {
		if strings.Contains(n, "/") {
			opt.AddTrustedNetwork(n)
		} else {
			opt.AddTrustedProxy(n)
		}
	}
	return proxy.ForwardedHeaders(opt)
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

type recordKey struct{}

// requestRecord carries per-request details from the handler back to
// observe.
type requestRecord struct {
	state string
}

func withRecord(ctx context.Context, rec *requestRecord) context.Context {
	return context.WithValue(ctx, recordKey{}, rec)
}

func recordFrom(ctx context.Context) *requestRecord {
	rec, _ := ctx.Value(recordKey{}).(*requestRecord)
	return rec
}

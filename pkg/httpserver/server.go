package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/internal/ratelimit"
	"github.com/xvix-labs/xvix-floor/pkg/cache"
	"github.com/xvix-labs/xvix-floor/pkg/types"
	"github.com/xvix-labs/xvix-floor/schema"
)

type Config struct {
	Cache      *cache.SnapshotCache
	RatePerMin int
	Burst      int
	Clock      clock.Clock
	Logger     *zap.Logger
}

type Server struct {
	cfg     Config
	mux     *http.ServeMux
	limiter *ratelimit.Limiter
	log     *zap.Logger
}

func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	lim := ratelimit.NewWithClock(cfg.RatePerMin, cfg.Burst, cfg.Clock)
	s := &Server{cfg: cfg, mux: http.NewServeMux(), limiter: lim, log: cfg.Logger}
	// public endpoints
	s.mux.HandleFunc("GET /healthz", s.healthz)
	s.mux.HandleFunc("GET /openapi.yaml", s.openapi)
	s.mux.HandleFunc("GET /total", s.wrap("/total", projectTotal))
	s.mux.HandleFunc("GET /circulating", s.wrap("/circulating", projectCirculating))
	s.mux.HandleFunc("GET /non_circulating", s.wrap("/non_circulating", projectNonCirc))
	s.mux.HandleFunc("GET /vault", s.wrap("/vault", projectVault))
	s.mux.HandleFunc("GET /floor", s.wrap("/floor", projectFloor))
	s.mux.HandleFunc("GET /distributor", s.wrap("/distributor", projectDistributor))
	s.mux.HandleFunc("GET /snapshot", s.wrap("/snapshot", func(s *types.ProtocolSnapshot) any { return s }))
	return s
}

// Handler returns the mux behind the request-id and access-log middleware.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := s.cfg.Clock.Now()
		s.mux.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", s.cfg.Clock.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// wrap rate limits, resolves the snapshot and answers conditional requests
// before projecting the snapshot for one endpoint.
func (s *Server) wrap(name string, project func(*types.ProtocolSnapshot) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(r) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		snap, err := s.snapshot()
		if err != nil {
			s.log.Error("snapshot failed", zap.String("endpoint", name), zap.Error(err))
			http.Error(w, "snapshot unavailable", http.StatusServiceUnavailable)
			return
		}
		h := w.Header()
		h.Set("ETag", snap.ETag)
		h.Set("X-Epoch", strconv.FormatUint(snap.Epoch, 10))
		h.Set("X-Updated-At", snap.UpdatedAt.Format(time.RFC3339))
		h.Set("Cache-Control", "public, max-age=30")
		if r.Header.Get("If-None-Match") == snap.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		h.Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(project(snap))
	}
}

// snapshot serves the cached snapshot while fresh, else recomputes it.
func (s *Server) snapshot() (*types.ProtocolSnapshot, error) {
	if snap, fresh := s.cfg.Cache.Get(); snap != nil && fresh {
		return snap, nil
	}
	return s.cfg.Cache.Update()
}

type header struct {
	Symbol    string    `json:"symbol"`
	Decimals  int32     `json:"decimals"`
	Epoch     uint64    `json:"epoch"`
	UpdatedAt time.Time `json:"updated_at"`
	ETag      string    `json:"etag"`
}

func headerOf(s *types.ProtocolSnapshot) header {
	return header{s.Symbol, s.Decimals, s.Epoch, s.UpdatedAt, s.ETag}
}

func projectTotal(s *types.ProtocolSnapshot) any {
	return struct {
		header
		Total          string  `json:"total"`
		Circulating    string  `json:"circulating"`
		NonCirculating string  `json:"non_circulating"`
		Max            *string `json:"max"`
		Display        string  `json:"display"`
	}{headerOf(s), s.Total, s.Circulating, s.NonCirculating.Sum, s.Max, s.Display.Total}
}

func projectCirculating(s *types.ProtocolSnapshot) any {
	return struct {
		header
		Circulating    string `json:"circulating"`
		NonCirculating string `json:"non_circulating"`
		Display        string `json:"display"`
	}{headerOf(s), s.Circulating, s.NonCirculating.Sum, s.Display.Circulating}
}

func projectNonCirc(s *types.ProtocolSnapshot) any {
	return struct {
		header
		Breakdown types.NonCircBreakdown `json:"non_circulating"`
	}{headerOf(s), s.NonCirculating}
}

func projectVault(s *types.ProtocolSnapshot) any {
	return struct {
		header
		Rebase types.RebaseState `json:"rebase"`
		Vault  types.VaultState  `json:"vault"`
	}{headerOf(s), s.Rebase, s.Vault}
}

func projectFloor(s *types.ProtocolSnapshot) any {
	return struct {
		header
		Floor types.FloorState `json:"floor"`
	}{headerOf(s), s.Floor}
}

func projectDistributor(s *types.ProtocolSnapshot) any {
	return struct {
		header
		Distributor types.DistributorState `json:"distributor"`
	}{headerOf(s), s.Distributor}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(struct {
		Status string `json:"status"`
		Time   string `json:"time"`
	}{"ok", s.cfg.Clock.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) openapi(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(schema.OpenAPI)
}

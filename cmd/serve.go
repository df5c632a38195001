package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/citypath/internal/assist"
	"github.com/sells-group/citypath/internal/config"
	"github.com/sells-group/citypath/internal/hexstore"
	"github.com/sells-group/citypath/internal/model"
	"github.com/sells-group/citypath/internal/monitoring"
	"github.com/sells-group/citypath/internal/overlay"
	"github.com/sells-group/citypath/internal/scorer"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scoring API over the persisted feature table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics := monitoring.NewMetrics()
		api := &apiServer{
			handle:    hexstore.NewHandle(st),
			collector: monitoring.NewCollector(st, nil),
			metrics:   metrics,
			city:      cfg.City,
		}
		if cfg.Anthropic.Key != "" {
			api.explainer = assist.NewClaudeExplainer(cfg.Anthropic.Key, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		}
		if cfg.Overlay.NO2URL != "" {
			cache := overlay.NewCache(cfg.Overlay.CacheEntries, cfg.Overlay.CacheTTL, nil)
			opts := []overlay.Option{overlay.WithMetrics(metrics)}
			if cfg.Overlay.RateLimit > 0 {
				opts = append(opts, overlay.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.Overlay.RateLimit), cfg.Overlay.RateBurst)))
			}
			api.tiles = cache
			api.no2 = overlay.NewProxy("no2", cfg.Overlay.NO2URL, cache, opts...)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(api, cfg.Server.CORSOrigins, prometheus.DefaultGatherer),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// Query limits accepted by the API.
const (
	minGridLimit = 10
	maxGridLimit = 20000
	maxItemLimit = 200
	chatMarkers  = 10
)

type apiServer struct {
	handle    *hexstore.Handle
	collector *monitoring.Collector
	metrics   *monitoring.Metrics
	city      config.CityConfig
	no2       http.Handler     // nil when the overlay is disabled
	tiles     *overlay.Cache   // backs no2; reported by /health
	explainer assist.Explainer // nil without an Anthropic key
}

type healthResponse struct {
	*monitoring.HealthSnapshot
	TileCache *overlay.CacheStats `json:"tile_cache,omitempty"`
}

const no2TilePath = "/api/tiles/no2"

type layer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

func (s *apiServer) layers() []layer {
	no2 := layer{ID: "no2", Name: "NO2 (GIBS overlay)", Type: "tile"}
	if s.no2 != nil {
		no2.URL = no2TilePath + "/{z}/{x}/{y}.png"
	}
	return []layer{
		{ID: "ndvi", Name: "Vegetation (NDVI)", Type: "metric"},
		{ID: "lst", Name: "Land Surface Temperature", Type: "metric"},
		{ID: "pop", Name: "Population Density", Type: "metric"},
		no2,
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newRouter(s *apiServer, origins []string, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(hexstore.WithHandle(req.Context(), s.handle)))
		})
	})

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/layers", s.listLayers)
		r.Get("/grid", s.grid)
		r.Get("/hotspots", s.hotspots)
		r.Get("/stats", s.stats)
		r.Get("/recommend/{kind}", s.recommend)
		r.Post("/chat", s.chat)
	})
	if s.no2 != nil {
		r.Handle(no2TilePath+"/*", http.StripPrefix(no2TilePath, s.no2))
	}
	return r
}

func (s *apiServer) health(w http.ResponseWriter, r *http.Request) {
	snap, err := hexstore.SnapshotFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	h, err := s.collector.Collect(r.Context(), snap.Len())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := healthResponse{HealthSnapshot: h}
	if s.tiles != nil {
		st := s.tiles.Stats()
		resp.TileCache = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) listLayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"city": s.city.Name, "layers": s.layers()})
}

func (s *apiServer) grid(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", scorer.DefaultGridLimit, minGridLimit, maxGridLimit)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	eng, ok := s.engine(w, r, "grid")
	if !ok {
		return
	}
	items, err := gridItems(eng.Grid(limit), r.URL.Query().Get("boundary") == "true")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[gridItem]{Items: items, Count: len(items)})
}

func (s *apiServer) hotspots(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", scorer.DefaultRankLimit, 1, maxItemLimit)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	theme, err := scorer.ParseTheme(r.URL.Query().Get("theme"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	eng, ok := s.engine(w, r, "rank")
	if !ok {
		return
	}
	recs, err := eng.Rank(theme, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *apiServer) stats(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("hex_id")
	if id == "" {
		writeError(w, http.StatusUnprocessableEntity, eris.New("hex_id is required"))
		return
	}
	eng, ok := s.engine(w, r, "stats")
	if !ok {
		return
	}
	st, found := eng.Stats(id)
	if !found {
		writeError(w, http.StatusNotFound, eris.New("Not Found"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *apiServer) recommend(w http.ResponseWriter, r *http.Request) {
	kind, err := scorer.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	limit, err := intParam(r, "limit", scorer.DefaultSuggestLimit, 1, maxItemLimit)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	eng, ok := s.engine(w, r, "suggest_"+string(kind))
	if !ok {
		return
	}
	recs, err := eng.Suggest(kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.ScoreRecord]{Items: recs, Count: len(recs)})
}

func (s *apiServer) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	eng, ok := s.engine(w, r, "chat")
	if !ok {
		return
	}
	reply, err := assist.Answer(r.Context(), eng, s.explainer, req.Question, chatMarkers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// engine loads the snapshot from the request context and counts the
// request under op.
func (s *apiServer) engine(w http.ResponseWriter, r *http.Request, op string) (*scorer.Engine, bool) {
	snap, err := hexstore.SnapshotFromContext(r.Context())
	if err != nil {
		zap.L().Error("snapshot unavailable", zap.String("operation", op), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err)
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.SnapshotRows.Set(float64(snap.Len()))
		s.metrics.ScoringRequests.WithLabelValues(op).Inc()
	}
	return scorer.New(snap), true
}

func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Errorf("%s must be an integer", name)
	}
	if v < lo || v > hi {
		return 0, eris.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package overlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/citypath/internal/monitoring"
)

const (
	dateLayout = "2006-01-02"
	maxZoom    = 20
)

// maxTileBytes bounds an upstream tile body.
var maxTileBytes int64 = 8 << 20

// UpstreamError is returned when the tile server answers with a non-200
// status.
type UpstreamError struct {
	Status int
	URL    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("overlay: upstream returned %d for %s", e.Status, e.URL)
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(c *http.Client) Option { return func(p *Proxy) { p.client = c } }

// WithClock sets the clock used to pick the default date.
func WithClock(c clockwork.Clock) Option { return func(p *Proxy) { p.clock = c } }

// WithRateLimit makes cache misses wait on l before going upstream.
func WithRateLimit(l *rate.Limiter) Option { return func(p *Proxy) { p.limiter = l } }

// WithMetrics records tile results on m.
func WithMetrics(m *monitoring.Metrics) Option { return func(p *Proxy) { p.metrics = m } }

// Proxy fetches tiles of one layer from an upstream URL template with
// {time}, {z}, {x} and {y} placeholders.
type Proxy struct {
	layer    string
	template string
	cache    *Cache
	client   *http.Client
	clock    clockwork.Clock
	metrics  *monitoring.Metrics
	limiter  *rate.Limiter
}

// NewProxy creates a Proxy for layer. cache may be nil.
func NewProxy(layer, template string, cache *Cache, opts ...Option) *Proxy {
	p := &Proxy{
		layer:    layer,
		template: template,
		cache:    cache,
		client:   &http.Client{Timeout: 30 * time.Second},
		clock:    clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// URL expands the template for t.
func (p *Proxy) URL(t Tile) string {
	return strings.NewReplacer(
		"{time}", t.Date,
		"{z}", strconv.Itoa(t.Z),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
	).Replace(p.template)
}

// DefaultDate is the most recent complete day: daily products are
// published with a lag.
func (p *Proxy) DefaultDate() string {
	return p.clock.Now().UTC().AddDate(0, 0, -1).Format(dateLayout)
}

// Fetch returns the tile body from cache or upstream.
func (p *Proxy) Fetch(ctx context.Context, t Tile) ([]byte, error) {
	if p.cache != nil {
		if data, ok := p.cache.Get(t); ok {
			p.count("hit")
			return data, nil
		}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.count("error")
			return nil, eris.Wrapf(err, "overlay: rate limit %s tile", p.layer)
		}
	}

	url := p.URL(t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "overlay: create request")
	}
	req.Header.Set("User-Agent", "citypath/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		p.count("error")
		return nil, eris.Wrapf(err, "overlay: fetch %s tile", p.layer)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		p.count("error")
		return nil, &UpstreamError{Status: resp.StatusCode, URL: url}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes+1))
	if err != nil {
		p.count("error")
		return nil, eris.Wrap(err, "overlay: read tile body")
	}
	if int64(len(data)) > maxTileBytes {
		p.count("error")
		return nil, eris.Errorf("overlay: %s tile exceeds %d bytes", p.layer, maxTileBytes)
	}

	if p.cache != nil {
		p.cache.Put(t, data)
	}
	p.count("miss")
	zap.L().Debug("overlay: fetched tile", zap.String("layer", p.layer), zap.String("url", url), zap.Int("bytes", len(data)))
	return data, nil
}

// ServeHTTP serves /{z}/{x}/{y}.png with an optional ?time=YYYY-MM-DD.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t, err := p.parse(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := p.Fetch(r.Context(), t)
	if err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.Status == http.StatusNotFound {
			http.Error(w, "tile not found", http.StatusNotFound)
			return
		}
		zap.L().Error("overlay tile fetch failed", zap.String("layer", p.layer), zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

func (p *Proxy) parse(r *http.Request) (Tile, error) {
	var t Tile
	if _, err := fmt.Sscanf(r.URL.Path, "/%d/%d/%d.png", &t.Z, &t.X, &t.Y); err != nil {
		return Tile{}, eris.New("invalid tile path")
	}
	if t.Z < 0 || t.Z > maxZoom {
		return Tile{}, eris.Errorf("zoom must be between 0 and %d", maxZoom)
	}
	if n := 1 << t.Z; t.X < 0 || t.Y < 0 || t.X >= n || t.Y >= n {
		return Tile{}, eris.Errorf("tile %d/%d/%d out of range", t.Z, t.X, t.Y)
	}

	t.Date = r.URL.Query().Get("time")
	if t.Date == "" {
		t.Date = p.DefaultDate()
	} else if _, err := time.Parse(dateLayout, t.Date); err != nil {
		return Tile{}, eris.New("time must be YYYY-MM-DD")
	}
	return t, nil
}

func (p *Proxy) count(result string) {
	if p.metrics != nil {
		p.metrics.OverlayTiles.WithLabelValues(p.layer, result).Inc()
	}
}

package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/citypath/internal/model"
)

// HealthSnapshot holds a point-in-time view of the serving artifact.
type HealthSnapshot struct {
	Status      string          `json:"status"`
	Rows        int             `json:"rows"`
	LatestRun   *model.BuildRun `json:"latest_run,omitempty"`
	ArtifactAge string          `json:"artifact_age,omitempty"`
	CollectedAt time.Time       `json:"collected_at"`
}

// RunSource returns the most recent build, or nil when none exist.
type RunSource interface {
	LatestRun(ctx context.Context) (*model.BuildRun, error)
}

// Collector gathers health data from the store's build log.
type Collector struct {
	runs  RunSource
	clock clockwork.Clock
}

// NewCollector creates a Collector. A nil clock uses the real clock.
func NewCollector(runs RunSource, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{runs: runs, clock: clock}
}

// Collect builds a HealthSnapshot. rows is the loaded snapshot size; a
// table without rows or without a recorded build reports "degraded".
func (c *Collector) Collect(ctx context.Context, rows int) (*HealthSnapshot, error) {
	now := c.clock.Now().UTC()
	snap := &HealthSnapshot{Status: "ok", Rows: rows, CollectedAt: now}

	run, err := c.runs.LatestRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest run")
	}
	snap.LatestRun = run
	if run != nil {
		snap.ArtifactAge = now.Sub(run.FinishedAt).Truncate(time.Second).String()
	}

	if rows == 0 || run == nil {
		snap.Status = "degraded"
	}
	return snap, nil
}

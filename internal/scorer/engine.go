package scorer

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/citypath/internal/hexstore"
	"github.com/sells-group/citypath/internal/model"
)

// Default result sizes used when a caller passes a non-positive limit.
const (
	DefaultRankLimit    = 50
	DefaultSuggestLimit = 10
	DefaultGridLimit    = 2000
)

// Theme selects a hotspot ranking.
type Theme string

// Hotspot themes.
const (
	ThemeHeat       Theme = "heat"
	ThemeGreenspace Theme = "greenspace"
	ThemeCool       Theme = "cool"
)

// ErrUnknownTheme is returned by ParseTheme.
var ErrUnknownTheme = eris.New("scorer: unknown theme")

// ParseTheme parses a theme name; the empty string means heat.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return ThemeHeat, nil
	case ThemeHeat, ThemeGreenspace, ThemeCool:
		return t, nil
	default:
		return "", eris.Wrapf(ErrUnknownTheme, "%q", s)
	}
}

// Kind selects a facility siting model.
type Kind string

// Siting kinds.
const (
	KindParks   Kind = "parks"
	KindClinics Kind = "clinics"
)

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = eris.New("scorer: unknown kind")

// ParseKind parses a siting kind; singular forms are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "park", "parks":
		return KindParks, nil
	case "clinic", "clinics":
		return KindClinics, nil
	default:
		return "", eris.Wrapf(ErrUnknownKind, "%q", s)
	}
}

// Engine scores one immutable snapshot. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	snap *hexstore.Snapshot
}

// New returns an Engine over snap.
func New(snap *hexstore.Snapshot) *Engine {
	return &Engine{snap: snap}
}

// Len returns the number of rows in the snapshot.
func (e *Engine) Len() int { return e.snap.Len() }

// Rank scores every hex for theme and returns the top limit records,
// highest first:
//
//	heat:       z(temperature) - z(vegetation_index)
//	greenspace: z(vegetation_index)
//	cool:       -z(temperature)
func (e *Engine) Rank(theme Theme, limit int) ([]model.ScoreRecord, error) {
	rows := e.snap.Rows()
	var (
		scores    []*float64
		rationale []string
	)
	switch theme {
	case ThemeHeat, "":
		t := column(rows, model.ColTemperature)
		v := column(rows, model.ColVegetation)
		scores = combine(len(rows), func(i int) *float64 { return sub(t[i], v[i]) })
		rationale = []string{model.ColTemperature, model.ColVegetation}
	case ThemeGreenspace:
		scores = column(rows, model.ColVegetation)
		rationale = []string{model.ColVegetation}
	case ThemeCool:
		t := column(rows, model.ColTemperature)
		scores = combine(len(rows), func(i int) *float64 { return neg(t[i]) })
		rationale = []string{model.ColTemperature}
	default:
		return nil, eris.Wrapf(ErrUnknownTheme, "%q", theme)
	}
	return top(rows, scores, limitOr(limit, DefaultRankLimit), func(r model.HexFeatureRow) map[string]*float64 {
		why := make(map[string]*float64, len(rationale))
		for _, c := range rationale {
			why[c] = r.Metric(c)
		}
		return why
	}), nil
}

// Suggest ranks candidate sites for kind, highest first:
//
//	parks:   (z(temperature) - z(vegetation_index)) * (1 + ln(1 + population_density))
//	clinics: z(temperature) + z(population_density)
//
// Missing population is treated as 0 in both models.
func (e *Engine) Suggest(kind Kind, limit int) ([]model.ScoreRecord, error) {
	rows := e.snap.Rows()
	for i := range rows {
		pop := model.ValueOr(rows[i].PopulationDensity, 0)
		rows[i].PopulationDensity = &pop
	}

	t := column(rows, model.ColTemperature)
	var scores []*float64
	switch kind {
	case KindParks:
		v := column(rows, model.ColVegetation)
		scores = combine(len(rows), func(i int) *float64 {
			if t[i] == nil || v[i] == nil {
				return nil
			}
			return model.Float(parkScore(*t[i], *v[i], *rows[i].PopulationDensity))
		})
	case KindClinics:
		p := column(rows, model.ColPopulation)
		scores = combine(len(rows), func(i int) *float64 { return add(t[i], p[i]) })
	default:
		return nil, eris.Wrapf(ErrUnknownKind, "%q", kind)
	}
	return top(rows, scores, limitOr(limit, DefaultSuggestLimit), func(r model.HexFeatureRow) map[string]*float64 {
		return map[string]*float64{
			model.ColTemperature: r.Temperature,
			model.ColVegetation:  r.VegetationIndex,
			model.ColPopulation:  r.PopulationDensity,
		}
	}), nil
}

// Stats returns the rounded metrics of one hex. ok is false for an
// unknown id.
func (e *Engine) Stats(hexID string) (stats *model.HexStats, ok bool) {
	r, ok := e.snap.Lookup(hexID)
	if !ok {
		return nil, false
	}
	stats = &model.HexStats{
		HexID:           r.HexID,
		VegetationIndex: roundTo(r.VegetationIndex, 3),
		Temperature:     roundTo(r.Temperature, 2),
	}
	if r.PopulationDensity != nil {
		p := int64(*r.PopulationDensity)
		stats.PopulationDensity = &p
	}
	return stats, true
}

// Grid returns the first limit rows in table order.
func (e *Engine) Grid(limit int) []model.HexFeatureRow {
	rows := e.snap.Rows()
	return rows[:min(len(rows), limitOr(limit, DefaultGridLimit))]
}

func top(rows []model.HexFeatureRow, scores []*float64, limit int, why func(model.HexFeatureRow) map[string]*float64) []model.ScoreRecord {
	recs := make([]model.ScoreRecord, 0, len(rows))
	for i, r := range rows {
		if scores[i] == nil {
			continue
		}
		recs = append(recs, model.ScoreRecord{
			HexID:     r.HexID,
			Lat:       r.Lat,
			Lon:       r.Lon,
			Score:     *scores[i],
			Rationale: why(r),
		})
	}
	slices.SortStableFunc(recs, func(a, b model.ScoreRecord) int { return cmp.Compare(b.Score, a.Score) })
	return recs[:min(len(recs), limit)]
}

// parkScore weights the heat-and-bareness signal by population. The
// weight is at least 1, so population never flips the sign.
func parkScore(zTemp, zVeg, pop float64) float64 {
	return (zTemp - zVeg) * (1 + math.Log1p(pop))
}

func column(rows []model.HexFeatureRow, col string) []*float64 {
	vals := make([]*float64, len(rows))
	for i, r := range rows {
		vals[i] = r.Metric(col)
	}
	return Standardize(vals)
}

func combine(n int, f func(i int) *float64) []*float64 {
	out := make([]*float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func sub(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return model.Float(*a - *b)
}

func add(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return model.Float(*a + *b)
}

func neg(a *float64) *float64 {
	if a == nil {
		return nil
	}
	return model.Float(-*a)
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func roundTo(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	p := math.Pow10(places)
	r := math.RoundToEven(*v*p) / p
	return &r
}

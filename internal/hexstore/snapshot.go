// Package hexstore loads the persisted feature table once per process and
// serves it as an immutable snapshot.
package hexstore

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/citypath/internal/hexgrid"
	"github.com/sells-group/citypath/internal/model"
	"github.com/sells-group/citypath/internal/store"
)

// SchemaError reports a persisted table without the required columns.
type SchemaError struct {
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("hexstore: table missing columns [%s] (found [%s])",
		strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

// Snapshot is an immutable, validated view of the feature table ordered
// by hex id. It is safe for concurrent use.
type Snapshot struct {
	rows  []model.HexFeatureRow
	index map[string]int
}

// NewSnapshot builds a snapshot from already typed rows. Later duplicates
// of a hex id are ignored.
func NewSnapshot(rows []model.HexFeatureRow) *Snapshot {
	s := &Snapshot{
		rows:  make([]model.HexFeatureRow, 0, len(rows)),
		index: make(map[string]int, len(rows)),
	}
	sorted := slices.Clone(rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].HexID < sorted[j].HexID })
	for _, r := range sorted {
		if _, dup := s.index[r.HexID]; dup {
			continue
		}
		s.index[r.HexID] = len(s.rows)
		s.rows = append(s.rows, r)
	}
	return s
}

// Len returns the number of rows.
func (s *Snapshot) Len() int { return len(s.rows) }

// Rows returns a copy of the rows in table order.
func (s *Snapshot) Rows() []model.HexFeatureRow { return slices.Clone(s.rows) }

// Lookup returns the row for hexID.
func (s *Snapshot) Lookup(hexID string) (model.HexFeatureRow, bool) {
	id, ok := hexgrid.CanonicalID(hexID)
	if !ok {
		return model.HexFeatureRow{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return model.HexFeatureRow{}, false
	}
	return s.rows[i], true
}

// FromTable validates a raw table and converts it to a snapshot. Missing
// required columns fail with *SchemaError. Rows without a hex id or with
// missing coordinates are dropped; non-finite metric values become nil.
func FromTable(tbl *store.RawTable) (*Snapshot, error) {
	pos := make(map[string]int, len(tbl.Columns))
	for i, c := range tbl.Columns {
		pos[strings.ToLower(strings.TrimSpace(c))] = i
	}
	var missing []string
	for _, c := range model.FeatureColumns {
		if _, ok := pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing, Found: slices.Clone(tbl.Columns)}
	}

	rows := make([]model.HexFeatureRow, 0, len(tbl.Rows))
	for _, raw := range tbl.Rows {
		if len(raw) < len(tbl.Columns) {
			continue
		}
		id, ok := hexgrid.CanonicalID(raw[pos[model.ColHexID]])
		if !ok {
			continue
		}
		lat := toFloat(raw[pos[model.ColLat]])
		lon := toFloat(raw[pos[model.ColLon]])
		if lat == nil || lon == nil {
			continue
		}
		rows = append(rows, model.HexFeatureRow{
			HexID:             id,
			Lat:               *lat,
			Lon:               *lon,
			VegetationIndex:   toFloat(raw[pos[model.ColVegetation]]),
			Temperature:       toFloat(raw[pos[model.ColTemperature]]),
			PopulationDensity: toFloat(raw[pos[model.ColPopulation]]),
		})
	}
	return NewSnapshot(rows), nil
}

// toFloat coerces a driver value to a finite float, or nil.
func toFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return model.Float(x)
	case float32:
		return model.Float(float64(x))
	case int64:
		return model.Float(float64(x))
	case int32:
		return model.Float(float64(x))
	case int:
		return model.Float(float64(x))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		return model.Float(f)
	case []byte:
		return toFloat(string(x))
	default:
		return nil
	}
}

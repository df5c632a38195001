// Package assist answers free-text planning questions with ranked markers
// and a plain-text brief, optionally explained by a language model.
package assist

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/citypath/internal/model"
	"github.com/sells-group/citypath/internal/scorer"
)

// Intent is the classified purpose of a question.
type Intent struct {
	Kind scorer.Kind // empty for general questions
}

// General reports whether the question asks for no siting model.
func (i Intent) General() bool { return i.Kind == "" }

func (i Intent) String() string {
	if i.General() {
		return "general"
	}
	return string(i.Kind)
}

// Context is the one-line framing of the intent.
func (i Intent) Context() string {
	switch i.Kind {
	case scorer.KindParks:
		return "The user wants to know where parks/green areas are most needed."
	case scorer.KindClinics:
		return "The user wants to know where clinics are most needed."
	default:
		return "The user is asking a general question about urban planning."
	}
}

// Classify picks the intent of question by keyword. "park" wins over
// "clinic" when both appear.
func Classify(question string) Intent {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "park"):
		return Intent{Kind: scorer.KindParks}
	case strings.Contains(q, "clinic"):
		return Intent{Kind: scorer.KindClinics}
	default:
		return Intent{}
	}
}

// Brief renders one summary line per marker.
func Brief(markers []model.ScoreRecord) string {
	if len(markers) == 0 {
		return "No markers selected."
	}
	lines := make([]string, len(markers))
	for i, m := range markers {
		lines[i] = fmt.Sprintf("- Hex %s: LST=%s, NDVI=%s, Pop=%s", m.HexID,
			format(m.Rationale[model.ColTemperature]),
			format(m.Rationale[model.ColVegetation]),
			format(m.Rationale[model.ColPopulation]))
	}
	return strings.Join(lines, "\n")
}

// Reply is the answer to one question.
type Reply struct {
	Intent  string              `json:"intent"`
	Context string              `json:"context"`
	Markers []model.ScoreRecord `json:"markers"`
	Brief   string              `json:"brief"`
	// Explanation is empty when no explainer is configured or it failed.
	Explanation string `json:"explanation,omitempty"`
}

// Suggester produces siting markers.
type Suggester interface {
	Suggest(kind scorer.Kind, limit int) ([]model.ScoreRecord, error)
}

// Answer classifies question and, for siting intents, attaches the top
// limit markers. A nil ex skips the explanation. Explainer failures are
// logged and leave the reply without one.
func Answer(ctx context.Context, s Suggester, ex Explainer, question string, limit int) (*Reply, error) {
	intent := Classify(question)
	reply := &Reply{
		Intent:  intent.String(),
		Context: intent.Context(),
		Markers: []model.ScoreRecord{},
	}
	if !intent.General() {
		markers, err := s.Suggest(intent.Kind, limit)
		if err != nil {
			return nil, err
		}
		reply.Markers = markers
	}
	reply.Brief = Brief(reply.Markers)
	if ex != nil {
		text, err := ex.Explain(ctx, intent, reply.Brief)
		if err != nil {
			zap.L().Warn("explanation unavailable", zap.String("intent", reply.Intent), zap.Error(err))
		} else {
			reply.Explanation = text
		}
	}
	return reply, nil
}

func format(v *float64) string {
	if v == nil {
		return "None"
	}
	return fmt.Sprintf("%g", *v)
}

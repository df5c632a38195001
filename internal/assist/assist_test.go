package assist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/citypath/internal/model"
	"github.com/sells-group/citypath/internal/scorer"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"Where should we build new PARKS?", "parks"},
		{"Which neighbourhoods need a clinic?", "clinics"},
		{"park or clinic first?", "parks"},
		{"How hot is Dhaka?", "general"},
		{"", "general"},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.question).String())
		})
	}
}

func TestIntentContext(t *testing.T) {
	assert.Contains(t, Classify("parks").Context(), "parks/green areas")
	assert.Contains(t, Classify("clinics").Context(), "clinics")
	assert.Contains(t, Intent{}.Context(), "general question")
}

func f(v float64) *float64 { return &v }

func TestBrief(t *testing.T) {
	assert.Equal(t, "No markers selected.", Brief(nil))

	got := Brief([]model.ScoreRecord{
		{HexID: "h1", Rationale: map[string]*float64{
			model.ColTemperature: f(34.5), model.ColVegetation: f(0.12), model.ColPopulation: f(1200),
		}},
		{HexID: "h2", Rationale: map[string]*float64{model.ColTemperature: f(30)}},
	})
	assert.Equal(t, "- Hex h1: LST=34.5, NDVI=0.12, Pop=1200\n- Hex h2: LST=30, NDVI=None, Pop=None", got)
}

type fakeSuggester struct {
	kind  scorer.Kind
	limit int
	recs  []model.ScoreRecord
	err   error
}

func (f *fakeSuggester) Suggest(kind scorer.Kind, limit int) ([]model.ScoreRecord, error) {
	f.kind, f.limit = kind, limit
	return f.recs, f.err
}

func TestAnswer(t *testing.T) {
	s := &fakeSuggester{recs: []model.ScoreRecord{{HexID: "h1", Score: 2}}}

	reply, err := Answer(context.Background(), s, nil, "any clinic gaps?", 10)
	require.NoError(t, err)
	assert.Equal(t, scorer.KindClinics, s.kind)
	assert.Equal(t, 10, s.limit)
	assert.Equal(t, "clinics", reply.Intent)
	assert.Len(t, reply.Markers, 1)
	assert.Contains(t, reply.Brief, "- Hex h1:")
}

func TestAnswer_General(t *testing.T) {
	s := &fakeSuggester{}
	reply, err := Answer(context.Background(), s, nil, "what is NDVI?", 10)
	require.NoError(t, err)
	assert.Equal(t, scorer.Kind(""), s.kind, "no suggestion requested")
	assert.Empty(t, reply.Markers)
	assert.NotNil(t, reply.Markers)
	assert.Equal(t, "No markers selected.", reply.Brief)
}

func TestAnswer_Error(t *testing.T) {
	_, err := Answer(context.Background(), &fakeSuggester{err: errors.New("no snapshot")}, nil, "parks", 10)
	assert.Error(t, err)
}

type fakeExplainer struct {
	intent Intent
	brief  string
	text   string
	err    error
}

func (f *fakeExplainer) Explain(_ context.Context, intent Intent, brief string) (string, error) {
	f.intent, f.brief = intent, brief
	return f.text, f.err
}

func TestAnswer_WithExplainer(t *testing.T) {
	s := &fakeSuggester{recs: []model.ScoreRecord{{HexID: "h1", Score: 2}}}
	ex := &fakeExplainer{text: "Build near h1."}

	reply, err := Answer(context.Background(), s, ex, "where do parks help most?", 10)
	require.NoError(t, err)
	assert.Equal(t, scorer.KindParks, ex.intent.Kind)
	assert.Equal(t, reply.Brief, ex.brief)
	assert.Equal(t, "Build near h1.", reply.Explanation)
}

func TestAnswer_ExplainerFailure(t *testing.T) {
	ex := &fakeExplainer{err: errors.New("overloaded")}

	reply, err := Answer(context.Background(), &fakeSuggester{}, ex, "what is NDVI?", 10)
	require.NoError(t, err)
	assert.Equal(t, "general", reply.Intent)
	assert.Empty(t, reply.Explanation)
}

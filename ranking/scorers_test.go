package ranking

import (
	"testing"

	"github.com/stract/stract/index"
)

type fixedLambdaMART struct{ value float64 }

func (m fixedLambdaMART) Predict(_ *RankingWebsite) float64 { return m.value }

func newTestWebsite() *RankingWebsite {
	w := NewRankingWebsite(index.DocAddress{SegmentOrd: 0, DocID: 1}, 0)
	w.SetSignal(SignalBM25, SignalScore{Coefficient: 2, Value: 3})
	w.SetSignal(SignalHostCentrality, SignalScore{Coefficient: 1, Value: 4})
	return w
}

func TestCalculateScoreNoModelSumsSignals(t *testing.T) {
	w := newTestWebsite()
	got := calculateScore(nil, nil, w)
	if want := 2*3.0 + 1*4.0; got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCalculateScoreModelWithZeroCoefficientFallsBackToLinear(t *testing.T) {
	w := newTestWebsite()
	coeffs := NewSignalCoefficient(map[Signal]float64{SignalLambdaMART: 0})
	got := calculateScore(fixedLambdaMART{value: 999}, &coeffs, w)
	if want := 2*3.0 + 1*4.0; got != want {
		t.Fatalf("expected linear fallback %v, got %v", want, got)
	}
}

func TestCalculateScoreModelWithOverrideCoefficient(t *testing.T) {
	w := newTestWebsite()
	coeffs := NewSignalCoefficient(map[Signal]float64{SignalLambdaMART: 2})
	got := calculateScore(fixedLambdaMART{value: 5}, &coeffs, w)
	if got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
}

func TestCalculateScoreModelWithDefaultCoefficient(t *testing.T) {
	w := newTestWebsite()
	got := calculateScore(fixedLambdaMART{value: 5}, nil, w)
	if want := SignalLambdaMART.defaultCoefficient() * 5; got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestReRankerScorerFallsBackToIdentityWithoutCrossEncoder(t *testing.T) {
	query := &SearchQuery{NumResults: 10}
	pipeline := ReRankingForQuery(query, nil, nil)

	w := newTestWebsite()
	w.Score = 42
	out := pipeline.stage.scorer
	out.score([]*RankingWebsite{w})

	if w.Score != 42 {
		t.Fatalf("identity scorer should leave score untouched, got %v", w.Score)
	}
}

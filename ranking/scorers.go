package ranking

import "context"

// scorer is the closed set of pipeline stages: Initial, ReRanker and an
// identity no-op.
type scorer interface {
	score(websites []*RankingWebsite)
	setQueryInfo(query *SearchQuery)
}

// calculateScore implements the lambda_score formula shared by both the
// Initial and ReRanker stages:
//
//   - model present, coefficient override for LambdaMART is exactly 0:
//     fall back to the linear sum of coefficient*value across signals.
//   - model present, no override or a nonzero one: coeff(LambdaMART) *
//     model.Predict(signals), using the default coefficient if none was
//     configured.
//   - no model: the linear sum.
func calculateScore(model LambdaMART, coeffs *SignalCoefficient, w *RankingWebsite) float64 {
	if model == nil {
		return linearSum(coeffs, w)
	}

	if coeffs != nil {
		if coeff, ok := coeffs.Get(SignalLambdaMART); ok {
			if coeff == 0 {
				return linearSum(coeffs, w)
			}
			return coeff * model.Predict(w)
		}
	}
	return SignalLambdaMART.defaultCoefficient() * model.Predict(w)
}

func linearSum(coeffs *SignalCoefficient, w *RankingWebsite) float64 {
	var sum float64
	w.signalValues(func(s SignalScore) {
		sum += s.Coefficient * s.Value
	})
	return sum
}

// coefficientFor resolves sig's weight: a per-query override if one was
// configured, else the signal's default.
func coefficientFor(coeffs *SignalCoefficient, sig Signal) float64 {
	if coeffs != nil {
		if v, ok := coeffs.Get(sig); ok {
			return v
		}
	}
	return sig.defaultCoefficient()
}

// identityScorer leaves websites untouched — the ReRanker stage falls
// back to this when no cross-encoder is configured.
type identityScorer struct{}

func (identityScorer) score(_ []*RankingWebsite)   {}
func (identityScorer) setQueryInfo(_ *SearchQuery) {}

// initialScorer is the LTR stage's scorer: score every candidate from
// its aggregated signals (and an optional LambdaMART model), with no
// cross-encoder pass.
type initialScorer struct {
	model  LambdaMART
	coeffs *SignalCoefficient
}

func (s *initialScorer) score(websites []*RankingWebsite) {
	for _, w := range websites {
		w.Score = calculateScore(s.model, s.coeffs, w)
	}
}

func (s *initialScorer) setQueryInfo(query *SearchQuery) {
	s.coeffs = query.SignalCoefficients
}

// reRankerScorer is the second stage: score every candidate's
// (title, clean_body) pair against the query text with a cross-encoder,
// fold the result in as the CrossEncoder signal, then recompute score.
type reRankerScorer struct {
	crossEncoder CrossEncoder
	model        LambdaMART
	query        *SearchQuery
	coeffs       *SignalCoefficient
}

func (s *reRankerScorer) score(websites []*RankingWebsite) {
	s.crossEncoderScore(websites)
	for _, w := range websites {
		w.Score = calculateScore(s.model, s.coeffs, w)
	}
}

func (s *reRankerScorer) crossEncoderScore(websites []*RankingWebsite) {
	bodies := make([]string, len(websites))
	for i, w := range websites {
		bodies[i] = w.Title + ". " + w.CleanBody
	}

	query := ""
	if s.query != nil {
		query = s.query.Query
	}
	scores, err := s.crossEncoder.Run(context.Background(), query, bodies)
	if err != nil {
		// A failed batch leaves CrossEncoder unset; calculateScore then
		// falls back to whatever the other signals already contributed.
		return
	}

	coeff := coefficientFor(s.coeffs, SignalCrossEncoder)
	for i, w := range websites {
		if i >= len(scores) {
			break
		}
		w.SetSignal(SignalCrossEncoder, SignalScore{Coefficient: coeff, Value: float64(scores[i])})
	}
}

func (s *reRankerScorer) setQueryInfo(query *SearchQuery) {
	s.query = query
	s.coeffs = query.SignalCoefficients
}

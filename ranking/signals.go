// Package ranking implements the two-stage scoring pipeline (C6):
// an initial signal-aggregation stage running inside each shard, then
// an optional cross-encoder re-ranking stage over the merged candidate
// pool.
package ranking

import "github.com/stract/stract/index"

// Signal names one scored feature of a candidate website. The set is
// closed: implementers add new signals here, not by subclassing.
type Signal uint8

const (
	SignalBM25 Signal = iota
	SignalHostCentrality
	SignalPageCentrality
	SignalQueryCentrality
	SignalCrossEncoder
	SignalLambdaMART

	numSignals
)

// defaultCoefficient is the weight a signal contributes to the linear
// score when no per-query override exists.
func (s Signal) defaultCoefficient() float64 {
	switch s {
	case SignalBM25:
		return 1.0
	case SignalHostCentrality:
		return 1.0
	case SignalPageCentrality:
		return 1.0
	case SignalQueryCentrality:
		return 1.0
	case SignalCrossEncoder:
		return 1.0
	case SignalLambdaMART:
		return 1.0
	default:
		return 0.0
	}
}

// SignalScore is one signal's contribution: its computed value and the
// coefficient it was (or will be) weighted by.
type SignalScore struct {
	Coefficient float64
	Value       float64
}

// SignalCoefficient is a per-query override of the default weights,
// built from the query's optic. A zero value for SignalLambdaMART is the documented
// back-door disabling the GBDT in favor of the linear signal sum.
type SignalCoefficient struct {
	overrides map[Signal]float64
}

// NewSignalCoefficient builds a coefficient set from an explicit
// signal->weight map, the shape an optic compiles down to.
func NewSignalCoefficient(overrides map[Signal]float64) SignalCoefficient {
	cp := make(map[Signal]float64, len(overrides))
	for k, v := range overrides {
		cp[k] = v
	}
	return SignalCoefficient{overrides: cp}
}

// Get returns the override for s, if one was configured.
func (c SignalCoefficient) Get(s Signal) (float64, bool) {
	if c.overrides == nil {
		return 0, false
	}
	v, ok := c.overrides[s]
	return v, ok
}

// RankingWebsite is a candidate result as it flows through the
// pipeline: identity and coarse score from the shard searcher, the
// signal map scorers fill in and mutate, and the fields a cross-encoder
// stage needs (title, clean_body).
type RankingWebsite struct {
	Address index.DocAddress

	Signals [numSignals]*SignalScore

	Title      string
	CleanBody  string
	OpticBoost float64
	HasBoost   bool

	// SiteHash groups near-duplicate results for BucketCollector's
	// derank-similar pass (nil means "don't dedup this candidate").
	SiteHash *uint64

	Score float64
}

// NewRankingWebsite seeds a candidate from a coarse searcher hit; the
// signal map starts empty and is filled by the aggregator that produced
// the hit before the candidate reaches a Scorer.
func NewRankingWebsite(addr index.DocAddress, initialScore float64) *RankingWebsite {
	return &RankingWebsite{Address: addr, Score: initialScore}
}

// SetSignal records signal sig's computed value and coefficient,
// overwriting any previous entry.
func (w *RankingWebsite) SetSignal(sig Signal, score SignalScore) {
	cp := score
	w.Signals[sig] = &cp
}

// signalValues iterates every populated signal, mirroring Rust's
// EnumMap::values() used by calculate_score's linear sum.
func (w *RankingWebsite) signalValues(fn func(SignalScore)) {
	for _, s := range w.Signals {
		if s != nil {
			fn(*s)
		}
	}
}

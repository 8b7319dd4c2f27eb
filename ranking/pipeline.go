package ranking

// SearchQuery carries the subset of a user query the ranking pipeline
// needs: the raw text for the cross-encoder, paging, and the optic's
// compiled signal overrides.
type SearchQuery struct {
	Query              string
	Page               int
	NumResults         int
	SignalCoefficients *SignalCoefficient
}

// stage bundles a scorer with its paging knobs:
// how many candidates it considers (stage_top_n) and whether its output
// gets the derank-similar treatment.
type stage struct {
	scorer        scorer
	stageTopN     int
	derankSimilar bool
}

func (s *stage) apply(websites []*RankingWebsite, topN, offset int) []*RankingWebsite {
	take := s.stageTopN
	if topN > take {
		take = topN
	}

	end := offset + take
	if end > len(websites) {
		end = len(websites)
	}
	if offset > end {
		offset = end
	}
	windowed := append([]*RankingWebsite(nil), websites[offset:end]...)

	s.scorer.score(windowed)
	for _, w := range windowed {
		if w.HasBoost && w.OpticBoost != 0 {
			w.Score *= w.OpticBoost
		}
	}

	collector := NewBucketCollector(take + offset)
	for _, w := range windowed {
		collector.Insert(w)
	}
	out := collector.IntoSortedVec(s.derankSimilar)
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func (s *stage) setQueryInfo(query *SearchQuery) {
	s.scorer.setQueryInfo(query)
}

// Pipeline is a single ranking stage plus the paging metadata needed to
// translate a user's (page, num_results) into the oversized window the
// stage must materialize.
type Pipeline struct {
	stage stage
	page  int
	topN  int
}

// LTRForQuery builds the first-stage pipeline: "Initial" scoring from
// aggregated signals, optionally a LambdaMART model. Default
// stage_top_n is 100 with derank-similar on.
func LTRForQuery(query *SearchQuery, model LambdaMART) *Pipeline {
	p := &Pipeline{
		stage: stage{
			scorer:        &initialScorer{model: model},
			stageTopN:     100,
			derankSimilar: true,
		},
	}
	p.setQueryInfo(query)
	return p
}

// ReRankingForQuery builds the second-stage pipeline: cross-encoder
// re-ranking over the merged candidate pool, or an identity pass-through
// if crossEncoder is nil. Default stage_top_n is 20 with derank-similar
// on.
func ReRankingForQuery(query *SearchQuery, crossEncoder CrossEncoder, model LambdaMART) *Pipeline {
	var sc scorer
	if crossEncoder != nil {
		sc = &reRankerScorer{crossEncoder: crossEncoder, model: model}
	} else {
		sc = identityScorer{}
	}

	p := &Pipeline{
		stage: stage{
			scorer:        sc,
			stageTopN:     20,
			derankSimilar: true,
		},
	}
	p.setQueryInfo(query)
	return p
}

// setQueryInfo rewrites query in place to request exactly
// CollectorTopN results starting at page 0, the handoff that lets
// downstream collectors (the coarse searcher or a merged candidate
// pool) materialize enough candidates for this stage's window.
func (p *Pipeline) setQueryInfo(query *SearchQuery) {
	p.stage.setQueryInfo(query)
	p.page = query.Page
	p.topN = query.NumResults

	query.NumResults = p.CollectorTopN()
	query.Page = 0
}

// Offset is how many leading candidates this page skips: top_n * page.
func (p *Pipeline) Offset() int {
	return p.topN * p.page
}

// InitialTopN is max(stage_top_n, top_n), the window size before paging
// is accounted for.
func (p *Pipeline) InitialTopN() int {
	if p.stage.stageTopN > p.topN {
		return p.stage.stageTopN
	}
	return p.topN
}

// CollectorTopN is the number of candidates a caller must supply for
// this stage to produce a full page: InitialTopN() + top_n*page.
func (p *Pipeline) CollectorTopN() int {
	return p.InitialTopN() + p.topN*p.page
}

// Apply scores websites, collects the top CollectorTopN() of them (with
// derank-similar applied), and returns the page for (topN, page) as
// configured at construction.
func (p *Pipeline) Apply(websites []*RankingWebsite) []*RankingWebsite {
	return p.stage.apply(websites, p.topN, p.Offset())
}

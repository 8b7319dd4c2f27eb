package ranking

// LambdaMART is the inference surface of a gradient-boosted
// decision-tree ranking model: a pure function from a candidate's
// signal map to a single score. Training the
// model is out of scope; this package only ever consumes one.
type LambdaMART interface {
	Predict(w *RankingWebsite) float64
}

package ranking

import (
	"context"

	"github.com/stract/stract/internal/reranking"
)

// CrossEncoder scores a batch of passages against a single query
// string, one score per passage. It is
// deliberately narrower than reranking.Model: the pipeline only needs
// the scoring call, not model lifecycle.
type CrossEncoder interface {
	Run(ctx context.Context, query string, passages []string) ([]float32, error)
}

// modelCrossEncoder adapts a reranking.Model (the ONNX/API-backed
// implementation the rest of the codebase loads) to CrossEncoder.
type modelCrossEncoder struct {
	model reranking.Model
}

// NewCrossEncoder wraps an already-loaded reranking model for use as a
// pipeline stage.
func NewCrossEncoder(model reranking.Model) CrossEncoder {
	return &modelCrossEncoder{model: model}
}

func (m *modelCrossEncoder) Run(ctx context.Context, query string, passages []string) ([]float32, error) {
	return m.model.Rerank(ctx, query, passages)
}

// DummyCrossEncoder returns a fixed score for every passage. It exists
// for tests exercising the pipeline's paging and collection behavior
// without a loaded model.
type DummyCrossEncoder struct{}

func (DummyCrossEncoder) Run(_ context.Context, _ string, passages []string) ([]float32, error) {
	scores := make([]float32, len(passages))
	return scores, nil
}

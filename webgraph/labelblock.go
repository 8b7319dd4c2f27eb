package webgraph

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// NumLabelsPerBlock is the batch size a group's labels are chunked into
// before compression. Fixed at build
// time: every store built by this package uses the same value.
const NumLabelsPerBlock = 1024

// LabelBlock is an uncompressed chunk of up to NumLabelsPerBlock anchor
// text labels, written as one compressed unit so a reader only pays the
// decompression cost for the blocks it actually touches.
type LabelBlock struct {
	Labels []string
}

// Compress serializes and compresses b with scheme, the on-disk form a
// store's label stream holds one of per write.
func (b LabelBlock) Compress(scheme Compression) (CompressedLabelBlock, error) {
	raw, err := sonic.Marshal(b.Labels)
	if err != nil {
		return CompressedLabelBlock{}, fmt.Errorf("encode label block: %w", err)
	}
	data, err := compress(scheme, raw)
	if err != nil {
		return CompressedLabelBlock{}, fmt.Errorf("compress label block: %w", err)
	}
	return CompressedLabelBlock{Compression: scheme, Data: data}, nil
}

// CompressedLabelBlock is the bytes actually appended to the label
// stream: the scheme it was compressed with (so old blocks stay
// readable even if a store is rebuilt under a different default) plus
// the compressed payload.
type CompressedLabelBlock struct {
	Compression Compression
	Data        []byte
}

// Decompress inflates c back into its label list.
func (c CompressedLabelBlock) Decompress() ([]string, error) {
	raw, err := decompress(c.Compression, c.Data)
	if err != nil {
		return nil, fmt.Errorf("decompress label block: %w", err)
	}
	var labels []string
	if err := sonic.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("decode label block: %w", err)
	}
	return labels, nil
}

// chunkLabels splits labels into groups of at most NumLabelsPerBlock,
// matching the final writer's per-group label stream chunking.
func chunkLabels(labels []string) [][]string {
	var chunks [][]string
	for len(labels) > 0 {
		n := NumLabelsPerBlock
		if n > len(labels) {
			n = len(labels)
		}
		chunks = append(chunks, labels[:n])
		labels = labels[n:]
	}
	return chunks
}

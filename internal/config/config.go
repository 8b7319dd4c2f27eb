// Package config loads the tunables for a stract node from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stract/stract/internal/logging"
)

// Config is the full set of tunables for one stract process. Load fills
// zero-valued tunables with defaults; DHT.ShardCount and RPC.ListenAddr
// have none.
type Config struct {
	Logging logging.Config `yaml:"logging"`

	Index     IndexConfig     `yaml:"index"`
	Webgraph  WebgraphConfig  `yaml:"webgraph"`
	Ranking   RankingConfig   `yaml:"ranking"`
	DHT       DHTConfig       `yaml:"dht"`
	RPC       RPCConfig       `yaml:"rpc"`
}

// IndexConfig controls the inverted index writer (C3).
type IndexConfig struct {
	// WriterMemoryBudgetBytes is the writer's memory budget in bytes.
	// 0 means use DefaultWriterMemoryBudgetBytes. index.IndexWriter does
	// not read it and has no implicit flush.
	WriterMemoryBudgetBytes int64 `yaml:"writer_memory_budget_bytes"`
}

const DefaultWriterMemoryBudgetBytes = 1 << 30 // 1GiB, single writer thread

// WebgraphConfig controls the edge store writer (C5).
type WebgraphConfig struct {
	// Compression is one of "none", "lz4", "zstd". Empty means "zstd".
	Compression string `yaml:"compression"`
}

// RankingConfig carries the pipeline's default stage sizes.
type RankingConfig struct {
	LTRStageTopN        int `yaml:"ltr_stage_top_n"`
	RerankingStageTopN  int `yaml:"reranking_stage_top_n"`
}

const (
	DefaultLTRStageTopN       = 100
	DefaultRerankingStageTopN = 20
)

// DHTConfig controls the sharded client (C7).
type DHTConfig struct {
	// ShardCount is only used by standalone/test clusters that don't
	// derive shards from cluster membership.
	ShardCount int `yaml:"shard_count"`
}

// RPCConfig controls the C9 transport.
type RPCConfig struct {
	ListenAddr         string `yaml:"listen_addr"`
	MaxFrameBytes      int    `yaml:"max_frame_bytes"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds"`
}

const (
	DefaultMaxFrameBytes      = 64 << 20 // 64MiB "bounded per-connection memory"
	DefaultDialTimeoutSeconds = 10
)

// Load reads and parses a YAML config file, applying defaults for any
// zero-valued tunable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Index.WriterMemoryBudgetBytes == 0 {
		c.Index.WriterMemoryBudgetBytes = DefaultWriterMemoryBudgetBytes
	}
	if c.Webgraph.Compression == "" {
		c.Webgraph.Compression = "zstd"
	}
	if c.Ranking.LTRStageTopN == 0 {
		c.Ranking.LTRStageTopN = DefaultLTRStageTopN
	}
	if c.Ranking.RerankingStageTopN == 0 {
		c.Ranking.RerankingStageTopN = DefaultRerankingStageTopN
	}
	if c.RPC.MaxFrameBytes == 0 {
		c.RPC.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.RPC.DialTimeoutSeconds == 0 {
		c.RPC.DialTimeoutSeconds = DefaultDialTimeoutSeconds
	}
}

// Command stractd runs a single DHT node: it joins (or bootstraps) a
// Raft group and serves that group's KV surface over the rpc package.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/stract/stract/dht"
	"github.com/stract/stract/internal/config"
	"github.com/stract/stract/internal/logging"
	"github.com/stract/stract/internal/obs"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (optional, defaults apply)")
		nodeID     = flag.String("id", "", "this node's Raft server ID (required)")
		raftAddr   = flag.String("raft-addr", "127.0.0.1:7100", "host:port Raft binds/advertises")
		dataDir    = flag.String("data-dir", "./data", "directory for Raft logs/snapshots")
		bootstrap  = flag.Bool("bootstrap", false, "bootstrap a new single-node cluster")
		healthPort = flag.Int("health-port", 8080, "port for /healthz and /readyz")
	)
	flag.Parse()

	if *nodeID == "" {
		fmt.Fprintln(os.Stderr, "stractd: -id is required")
		os.Exit(1)
	}

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stractd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}

	logger := logging.NewLogger(&cfg.Logging)
	defer logger.Sync()

	rpcAddr := cfg.RPC.ListenAddr
	if rpcAddr == "" {
		rpcAddr = "127.0.0.1:7000"
	}

	node, err := dht.NewNode(dht.NodeConfig{
		ID:        *nodeID,
		RaftAddr:  *raftAddr,
		RPCAddr:   rpcAddr,
		DataDir:   *dataDir,
		Bootstrap: *bootstrap,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("starting node", zap.Error(err))
	}

	obs.Start(logger, *healthPort, func() bool {
		status, err := node.RaftStatus()
		return err == nil && status.Leader != ""
	})

	logger.Info("serving dht node",
		zap.String("id", *nodeID),
		zap.String("raft_addr", *raftAddr),
		zap.String("rpc_addr", rpcAddr),
	)
	if err := node.Serve(); err != nil {
		logger.Fatal("serving node", zap.Error(err))
	}
}

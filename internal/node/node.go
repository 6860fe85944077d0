// Package node provides a reusable bridge node that can be embedded
// in any binary (daemon, devnet, tests).
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingbridge/config"
	"github.com/Klingon-tech/klingbridge/internal/crosschain"
	"github.com/Klingon-tech/klingbridge/internal/headersync"
	klog "github.com/Klingon-tech/klingbridge/internal/log"
	"github.com/Klingon-tech/klingbridge/internal/relay"
	"github.com/Klingon-tech/klingbridge/internal/rpc"
	"github.com/Klingon-tech/klingbridge/internal/storage"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

// Storage namespaces inside the node database. Header sync owns the
// root "c/" and "g/" prefixes.
var (
	relayPrefix      = []byte("r/")
	crossChainPrefix = []byte("x/")
)

// syncInterval is how often connected peers are polled for newer headers.
const syncInterval = 30 * time.Second

// Node is a fully-initialized bridge node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db     storage.DB
	syncer *headersync.Syncer
	xchain *crosschain.Manager

	// Networking
	relayNode *relay.Node
	syncing   atomic.Bool

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, storage, header sync, genesis bootstrap, relay, RPC) but
// does NOT start the background sync loop. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "klingbridge.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 2. Trust policy ─────────────────────────────────────────────
	format, err := cfg.Bridge.PayloadFormat()
	if err != nil {
		return nil, err
	}
	quorum, err := cfg.Bridge.QuorumPolicy()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Uint64("own_chain_id", cfg.Bridge.OwnChainID).
		Str("payload", format.String()).
		Str("quorum", quorum.String()).
		Str("network", cfg.P2P.NetworkID).
		Msg("Starting Klingbridge Node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.HeadersDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.HeadersDir(), err)
	}
	logger.Info().Str("path", cfg.HeadersDir()).Msg("Database opened")

	syncer := headersync.New(db, headersync.Config{Format: format, Quorum: quorum})
	xchain := crosschain.New(storage.NewPrefixDB(db, crossChainPrefix), syncer, cfg.Bridge.OwnChainID)

	// ── 4. Genesis headers ──────────────────────────────────────────
	if cfg.Bridge.Genesis != "" {
		if err := bootstrapGenesis(syncer, expandHome(cfg.Bridge.Genesis), logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:    cfg,
		logger: logger,
		db:     db,
		syncer: syncer,
		xchain: xchain,
		ctx:    ctx,
		cancel: cancel,
	}

	// ── 5. Relay ────────────────────────────────────────────────────
	if cfg.P2P.Enabled {
		if err := n.startRelay(); err != nil {
			cancel()
			db.Close()
			return nil, err
		}
	} else {
		logger.Warn().Msg("P2P disabled by config; headers are only accepted over RPC")
	}

	// ── 6. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		n.rpcServer = rpc.New(rpcAddr, syncer, cfg.RPC)
		n.rpcServer.SetCrossChainManager(xchain)
		if n.relayNode != nil {
			n.rpcServer.SetRelay(n.relayNode)
		}
		n.rpcServer.SetAcceptedHandler(n.announce)
		if err := n.rpcServer.Start(); err != nil {
			n.rpcServer = nil
			n.Stop()
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

func (n *Node) startRelay() error {
	cfg := n.cfg
	n.relayNode = relay.New(relay.Config{
		ListenAddr: cfg.P2P.ListenAddr,
		Port:       cfg.P2P.Port,
		Seeds:      cfg.P2P.Seeds,
		MaxPeers:   cfg.P2P.MaxPeers,
		NoDiscover: cfg.P2P.NoDiscover,
		DB:         storage.NewPrefixDB(n.db, relayPrefix),
		DHTServer:  cfg.P2P.DHTServer,
		NetworkID:  cfg.P2P.NetworkID,
		DataDir:    cfg.DataDir,
	})
	n.relayNode.SetHeaderSink(n)
	n.relayNode.SetPeerConnectedHandler(func(id peer.ID) {
		n.syncFromPeer(id)
	})

	if err := n.relayNode.Start(); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	if cfg.P2P.ClearBans {
		cleared := n.relayNode.BanManager.ClearAll()
		n.logger.Info().Int("count", cleared).Msg("Peer bans cleared")
	}

	n.relayNode.ServeHeaders(n.provideHeaders)
	n.relayNode.ServeHeight(n.provideHeight)

	chains, err := n.followedChains()
	if err != nil {
		n.relayNode.Stop()
		return err
	}
	for _, id := range chains {
		if err := n.relayNode.JoinChain(id); err != nil {
			n.relayNode.Stop()
			return err
		}
	}

	n.logger.Info().
		Str("id", n.relayNode.ID().String()).
		Int("port", cfg.P2P.Port).
		Bool("discovery", !cfg.P2P.NoDiscover).
		Int("chains", len(chains)).
		Msg("Relay node started")
	return nil
}

// followedChains is every initialized chain plus the configured extras,
// without duplicates.
func (n *Node) followedChains() ([]uint64, error) {
	ids, err := n.syncer.Chains()
	if err != nil {
		return nil, fmt.Errorf("list synced chains: %w", err)
	}
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range n.cfg.Bridge.Chains {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Start launches the background sync loop.
func (n *Node) Start() error {
	if n.relayNode != nil {
		n.syncAll()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runSyncLoop()
		}()
	}

	chains, _ := n.syncer.Chains()
	n.logger.Info().
		Int("chains", len(chains)).
		Bool("relay", n.relayNode != nil).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.relayNode != nil {
		n.relayNode.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Syncer returns the node's header sync state machine.
func (n *Node) Syncer() *headersync.Syncer {
	return n.syncer
}

// CrossChain returns the node's cross-chain transaction manager.
func (n *Node) CrossChain() *crosschain.Manager {
	return n.xchain
}

// Relay returns the relay node, nil when P2P is disabled.
func (n *Node) Relay() *relay.Node {
	return n.relayNode
}

// Command klingbridge-devnet boots a 2-node local bridge devnet from scratch.
//
// Usage: go run ./cmd/klingbridge-devnet/
//
// It creates a committee key file, writes a bridge genesis file, boots two
// in-process nodes connected over the header relay, submits a signed chain
// of remote headers (with one committee rotation) to the first node over
// RPC, and verifies that the second node converges and accepts a
// cross-chain transaction proven against a synced header.
// Ctrl+C for early shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingbridge/config"
	"github.com/Klingon-tech/klingbridge/internal/keystore"
	klog "github.com/Klingon-tech/klingbridge/internal/log"
	"github.com/Klingon-tech/klingbridge/internal/node"
	"github.com/Klingon-tech/klingbridge/internal/rpcclient"
	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crosstx"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"github.com/Klingon-tech/klingbridge/pkg/merkle"
	"github.com/Klingon-tech/klingbridge/pkg/types"
	"github.com/holiman/uint256"
)

const (
	remoteChain    = 1001
	localChain     = 2
	committeeSize  = 4
	numHeaders     = 12
	rotationHeight = 6
	rootHeight     = 9
	headerTime     = time.Second
	networkID      = "klingbridge-devnet"
)

var devnetPassword = []byte("devnet")

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("devnet")

	logger.Info().Msg("=== Klingbridge 2-Node Local Devnet ===")

	workDir, err := os.MkdirTemp("", "klingbridge-devnet-")
	if err != nil {
		logger.Fatal().Err(err).Msg("create work dir")
	}
	defer os.RemoveAll(workDir)

	// ── Phase 1: Committee keys ──────────────────────────────────────────

	committee, next, err := createCommittees(filepath.Join(workDir, "keystore"))
	if err != nil {
		logger.Fatal().Err(err).Msg("create committees")
	}
	logger.Info().
		Str("genesis_committee", committeeAddress(committee)).
		Str("rotated_committee", committeeAddress(next)).
		Msg("Committee keys derived")

	// ── Phase 2: Genesis file ────────────────────────────────────────────

	genesis := newHeader(0, types.Hash{})
	if err := genesis.SetBlockInfo(header.TaggedFormat{}, rotationTo(committee)); err != nil {
		logger.Fatal().Err(err).Msg("encode genesis block info")
	}
	genesisPath := filepath.Join(workDir, "genesis.json")
	g := &config.Genesis{}
	g.AddHeader("devnet-remote", genesis)
	if err := g.Save(genesisPath); err != nil {
		logger.Fatal().Err(err).Msg("save genesis")
	}
	logger.Info().
		Uint64("chain_id", remoteChain).
		Str("hash", genesis.Hash().String()[:16]+"...").
		Msg("Genesis file written")

	// ── Phase 3: Build nodes ─────────────────────────────────────────────

	node1, err := buildNode(workDir, "node-1", genesisPath, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-1")
	}
	defer node1.Stop()
	node2, err := buildNode(workDir, "node-2", genesisPath, node1.Relay().Addrs())
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-2")
	}
	defer node2.Stop()

	for _, n := range []*node.Node{node1, node2} {
		if err := n.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start node")
		}
	}
	time.Sleep(time.Second) // GossipSub mesh stabilization.

	logger.Info().
		Str("node1_rpc", node1.RPCAddr()).
		Str("node2_rpc", node2.RPCAddr()).
		Int("node1_peers", node1.Relay().PeerCount()).
		Int("node2_peers", node2.Relay().PeerCount()).
		Msg("Nodes connected")

	client1 := rpcclient.New("http://" + node1.RPCAddr())
	client2 := rpcclient.New("http://" + node2.RPCAddr())

	// ── Phase 4: Signal handling ─────────────────────────────────────────

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("Shutdown signal received")
		cancel()
	}()

	// ── Phase 5: Header production ───────────────────────────────────────

	leaves := crossChainLeaves()
	signers := committee
	prev := genesis.Hash()
	produced := uint32(0)

	for height := uint32(1); height <= numHeaders; height++ {
		if ctx.Err() != nil {
			logger.Info().Msg("Production interrupted")
			break
		}

		h := newHeader(height, prev)
		info := &header.BlockInfo{Proposer: height % committeeSize}
		if height == rotationHeight {
			info = rotationTo(next)
			info.Proposer = height % committeeSize
		}
		if height == rootHeight {
			h.CrossStateRoot = merkle.ComputeRoot(leaves)
		}
		if err := h.SetBlockInfo(header.TaggedFormat{}, info); err != nil {
			logger.Fatal().Err(err).Msg("encode block info")
		}
		// Three of four members satisfy the strict quorum.
		for _, s := range signers[:committeeSize-1] {
			if err := h.Sign(s); err != nil {
				logger.Fatal().Err(err).Msg("sign header")
			}
		}

		res, err := client1.SyncHeader(h.Bytes())
		if err != nil {
			logger.Fatal().Err(err).Uint32("height", height).Msg("submit header")
		}
		logger.Info().
			Uint32("height", res.Height).
			Str("hash", res.Hash[:16]+"...").
			Bool("rotation", res.Rotation).
			Msg("Header submitted")

		if height == rotationHeight {
			signers = next
		}
		prev = h.Hash()
		produced = height

		select {
		case <-ctx.Done():
		case <-time.After(headerTime):
		}
	}

	// ── Phase 6: Verification ────────────────────────────────────────────

	h2 := waitForHeight(ctx, client2, produced, 10*time.Second)
	h1, err := client1.CurrentHeight(remoteChain)
	if err != nil {
		logger.Fatal().Err(err).Msg("node-1 height")
	}
	keys1, _ := client1.KeyHeights(remoteChain)
	keys2, _ := client2.KeyHeights(remoteChain)

	logger.Info().
		Uint32("node1_height", h1.Height).
		Uint32("node2_height", h2).
		Interface("node1_key_heights", keys1).
		Interface("node2_key_heights", keys2).
		Msg("Final sync state")

	if h1.Height != h2 || !slices.Equal(keys1, keys2) {
		logger.Error().Msg("FAILURE: Header sync mismatch between nodes!")
		os.Exit(1)
	}
	if produced < rootHeight {
		logger.Info().Msg("Stopped before the cross-chain header; skipping proof check")
		return
	}

	proof, err := merkle.Prove(leaves, 1)
	if err != nil {
		logger.Fatal().Err(err).Msg("build proof")
	}
	processed, err := client2.ProcessCrossChainTx(remoteChain, rootHeight, proof.Bytes())
	if err != nil {
		logger.Error().Err(err).Msg("FAILURE: Cross-chain proof rejected by node-2")
		os.Exit(1)
	}
	if _, err := client2.ProcessCrossChainTx(remoteChain, rootHeight, proof.Bytes()); !rpcclient.IsRejected(err) {
		logger.Error().Err(err).Msg("FAILURE: Replayed cross-chain proof was not rejected")
		os.Exit(1)
	}

	logger.Info().Msg("SUCCESS: Both nodes converged and the cross-chain proof verified!")
	fmt.Println()
	fmt.Printf("  Headers synced:    %d\n", h2)
	fmt.Printf("  Key heights:       %v\n", keys2)
	fmt.Printf("  Cross-chain tx:    %s\n", processed.TxHash)
	fmt.Printf("  Committee address: %s\n", committeeAddress(next))
	fmt.Println()
}

// createCommittees stores a committee key file and returns the genesis
// committee and the committee it rotates to, both derived from its seed.
func createCommittees(dir string) (genesis, rotated []crypto.Signer, err error) {
	ks, err := keystore.New(dir)
	if err != nil {
		return nil, nil, err
	}
	mnemonic, err := keystore.GenerateMnemonic()
	if err != nil {
		return nil, nil, err
	}
	seed, err := keystore.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, nil, err
	}

	schemes := make([]crypto.Scheme, committeeSize)
	for i := range schemes {
		schemes[i] = crypto.SchemeSchnorrSecp256k1
	}
	if _, err := ks.Create("devnet", seed, devnetPassword, schemes, keystore.LightParams()); err != nil {
		return nil, nil, err
	}
	genesis, err = ks.Signers("devnet", devnetPassword)
	if err != nil {
		return nil, nil, err
	}

	// The rotated committee mixes schemes and continues the member index.
	mixed := []crypto.Scheme{crypto.SchemeEd25519, crypto.SchemeEcdsaSecp256k1, crypto.SchemeEd25519, crypto.SchemeSchnorrSecp256k1}
	for i, scheme := range mixed {
		s, err := keystore.MemberSigner(seed, uint32(committeeSize+i), scheme)
		if err != nil {
			return nil, nil, err
		}
		rotated = append(rotated, s)
	}
	return genesis, rotated, nil
}

func committeeAddress(signers []crypto.Signer) string {
	keys := make([]crypto.PublicKey, len(signers))
	for i, s := range signers {
		keys[i] = s.PublicKey()
	}
	return crypto.CommitteeAddress(keys).String()
}

func newHeader(height uint32, prev types.Hash) *header.Header {
	return &header.Header{
		Version:       1,
		ChainID:       remoteChain,
		Height:        height,
		PrevBlockHash: prev,
		Timestamp:     uint32(time.Now().Unix()),
	}
}

func rotationTo(signers []crypto.Signer) *header.BlockInfo {
	peers := make([]header.PeerConfig, len(signers))
	for i, s := range signers {
		peers[i] = header.PeerFromPublicKey(uint32(i), s.PublicKey())
	}
	return &header.BlockInfo{NewChainConfig: &header.ChainConfig{
		Version:         1,
		NetworkSize:     uint32(len(peers)),
		ConsensusQuorum: uint32(len(peers) - 1),
		Peers:           peers,
	}}
}

// crossChainLeaves returns the unlock transactions committed at rootHeight.
func crossChainLeaves() [][]byte {
	var leaves [][]byte
	for i := byte(0); i < 3; i++ {
		polyTx := crypto.Sha256([]byte{'p', i})
		sourceTx := crypto.Sha256([]byte{'s', i})
		args := &crosstx.TransactionArgs{
			AssetHash:   []byte("devnet-asset"),
			DestAddress: []byte{0xde, 0xad, i},
			Amount:      uint256.NewInt(1000 * uint64(i+1)),
		}
		value := &crosstx.ToMerkleValue{
			PolyTxHash:  polyTx[:],
			FromChainID: remoteChain,
			Tx: crosstx.Transaction{
				SourceTxHash:   sourceTx,
				CrossChainTxID: []byte{i},
				FromContract:   []byte("lock-proxy"),
				ToChainID:      localChain,
				ToContract:     []byte("unlock-proxy"),
				Method:         "unlock",
				Args:           codec.Encode(args),
			},
		}
		leaves = append(leaves, codec.Encode(value))
	}
	return leaves
}

// buildNode creates a node with its own data dir, following seeds.
func buildNode(workDir, name, genesisPath string, seeds []string) (*node.Node, error) {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(workDir, name)
	cfg.P2P.ListenAddr = "127.0.0.1"
	cfg.P2P.Port = 0 // Random port.
	cfg.P2P.NoDiscover = true
	cfg.P2P.NetworkID = networkID
	cfg.P2P.Seeds = seeds
	cfg.RPC.Port = 0
	cfg.Bridge.OwnChainID = localChain
	cfg.Bridge.Genesis = genesisPath
	if err := config.EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	n, err := node.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// waitForHeight polls client until the remote chain reaches target or
// timeout passes, and returns the last height seen.
func waitForHeight(ctx context.Context, client *rpcclient.Client, target uint32, timeout time.Duration) uint32 {
	deadline := time.Now().Add(timeout)
	var last uint32
	for {
		res, err := client.CurrentHeight(remoteChain)
		if err == nil {
			last = res.Height
		}
		if last >= target || time.Now().After(deadline) || ctx.Err() != nil {
			return last
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// klingbridge-cli is a command-line client for interacting with a
// klingbridged node and for managing committee keys.
package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingbridge/config"
	"github.com/Klingon-tech/klingbridge/internal/keystore"
	"github.com/Klingon-tech/klingbridge/internal/rpc"
	"github.com/Klingon-tech/klingbridge/internal/rpcclient"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := fmt.Sprintf("http://127.0.0.1:%d", config.DefaultRPCPort)
	dataDir := config.DefaultDataDir()

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.DataDir = dataDir
	ksDir := cfg.KeystoreDir()
	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "chains":
		cmdChains(client)
	case "height":
		cmdHeight(client, cmdArgs)
	case "header":
		cmdHeader(client, cmdArgs)
	case "committee":
		cmdCommittee(client, cmdArgs)
	case "keyheights":
		cmdKeyHeights(client, cmdArgs)
	case "sync":
		cmdSync(client, cmdArgs)
	case "proof":
		cmdProof(client, cmdArgs)
	case "xtx":
		cmdCrossChain(client, cmdArgs)
	case "stats":
		cmdStats(client, cmdArgs)
	case "peers":
		cmdPeers(client)
	case "bans":
		cmdBans(client)
	case "keys":
		cmdKeys(cmdArgs, ksDir)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingbridge-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:%d)
  --datadir <path>    Data directory (default: ~/.klingbridge)

Commands:
  status                          Show synced chains and peers
  chains                          List initialized chains
  height <chain>                  Show the synced height of a chain
  header <chain> <height|hash> [--raw]
                                  Show a synced header
  committee <chain> [--key-height <h>]
                                  Show a committee (default: latest)
  keyheights <chain>              List committee rotation heights
  sync <hex|@file> [--genesis]    Submit a raw header
  proof --proof <hex|@file> (--root <hex> | --chain <id> --height <h>)
                                  Resolve a Merkle proof
  xtx process --from <chain> --height <h> --proof <hex|@file>
                                  Submit an inbound cross-chain proof
  xtx create --to <chain> --source-tx <hex> --from-contract <hex>
             --to-contract <hex> --method <name> [--args <hex>]
                                  Record an outbound transaction
  xtx get <hash>                  Show an outbound transaction
  stats [--chain <id>]            Show sync statistics
  peers                           Show relay peers
  bans                            Show banned relay peers

  keys create --name <n> [--members 4] [--scheme schnorr-secp256k1]
                                  Create a committee key file
  keys import --name <n> --mnemonic "..." [--members 4] [--scheme s]
                                  Import a committee from a mnemonic
  keys list                       List committees
  keys show --name <n>            Show committee members and address
  keys genesis --name <n> --chain <id> [--height <h>] [--out <file>]
                                  Build a genesis header for a committee
  keys sign --name <n> --header <hex|@file> [--signers <k>]
                                  Sign a raw header with committee members
`, config.DefaultRPCPort)
}

// ── Chain queries ───────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	chains, err := client.Chains()
	if err != nil {
		fatal("bridge_getChains: %v", err)
	}
	fmt.Printf("Chains:  %d\n", chains.Count)
	for _, c := range chains.Chains {
		fmt.Printf("  %-6d height %-10d (genesis %d, %d epochs)\n",
			c.ChainID, c.CurrentHeight, c.GenesisHeight, c.Epochs)
	}

	var peers rpc.PeerInfoResult
	if err := client.Call("net_getPeerInfo", nil, &peers); err != nil {
		fatal("net_getPeerInfo: %v", err)
	}
	fmt.Printf("Peers:   %d\n", peers.Count)
}

func cmdChains(client *rpcclient.Client) {
	chains, err := client.Chains()
	if err != nil {
		fatal("bridge_getChains: %v", err)
	}
	if chains.Count == 0 {
		fmt.Println("No chains initialized.")
		return
	}
	fmt.Printf("%-8s %-12s %-12s %s\n", "CHAIN", "GENESIS", "HEIGHT", "EPOCHS")
	for _, c := range chains.Chains {
		fmt.Printf("%-8d %-12d %-12d %d\n", c.ChainID, c.GenesisHeight, c.CurrentHeight, c.Epochs)
	}
}

func cmdHeight(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: klingbridge-cli height <chain>")
	}
	res, err := client.CurrentHeight(parseChainID(args[0]))
	if err != nil {
		fatal("bridge_getCurrentHeight: %v", err)
	}
	fmt.Printf("Chain:    %d\n", res.ChainID)
	fmt.Printf("Height:   %d\n", res.Height)
	fmt.Printf("Genesis:  %d\n", res.GenesisHeight)
}

func cmdHeader(client *rpcclient.Client, args []string) {
	if len(args) < 2 {
		fatal("Usage: klingbridge-cli header <chain> <height|hash> [--raw]")
	}
	chainID := parseChainID(args[0])
	fs := flag.NewFlagSet("header", flag.ExitOnError)
	raw := fs.Bool("raw", false, "Print the raw header hex only")
	fs.Parse(args[2:])

	var (
		res json.RawMessage
		err error
	)
	// Try as height first (pure number).
	if height, perr := strconv.ParseUint(args[1], 10, 32); perr == nil {
		res, err = client.HeaderByHeight(chainID, uint32(height))
	} else {
		res, err = client.HeaderByHash(chainID, args[1])
	}
	if err != nil {
		if rpcclient.IsNotFound(err) {
			fatal("header not synced")
		}
		fatal("get header: %v", err)
	}

	var hr struct {
		Header struct {
			Hash           string   `json:"hash"`
			ChainID        uint64   `json:"chain_id"`
			Height         uint32   `json:"height"`
			PrevBlockHash  string   `json:"prev_block_hash"`
			CrossStateRoot string   `json:"cross_state_root"`
			Timestamp      uint32   `json:"timestamp"`
			Bookkeepers    []string `json:"bookkeepers"`
			BlockInfo      *struct {
				Proposer       uint32          `json:"proposer"`
				NewChainConfig json.RawMessage `json:"new_chain_config"`
			} `json:"block_info"`
		} `json:"header"`
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(res, &hr); err != nil {
		fatal("decode header: %v", err)
	}
	if *raw {
		fmt.Println(hr.Raw)
		return
	}

	h := hr.Header
	fmt.Printf("Chain:        %d\n", h.ChainID)
	fmt.Printf("Height:       %d\n", h.Height)
	fmt.Printf("Hash:         %s\n", h.Hash)
	fmt.Printf("Prev:         %s\n", h.PrevBlockHash)
	fmt.Printf("Cross Root:   %s\n", h.CrossStateRoot)
	ts := time.Unix(int64(h.Timestamp), 0).UTC()
	fmt.Printf("Timestamp:    %s\n", ts.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("Signatures:   %d\n", len(h.Bookkeepers))
	if h.BlockInfo != nil && len(h.BlockInfo.NewChainConfig) > 0 {
		fmt.Println("Rotation:     yes")
	}
}

func cmdCommittee(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: klingbridge-cli committee <chain> [--key-height <h>]")
	}
	chainID := parseChainID(args[0])
	fs := flag.NewFlagSet("committee", flag.ExitOnError)
	keyHeight := fs.Int64("key-height", -1, "Key height (default: latest)")
	fs.Parse(args[1:])

	var kh *uint32
	if *keyHeight >= 0 {
		v := uint32(*keyHeight)
		kh = &v
	}
	res, err := client.Committee(chainID, kh)
	if err != nil {
		fatal("bridge_getCommittee: %v", err)
	}
	fmt.Printf("Chain:      %d\n", res.ChainID)
	fmt.Printf("Key Height: %d\n", res.KeyHeight)
	fmt.Printf("Address:    %s\n", res.Address)
	fmt.Printf("Threshold:  %d of %d\n", res.Threshold, len(res.Peers))
	for _, p := range res.Peers {
		fmt.Printf("  [%d] %s\n", p.Index, p.ID)
	}
}

func cmdKeyHeights(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: klingbridge-cli keyheights <chain>")
	}
	heights, err := client.KeyHeights(parseChainID(args[0]))
	if err != nil {
		fatal("bridge_getKeyHeights: %v", err)
	}
	if len(heights) == 0 {
		fmt.Println("Chain not initialized.")
		return
	}
	for _, h := range heights {
		fmt.Println(h)
	}
}

// ── Submissions ─────────────────────────────────────────────────────────

func cmdSync(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: klingbridge-cli sync <hex|@file> [--genesis]")
	}
	raw := readHexArg(args[0])
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	genesis := fs.Bool("genesis", false, "Submit as the chain's genesis header")
	fs.Parse(args[1:])

	var (
		res *rpc.SyncResult
		err error
	)
	if *genesis {
		res, err = client.SyncGenesisHeader(raw)
	} else {
		res, err = client.SyncHeader(raw)
	}
	if err != nil {
		if rpcclient.IsRejected(err) {
			fatal("header rejected: %v", err)
		}
		fatal("sync header: %v", err)
	}

	status := "accepted"
	if res.Existing {
		status = "already synced"
	}
	fmt.Printf("Header %s: chain %d height %d\n", status, res.ChainID, res.Height)
	fmt.Printf("Hash: %s\n", res.Hash)
	if res.Rotation {
		fmt.Println("Committee rotated.")
	}
}

func cmdProof(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("proof", flag.ExitOnError)
	proof := fs.String("proof", "", "Merkle proof (hex or @file)")
	root := fs.String("root", "", "Expected root (hex)")
	chainID := fs.Uint64("chain", 0, "Chain of the header holding the root")
	height := fs.Uint("height", 0, "Height of the header holding the root")
	fs.Parse(args)

	if *proof == "" || (*root == "" && *chainID == 0) {
		fatal("Usage: klingbridge-cli proof --proof <hex|@file> (--root <hex> | --chain <id> --height <h>)")
	}
	value, err := client.ResolveMerkleProof(rpc.MerkleProofParam{
		Proof:   hex.EncodeToString(readHexArg(*proof)),
		Root:    *root,
		ChainID: *chainID,
		Height:  uint32(*height),
	})
	if err != nil {
		fatal("bridge_resolveMerkleProof: %v", err)
	}
	fmt.Printf("Value: %x\n", value)
}

func cmdCrossChain(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: klingbridge-cli xtx <process|create|get> [flags]")
	}
	switch args[0] {
	case "process":
		cmdCrossChainProcess(client, args[1:])
	case "create":
		cmdCrossChainCreate(client, args[1:])
	case "get":
		if len(args) < 2 {
			fatal("Usage: klingbridge-cli xtx get <hash>")
		}
		res, err := client.CrossChainTx(args[1])
		if err != nil {
			fatal("bridge_getCrossChainTx: %v", err)
		}
		printJSON(res)
	default:
		fatal("Unknown xtx command: %s\nUsage: klingbridge-cli xtx <process|create|get> [flags]", args[0])
	}
}

func cmdCrossChainProcess(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("xtx process", flag.ExitOnError)
	from := fs.Uint64("from", 0, "Source chain id")
	height := fs.Uint("height", 0, "Source header height")
	proof := fs.String("proof", "", "Merkle proof (hex or @file)")
	fs.Parse(args)

	if *from == 0 || *proof == "" {
		fatal("Usage: klingbridge-cli xtx process --from <chain> --height <h> --proof <hex|@file>")
	}
	res, err := client.ProcessCrossChainTx(*from, uint32(*height), readHexArg(*proof))
	if err != nil {
		fatal("bridge_processCrossChainTx: %v", err)
	}
	fmt.Printf("Processed: %s\n", res.TxHash)
	printJSON(res.Value)
}

func cmdCrossChainCreate(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("xtx create", flag.ExitOnError)
	to := fs.Uint64("to", 0, "Destination chain id")
	sourceTx := fs.String("source-tx", "", "Source transaction hash (hex)")
	fromContract := fs.String("from-contract", "", "Calling contract (hex)")
	toContract := fs.String("to-contract", "", "Target contract (hex)")
	method := fs.String("method", "", "Target method name")
	callArgs := fs.String("args", "", "Call arguments (hex)")
	fs.Parse(args)

	if *to == 0 || *sourceTx == "" || *toContract == "" || *method == "" {
		fatal("Usage: klingbridge-cli xtx create --to <chain> --source-tx <hex> --from-contract <hex> --to-contract <hex> --method <name> [--args <hex>]")
	}
	res, err := client.CreateCrossChainTx(rpc.CreateCrossChainTxParam{
		SourceTxHash: *sourceTx,
		FromContract: *fromContract,
		ToChainID:    *to,
		ToContract:   *toContract,
		Method:       *method,
		Args:         *callArgs,
	})
	if err != nil {
		fatal("bridge_createCrossChainTx: %v", err)
	}
	fmt.Printf("Created: %s\n", res.Hash)
	printJSON(res.Tx)
}

// ── Stats and network ───────────────────────────────────────────────────

func cmdStats(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	chainID := fs.Int64("chain", -1, "Chain id (default: all)")
	fs.Parse(args)

	var params rpc.StatsParam
	if *chainID >= 0 {
		id := uint64(*chainID)
		params.ChainID = &id
	}
	var res rpc.StatsResult
	if err := client.Call("bridge_getStats", params, &res); err != nil {
		fatal("bridge_getStats: %v", err)
	}

	for _, c := range res.Chains {
		fmt.Printf("Chain %d: %d accepted, %d duplicates, %d rejected, %d rotations\n",
			c.ChainID, c.Accepted, c.Duplicates, c.Rejected, c.Rotations)
		if c.LastError != "" {
			fmt.Printf("  last error: %s\n", c.LastError)
		}
	}
	if len(res.Signers) > 0 {
		fmt.Println("Signers:")
		for _, s := range res.Signers {
			fmt.Printf("  %s  %d headers\n", s.PubKey, s.Signed)
		}
	}
}

func cmdPeers(client *rpcclient.Client) {
	var node rpc.NodeInfoResult
	if err := client.Call("net_getNodeInfo", nil, &node); err != nil {
		fatal("net_getNodeInfo: %v", err)
	}

	fmt.Printf("Node ID: %s\n", node.ID)
	for _, a := range node.Addrs {
		fmt.Printf("  Listen: %s\n", a)
	}

	var peers rpc.PeerInfoResult
	if err := client.Call("net_getPeerInfo", nil, &peers); err != nil {
		fatal("net_getPeerInfo: %v", err)
	}

	fmt.Printf("Peers:   %d\n", peers.Count)
	for _, p := range peers.Peers {
		fmt.Printf("  %s (connected: %s, chains: %v)\n", p.ID, p.ConnectedAt, p.Chains)
	}
}

func cmdBans(client *rpcclient.Client) {
	var bans rpc.BanListResult
	if err := client.Call("net_getBanList", nil, &bans); err != nil {
		fatal("net_getBanList: %v", err)
	}
	if bans.Count == 0 {
		fmt.Println("No banned peers.")
		return
	}
	for _, b := range bans.Bans {
		expires := "never"
		if b.ExpiresAt > 0 {
			expires = time.Unix(b.ExpiresAt, 0).UTC().Format(time.RFC3339)
		}
		fmt.Printf("  %s  %s (expires %s)\n", b.ID, b.Reason, expires)
	}
}

// ── Committee keys ──────────────────────────────────────────────────────

func cmdKeys(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("Usage: klingbridge-cli keys <create|import|list|show|genesis|sign> [flags]")
	}

	switch args[0] {
	case "create":
		cmdKeysCreate(args[1:], ksDir, "")
	case "import":
		fs := flag.NewFlagSet("keys import", flag.ContinueOnError)
		mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
		rest := extractFlag(fs, args[1:], "mnemonic")
		if *mnemonic == "" {
			fatal("Usage: klingbridge-cli keys import --name <n> --mnemonic \"word1 word2 ...\"")
		}
		cmdKeysCreate(rest, ksDir, *mnemonic)
	case "list":
		cmdKeysList(ksDir)
	case "show":
		cmdKeysShow(args[1:], ksDir)
	case "genesis":
		cmdKeysGenesis(args[1:], ksDir)
	case "sign":
		cmdKeysSign(args[1:], ksDir)
	default:
		fatal("Unknown keys command: %s\nUsage: klingbridge-cli keys <create|import|list|show|genesis|sign> [flags]", args[0])
	}
}

// extractFlag parses only the named flag out of args and returns the
// remaining arguments.
func extractFlag(fs *flag.FlagSet, args []string, name string) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--"+name && i+1 < len(args):
			fs.Parse([]string{a, args[i+1]})
			i++
		case strings.HasPrefix(a, "--"+name+"="):
			fs.Parse([]string{a})
		default:
			rest = append(rest, a)
		}
	}
	return rest
}

// cmdKeysCreate creates a committee from a fresh mnemonic, or from
// mnemonic when set.
func cmdKeysCreate(args []string, ksDir, mnemonic string) {
	fs := flag.NewFlagSet("keys create", flag.ExitOnError)
	name := fs.String("name", "", "Committee name")
	members := fs.Int("members", 4, "Number of committee members")
	schemeName := fs.String("scheme", crypto.SchemeSchnorrSecp256k1.String(), "Signature scheme of every member")
	fs.Parse(args)

	if *name == "" || *members < 1 {
		fatal("Usage: klingbridge-cli keys create --name <name> [--members 4] [--scheme schnorr-secp256k1]")
	}
	scheme, err := crypto.ParseScheme(*schemeName)
	if err != nil {
		fatal("%v", err)
	}

	if mnemonic == "" {
		mnemonic, err = keystore.GenerateMnemonic()
		if err != nil {
			fatal("generate mnemonic: %v", err)
		}
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)
	}
	seed, err := keystore.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	// Prompt for password (twice).
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	ks, err := keystore.New(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	schemes := make([]crypto.Scheme, *members)
	for i := range schemes {
		schemes[i] = scheme
	}
	created, err := ks.Create(*name, seed, password, schemes, keystore.DefaultParams())
	if err != nil {
		fatal("create committee: %v", err)
	}
	addr, _ := ks.Address(*name)

	fmt.Printf("\nCommittee created: %s\n", *name)
	fmt.Printf("Address: %s\n", addr)
	for _, m := range created {
		fmt.Printf("  [%d] %s\n", m.Index, m.PubKey)
	}
}

func cmdKeysList(ksDir string) {
	ks, err := keystore.New(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list committees: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No committees found.")
		return
	}
	for _, n := range names {
		members, _ := ks.Members(n)
		fmt.Printf("  %s (%d members)\n", n, len(members))
	}
}

func cmdKeysShow(args []string, ksDir string) {
	fs := flag.NewFlagSet("keys show", flag.ExitOnError)
	name := fs.String("name", "", "Committee name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: klingbridge-cli keys show --name <name>")
	}
	ks, err := keystore.New(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	members, err := ks.Members(*name)
	if err != nil {
		fatal("%v", err)
	}
	addr, _ := ks.Address(*name)
	fmt.Printf("Committee: %s\n", *name)
	fmt.Printf("Address:   %s\n", addr)
	for _, m := range members {
		fmt.Printf("  [%d] %-18s %s\n", m.Index, m.Scheme, m.PubKey)
	}
}

// cmdKeysGenesis builds an unsigned genesis header naming the committee's
// members and appends it to a bridge genesis file.
func cmdKeysGenesis(args []string, ksDir string) {
	fs := flag.NewFlagSet("keys genesis", flag.ExitOnError)
	name := fs.String("name", "", "Committee name")
	chainID := fs.Uint64("chain", 0, "Chain id")
	height := fs.Uint("height", 0, "Genesis height")
	out := fs.String("out", "", "Genesis file to create or extend (default: print header hex)")
	payload := fs.String("payload", "tagged", "Consensus payload format: tagged or epoch")
	epochLength := fs.Uint("epoch-length", 0, "Epoch length for the epoch payload format")
	fs.Parse(args)

	if *name == "" || *chainID == 0 {
		fatal("Usage: klingbridge-cli keys genesis --name <n> --chain <id> [--height <h>] [--out <file>]")
	}
	format, err := header.ParsePayloadFormat(*payload, uint32(*epochLength))
	if err != nil {
		fatal("%v", err)
	}
	ks, err := keystore.New(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	members, err := ks.Members(*name)
	if err != nil {
		fatal("%v", err)
	}

	peers := make([]header.PeerConfig, len(members))
	for i, m := range members {
		raw, err := hex.DecodeString(m.PubKey)
		if err != nil {
			fatal("member %d: %v", m.Index, err)
		}
		pub, err := crypto.ParsePublicKey(raw)
		if err != nil {
			fatal("member %d: %v", m.Index, err)
		}
		peers[i] = header.PeerFromPublicKey(m.Index, pub)
	}

	h := &header.Header{
		ChainID:   *chainID,
		Height:    uint32(*height),
		Timestamp: uint32(time.Now().Unix()),
	}
	info := &header.BlockInfo{NewChainConfig: &header.ChainConfig{
		Version:     1,
		NetworkSize: uint32(len(peers)),
		Peers:       peers,
	}}
	if err := h.SetBlockInfo(format, info); err != nil {
		fatal("encode block info: %v", err)
	}

	if *out == "" {
		fmt.Println(hex.EncodeToString(h.Bytes()))
		return
	}
	g, err := config.LoadGenesis(*out)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fatal("%v", err)
		}
		g = &config.Genesis{}
	}
	g.AddHeader(*name, h)
	if err := g.Validate(format); err != nil {
		fatal("genesis: %v", err)
	}
	if err := g.Save(*out); err != nil {
		fatal("save genesis: %v", err)
	}
	fmt.Printf("Genesis of chain %d written to %s (%s)\n", *chainID, *out, h.Hash())
}

// cmdKeysSign signs a raw header with the first k committee members.
func cmdKeysSign(args []string, ksDir string) {
	fs := flag.NewFlagSet("keys sign", flag.ExitOnError)
	name := fs.String("name", "", "Committee name")
	rawArg := fs.String("header", "", "Raw header (hex or @file)")
	signers := fs.Int("signers", 0, "Number of members to sign with (default: all)")
	payload := fs.String("payload", "tagged", "Consensus payload format: tagged or epoch")
	epochLength := fs.Uint("epoch-length", 0, "Epoch length for the epoch payload format")
	fs.Parse(args)

	if *name == "" || *rawArg == "" {
		fatal("Usage: klingbridge-cli keys sign --name <n> --header <hex|@file> [--signers <k>]")
	}
	format, err := header.ParsePayloadFormat(*payload, uint32(*epochLength))
	if err != nil {
		fatal("%v", err)
	}
	h, err := header.Decode(readHexArg(*rawArg), format)
	if err != nil {
		fatal("decode header: %v", err)
	}

	ks, err := keystore.New(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	committee, err := ks.Signers(*name, password)
	if err != nil {
		fatal("%v", err)
	}
	if *signers > 0 && *signers < len(committee) {
		committee = committee[:*signers]
	}
	for _, s := range committee {
		if err := h.Sign(s); err != nil {
			fatal("%v", err)
		}
	}
	fmt.Fprintf(os.Stderr, "Signed by %d members, hash %s\n", len(committee), h.Hash())
	fmt.Println(hex.EncodeToString(h.Bytes()))
}

// ── Helpers ─────────────────────────────────────────────────────────────

func parseChainID(s string) uint64 {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fatal("invalid chain id %q", s)
	}
	return id
}

// readHexArg decodes a hex argument, or the hex content of a file when
// the argument starts with "@".
func readHexArg(arg string) []byte {
	s := arg
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			fatal("read %s: %v", arg[1:], err)
		}
		s = string(data)
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		fatal("invalid hex: %v", err)
	}
	return b
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode: %v", err)
	}
	fmt.Println(string(out))
}

// ── Password helper ─────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// Package crosschain turns Merkle proofs against synced remote headers
// into verified cross-chain transactions, and records the transactions
// this chain sends out.
package crosschain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/klingbridge/internal/log"
	"github.com/Klingon-tech/klingbridge/internal/storage"
	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crosstx"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"github.com/Klingon-tech/klingbridge/pkg/merkle"
	"github.com/Klingon-tech/klingbridge/pkg/types"
)

var (
	ErrHeaderNotSynced  = errors.New("header not synced")
	ErrWrongDestination = errors.New("cross-chain tx is for another chain")
	ErrSourceMismatch   = errors.New("cross-chain tx source chain does not match header")
	ErrAlreadyProcessed = errors.New("cross-chain tx already processed")
)

// Key prefixes, relative to the manager's namespace.
var (
	prefixProcessed = []byte("p/") // p/<fromchain(8)>/<polytxhash> -> height(4)
	prefixNextID    = []byte("n/") // n/<tochain(8)> -> next tx id(8)
	prefixOutbound  = []byte("o/") // o/<txhash(32)> -> encoded tx
)

// HeaderSource provides synced remote headers.
type HeaderSource interface {
	HeaderByHeight(chainID uint64, height uint32) (*header.Header, error)
}

// Manager verifies inbound and records outbound cross-chain transactions.
type Manager struct {
	db         storage.DB
	headers    HeaderSource
	ownChainID uint64

	mu sync.Mutex // serializes replay checks and id assignment
}

// New creates a manager for the chain with id ownChainID.
func New(db storage.DB, headers HeaderSource, ownChainID uint64) *Manager {
	return &Manager{db: db, headers: headers, ownChainID: ownChainID}
}

// OwnChainID returns the id of the chain this manager serves.
func (m *Manager) OwnChainID() uint64 { return m.ownChainID }

func processedKey(fromChainID uint64, polyTxHash []byte) []byte {
	k := make([]byte, 0, len(prefixProcessed)+9+len(polyTxHash))
	k = append(k, prefixProcessed...)
	k = binary.BigEndian.AppendUint64(k, fromChainID)
	k = append(k, '/')
	return append(k, polyTxHash...)
}

func nextIDKey(toChainID uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixNextID...), toChainID)
}

func outboundKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixOutbound...), hash[:]...)
}

// ProcessInbound resolves proof under the cross-state root of the synced
// header (fromChainID, height) and accepts the transaction it commits to
// exactly once.
func (m *Manager) ProcessInbound(ctx context.Context, fromChainID uint64, height uint32, proof []byte) (*crosstx.ToMerkleValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := m.headers.HeaderByHeight(fromChainID, height)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("chain %d height %d: %w", fromChainID, height, ErrHeaderNotSynced)
	}
	if err != nil {
		return nil, err
	}

	leaf, err := merkle.Resolve(proof, h.CrossStateRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve proof: %w", err)
	}
	value, err := crosstx.DecodeToMerkleValue(leaf)
	if err != nil {
		return nil, fmt.Errorf("decode merkle value: %w", err)
	}
	if value.FromChainID != fromChainID {
		return nil, fmt.Errorf("%w: value from %d, header from %d", ErrSourceMismatch, value.FromChainID, fromChainID)
	}
	if value.Tx.ToChainID != m.ownChainID {
		return nil, fmt.Errorf("%w: to %d, this chain is %d", ErrWrongDestination, value.Tx.ToChainID, m.ownChainID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := processedKey(value.FromChainID, value.PolyTxHash)
	done, err := m.db.Has(key)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, fmt.Errorf("%w: %x from chain %d", ErrAlreadyProcessed, value.PolyTxHash, value.FromChainID)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], height)
	if err := m.db.Put(key, buf[:]); err != nil {
		return nil, fmt.Errorf("mark processed: %w", err)
	}

	logger := klog.WithChainID(fromChainID)
	logger.Info().
		Str("component", "crosschain").
		Uint32("height", height).
		Hex("poly_tx", value.PolyTxHash).
		Str("method", value.Tx.Method).
		Msg("Inbound cross-chain tx accepted")
	return value, nil
}

// IsProcessed reports whether the transaction polyTxHash from fromChainID
// was already accepted.
func (m *Manager) IsProcessed(fromChainID uint64, polyTxHash []byte) (bool, error) {
	return m.db.Has(processedKey(fromChainID, polyTxHash))
}

// OutboundRequest describes a transaction this chain sends to ToChainID.
type OutboundRequest struct {
	SourceTxHash types.Hash
	FromContract []byte
	ToChainID    uint64
	ToContract   []byte
	Method       string
	Args         []byte
}

// CreateOutbound assigns the next transaction id for the destination
// chain, stores the transaction by hash and returns it.
func (m *Manager) CreateOutbound(req OutboundRequest) (*crosstx.Transaction, error) {
	if req.Method == "" {
		return nil, fmt.Errorf("%w: empty method", codec.ErrInvalidValue)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var next uint64
	data, err := m.db.Get(nextIDKey(req.ToChainID))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	case len(data) != 8:
		return nil, fmt.Errorf("corrupt tx id counter for chain %d: %d bytes", req.ToChainID, len(data))
	default:
		next = binary.BigEndian.Uint64(data)
	}

	tx := &crosstx.Transaction{
		SourceTxHash:   req.SourceTxHash,
		CrossChainTxID: binary.LittleEndian.AppendUint64(nil, next),
		FromContract:   req.FromContract,
		ToChainID:      req.ToChainID,
		ToContract:     req.ToContract,
		Method:         req.Method,
		Args:           req.Args,
	}
	hash := tx.Hash()

	b := storage.NewBatch(m.db)
	defer b.Discard()
	if err := b.Put(outboundKey(hash), codec.Encode(tx)); err != nil {
		return nil, err
	}
	if err := b.Put(nextIDKey(req.ToChainID), binary.BigEndian.AppendUint64(nil, next+1)); err != nil {
		return nil, err
	}
	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("store outbound tx: %w", err)
	}

	logger := klog.WithChainID(req.ToChainID)
	logger.Info().
		Str("component", "crosschain").
		Uint64("tx_id", next).
		Str("hash", hash.String()).
		Str("method", req.Method).
		Msg("Outbound cross-chain tx created")
	return tx, nil
}

// Outbound returns the stored outbound transaction with hash.
func (m *Manager) Outbound(hash types.Hash) (*crosstx.Transaction, error) {
	data, err := m.db.Get(outboundKey(hash))
	if err != nil {
		return nil, fmt.Errorf("outbound tx %s: %w", hash, err)
	}
	tx := new(crosstx.Transaction)
	if err := codec.Decode(data, tx); err != nil {
		return nil, fmt.Errorf("outbound tx %s: %w", hash, err)
	}
	return tx, nil
}

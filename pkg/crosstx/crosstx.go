// Package crosstx defines the cross-chain transaction records committed
// as Merkle leaves under a remote header's cross-state root.
package crosstx

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/types"
	"github.com/holiman/uint256"
)

// Transaction is a call to be executed on ToChainID.
type Transaction struct {
	SourceTxHash   types.Hash
	CrossChainTxID []byte
	FromContract   []byte
	ToChainID      uint64
	ToContract     []byte
	Method         string
	Args           []byte
}

func (tx *Transaction) encodePartial(s *codec.Sink) {
	s.WriteVarBytes(tx.CrossChainTxID)
	s.WriteVarBytes(tx.FromContract)
	s.WriteU64(tx.ToChainID)
	s.WriteVarBytes(tx.ToContract)
	s.WriteVarBytes([]byte(tx.Method))
	s.WriteVarBytes(tx.Args)
}

// Encode writes SourceTxHash as var-bytes followed by the partial body.
func (tx *Transaction) Encode(s *codec.Sink) {
	s.WriteVarBytes(tx.SourceTxHash[:])
	tx.encodePartial(s)
}

func (tx *Transaction) Decode(s *codec.Source) error {
	raw, err := s.ReadVarBytes()
	if err != nil {
		return fmt.Errorf("tx source hash: %w", err)
	}
	if len(raw) != types.HashSize {
		return fmt.Errorf("%w: tx source hash is %d bytes", codec.ErrInvalidValue, len(raw))
	}
	copy(tx.SourceTxHash[:], raw)
	if tx.CrossChainTxID, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("tx cross chain id: %w", err)
	}
	if tx.FromContract, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("tx from contract: %w", err)
	}
	if tx.ToChainID, err = s.ReadU64(); err != nil {
		return fmt.Errorf("tx to chain id: %w", err)
	}
	if tx.ToContract, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("tx to contract: %w", err)
	}
	method, err := s.ReadVarBytes()
	if err != nil {
		return fmt.Errorf("tx method: %w", err)
	}
	tx.Method = string(method)
	if tx.Args, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("tx args: %w", err)
	}
	return nil
}

// PartialBytes is the encoding without SourceTxHash.
func (tx *Transaction) PartialBytes() []byte {
	s := codec.NewSink(128)
	tx.encodePartial(s)
	return s.Bytes()
}

// Hash returns sha256 of PartialBytes. Outbound transactions use it as
// their SourceTxHash.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Sha256(tx.PartialBytes())
}

// DecodeArgs parses Args as TransactionArgs.
func (tx *Transaction) DecodeArgs() (*TransactionArgs, error) {
	args := new(TransactionArgs)
	if err := codec.Decode(tx.Args, args); err != nil {
		return nil, fmt.Errorf("decode tx args: %w", err)
	}
	return args, nil
}

type transactionJSON struct {
	SourceTxHash   types.Hash `json:"source_tx_hash"`
	CrossChainTxID string     `json:"cross_chain_tx_id"`
	FromContract   string     `json:"from_contract"`
	ToChainID      uint64     `json:"to_chain_id"`
	ToContract     string     `json:"to_contract"`
	Method         string     `json:"method"`
	Args           string     `json:"args"`
}

// MarshalJSON renders byte fields as hex.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		SourceTxHash:   tx.SourceTxHash,
		CrossChainTxID: hex.EncodeToString(tx.CrossChainTxID),
		FromContract:   hex.EncodeToString(tx.FromContract),
		ToChainID:      tx.ToChainID,
		ToContract:     hex.EncodeToString(tx.ToContract),
		Method:         tx.Method,
		Args:           hex.EncodeToString(tx.Args),
	})
}

// ToMerkleValue is the leaf committed under a remote header's cross-state
// root for each outgoing cross-chain transaction.
type ToMerkleValue struct {
	PolyTxHash  []byte
	FromChainID uint64
	Tx          Transaction
}

// MarshalJSON renders PolyTxHash as hex.
func (v *ToMerkleValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PolyTxHash  string       `json:"poly_tx_hash"`
		FromChainID uint64       `json:"from_chain_id"`
		Tx          *Transaction `json:"tx"`
	}{hex.EncodeToString(v.PolyTxHash), v.FromChainID, &v.Tx})
}

func (v *ToMerkleValue) Encode(s *codec.Sink) {
	s.WriteVarBytes(v.PolyTxHash)
	s.WriteU64(v.FromChainID)
	v.Tx.Encode(s)
}

func (v *ToMerkleValue) Decode(s *codec.Source) error {
	var err error
	if v.PolyTxHash, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("merkle value tx hash: %w", err)
	}
	if v.FromChainID, err = s.ReadU64(); err != nil {
		return fmt.Errorf("merkle value from chain id: %w", err)
	}
	return v.Tx.Decode(s)
}

// DecodeToMerkleValue decodes a resolved Merkle leaf.
func DecodeToMerkleValue(leaf []byte) (*ToMerkleValue, error) {
	v := new(ToMerkleValue)
	if err := codec.Decode(leaf, v); err != nil {
		return nil, err
	}
	return v, nil
}

// TransactionArgs are the arguments of a token unlock call.
type TransactionArgs struct {
	AssetHash   []byte
	DestAddress []byte
	Amount      *uint256.Int
}

// Encode writes Amount as 32 little-endian bytes.
func (a *TransactionArgs) Encode(s *codec.Sink) {
	s.WriteVarBytes(a.AssetHash)
	s.WriteVarBytes(a.DestAddress)
	amount := a.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	be := amount.Bytes32()
	var le [32]byte
	for i := range be {
		le[31-i] = be[i]
	}
	s.WriteBytes(le[:])
}

func (a *TransactionArgs) Decode(s *codec.Source) error {
	var err error
	if a.AssetHash, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("args asset hash: %w", err)
	}
	if a.DestAddress, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("args dest address: %w", err)
	}
	le, err := s.ReadBytes(32)
	if err != nil {
		return fmt.Errorf("args amount: %w", err)
	}
	var be [32]byte
	for i := range le {
		be[31-i] = le[i]
	}
	a.Amount = new(uint256.Int).SetBytes32(be[:])
	return nil
}

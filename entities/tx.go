package entities

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	HashSize       = 32
	CommitmentSize = 33
	PubKeySize     = 33
	SignatureSize  = 64
)

// Hash is a 32-byte opaque identifier. Equality and ordering are by byte
// content.
type Hash [HashSize]byte

// Commitment is a compressed elliptic curve point (33 bytes).
type Commitment [CommitmentSize]byte

// RangeProof is an opaque proof that a committed value lies in range.
type RangeProof []byte

// PubKey is a 33-byte compressed secp256k1 public key.
type PubKey [PubKeySize]byte

// Signature is a 64-byte Schnorr signature.
type Signature [SignatureSize]byte

type Witness []byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashFromHex parses a 64-character hex string, with an optional 0x prefix.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decoding hash hex: %v", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) MarshalJSON() ([]byte, error)  { return hexMarshal(h[:]) }
func (h *Hash) UnmarshalJSON(b []byte) error { return hexUnmarshal(b, h[:]) }

func (c Commitment) MarshalJSON() ([]byte, error)  { return hexMarshal(c[:]) }
func (c *Commitment) UnmarshalJSON(b []byte) error { return hexUnmarshal(b, c[:]) }

func (p PubKey) MarshalJSON() ([]byte, error)  { return hexMarshal(p[:]) }
func (p *PubKey) UnmarshalJSON(b []byte) error { return hexUnmarshal(b, p[:]) }

func (s Signature) MarshalJSON() ([]byte, error)  { return hexMarshal(s[:]) }
func (s *Signature) UnmarshalJSON(b []byte) error { return hexUnmarshal(b, s[:]) }

func (w Witness) MarshalJSON() ([]byte, error) { return hexMarshal(w) }
func (w *Witness) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*w = raw
	return nil
}

func hexMarshal(b []byte) ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

func hexUnmarshal(data, dst []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

// OutPoint identifies a single output of a previous transaction.
type OutPoint struct {
	TxID  Hash   `json:"txId"`
	Index uint64 `json:"index"`
}

// Output is a spendable value locked by a witness program commitment.
type Output struct {
	WitnessProgramCommitment Hash   `json:"witnessProgramCommitment"`
	Value                    uint64 `json:"value"`
}

// Input references an output being spent together with its data.
type Input struct {
	Prevout     OutPoint `json:"prevout"`
	PrevoutData Output   `json:"prevoutData"`
}

// Hash returns the digest of the serialized input, used as its UHS id.
func (in Input) Hash() Hash {
	var buf bytes.Buffer
	buf.Write(in.Prevout.TxID[:])
	binary.Write(&buf, binary.LittleEndian, in.Prevout.Index)
	buf.Write(in.PrevoutData.WitnessProgramCommitment[:])
	binary.Write(&buf, binary.LittleEndian, in.PrevoutData.Value)
	return sha256.Sum256(buf.Bytes())
}

// FullTx is a complete transaction as submitted by clients. Witnesses are
// positionally aligned with inputs.
type FullTx struct {
	Inputs    []Input   `json:"inputs"`
	Outputs   []Output  `json:"outputs"`
	Witnesses []Witness `json:"witnesses"`
}

// TxID calculates the unique identifier of a full transaction: the digest of
// its input hashes concatenated with its serialized outputs.
func TxID(tx FullTx) Hash {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		h := in.Hash()
		buf.Write(h[:])
	}
	binary.Write(&buf, binary.LittleEndian, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf.Write(out.WitnessProgramCommitment[:])
		binary.Write(&buf, binary.LittleEndian, out.Value)
	}
	return sha256.Sum256(buf.Bytes())
}

// UhsOutput is the minimum data needed to update the UHS for one element.
type UhsOutput struct {
	ID    Hash   `json:"id"`
	Data  Hash   `json:"data"`
	Value uint64 `json:"value"`
}

// SentinelAttestation is a sentinel's signature over a compact transaction
// hash, paired with its public key.
type SentinelAttestation struct {
	PubKey    PubKey    `json:"pubKey"`
	Signature Signature `json:"signature"`
}

// CompactTx is the condensed transaction form forwarded to the coordinator.
// Attestations are keyed by sentinel public key; a later attestation from the
// same key overwrites the earlier one.
type CompactTx struct {
	ID           Hash
	Inputs       []UhsOutput
	Outputs      []UhsOutput
	Attestations map[PubKey]Signature
}

// NewCompactTx condenses a full transaction. Spent inputs keep their UHS ids;
// new outputs derive theirs from the input form they will take when spent.
func NewCompactTx(tx FullTx) CompactTx {
	id := TxID(tx)
	ctx := CompactTx{
		ID:           id,
		Attestations: make(map[PubKey]Signature),
	}
	for _, in := range tx.Inputs {
		ctx.Inputs = append(ctx.Inputs, UhsOutput{
			ID:    in.Hash(),
			Data:  in.PrevoutData.WitnessProgramCommitment,
			Value: in.PrevoutData.Value,
		})
	}
	for i, out := range tx.Outputs {
		spendForm := Input{
			Prevout:     OutPoint{TxID: id, Index: uint64(i)},
			PrevoutData: out,
		}
		ctx.Outputs = append(ctx.Outputs, UhsOutput{
			ID:    spendForm.Hash(),
			Data:  out.WitnessProgramCommitment,
			Value: out.Value,
		})
	}
	return ctx
}

// Equal compares transaction ids only.
func (c CompactTx) Equal(other CompactTx) bool {
	return c.ID == other.ID
}

// Hash returns the digest of the compact transaction with the attestation map
// empty. This is the message sentinels sign.
func (c CompactTx) Hash() Hash {
	var buf bytes.Buffer
	buf.Write(c.ID[:])
	binary.Write(&buf, binary.LittleEndian, uint64(len(c.Inputs)))
	for _, in := range c.Inputs {
		buf.Write(in.ID[:])
		buf.Write(in.Data[:])
		binary.Write(&buf, binary.LittleEndian, in.Value)
	}
	binary.Write(&buf, binary.LittleEndian, uint64(len(c.Outputs)))
	for _, out := range c.Outputs {
		buf.Write(out.ID[:])
		buf.Write(out.Data[:])
		binary.Write(&buf, binary.LittleEndian, out.Value)
	}
	return sha256.Sum256(buf.Bytes())
}

type compactTxJSON struct {
	ID           Hash                  `json:"id"`
	Inputs       []UhsOutput           `json:"inputs"`
	Outputs      []UhsOutput           `json:"outputs"`
	Attestations []SentinelAttestation `json:"attestations"`
}

func (c CompactTx) MarshalJSON() ([]byte, error) {
	atts := make([]SentinelAttestation, 0, len(c.Attestations))
	for pk, sig := range c.Attestations {
		atts = append(atts, SentinelAttestation{PubKey: pk, Signature: sig})
	}
	sort.Slice(atts, func(i, j int) bool {
		return bytes.Compare(atts[i].PubKey[:], atts[j].PubKey[:]) < 0
	})
	return json.Marshal(compactTxJSON{
		ID:           c.ID,
		Inputs:       c.Inputs,
		Outputs:      c.Outputs,
		Attestations: atts,
	})
}

func (c *CompactTx) UnmarshalJSON(b []byte) error {
	var wire compactTxJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	c.ID = wire.ID
	c.Inputs = wire.Inputs
	c.Outputs = wire.Outputs
	c.Attestations = make(map[PubKey]Signature, len(wire.Attestations))
	for _, att := range wire.Attestations {
		c.Attestations[att.PubKey] = att.Signature
	}
	return nil
}

// CompactOutput is the audited output form: a Pedersen commitment to the
// value, a range proof over the commitment and a provenance hash binding it
// to its origin.
type CompactOutput struct {
	ValueCommitment Commitment `json:"valueCommitment"`
	Range           RangeProof `json:"range"`
	Provenance      Hash       `json:"provenance"`
}

// CalculateUhsID derives the UHS id binding a compact output to its map key.
func CalculateUhsID(out CompactOutput) Hash {
	var buf bytes.Buffer
	buf.Write(out.ValueCommitment[:])
	buf.Write(out.Provenance[:])
	return sha256.Sum256(buf.Bytes())
}

// UhsElement tracks the audit lifetime of a compact output. A set deletion
// epoch is strictly greater than the creation epoch.
type UhsElement struct {
	Out           CompactOutput
	CreationEpoch uint64
	DeletionEpoch *uint64
}

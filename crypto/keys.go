// Package crypto wraps the secp256k1 primitives the sentinel and the audit
// engine rely on: Schnorr attestation signatures, Pedersen value commitments
// and range proof handling.
package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/openuhs/go-sentinel/entities"
)

// ParsePrivateKey decodes a 32-byte hex-encoded secp256k1 private key.
func ParsePrivateKey(hexKey string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding private key hex: %v", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// PubKeyOf returns the compressed public key for a private key.
func PubKeyOf(priv *btcec.PrivateKey) entities.PubKey {
	var pk entities.PubKey
	copy(pk[:], priv.PubKey().SerializeCompressed())
	return pk
}

// SignCompact signs the attestation-free hash of a compact transaction and
// returns the resulting sentinel attestation.
func SignCompact(priv *btcec.PrivateKey, tx entities.CompactTx) (entities.SentinelAttestation, error) {
	msg := tx.Hash()
	sig, err := schnorr.Sign(priv, msg[:])
	if err != nil {
		return entities.SentinelAttestation{}, fmt.Errorf("signing compact tx: %v", err)
	}
	att := entities.SentinelAttestation{PubKey: PubKeyOf(priv)}
	copy(att.Signature[:], sig.Serialize())
	return att, nil
}

// VerifyAttestation checks an attestation signature against the
// attestation-free hash of a compact transaction.
func VerifyAttestation(tx entities.CompactTx, att entities.SentinelAttestation) bool {
	pub, err := btcec.ParsePubKey(att.PubKey[:])
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(att.Signature[:])
	if err != nil {
		return false
	}
	msg := tx.Hash()
	return sig.Verify(msg[:], pub)
}

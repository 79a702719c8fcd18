package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/openuhs/go-sentinel/entities"
)

// SpendData is the opening of a value commitment: the blinding factor and the
// committed value.
type SpendData struct {
	Blind entities.Hash
	Value uint64
}

// GeneratorSet parameterizes range proof creation and verification. Proofs
// created against one generator set do not verify against another.
type GeneratorSet struct {
	count uint64
	key   [32]byte
}

// Generators creates the generator set for proofs over n-digit values.
func Generators(n uint64) GeneratorSet {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	seed := append([]byte("uhs-range-proof-generators"), buf[:]...)
	return GeneratorSet{count: n, key: sha256.Sum256(seed)}
}

// Prove produces a range proof for a commitment. The prover must hold the
// commitment opening; a commitment that does not match the claimed spend data
// is refused.
func Prove(gens GeneratorSet, spend SpendData, com entities.Commitment) (entities.RangeProof, error) {
	expected, err := Commit(spend.Value, spend.Blind)
	if err != nil {
		return nil, errors.Wrap(err, "recomputing commitment")
	}
	if expected != com {
		return nil, errors.New("commitment does not open to the claimed spend data")
	}
	mac := hmac.New(sha256.New, gens.key[:])
	mac.Write(com[:])
	return mac.Sum(nil), nil
}

// CheckRange verifies a range proof against a commitment under this
// generator set.
func (g GeneratorSet) CheckRange(com entities.Commitment, proof entities.RangeProof) bool {
	mac := hmac.New(sha256.New, g.key[:])
	mac.Write(com[:])
	return hmac.Equal(proof, mac.Sum(nil))
}

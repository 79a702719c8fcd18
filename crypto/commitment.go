package crypto

import (
	"crypto/sha256"
	"encoding/binary"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"

	"github.com/openuhs/go-sentinel/entities"
)

// generatorH is the value generator for Pedersen commitments, derived from a
// fixed tag by hashing to a curve point. Nothing-up-my-sleeve: nobody knows
// its discrete log with respect to G.
var generatorH = deriveGeneratorH()

func deriveGeneratorH() *secp256k1.PublicKey {
	seed := []byte("uhs-pedersen-value-generator")
	for i := uint64(0); ; i++ {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], i)
		candidate := sha256.Sum256(append(seed, buf[:]...))
		compressed := make([]byte, 0, entities.CommitmentSize)
		compressed = append(compressed, 0x02)
		compressed = append(compressed, candidate[:]...)
		if pub, err := secp256k1.ParsePubKey(compressed); err == nil {
			return pub
		}
	}
}

// Commit computes the Pedersen commitment blind*G + value*H serialized to 33
// bytes. A zero blind with a zero value has no curve representation and is
// rejected.
func Commit(value uint64, blind entities.Hash) (entities.Commitment, error) {
	var com entities.Commitment
	if value == 0 && blind == (entities.Hash{}) {
		return com, errors.New("cannot commit to zero value with zero blind")
	}

	var blindScalar secp256k1.ModNScalar
	blindScalar.SetByteSlice(blind[:])
	var valueScalar secp256k1.ModNScalar
	var valueBytes [32]byte
	binary.BigEndian.PutUint64(valueBytes[24:], value)
	valueScalar.SetBytes(&valueBytes)

	var blindPoint, valuePoint, sum secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&blindScalar, &blindPoint)
	var hPoint secp256k1.JacobianPoint
	generatorH.AsJacobian(&hPoint)
	secp256k1.ScalarMultNonConst(&valueScalar, &hPoint, &valuePoint)
	secp256k1.AddNonConst(&blindPoint, &valuePoint, &sum)

	if (sum.X == secp256k1.FieldVal{}) && (sum.Y == secp256k1.FieldVal{}) {
		return com, errors.New("commitment is the point at infinity")
	}
	sum.ToAffine()
	pub := secp256k1.NewPublicKey(&sum.X, &sum.Y)
	copy(com[:], pub.SerializeCompressed())
	return com, nil
}

// SumCommitments adds commitments as elliptic curve points. Point addition is
// commutative, so the result does not depend on ordering.
func SumCommitments(comms ...entities.Commitment) (entities.Commitment, error) {
	var result entities.Commitment
	if len(comms) == 0 {
		return result, errors.New("no commitments to sum")
	}

	var acc secp256k1.JacobianPoint
	for i, com := range comms {
		pub, err := secp256k1.ParsePubKey(com[:])
		if err != nil {
			return result, errors.Wrapf(err, "parsing commitment %d", i)
		}
		var point secp256k1.JacobianPoint
		pub.AsJacobian(&point)
		if i == 0 {
			acc = point
			continue
		}
		var sum secp256k1.JacobianPoint
		secp256k1.AddNonConst(&acc, &point, &sum)
		acc = sum
	}

	if (acc.X == secp256k1.FieldVal{}) && (acc.Y == secp256k1.FieldVal{}) {
		return result, errors.New("commitment sum is the point at infinity")
	}
	acc.ToAffine()
	pub := secp256k1.NewPublicKey(&acc.X, &acc.Y)
	copy(result[:], pub.SerializeCompressed())
	return result, nil
}

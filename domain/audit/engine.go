// Package audit implements the UHS conservation check: a snapshot-consistent
// homomorphic sum of value commitments across the live, locked and spent
// sets.
package audit

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/crypto"
	"github.com/openuhs/go-sentinel/entities"
)

// ErrAuditFailed marks an element that violates the audit invariants: its
// UHS id does not bind its output, or its range proof does not verify.
var ErrAuditFailed = errors.New("audit invariant violated")

// Engine sums value commitments over consistent snapshots of the UHS maps.
type Engine struct {
	gens   crypto.GeneratorSet
	logger *zap.SugaredLogger
}

func NewEngine(gens crypto.GeneratorSet, logger *zap.SugaredLogger) *Engine {
	return &Engine{gens: gens, logger: logger}
}

// Audit returns the sum of value commitments over every element of the
// three maps alive at the given epoch: created at or before it and not
// deleted by it. The maps are snapshotted atomically up front; concurrent
// mutation during the audit cannot tear the result.
//
// Any element whose UHS id does not match its key, or whose range proof
// fails, aborts the audit with ErrAuditFailed.
func (e *Engine) Audit(uhs, locked, spent *SnapshotMap, epoch uint64) (entities.Commitment, error) {
	uhsSnap := uhs.Snapshot()
	lockedSnap := locked.Snapshot()
	spentSnap := spent.Snapshot()
	defer uhsSnap.Release()
	defer lockedSnap.Release()
	defer spentSnap.Release()

	var comms []entities.Commitment
	for _, snap := range []*Snapshot{uhsSnap, lockedSnap, spentSnap} {
		if err := e.summarize(snap, epoch, &comms); err != nil {
			return entities.Commitment{}, err
		}
	}

	if len(comms) == 0 {
		return entities.Commitment{}, errors.New("no elements alive at epoch")
	}
	sum, err := crypto.SumCommitments(comms...)
	if err != nil {
		return entities.Commitment{}, errors.Wrap(err, "summing commitments")
	}
	return sum, nil
}

func (e *Engine) summarize(snap *Snapshot, epoch uint64, comms *[]entities.Commitment) error {
	var failure error
	snap.Ascend(func(id entities.Hash, elem entities.UhsElement) bool {
		if elem.CreationEpoch > epoch {
			return true
		}
		if elem.DeletionEpoch != nil && *elem.DeletionEpoch <= epoch {
			return true
		}

		if entities.CalculateUhsID(elem.Out) != id {
			e.logger.Errorw("UHS id does not bind its output", "uhsId", id)
			failure = errors.Wrap(ErrAuditFailed, "uhs id mismatch")
			return false
		}
		if !e.gens.CheckRange(elem.Out.ValueCommitment, elem.Out.Range) {
			e.logger.Errorw("Range proof verification failed", "uhsId", id)
			failure = errors.Wrap(ErrAuditFailed, "range proof invalid")
			return false
		}
		*comms = append(*comms, elem.Out.ValueCommitment)
		return true
	})
	return failure
}

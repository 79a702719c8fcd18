// Package archive implements the transaction history archive: a durable
// journal of every transaction body a sentinel observes plus the timeline of
// its lifecycle states.
package archive

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/entities"
	"github.com/openuhs/go-sentinel/infrastructure/store"
)

// InvalidSentinelID disables archiving when used as the archiver's sentinel
// id.
const InvalidSentinelID uint32 = 99999

// EventPublisher receives a notification for every archived status
// transition. Publishing is best-effort.
type EventPublisher interface {
	PublishStatusEvent(txID entities.Hash, state entities.TxState, timestampMs uint64)
}

// Archiver journals transaction bodies and status records through a storage
// backend. Every operation is best-effort: backend failures are logged and
// reported as false, never raised, so archival can sit on the transaction hot
// path without affecting it.
type Archiver struct {
	sentinelID uint32
	backend    store.Backend
	events     EventPublisher
	logger     *zap.SugaredLogger
	disabled   bool

	now func() uint64
}

// NewArchiver creates an archiver over the given backend. A nil backend or
// the invalid sentinel id turns every operation into a no-op returning
// false/0. The event publisher is optional.
func NewArchiver(sentinelID uint32, backend store.Backend, events EventPublisher, logger *zap.SugaredLogger) *Archiver {
	disabled := backend == nil || sentinelID == InvalidSentinelID
	if disabled {
		logger.Infow("Transaction history archiving disabled", "sentinelId", sentinelID)
	}
	return &Archiver{
		sentinelID: sentinelID,
		backend:    backend,
		events:     events,
		logger:     logger,
		disabled:   disabled,
		now:        func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
}

// BodyKey is the archive key of a transaction body: the hex ASCII of the
// transaction id.
func BodyKey(txID entities.Hash) string {
	return txID.String()
}

// StatusKey is the archive key of a status record: the body key, '-', and
// the single decimal digit of the state ordinal.
func StatusKey(txID entities.Hash, state entities.TxState) string {
	return fmt.Sprintf("%s-%d", BodyKey(txID), int(state))
}

// AddTransaction writes the transaction body under its id with a fresh
// timestamp.
func (a *Archiver) AddTransaction(tx entities.FullTx) bool {
	if a.disabled {
		return false
	}
	txID := entities.TxID(tx)
	body := SerializeTx(tx, a.now())
	if err := a.backend.Put(BodyKey(txID), body); err != nil {
		a.logger.Errorw("Failed to archive transaction body", "txId", txID, "error", err)
		return false
	}
	a.logger.Debugw("Archived transaction body", "txId", txID)
	return true
}

// SetStatus journals a status transition. Writing the same state twice
// overwrites the earlier timestamp.
func (a *Archiver) SetStatus(txID entities.Hash, state entities.TxState) bool {
	if a.disabled {
		return false
	}
	ms := a.now()
	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], ms)
	if err := a.backend.Put(StatusKey(txID, state), value[:]); err != nil {
		a.logger.Errorw("Failed to archive status", "txId", txID, "state", state, "error", err)
		return false
	}
	a.logger.Debugw("Archived status", "txId", txID, "state", state)
	if a.events != nil {
		a.events.PublishStatusEvent(txID, state, ms)
	}
	return true
}

// Get returns the transaction body together with its highest-priority
// archived status and that status' timestamp. With no status records the
// state is initial and the timestamp is the body timestamp.
func (a *Archiver) Get(txID entities.Hash) (entities.TxState, entities.FullTx, uint64, bool) {
	return a.GetByKey(BodyKey(txID))
}

// GetByKey is Get addressed by the hex body key.
func (a *Archiver) GetByKey(bodyKey string) (entities.TxState, entities.FullTx, uint64, bool) {
	var tx entities.FullTx
	if a.disabled {
		return entities.StateInitial, tx, 0, false
	}

	body, err := a.backend.Get(bodyKey)
	if err != nil {
		if err != entities.ErrStoreEntityNotFound {
			a.logger.Errorw("Failed to read transaction body", "key", bodyKey, "error", err)
		}
		return entities.StateInitial, tx, 0, false
	}
	tx, timestamp, err := DeserializeTx(body)
	if err != nil {
		a.logger.Errorw("Failed to decode transaction body", "key", bodyKey, "error", err)
		return entities.StateInitial, tx, 0, false
	}

	state := entities.StateInitial
	for _, candidate := range entities.StatePriority {
		value, err := a.backend.Get(fmt.Sprintf("%s-%d", bodyKey, int(candidate)))
		if err == entities.ErrStoreEntityNotFound {
			continue
		}
		if err != nil {
			a.logger.Errorw("Failed to read status record", "key", bodyKey, "state", candidate, "error", err)
			continue
		}
		if len(value) == 8 {
			state = candidate
			timestamp = binary.LittleEndian.Uint64(value)
		}
		break
	}
	return state, tx, timestamp, true
}

// Delete removes the body record and every status record of a transaction,
// returning the number of deleted rows.
func (a *Archiver) Delete(txID entities.Hash) int {
	return a.DeleteByKey(BodyKey(txID))
}

// DeleteByKey is Delete addressed by the hex body key.
func (a *Archiver) DeleteByKey(bodyKey string) int {
	if a.disabled {
		return 0
	}
	count, err := a.backend.DeletePrefix(bodyKey)
	if err != nil {
		a.logger.Errorw("Failed to delete transaction records", "key", bodyKey, "error", err)
	}
	return count
}

// Enabled reports whether the archiver writes anything at all.
func (a *Archiver) Enabled() bool {
	return !a.disabled
}

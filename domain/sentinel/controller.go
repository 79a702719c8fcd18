// Package sentinel implements the validating front-end of the transaction
// processor: it checks transactions, gathers a threshold of peer
// attestations over the compact form and submits the result to the
// coordinator.
package sentinel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/crypto"
	"github.com/openuhs/go-sentinel/domain/archive"
	"github.com/openuhs/go-sentinel/entities"
)

// CoordinatorClient submits compact transactions. The synchronous return is
// queue admission only; false means retry later. The callback fires exactly
// once per admitted request.
type CoordinatorClient interface {
	Execute(tx entities.CompactTx, cb func(result *bool)) bool
}

// PeerClient solicits an attestation from one other sentinel. Admission
// semantics match CoordinatorClient.
type PeerClient interface {
	Validate(tx entities.FullTx, cb func(att *entities.SentinelAttestation)) bool
}

// ExecuteResponse is the outcome reported to the submitting client.
type ExecuteResponse struct {
	Status entities.TxStatus         `json:"status"`
	Err    *entities.ValidationError `json:"error,omitempty"`
}

// ExecuteCallback receives the final outcome of an execute request. A nil
// response means no conclusive result: a peer refused to attest, no peers
// were available, or the coordinator aborted.
type ExecuteCallback func(resp *ExecuteResponse)

// ValidateCallback receives this sentinel's attestation, or nil if the
// transaction failed validation.
type ValidateCallback func(att *entities.SentinelAttestation)

// Config carries the controller settings.
type Config struct {
	SentinelID           uint32
	Endpoints            []string
	AttestationThreshold uint32
	PrivateKey           string
}

const coordinatorRetryDelay = 100 * time.Millisecond

// Controller drives the transaction lifecycle. It owns the peer clients;
// callbacks close over the controller, never over raw peer handles.
type Controller struct {
	cfg         Config
	privkey     *btcec.PrivateKey
	coordinator CoordinatorClient
	peers       []PeerClient
	archiver    *archive.Archiver
	metrics     *Metrics
	logger      *zap.SugaredLogger

	retryDelay time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewController validates the configuration and builds a controller. A
// private key is required whenever the attestation threshold is positive.
func NewController(
	cfg Config,
	coordinatorClient CoordinatorClient,
	peers []PeerClient,
	archiver *archive.Archiver,
	metrics *Metrics,
	logger *zap.SugaredLogger,
) (*Controller, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("no sentinel endpoints are defined")
	}
	if int(cfg.SentinelID) >= len(cfg.Endpoints) {
		return nil, errors.Errorf("sentinel id %d is too large for %d sentinels",
			cfg.SentinelID, len(cfg.Endpoints))
	}

	c := &Controller{
		cfg:         cfg,
		coordinator: coordinatorClient,
		peers:       peers,
		archiver:    archiver,
		metrics:     metrics,
		logger:      logger,
		retryDelay:  coordinatorRetryDelay,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if cfg.PrivateKey == "" {
		if cfg.AttestationThreshold > 0 {
			return nil, errors.New("no private key specified")
		}
		return c, nil
	}
	priv, err := crypto.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "parsing sentinel private key")
	}
	c.privkey = priv
	pub := crypto.PubKeyOf(priv)
	logger.Infow("Sentinel public key", "pubKey", pub)
	return c, nil
}

// Execute validates a transaction, gathers the attestation quorum and
// submits the compact form to the coordinator. The callback fires once with
// the outcome; the context bounds the coordinator admission retry loop.
func (c *Controller) Execute(ctx context.Context, tx entities.FullTx, cb ExecuteCallback) {
	c.metrics.executedCount.Inc()
	c.metrics.inFlightGauge.Inc()
	done := func(resp *ExecuteResponse) {
		c.metrics.inFlightGauge.Dec()
		cb(resp)
	}

	txID := entities.TxID(tx)
	c.logger.Debugw("Tx status set to initial", "txId", txID)
	c.archiver.AddTransaction(tx)

	if verr := entities.CheckTx(tx); verr != nil {
		c.logger.Debugw("Rejected by static validation", "txId", txID, "error", verr)
		c.metrics.staticInvalidCount.Inc()
		c.archiver.SetStatus(txID, entities.StateValidationFailed)
		done(&ExecuteResponse{Status: entities.StatusStaticInvalid, Err: verr})
		return
	}

	compact := entities.NewCompactTx(tx)
	if c.cfg.AttestationThreshold > 0 {
		att, err := crypto.SignCompact(c.privkey, compact)
		if err != nil {
			c.logger.Errorw("Failed to self-sign compact tx", "txId", txID, "error", err)
			done(nil)
			return
		}
		compact.Attestations[att.PubKey] = att.Signature
	}

	c.gatherAttestations(ctx, tx, compact, make(map[int]bool), done)
}

// Validate statically validates a transaction on behalf of a peer and
// returns an attestation over its compact form.
func (c *Controller) Validate(tx entities.FullTx, cb ValidateCallback) {
	txID := entities.TxID(tx)
	if verr := entities.CheckTx(tx); verr != nil {
		c.logger.Debugw("Peer validation rejected", "txId", txID, "error", verr)
		c.archiver.SetStatus(txID, entities.StateValidationFailed)
		cb(nil)
		return
	}
	if c.privkey == nil {
		c.logger.Warnw("Cannot attest without a private key", "txId", txID)
		cb(nil)
		return
	}
	att, err := crypto.SignCompact(c.privkey, entities.NewCompactTx(tx))
	if err != nil {
		c.logger.Errorw("Failed to sign attestation", "txId", txID, "error", err)
		cb(nil)
		return
	}
	cb(&att)
}

// gatherAttestations is the attestation state machine. requested holds the
// indices of peers already solicited; admission-refused peers are retried on
// later rounds, so they are not added.
func (c *Controller) gatherAttestations(
	ctx context.Context,
	tx entities.FullTx,
	compact entities.CompactTx,
	requested map[int]bool,
	cb ExecuteCallback,
) {
	if uint32(len(compact.Attestations)) >= c.cfg.AttestationThreshold {
		c.logger.Debugw("Attestation quorum reached", "txId", compact.ID,
			"attestations", len(compact.Attestations))
		c.archiver.SetStatus(compact.ID, entities.StateValidated)
		go c.sendCompactTx(ctx, compact, cb)
		return
	}

	candidates := c.shuffledCandidates(requested)
	for _, peerID := range candidates {
		id := peerID
		accepted := c.peers[id].Validate(tx, func(att *entities.SentinelAttestation) {
			c.validateResultHandler(ctx, att, tx, compact, requested, id, cb)
		})
		if accepted {
			c.metrics.peerSolicitationCount.Inc()
			requested[id] = true
			return
		}
	}

	// Every peer is either already solicited or refusing admission. Failing
	// here instead of spinning keeps the worker free.
	c.logger.Errorw("Failed to gather attestation quorum", "txId", compact.ID,
		"requested", len(requested), "error", entities.ErrNoPeersAvailable)
	c.archiver.SetStatus(compact.ID, entities.StateValidationFailed)
	c.metrics.validationFailedCount.Inc()
	cb(nil)
}

func (c *Controller) shuffledCandidates(requested map[int]bool) []int {
	candidates := make([]int, 0, len(c.peers))
	for i := range c.peers {
		if !requested[i] {
			candidates = append(candidates, i)
		}
	}
	c.rngMu.Lock()
	c.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	c.rngMu.Unlock()
	return candidates
}

func (c *Controller) validateResultHandler(
	ctx context.Context,
	att *entities.SentinelAttestation,
	tx entities.FullTx,
	compact entities.CompactTx,
	requested map[int]bool,
	peerID int,
	cb ExecuteCallback,
) {
	if att == nil {
		c.logger.Errorw("Remote sentinel refused to attest", "txId", compact.ID, "peer", peerID)
		c.archiver.SetStatus(compact.ID, entities.StateValidationFailed)
		c.metrics.validationFailedCount.Inc()
		cb(nil)
		return
	}
	compact.Attestations[att.PubKey] = att.Signature
	c.gatherAttestations(ctx, tx, compact, requested, cb)
}

// sendCompactTx submits to the coordinator, retrying admission refusals on a
// fixed cadence until the caller cancels.
func (c *Controller) sendCompactTx(ctx context.Context, compact entities.CompactTx, cb ExecuteCallback) {
	handler := func(res *bool) {
		c.resultHandler(res, compact.ID, cb)
	}
	for !c.coordinator.Execute(compact, handler) {
		c.metrics.coordinatorRetryCount.Inc()
		select {
		case <-ctx.Done():
			c.logger.Warnw("Coordinator submission abandoned", "txId", compact.ID,
				"error", ctx.Err())
			cb(nil)
			return
		case <-time.After(c.retryDelay):
		}
	}
	c.logger.Debugw("Tx status: execution", "txId", compact.ID)
	c.archiver.SetStatus(compact.ID, entities.StateExecution)
}

func (c *Controller) resultHandler(res *bool, txID entities.Hash, cb ExecuteCallback) {
	switch {
	case res == nil:
		c.logger.Infow("Unknown status for tx", "txId", txID)
		c.archiver.SetStatus(txID, entities.StateUnknown)
		c.metrics.unknownCount.Inc()
		cb(nil)
	case *res:
		c.logger.Debugw("Completed tx", "txId", txID)
		c.archiver.SetStatus(txID, entities.StateCompleted)
		c.metrics.confirmedCount.Inc()
		cb(&ExecuteResponse{Status: entities.StatusConfirmed})
	default:
		c.logger.Errorw("Execution failed for tx", "txId", txID)
		c.archiver.SetStatus(txID, entities.StateExecutionFailed)
		c.metrics.rejectedCount.Inc()
		cb(&ExecuteResponse{Status: entities.StatusStateInvalid})
	}
}

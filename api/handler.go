// Package api exposes the sentinel RPC surface over HTTP: transaction
// execution, peer validation and archive lookups.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/domain/archive"
	"github.com/openuhs/go-sentinel/domain/sentinel"
	"github.com/openuhs/go-sentinel/entities"
)

// TxProcessor is the controller surface the handlers bridge to.
type TxProcessor interface {
	Execute(ctx context.Context, tx entities.FullTx, cb sentinel.ExecuteCallback)
	Validate(tx entities.FullTx, cb sentinel.ValidateCallback)
}

type txRecord struct {
	TxID        entities.Hash   `json:"txId"`
	State       string          `json:"state"`
	TimestampMs uint64          `json:"timestampMs"`
	Tx          entities.FullTx `json:"tx"`
}

type Handler struct {
	processor TxProcessor
	archiver  *archive.Archiver
	logger    *zap.SugaredLogger

	txCache     *ttlcache.Cache[string, txRecord]
	txCacheLock sync.Mutex
}

func NewHandler(processor TxProcessor, archiver *archive.Archiver, cacheTTL time.Duration, logger *zap.SugaredLogger) *Handler {
	cache := ttlcache.New[string, txRecord](
		ttlcache.WithTTL[string, txRecord](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, txRecord](),
	)
	go cache.Start()
	return &Handler{
		processor: processor,
		archiver:  archiver,
		logger:    logger,
		txCache:   cache,
	}
}

// Router returns the HTTP routes of the sentinel service.
func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/execute", h.ExecuteTx)
	mux.HandleFunc("POST /v1/validate", h.ValidateTx)
	mux.HandleFunc("GET /v1/tx/{txid}", h.GetTx)
	mux.HandleFunc("GET /health", Health)
	return mux
}

type executeResponseJSON struct {
	Status *string                   `json:"status"`
	Error  *entities.ValidationError `json:"error,omitempty"`
}

// ExecuteTx submits a transaction for execution and answers once the
// controller reports an outcome. A null status means the result is
// inconclusive.
func (h *Handler) ExecuteTx(w http.ResponseWriter, r *http.Request) {
	var tx entities.FullTx
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, fmt.Sprintf("decoding transaction: %v", err), http.StatusBadRequest)
		return
	}

	respCh := make(chan *sentinel.ExecuteResponse, 1)
	h.processor.Execute(r.Context(), tx, func(resp *sentinel.ExecuteResponse) {
		respCh <- resp
	})

	select {
	case <-r.Context().Done():
		return
	case resp := <-respCh:
		out := executeResponseJSON{}
		if resp != nil {
			status := resp.Status.String()
			out.Status = &status
			out.Error = resp.Err
		}
		writeJSON(w, out, h.logger)
	}
}

type validateResponseJSON struct {
	Attestation *entities.SentinelAttestation `json:"attestation"`
}

// ValidateTx validates a transaction on behalf of a peer sentinel and
// returns this sentinel's attestation, or null on rejection.
func (h *Handler) ValidateTx(w http.ResponseWriter, r *http.Request) {
	var tx entities.FullTx
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, fmt.Sprintf("decoding transaction: %v", err), http.StatusBadRequest)
		return
	}

	respCh := make(chan *entities.SentinelAttestation, 1)
	h.processor.Validate(tx, func(att *entities.SentinelAttestation) {
		respCh <- att
	})

	select {
	case <-r.Context().Done():
		return
	case att := <-respCh:
		writeJSON(w, validateResponseJSON{Attestation: att}, h.logger)
	}
}

// GetTx returns the archived body and highest-priority status of a
// transaction. Responses are cached briefly; archived outcomes are stable
// once terminal.
func (h *Handler) GetTx(w http.ResponseWriter, r *http.Request) {
	txID, err := entities.HashFromHex(r.PathValue("txid"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid transaction id: %v", err), http.StatusBadRequest)
		return
	}

	record, found := h.lookup(txID)
	if !found {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	writeJSON(w, record, h.logger)
}

func (h *Handler) lookup(txID entities.Hash) (txRecord, bool) {
	key := txID.String()

	// Lock so that concurrent misses do not all hit the backend.
	h.txCacheLock.Lock()
	defer h.txCacheLock.Unlock()

	if item := h.txCache.Get(key); item != nil {
		return item.Value(), true
	}
	state, tx, timestamp, found := h.archiver.Get(txID)
	if !found {
		return txRecord{}, false
	}
	record := txRecord{
		TxID:        txID,
		State:       state.String(),
		TimestampMs: timestamp,
		Tx:          tx,
	}
	h.txCache.Set(key, record, ttlcache.DefaultTTL)
	return record, true
}

func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Content-Type", "application/json")
	if _, err := w.Write([]byte(`{"status":"UP"}`)); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("Failed to write response", "error", err)
	}
}

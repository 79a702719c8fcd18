package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/domain/archive"
	"github.com/openuhs/go-sentinel/domain/sentinel"
	"github.com/openuhs/go-sentinel/entities"
	"github.com/openuhs/go-sentinel/infrastructure/store/pebbledb"
)

type fakeProcessor struct {
	resp *sentinel.ExecuteResponse
	att  *entities.SentinelAttestation
}

func (p *fakeProcessor) Execute(_ context.Context, _ entities.FullTx, cb sentinel.ExecuteCallback) {
	cb(p.resp)
}

func (p *fakeProcessor) Validate(_ entities.FullTx, cb sentinel.ValidateCallback) {
	cb(p.att)
}

func makeTx() entities.FullTx {
	var wpc entities.Hash
	wpc[0] = 0xbb
	return entities.FullTx{
		Outputs: []entities.Output{{WitnessProgramCommitment: wpc, Value: 100}},
	}
}

func newTestServer(t *testing.T, processor TxProcessor) (*httptest.Server, *archive.Archiver) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	backend, err := pebbledb.NewStore(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	archiver := archive.NewArchiver(0, backend, nil, logger)

	handler := NewHandler(processor, archiver, time.Minute, logger)
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return srv, archiver
}

func postTx(t *testing.T, url string, tx entities.FullTx) *http.Response {
	t.Helper()
	payload, err := json.Marshal(tx)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func TestExecuteTx(t *testing.T) {
	status := entities.StatusConfirmed
	srv, _ := newTestServer(t, &fakeProcessor{resp: &sentinel.ExecuteResponse{Status: status}})

	resp := postTx(t, srv.URL+"/v1/execute", makeTx())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status *string                   `json:"status"`
		Error  *entities.ValidationError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Status)
	assert.Equal(t, "confirmed", *out.Status)
	assert.Nil(t, out.Error)
}

func TestExecuteTx_StaticInvalid(t *testing.T) {
	idx := uint64(0)
	srv, _ := newTestServer(t, &fakeProcessor{resp: &sentinel.ExecuteResponse{
		Status: entities.StatusStaticInvalid,
		Err:    &entities.ValidationError{Code: entities.ErrZeroOutputValue, Idx: &idx},
	}})

	resp := postTx(t, srv.URL+"/v1/execute", makeTx())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status *string                   `json:"status"`
		Error  *entities.ValidationError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Status)
	assert.Equal(t, "static_invalid", *out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, entities.ErrZeroOutputValue, out.Error.Code)
}

func TestExecuteTx_Inconclusive(t *testing.T) {
	srv, _ := newTestServer(t, &fakeProcessor{})

	resp := postTx(t, srv.URL+"/v1/execute", makeTx())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status *string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Nil(t, out.Status)
}

func TestExecuteTx_BadBody(t *testing.T) {
	srv, _ := newTestServer(t, &fakeProcessor{})

	resp, err := http.Post(srv.URL+"/v1/execute", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateTx(t *testing.T) {
	att := &entities.SentinelAttestation{}
	att.PubKey[0] = 0x02
	srv, _ := newTestServer(t, &fakeProcessor{att: att})

	resp := postTx(t, srv.URL+"/v1/validate", makeTx())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Attestation *entities.SentinelAttestation `json:"attestation"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Attestation)
	assert.Equal(t, att.PubKey, out.Attestation.PubKey)
}

func TestValidateTx_Refused(t *testing.T) {
	srv, _ := newTestServer(t, &fakeProcessor{})

	resp := postTx(t, srv.URL+"/v1/validate", makeTx())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Attestation *entities.SentinelAttestation `json:"attestation"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Nil(t, out.Attestation)
}

func TestGetTx(t *testing.T) {
	srv, archiver := newTestServer(t, &fakeProcessor{})

	tx := makeTx()
	txID := entities.TxID(tx)
	require.True(t, archiver.AddTransaction(tx))
	require.True(t, archiver.SetStatus(txID, entities.StateCompleted))

	resp, err := http.Get(srv.URL + "/v1/tx/" + txID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		TxID  entities.Hash   `json:"txId"`
		State string          `json:"state"`
		Tx    entities.FullTx `json:"tx"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, txID, out.TxID)
	assert.Equal(t, "completed", out.State)
	assert.Equal(t, tx, out.Tx)

	// A second lookup is served from the cache even after the record is
	// gone from the archive.
	require.Equal(t, 2, archiver.Delete(txID))
	cached, err := http.Get(srv.URL + "/v1/tx/" + txID.String())
	require.NoError(t, err)
	defer cached.Body.Close()
	assert.Equal(t, http.StatusOK, cached.StatusCode)
}

func TestGetTx_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeProcessor{})

	var txID entities.Hash
	txID[0] = 0x99
	resp, err := http.Get(srv.URL + "/v1/tx/" + txID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTx_BadID(t *testing.T) {
	srv, _ := newTestServer(t, &fakeProcessor{})

	resp, err := http.Get(srv.URL + "/v1/tx/not-hex")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeProcessor{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "UP", out.Status)
}

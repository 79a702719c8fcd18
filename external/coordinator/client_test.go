package coordinator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/entities"
)

func testCompactTx() entities.CompactTx {
	var id entities.Hash
	id[0] = 0x01
	return entities.CompactTx{ID: id, Attestations: make(map[entities.PubKey]entities.Signature)}
}

func awaitResult(t *testing.T, ch <-chan *bool) *bool {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for coordinator result")
		return nil
	}
}

func TestClient_Execute(t *testing.T) {
	var received entities.CompactTx
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/execute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]bool{"result": true})
	}))
	defer srv.Close()

	client := NewClient(strings.TrimPrefix(srv.URL, "http://"), 8, 1, zap.NewNop().Sugar())
	defer client.Close()
	require.NoError(t, client.Init())

	tx := testCompactTx()
	resultCh := make(chan *bool, 1)
	require.True(t, client.Execute(tx, func(result *bool) {
		resultCh <- result
	}))

	result := awaitResult(t, resultCh)
	require.NotNil(t, result)
	assert.True(t, *result)
	assert.Equal(t, tx.ID, received.ID)
}

func TestClient_ExecuteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"result": false})
	}))
	defer srv.Close()

	client := NewClient(strings.TrimPrefix(srv.URL, "http://"), 8, 1, zap.NewNop().Sugar())
	defer client.Close()

	resultCh := make(chan *bool, 1)
	require.True(t, client.Execute(testCompactTx(), func(result *bool) {
		resultCh <- result
	}))

	result := awaitResult(t, resultCh)
	require.NotNil(t, result)
	assert.False(t, *result)
}

func TestClient_ExecuteUnreachable(t *testing.T) {
	client := NewClient("127.0.0.1:1", 8, 1, zap.NewNop().Sugar())
	defer client.Close()

	assert.Error(t, client.Init())

	resultCh := make(chan *bool, 1)
	require.True(t, client.Execute(testCompactTx(), func(result *bool) {
		resultCh <- result
	}))
	assert.Nil(t, awaitResult(t, resultCh))
}

func TestClient_ExecuteBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(strings.TrimPrefix(srv.URL, "http://"), 8, 1, zap.NewNop().Sugar())
	defer client.Close()

	resultCh := make(chan *bool, 1)
	require.True(t, client.Execute(testCompactTx(), func(result *bool) {
		resultCh <- result
	}))
	assert.Nil(t, awaitResult(t, resultCh))
}

func TestClient_QueueAdmission(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		started <- struct{}{}
		<-release
		json.NewEncoder(w).Encode(map[string]bool{"result": true})
	}))
	defer srv.Close()

	client := NewClient(strings.TrimPrefix(srv.URL, "http://"), 1, 1, zap.NewNop().Sugar())
	defer client.Close()

	resultCh := make(chan *bool, 2)
	cb := func(result *bool) { resultCh <- result }

	// First request occupies the single worker.
	require.True(t, client.Execute(testCompactTx(), cb))
	<-started

	// Second request fills the queue; the third is refused admission.
	require.True(t, client.Execute(testCompactTx(), cb))
	assert.False(t, client.Execute(testCompactTx(), cb))

	close(release)
	awaitResult(t, resultCh)
	awaitResult(t, resultCh)
}

func TestClient_ExecuteAfterClose(t *testing.T) {
	client := NewClient("127.0.0.1:1", 8, 1, zap.NewNop().Sugar())
	client.Close()
	assert.False(t, client.Execute(testCompactTx(), func(*bool) {}))
}

// Package coordinator implements the asynchronous client submitting compact
// transactions to the two-phase commit coordinator.
package coordinator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/entities"
)

// The result callback receives the coordinator's eventual verdict: true
// means confirmed, false means rejected by execution, nil means the
// coordinator aborted or the connection was lost.
type request struct {
	tx entities.CompactTx
	cb func(result *bool)
}

// Client submits compact transactions over a bounded queue. Execute returns
// false when the queue is full; the caller is expected to retry.
type Client struct {
	endpoint string
	httpc    *http.Client
	queue    chan request
	logger   *zap.SugaredLogger

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

type executeResponse struct {
	Result bool `json:"result"`
}

func NewClient(endpoint string, queueSize, workers int, logger *zap.SugaredLogger) *Client {
	c := &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		queue:    make(chan request, queueSize),
		logger:   logger,
		closed:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Init probes connectivity to the coordinator endpoint.
func (c *Client) Init() error {
	conn, err := net.DialTimeout("tcp", c.endpoint, 2*time.Second)
	if err != nil {
		return fmt.Errorf("dialing coordinator at %s: %v", c.endpoint, err)
	}
	return conn.Close()
}

// Execute queues a compact transaction for submission. The synchronous
// return is queue admission only; the callback fires exactly once with the
// outcome.
func (c *Client) Execute(tx entities.CompactTx, cb func(result *bool)) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.queue <- request{tx: tx, cb: cb}:
		return true
	default:
		return false
	}
}

func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closed:
			return
		case req := <-c.queue:
			req.cb(c.submit(req.tx))
		}
	}
}

func (c *Client) submit(tx entities.CompactTx) *bool {
	payload, err := json.Marshal(tx)
	if err != nil {
		c.logger.Errorw("Failed to marshal compact tx", "txId", tx.ID, "error", err)
		return nil
	}
	url := fmt.Sprintf("http://%s/v1/execute", c.endpoint)
	resp, err := c.httpc.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		c.logger.Warnw("Coordinator request failed", "txId", tx.ID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warnw("Coordinator returned unexpected status",
			"txId", tx.ID, "status", resp.StatusCode)
		return nil
	}
	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Warnw("Failed to decode coordinator response", "txId", tx.ID, "error", err)
		return nil
	}
	return &out.Result
}

// Close stops the workers. Queued requests that were not yet submitted are
// dropped without firing their callbacks.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.wg.Wait()
}

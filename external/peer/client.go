// Package peer implements the asynchronous client soliciting attestations
// from other sentinels.
package peer

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

// The validate callback receives the peer's verdict: an attestation, or nil
// if the peer refused to attest or was unreachable.
type request struct {
	tx entities.FullTx
	cb func(att *entities.SentinelAttestation)
}

// Client solicits peer attestations over a bounded queue. Validate returns
// false when the queue is full; the caller picks another peer.
type Client struct {
	endpoint string
	httpc    *http.Client
	queue    chan request
	logger   *zap.SugaredLogger

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

type validateResponse struct {
	Attestation *entities.SentinelAttestation `json:"attestation"`
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

// Init probes connectivity to the peer endpoint.
func (c *Client) Init() error {
	conn, err := net.DialTimeout("tcp", c.endpoint, 2*time.Second)
	if err != nil {
		return fmt.Errorf("dialing peer sentinel at %s: %v", c.endpoint, err)
	}
	return conn.Close()
}

// Validate queues a transaction for peer validation. The synchronous return
// is queue admission only; the callback fires exactly once.
func (c *Client) Validate(tx entities.FullTx, cb func(att *entities.SentinelAttestation)) bool {
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
			req.cb(c.solicit(req.tx))
		}
	}
}

func (c *Client) solicit(tx entities.FullTx) *entities.SentinelAttestation {
	payload, err := json.Marshal(tx)
	if err != nil {
		c.logger.Errorw("Failed to marshal transaction", "error", err)
		return nil
	}
	url := fmt.Sprintf("http://%s/v1/validate", c.endpoint)
	resp, err := c.httpc.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		c.logger.Warnw("Peer validation request failed", "peer", c.endpoint, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warnw("Peer returned unexpected status",
			"peer", c.endpoint, "status", resp.StatusCode)
		return nil
	}
	var out validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Warnw("Failed to decode peer response", "peer", c.endpoint, "error", err)
		return nil
	}
	return out.Attestation
}

// Close stops the workers. Queued requests that were not yet submitted are
// dropped without firing their callbacks.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.wg.Wait()
}

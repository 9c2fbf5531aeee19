// Package proofservice fetches plasma exit payloads for burn transactions once the burn has been
// included in a checkpoint on the root chain.
package proofservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/contracts"
)

var (
	ErrInvalidConfig = errors.New("proofservice: invalid config")

	// ErrNotCheckpointed means the service does not have a payload for the burn yet.
	ErrNotCheckpointed = errors.New("proofservice: burn not checkpointed yet")

	// ErrProofService covers transport failures, unexpected statuses and malformed bodies.
	ErrProofService = errors.New("proofservice: request failed")
)

const DefaultNetwork = "amoy"

type ClientOption func(*Client) error

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("%w: nil http client", ErrInvalidConfig)
		}
		c.hc = hc
		return nil
	}
}

func WithMaxResponseBytes(n int64) ClientOption {
	return func(c *Client) error {
		if n <= 0 {
			return fmt.Errorf("%w: max response bytes must be > 0", ErrInvalidConfig)
		}
		c.maxRespBytes = n
		return nil
	}
}

// WithEventSignature overrides the burn event topic sent as eventSignature.
func WithEventSignature(topic common.Hash) ClientOption {
	return func(c *Client) error {
		if (topic == common.Hash{}) {
			return fmt.Errorf("%w: zero event signature", ErrInvalidConfig)
		}
		c.eventSig = topic
		return nil
	}
}

type Client struct {
	baseURL      *url.URL
	network      string
	eventSig     common.Hash
	hc           *http.Client
	maxRespBytes int64
}

func NewClient(baseURL string, network string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: missing base url", ErrInvalidConfig)
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidConfig)
	}
	network = strings.Trim(strings.TrimSpace(network), "/")
	if network == "" {
		network = DefaultNetwork
	}

	c := &Client{
		baseURL:      u,
		network:      network,
		eventSig:     contracts.WithdrawEventTopic(),
		hc:           &http.Client{Timeout: 30 * time.Second},
		maxRespBytes: 4 << 20, // 4 MiB
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FetchExitPayload asks the service for the exit payload of burnTx.
//
// Returns ErrNotCheckpointed on 400/404 and ErrProofService for every other failure.
func (c *Client) FetchExitPayload(ctx context.Context, burnTx common.Hash) (Proof, error) {
	if c == nil || c.baseURL == nil || c.hc == nil {
		return Proof{}, fmt.Errorf("%w: nil client", ErrInvalidConfig)
	}

	u := *c.baseURL
	u.Path = joinPath(u.Path, c.network, "exit-payload", burnTx.Hex())
	q := u.Query()
	q.Set("eventSignature", c.eventSig.Hex())
	u.RawQuery = q.Encode()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Proof{}, fmt.Errorf("%w: build request: %v", ErrProofService, err)
	}
	r.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(r)
	if err != nil {
		if ctx.Err() != nil {
			return Proof{}, ctx.Err()
		}
		return Proof{}, fmt.Errorf("%w: http do: %v", ErrProofService, err)
	}
	defer resp.Body.Close()

	body, err := readAllLimited(resp.Body, c.maxRespBytes)
	if err != nil {
		return Proof{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		return Proof{}, fmt.Errorf("%w: status %d", ErrNotCheckpointed, resp.StatusCode)
	default:
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return Proof{}, fmt.Errorf("%w: status %d: %s", ErrProofService, resp.StatusCode, msg)
	}

	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Proof{}, fmt.Errorf("%w: unmarshal response: %v", ErrProofService, err)
	}
	raw, err := hexutil.Decode(strings.TrimSpace(out.Result))
	if err != nil || len(raw) == 0 {
		return Proof{}, fmt.Errorf("%w: malformed result", ErrProofService)
	}
	return NewProof(raw), nil
}

func joinPath(basePath string, elems ...string) string {
	if basePath == "" {
		basePath = "/"
	}
	return path.Join(append([]string{basePath}, elems...)...)
}

func readAllLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProofService, err)
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("%w: response too large", ErrProofService)
	}
	return b, nil
}

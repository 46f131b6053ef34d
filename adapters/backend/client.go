package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/ports"
)

// maxBodySize caps how much of a backend response is read
const maxBodySize = 1 << 20

// Client talks to the custodial-wallet and AI-agent API
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a backend client rooted at baseURL
func NewClient(baseURL string, timeout time.Duration) ports.Backend {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type createWalletRequest struct {
	Address string `json:"address"`
}

type aiRequest struct {
	Request string `json:"request"`
	Wallet  string `json:"wallet"`
}

// WalletInfo wraps GET /api/wallet/info
func (c *Client) WalletInfo(ctx context.Context, address string) (*core.WalletInfoResult, error) {
	endpoint := c.baseURL + "/api/wallet/info?address=" + url.QueryEscape(address)

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out core.WalletInfoResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode wallet info: %w", core.ErrNetwork, err)
	}
	return &out, nil
}

// CreateWallet wraps POST /api/wallet/create
func (c *Client) CreateWallet(ctx context.Context, address string) (*core.WalletCreated, error) {
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/wallet/create", createWalletRequest{Address: address})
	if err != nil {
		return nil, err
	}

	var out core.WalletCreated
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode wallet: %w", core.ErrNetwork, err)
	}
	return &out, nil
}

// AIRequest wraps POST /api/ai_request
func (c *Client) AIRequest(ctx context.Context, address, request string) (core.AIReply, error) {
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/ai_request", aiRequest{Request: request, Wallet: address})
	if err != nil {
		return nil, err
	}
	return ParseAIReply(body)
}

// ParseAIReply decides once whether a reply carries a submitted transaction.
// Any JSON object with a set tx_hash is a TransactionReply; every other valid
// JSON document is a PlainReply. A set tx_hash that is not a string is an error.
func ParseAIReply(body []byte) (core.AIReply, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: ai reply is not valid JSON", core.ErrNetwork)
	}

	// Only objects can carry a transaction
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || !truthy(fields["tx_hash"]) {
		return core.PlainReply{Body: json.RawMessage(bytes.Clone(body))}, nil
	}

	var tx core.TransactionReply
	if err := json.Unmarshal(fields["tx_hash"], &tx.TxHash); err != nil {
		return nil, fmt.Errorf("%w: ai reply tx_hash is not a string: %s", core.ErrNetwork, fields["tx_hash"])
	}
	// status and message are informational; a malformed one is left empty
	_ = json.Unmarshal(fields["status"], &tx.Status)
	_ = json.Unmarshal(fields["message"], &tx.Message)

	return tx, nil
}

// truthy reports whether a JSON value counts as set: absent, null, false,
// zero and "" do not.
func truthy(raw json.RawMessage) bool {
	switch v := strings.TrimSpace(string(raw)); v {
	case "", "null", "false", `""`:
		return false
	default:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f != 0
		}
		return true
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", core.ErrNetwork, method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", core.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s: status %d: %s", core.ErrNetwork, method, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

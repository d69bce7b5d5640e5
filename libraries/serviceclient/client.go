package serviceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/greymass/abicached/libraries/abicache"
	"github.com/greymass/abicached/libraries/encoding"
)

// Client talks to the abicached lookup API over TCP or, for unix:// URLs, a
// unix socket.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(backendURL string, timeout time.Duration) *Client {
	parsedURL, err := url.Parse(backendURL)
	if err == nil && parsedURL.Scheme == "unix" {
		return &Client{
			baseURL: "http://localhost",
			httpClient: &http.Client{
				Timeout: timeout,
				Transport: &http.Transport{
					DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
						var d net.Dialer
						return d.DialContext(ctx, "unix", parsedURL.Path)
					},
				},
			},
		}
	}
	return &Client{
		baseURL:    backendURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetABI fetches the ABI account had at abiSequence. A version the service
// does not know returns an error matching ErrNotFound.
func (c *Client) GetABI(ctx context.Context, account string, abiSequence uint32) (*abicache.ABI, error) {
	q := url.Values{}
	q.Set("account", account)
	q.Set("abi_sequence", strconv.FormatUint(uint64(abiSequence), 10))

	var resp struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/abi_cache/get_abi?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return abicache.ParseABIJSON(resp.ABI)
}

func (c *Client) GlobalHeight(ctx context.Context) (uint64, error) {
	var resp struct {
		Height uint64 `json:"global_sequence_height"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/abi_cache/global_sequence_height", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

type DecodeRequest struct {
	Account     string `json:"account"`
	AbiSequence uint32 `json:"abi_sequence"`
	Action      string `json:"action"`
	Data        string `json:"data"`
}

// DecodeAction returns the decoded action fields.
func (c *Client) DecodeAction(ctx context.Context, req DecodeRequest) (map[string]interface{}, error) {
	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/abi_cache/decode_action", req, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, req, resp any) error {
	var body io.Reader
	if req != nil {
		data, err := encoding.JSONiter.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return &ServiceError{
			StatusCode: httpResp.StatusCode,
			Message:    http.StatusText(httpResp.StatusCode),
			Body:       bodyBytes,
		}
	}

	if resp != nil {
		if err := encoding.JSONiter.NewDecoder(httpResp.Body).Decode(resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Package sourcify is a client for the Sourcify source verification API.
package sourcify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Match statuses reported by Sourcify.
const (
	StatusPerfect = "perfect"
	StatusPartial = "partial"
)

// ErrNotFound is returned when Sourcify has no files for a contract.
var ErrNotFound = errors.New("contract not found on sourcify")

// Error is a verification failure reported by the Sourcify API, as opposed
// to a transport failure.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// Client is a Sourcify API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// New creates a client for the Sourcify server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	Address        string
	Chain          string
	Files          map[string]string
	ChosenContract *int
}

// VerifyResult is one entry of a /verify response.
type VerifyResult struct {
	Address string `json:"address"`
	ChainID string `json:"chainId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type verifyBody struct {
	Address        string            `json:"address"`
	Chain          string            `json:"chain"`
	Files          map[string]string `json:"files"`
	ChosenContract string            `json:"chosenContract,omitempty"`
}

// Verify submits sources for verification against a deployed contract.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	body := verifyBody{Address: req.Address, Chain: req.Chain, Files: req.Files}
	if req.ChosenContract != nil {
		body.ChosenContract = strconv.Itoa(*req.ChosenContract)
	}

	var resp struct {
		Result []VerifyResult `json:"result"`
	}
	if err := c.post(ctx, "/verify", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, &Error{StatusCode: http.StatusOK, Message: "sourcify returned no verification result"}
	}

	result := resp.Result[0]
	switch result.Status {
	case StatusPerfect, StatusPartial:
		return &result, nil
	default:
		msg := result.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected verification status %q", result.Status)
		}
		return nil, &Error{StatusCode: http.StatusOK, Message: msg}
	}
}

// File is a stored source or metadata file.
type File struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Files is the decoded result of GET /files/any/{chain}/{address}.
type Files struct {
	// Status is "full" or "partial".
	Status   string
	Sources  map[string]string
	Metadata *Metadata
}

// Files fetches the sources and metadata Sourcify stored for a contract.
func (c *Client) Files(ctx context.Context, chain, address string) (*Files, error) {
	var resp struct {
		Status string `json:"status"`
		Files  []File `json:"files"`
	}
	path := fmt.Sprintf("/files/any/%s/%s", url.PathEscape(chain), url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	out := &Files{Status: resp.Status, Sources: map[string]string{}}
	for _, f := range resp.Files {
		if f.Name == "metadata.json" {
			var m Metadata
			if err := json.Unmarshal([]byte(f.Content), &m); err != nil {
				return nil, fmt.Errorf("decoding metadata.json: %w", err)
			}
			out.Metadata = &m
			continue
		}
		out.Sources[sourcePath(f)] = f.Content
	}
	if out.Metadata == nil {
		return nil, fmt.Errorf("sourcify response has no metadata.json")
	}
	return out, nil
}

// sourcePath strips the repository prefix Sourcify puts in front of source
// paths: .../<chain>/<address>/sources/<path>.
func sourcePath(f File) string {
	if i := strings.Index(f.Path, "/sources/"); i >= 0 {
		return f.Path[i+len("/sources/"):]
	}
	return f.Name
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("sourcify: HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return parseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			return &Error{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		if errResp.Message != "" {
			return &Error{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
	}
	return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

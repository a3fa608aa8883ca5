// Package ipfs submits blobs to an IPFS node or pinning service through the
// HTTP RPC "add" endpoint.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const addPath = "/api/v0/add"

// Config describes the RPC endpoint. ProjectID and ProjectSecret enable basic auth.
type Config struct {
	Endpoint      string
	ProjectID     string
	ProjectSecret string
	CIDVersion    int
	Pin           bool
	Timeout       time.Duration
}

// Client talks to a single IPFS RPC endpoint.
type Client struct {
	endpoint string
	cfg      Config
	http     *http.Client
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// New validates the endpoint and builds a Client. A nil httpClient uses a
// default client with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ipfs endpoint %q", cfg.Endpoint)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		cfg:      cfg,
		http:     httpClient,
	}, nil
}

// Submit posts data as a multipart "file" part and returns the resulting CID.
// Any non-2xx answer is a failure.
func (c *Client) Submit(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addURL(), &body)
	if err != nil {
		return "", fmt.Errorf("build add request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.cfg.ProjectID != "" {
		req.SetBasicAuth(c.cfg.ProjectID, c.cfg.ProjectSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ipfs add: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out addResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ipfs add response: %w", err)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("ipfs add: response without hash")
	}
	return out.Hash, nil
}

// URI returns the ipfs:// reference of a CID.
func (c *Client) URI(address string) string {
	return "ipfs://" + address
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) addURL() string {
	q := url.Values{}
	q.Set("progress", "false")
	q.Set("pin", strconv.FormatBool(c.cfg.Pin))
	if c.cfg.CIDVersion > 0 {
		q.Set("cid-version", strconv.Itoa(c.cfg.CIDVersion))
	}
	return c.endpoint + addPath + "?" + q.Encode()
}

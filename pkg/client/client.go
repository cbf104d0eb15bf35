// Package client speaks the chunked upload protocol over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/pkg/types"
)

// ProtocolVersion is the upload protocol this client speaks
const ProtocolVersion = "1.0.0"

const protocolHeader = "Upload-Protocol-Version"

// APIError is a non-2xx response decoded from the server's error body
type APIError struct {
	StatusCode   int
	Message      string
	Field        string
	MissingIndex *int
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("server returned %d: %s (%s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// MissingChunk reports the index a failed finalize asked for
func MissingChunk(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.MissingIndex != nil {
		return *apiErr.MissingIndex, true
	}
	return 0, false
}

// IsNotFound reports whether the server did not know the upload
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to a stockpile server
type Client struct {
	baseURL  string
	http     *retryablehttp.Client
	apiKey   string
	token    string
	protocol *semver.Version

	warnOnce sync.Once
}

// Option configures a Client
type Option func(*Client)

// WithAPIKey authenticates with X-API-Key
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithToken authenticates with a bearer token
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRetries sets how many times a request is retried on connection
// errors and 5xx responses
func WithRetries(n int) Option {
	return func(c *Client) { c.http.RetryMax = n }
}

// WithHTTPClient swaps the underlying transport client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

// WithBackoff bounds the wait between retries
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = min
		c.http.RetryWaitMax = max
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = leveledLogger{}
	rc.RetryMax = 3
	// Hand the final response back so its error body can be decoded
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     rc,
		protocol: semver.MustParse(ProtocolVersion),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init opens an upload session
func (c *Client) Init(ctx context.Context, filename string, size int64, contentType string) (string, error) {
	body, err := json.Marshal(types.InitUploadRequest{
		Filename: filename,
		Filesize: size,
		Filetype: contentType,
	})
	if err != nil {
		return "", err
	}

	var resp types.InitUploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/upload/init", "application/json", body, &resp); err != nil {
		return "", err
	}
	return resp.UploadID, nil
}

// PutChunk uploads one chunk. The body is buffered so retries can replay it.
func (c *Client) PutChunk(ctx context.Context, id string, index, totalChunks int, filename string, chunk []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"index":        strconv.Itoa(index),
		"total_chunks": strconv.Itoa(totalChunks),
		"filename":     filename,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}

	part, err := w.CreateFormFile("chunk", fmt.Sprintf("%s.part%d", filename, index))
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	path := "/api/v1/upload/chunk/" + url.PathEscape(id)
	return c.do(ctx, http.MethodPost, path, w.FormDataContentType(), buf.Bytes(), nil)
}

// Finalize assembles the uploaded chunks
func (c *Client) Finalize(ctx context.Context, id, filename string, totalChunks int) (*types.FinalizeUploadResponse, error) {
	body, err := json.Marshal(types.FinalizeUploadRequest{
		Filename:    filename,
		TotalChunks: totalChunks,
	})
	if err != nil {
		return nil, err
	}

	var resp types.FinalizeUploadResponse
	path := "/api/v1/upload/finalize/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPost, path, "application/json", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status reports a session's progress
func (c *Client) Status(ctx context.Context, id string) (*types.UploadStatusResponse, error) {
	var resp types.UploadStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/upload/status/"+url.PathEscape(id), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Abort discards a session and its chunks
func (c *Client) Abort(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/upload/"+url.PathEscape(id), "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	var reqBody interface{}
	if body != nil {
		reqBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(protocolHeader, c.protocol.String())
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.apiKey != "":
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.checkProtocol(resp.Header.Get(protocolHeader))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body types.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
		apiErr.Field = body.Field
		apiErr.MissingIndex = body.MissingIndex
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

// checkProtocol warns once when the server speaks a different major version
func (c *Client) checkProtocol(advertised string) {
	if advertised == "" {
		return
	}
	server, err := semver.NewVersion(advertised)
	if err != nil || server.Major() != c.protocol.Major() {
		c.warnOnce.Do(func() {
			log.Warn().
				Str("server", advertised).
				Str("client", c.protocol.String()).
				Msg("server upload protocol differs from client")
		})
	}
}

// leveledLogger routes retryablehttp's logging through zerolog
type leveledLogger struct{}

func (leveledLogger) Error(msg string, kv ...interface{}) { log.Error().Fields(kv).Msg(msg) }
func (leveledLogger) Info(msg string, kv ...interface{})  { log.Debug().Fields(kv).Msg(msg) }
func (leveledLogger) Debug(msg string, kv ...interface{}) { log.Trace().Fields(kv).Msg(msg) }
func (leveledLogger) Warn(msg string, kv ...interface{})  { log.Warn().Fields(kv).Msg(msg) }

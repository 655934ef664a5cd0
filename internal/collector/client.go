package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"filedrop/internal/api"
	"filedrop/internal/faults"
	"filedrop/internal/jobs"
)

const (
	healthTimeout   = 5 * time.Second
	pollTimeout     = 10 * time.Second
	downloadTimeout = 5 * time.Minute
	completeTimeout = 5 * time.Second

	apiKeyHeader = "X-API-Key"
)

// Producer is the producer-side surface the collector consumes.
type Producer interface {
	Health(ctx context.Context, ep *Endpoint) error
	ListPending(ctx context.Context, ep *Endpoint, limit int) ([]jobs.Job, error)
	Download(ctx context.Context, ep *Endpoint, jobID string) (io.ReadCloser, error)
	Complete(ctx context.Context, ep *Endpoint, jobID string) error
}

// HTTPDoer describes the HTTP client used by HTTPClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient talks to producers over their /api routes.
type HTTPClient struct {
	client   HTTPDoer
	clientID string
}

// NewHTTPClient constructs a client identifying itself as clientID. A nil
// doer uses a dedicated http.Client; per-call contexts bound each request.
func NewHTTPClient(clientID string, doer HTTPDoer) *HTTPClient {
	if doer == nil {
		doer = &http.Client{}
	}
	return &HTTPClient{client: doer, clientID: clientID}
}

// ClientID returns the identifier sent with every request.
func (c *HTTPClient) ClientID() string { return c.clientID }

func (c *HTTPClient) Health(ctx context.Context, ep *Endpoint) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	resp, err := c.do(ctx, ep, http.MethodGet, "/api/health", nil, nil)
	if err != nil {
		return wrapRequestError(ep, "health", err)
	}
	defer drain(resp.Body)
	return statusError(ep, "health", resp)
}

func (c *HTTPClient) ListPending(ctx context.Context, ep *Endpoint, limit int) ([]jobs.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()
	query := url.Values{}
	query.Set("clientId", c.clientID)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.do(ctx, ep, http.MethodGet, "/api/jobs/pending", query, nil)
	if err != nil {
		return nil, wrapRequestError(ep, "poll", err)
	}
	defer drain(resp.Body)
	if err := statusError(ep, "poll", resp); err != nil {
		return nil, err
	}
	var payload api.PendingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, faults.Wrap(faults.ErrUnreachable, ep.Name, "poll", "decode response", err)
	}
	return payload.Jobs, nil
}

// Download returns the job's body. The request stays bound to the download
// timeout until the body is closed.
func (c *HTTPClient) Download(ctx context.Context, ep *Endpoint, jobID string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	query := url.Values{}
	query.Set("clientId", c.clientID)
	resp, err := c.do(ctx, ep, http.MethodGet, "/api/download/"+url.PathEscape(jobID), query, nil)
	if err != nil {
		cancel()
		return nil, wrapRequestError(ep, "download", err)
	}
	if err := statusError(ep, "download", resp); err != nil {
		drain(resp.Body)
		cancel()
		return nil, err
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel, ep: ep}, nil
}

func (c *HTTPClient) Complete(ctx context.Context, ep *Endpoint, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, completeTimeout)
	defer cancel()
	body, err := json.Marshal(api.CompleteRequest{ClientID: c.clientID})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, ep, http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/complete", nil, bytes.NewReader(body))
	if err != nil {
		return wrapRequestError(ep, "complete", err)
	}
	defer drain(resp.Body)
	return statusError(ep, "complete", resp)
}

// Status fetches the producer's status report.
func (c *HTTPClient) Status(ctx context.Context, ep *Endpoint) (api.StatusResponse, error) {
	var payload api.StatusResponse
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()
	resp, err := c.do(ctx, ep, http.MethodGet, "/api/status", nil, nil)
	if err != nil {
		return payload, wrapRequestError(ep, "status", err)
	}
	defer drain(resp.Body)
	if err := statusError(ep, "status", resp); err != nil {
		return payload, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, faults.Wrap(faults.ErrUnreachable, ep.Name, "status", "decode response", err)
	}
	return payload, nil
}

func (c *HTTPClient) do(ctx context.Context, ep *Endpoint, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	target := strings.TrimRight(ep.URL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ep.APIKey != "" {
		req.Header.Set(apiKeyHeader, ep.APIKey)
	}
	return c.client.Do(req)
}

// wrapRequestError classifies transport failures.
func wrapRequestError(ep *Endpoint, op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return faults.Wrap(faults.ErrTimeout, ep.Name, op, "", err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return faults.Wrap(faults.ErrUnreachable, ep.Name, op, "", err)
	}
}

// statusError maps non-2xx responses to fault markers.
func statusError(ep *Endpoint, op string, resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	detail := fmt.Sprintf("http %d", resp.StatusCode)
	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Code != "" {
		detail = fmt.Sprintf("http %d %s: %s", resp.StatusCode, body.Code, body.Error)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return faults.Wrap(faults.ErrUnauthorized, ep.Name, op, detail, nil)
	case http.StatusNotFound:
		return faults.Wrap(faults.ErrNotFound, ep.Name, op, detail, nil)
	default:
		return faults.Wrap(faults.ErrUnreachable, ep.Name, op, detail, nil)
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	ep     *Endpoint
}

func (c *cancelOnClose) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = wrapRequestError(c.ep, "download", err)
	}
	return n, err
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// DefaultClientID returns "<hostname>-<machine-id prefix>", falling back to a
// random suffix when the machine id is unavailable.
func DefaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "collector"
	}
	suffix := ""
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); len(id) >= 8 {
				suffix = id[:8]
				break
			}
		}
	}
	if suffix == "" {
		suffix = uuid.NewString()[:8]
	}
	return host + "-" + suffix
}

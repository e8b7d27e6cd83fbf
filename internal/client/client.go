// Package client is the query connection the shell executes statements on.
//
// [Conn] is the only thing the shell depends on. [REST] implements it against
// a TDengine-style REST endpoint: the statement is POSTed as the request body
// to /rest/sql and the JSON response carries column metadata and row data.
// Every query runs under the caller's context, so cancelling that context
// aborts the in-flight request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrQueryFailed is wrapped by errors the server reported for a statement.
var ErrQueryFailed = errors.New("query failed")

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 20

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Conn executes one statement at a time.
type Conn interface {
	// Query runs sql and returns its result. It returns early with an error
	// wrapping ctx.Err() when ctx is cancelled.
	Query(ctx context.Context, sql string) (*Result, error)
	// Close releases the connection's resources.
	Close() error
}

// Options describes where and how to connect.
type Options struct {
	// Scheme is "http" or "https".
	Scheme string
	// Host and Port locate the REST endpoint.
	Host string
	Port int
	// User and Password are sent as basic auth when Token is empty.
	User     string
	Password string
	// Database, when set, is appended to the endpoint path.
	Database string
	// Token authenticates cloud instances via the token query parameter.
	Token string
	// RetryMax is the number of retries on connection errors.
	RetryMax int
	// Timeout bounds a single HTTP attempt. Zero means no limit.
	Timeout time.Duration
}

// REST is a [Conn] over the REST SQL endpoint.
type REST struct {
	endpoint string
	opts     Options
	http     *retryablehttp.Client
}

// ///////////////////////////////////////////////
// Constructor
// ///////////////////////////////////////////////

// NewREST builds a REST connection. No request is made until the first Query.
func NewREST(opts Options) (*REST, error) {
	endpoint, err := Endpoint(opts)
	if err != nil {
		return nil, err
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = opts.RetryMax
	hc.HTTPClient.Timeout = opts.Timeout
	hc.Logger = slog.Default()
	hc.CheckRetry = retryConnectionErrors

	return &REST{endpoint: endpoint, opts: opts, http: hc}, nil
}

// Endpoint returns the SQL endpoint URL for opts.
func Endpoint(opts Options) (string, error) {
	if opts.Host == "" {
		return "", errors.New("client: host is required")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return "", fmt.Errorf("client: invalid port %d", opts.Port)
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "http"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Path:   "/rest/sql",
	}
	if opts.Database != "" {
		u.Path += "/" + url.PathEscape(opts.Database)
	}
	if opts.Token != "" {
		u.RawQuery = url.Values{"token": {opts.Token}}.Encode()
	}
	return u.String(), nil
}

// retryConnectionErrors retries only when no response arrived. A statement
// the server already answered is never replayed, since it may have had side
// effects.
func retryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil && resp != nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// ///////////////////////////////////////////////
// Query
// ///////////////////////////////////////////////

// response is the JSON envelope returned by the endpoint.
type response struct {
	Code       int                 `json:"code"`
	Desc       string              `json:"desc"`
	ColumnMeta [][]json.RawMessage `json:"column_meta"`
	Data       [][]any             `json:"data"`
	Rows       int                 `json:"rows"`
}

// Query POSTs sql to the endpoint.
func (c *REST) Query(ctx context.Context, sql string) (*Result, error) {
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, []byte(sql))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.opts.Token == "" && c.opts.User != "" {
		req.SetBasicAuth(c.opts.User, c.opts.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("query interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("POST %s: %w", c.redactedEndpoint(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("query interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}

	res, err := decodeResponse(resp.StatusCode, body)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// Close releases idle HTTP connections.
func (c *REST) Close() error {
	c.http.HTTPClient.CloseIdleConnections()
	return nil
}

// redactedEndpoint returns the endpoint without its token.
func (c *REST) redactedEndpoint() string {
	if i := strings.IndexByte(c.endpoint, '?'); i >= 0 {
		return c.endpoint[:i]
	}
	return c.endpoint
}

// decodeResponse turns a response body into a Result, mapping non-zero codes
// to [ErrQueryFailed].
func decodeResponse(status int, body []byte) (*Result, error) {
	var r response
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		if status != http.StatusOK {
			return nil, fmt.Errorf("%w: http status %d", ErrQueryFailed, status)
		}
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if r.Code != 0 {
		return nil, fmt.Errorf("%w: [0x%04x] %s", ErrQueryFailed, r.Code, r.Desc)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: http status %d", ErrQueryFailed, status)
	}

	cols, err := parseColumns(r.ColumnMeta)
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols, Rows: r.Data}
	if len(cols) == 1 && cols[0].Name == "affected_rows" && len(r.Data) == 1 && len(r.Data[0]) == 1 {
		n, _ := strconv.ParseInt(fmt.Sprint(r.Data[0][0]), 10, 64)
		res.Affected = n
		res.Columns = nil
		res.Rows = nil
		res.IsUpdate = true
	}
	return res, nil
}

// parseColumns decodes [name, type, length] triples. The type is a string in
// v3 responses and a numeric type code in v2.
func parseColumns(meta [][]json.RawMessage) ([]Column, error) {
	cols := make([]Column, 0, len(meta))
	for i, m := range meta {
		if len(m) < 2 {
			return nil, fmt.Errorf("column %d: malformed metadata", i)
		}
		var col Column
		if err := json.Unmarshal(m[0], &col.Name); err != nil {
			return nil, fmt.Errorf("column %d name: %w", i, err)
		}
		var typ any
		if err := json.Unmarshal(m[1], &typ); err != nil {
			return nil, fmt.Errorf("column %d type: %w", i, err)
		}
		col.Type = fmt.Sprint(typ)
		if len(m) > 2 {
			if err := json.Unmarshal(m[2], &col.Length); err != nil {
				return nil, fmt.Errorf("column %d length: %w", i, err)
			}
		}
		cols = append(cols, col)
	}
	return cols, nil
}

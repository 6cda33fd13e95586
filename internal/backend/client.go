package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"modeldash/pkg/types"
)

const (
	defaultConnectTimeout = 5 * time.Second
	maxErrorBody          = 4096
	maxStreamLine         = 1 << 20
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL of the daemon, e.g. http://localhost:11434. A missing scheme
	// defaults to http.
	BaseURL string
	// ConnectTimeout bounds dialing only. Zero uses 5s.
	ConnectTimeout time.Duration
	// RequestTimeout bounds non-streaming calls. Zero means no timeout; the
	// caller's context is the only deadline.
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// Client implements Backend over the daemon's HTTP API.
type Client struct {
	baseURL    string
	reqTimeout time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

var _ Backend = (*Client)(nil)

// NormalizeURL trims trailing slashes and prefixes http:// when no scheme is set.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u != "" && !strings.Contains(u, "://") {
		u = "http://" + u
	}
	return strings.TrimRight(u, "/")
}

// NewClient constructs an HTTP client for the daemon at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = defaultConnectTimeout
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: pull/create stream for minutes, deadlines come from contexts.
	return &Client{
		baseURL:    NormalizeURL(cfg.BaseURL),
		reqTimeout: cfg.RequestTimeout,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
		log:        cfg.Logger.With().Str("component", "backend").Logger(),
	}
}

// BaseURL returns the normalized daemon address.
func (c *Client) BaseURL() string { return c.baseURL }

// Version returns the daemon version. It is used as a connectivity check at startup.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out wireVersion
	if err := c.doJSON(ctx, "version", http.MethodGet, "/api/version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

func (c *Client) ListInstalled(ctx context.Context) ([]types.InstalledModel, error) {
	var out wireListResponse
	if err := c.doJSON(ctx, "list", http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	models := make([]types.InstalledModel, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, m.toInstalled())
	}
	return models, nil
}

func (c *Client) ListRunning(ctx context.Context) ([]types.RunningModel, error) {
	var out wireProcessResponse
	if err := c.doJSON(ctx, "ps", http.MethodGet, "/api/ps", nil, &out); err != nil {
		return nil, err
	}
	models := make([]types.RunningModel, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, m.toRunning())
	}
	return models, nil
}

func (c *Client) Show(ctx context.Context, name string) (types.DetailRecord, error) {
	var out wireShowResponse
	if err := c.doJSON(ctx, "show", http.MethodPost, "/api/show", wireModelRequest{Model: name}, &out); err != nil {
		return types.DetailRecord{}, err
	}
	return out.toDetail(name), nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.doJSON(ctx, "delete", http.MethodDelete, "/api/delete", wireModelRequest{Model: name}, nil)
}

func (c *Client) Pull(ctx context.Context, name string) iter.Seq2[types.ProgressEvent, error] {
	return c.stream(ctx, "pull", "/api/pull", wirePullRequest{Model: name, Stream: true})
}

func (c *Client) Create(ctx context.Context, name, modelfile string) iter.Seq2[types.ProgressEvent, error] {
	return c.stream(ctx, "create", "/api/create", wireCreateRequest{Model: name, Modelfile: modelfile, Stream: true})
}

// doJSON performs one request/response exchange. out may be nil when the body
// is ignored.
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	if c.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reqTimeout)
		defer cancel()
	}
	resp, err := c.send(ctx, op, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ErrUnavailable(op, ctx.Err())
		}
		return ErrBackend(op, 0, "malformed response: "+err.Error())
	}
	return nil
}

// send issues the request and checks the status. On success the caller owns
// resp.Body.
func (c *Client) send(ctx context.Context, op, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, ErrUnavailable(op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrUnavailable(op, ctx.Err())
		}
		return nil, ErrUnavailable(op, err)
	}
	c.log.Debug().Str("op", op).Str("path", path).Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("backend call")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, ErrBackend(op, resp.StatusCode, errorMessage(b, resp.Status))
	}
	return resp, nil
}

func errorMessage(body []byte, status string) string {
	var we wireError
	if err := json.Unmarshal(body, &we); err == nil && we.Error != "" {
		return we.Error
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return status
}

var errStreamConsumed = errors.New("progress stream already consumed")

// stream returns a lazy, single-use sequence over the daemon's NDJSON progress
// lines. An error ends the sequence: it is yielded once as the final element.
func (c *Client) stream(ctx context.Context, op, path string, in any) iter.Seq2[types.ProgressEvent, error] {
	var used atomic.Bool
	return func(yield func(types.ProgressEvent, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(types.ProgressEvent{}, ErrBackend(op, 0, errStreamConsumed.Error()))
			return
		}
		resp, err := c.send(ctx, op, http.MethodPost, path, in)
		if err != nil {
			yield(types.ProgressEvent{}, err)
			return
		}
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var p wireProgress
			if err := json.Unmarshal(line, &p); err != nil {
				yield(types.ProgressEvent{}, ErrBackend(op, 0, "malformed progress line: "+err.Error()))
				return
			}
			if p.Error != "" {
				yield(types.ProgressEvent{}, ErrBackend(op, 0, p.Error))
				return
			}
			if !yield(p.toEvent(), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			yield(types.ProgressEvent{}, ErrUnavailable(op, err))
		}
	}
}

// Package backend is the HTTP client for Ollama-compatible inference
// backends: non-streaming POST /api/generate and the GET /api/tags liveness
// check.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultConnectTimeout = 1 * time.Second
	DefaultRequestTimeout = 60 * time.Second
	DefaultTemperature    = 0.7
	DefaultTopP           = 0.9
)

// Options are sampling parameters forwarded to /api/generate. A nil
// Temperature or TopP takes the default; a pointer to 0 is sent as 0.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

// Float64 returns a pointer to v, for Options literals.
func Float64(v float64) *float64 { return &v }

// GenerateRequest is the /api/generate payload. Stream is always false.
type GenerateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateResponse struct {
	Model    string  `json:"model"`
	Response *string `json:"response"`
	Done     bool    `json:"done"`
	Error    string  `json:"error"`
}

// Config encapsulates Client tunables.
type Config struct {
	ConnectTimeout time.Duration
	// RequestTimeout bounds one Generate call. Zero uses the default.
	RequestTimeout time.Duration
	Options        Options
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
}

// Client talks to Ollama-compatible backends. One Client serves every slot;
// the target address is passed per call.
type Client struct {
	httpClient *http.Client
	reqTimeout time.Duration
	options    Options
	log        zerolog.Logger
}

// NewClient builds a Client from cfg, applying defaults.
func NewClient(cfg Config) *Client {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connect,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		// Deadlines come from the request context.
		hc = &http.Client{Transport: tr}
	}
	c := &Client{httpClient: hc, reqTimeout: cfg.RequestTimeout, options: cfg.Options}
	if c.reqTimeout <= 0 {
		c.reqTimeout = DefaultRequestTimeout
	}
	if c.options.Temperature == nil {
		c.options.Temperature = Float64(DefaultTemperature)
	}
	if c.options.TopP == nil {
		c.options.TopP = Float64(DefaultTopP)
	}
	if cfg.Logger != nil {
		c.log = *cfg.Logger
	} else {
		c.log = zerolog.Nop()
	}
	return c
}

// RequestTimeout returns the per-call deadline applied by Generate.
func (c *Client) RequestTimeout() time.Duration { return c.reqTimeout }

func baseURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

// Generate posts prompt to addr's /api/generate and returns the response
// text. Any transport error, non-2xx status, undecodable body or missing
// "response" field is reported as a generation failure. Context errors are
// returned as-is.
func (c *Client) Generate(ctx context.Context, addr, model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.reqTimeout)
	defer cancel()

	body, err := json.Marshal(GenerateRequest{Model: model, Prompt: prompt, Stream: false, Options: c.options})
	if err != nil {
		return "", generationError{addr: addr, err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(addr)+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", generationError{addr: addr, err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	startTs := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", ctxErr
		}
		return "", generationError{addr: addr, err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", generationError{addr: addr, status: resp.StatusCode, err: fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(b)))}
	}
	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&out); err != nil {
		return "", generationError{addr: addr, status: resp.StatusCode, err: fmt.Errorf("decode: %w", err)}
	}
	if out.Error != "" {
		return "", generationError{addr: addr, status: resp.StatusCode, err: errors.New(out.Error)}
	}
	if out.Response == nil {
		return "", generationError{addr: addr, status: resp.StatusCode, err: errors.New("payload has no response field")}
	}
	c.log.Debug().Str("addr", addr).Str("model", model).Dur("dur", time.Since(startTs)).Int("bytes", len(*out.Response)).Msg("backend event=generate")
	return *out.Response, nil
}

// Healthy reports whether addr answers GET /api/tags with 200.
func (c *Client) Healthy(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(addr)+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

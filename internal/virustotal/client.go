// Package virustotal is a minimal client for the VirusTotal v3 IP address
// and URL report endpoints.
package virustotal

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
	"github.com/Ashfaaq98/vt-lookup/internal/validate"
)

// DefaultBaseURL is the public v3 API root.
const DefaultBaseURL = "https://www.virustotal.com/api/v3"

const maxBodyBytes = 4 << 20

// Client performs one lookup for one identifier.
type Client interface {
	Lookup(ctx context.Context, identifier string) (*LookupResponse, error)
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Identifier string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("virustotal lookup of %q failed: HTTP %d", e.Identifier, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Options configure the shared HTTP plumbing of a client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewHTTPClient builds the transport shared by all lookups of a run.
func NewHTTPClient(timeout time.Duration, verifyTLS bool) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     30 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if !verifyTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// base holds what the IP and URL clients share.
type base struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func newBase(opts Options) base {
	b := base{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		logger:     logging.OrNop(opts.Logger),
	}
	if b.baseURL == "" {
		b.baseURL = DefaultBaseURL
	}
	if b.httpClient == nil {
		b.httpClient = NewHTTPClient(0, true)
	}
	return b
}

func (b base) get(ctx context.Context, identifier, path string) (*LookupResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", identifier, err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-apikey", b.apiKey)

	start := time.Now()
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("virustotal lookup of %q: %w", identifier, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response for %q: %w", identifier, err)
	}
	logging.FromContext(ctx, b.logger).Debug("VirusTotal response",
		zap.String("identifier", identifier),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Identifier: identifier,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), 256),
		}
	}

	var out LookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response for %q: %w", identifier, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response for %q: %w", identifier, err)
	}
	return &out, nil
}

// IPClient looks up IP address reports.
type IPClient struct {
	base
}

func NewIPClient(opts Options) *IPClient {
	return &IPClient{base: newBase(opts)}
}

func (c *IPClient) Lookup(ctx context.Context, identifier string) (*LookupResponse, error) {
	return c.get(ctx, identifier, "/ip_addresses/"+url.PathEscape(identifier))
}

// URLClient looks up URL reports. The API keys URLs by their unpadded
// base64url encoding.
type URLClient struct {
	base
}

func NewURLClient(opts Options) *URLClient {
	return &URLClient{base: newBase(opts)}
}

func (c *URLClient) Lookup(ctx context.Context, identifier string) (*LookupResponse, error) {
	return c.get(ctx, identifier, "/urls/"+URLID(identifier))
}

// URLID returns the identifier the API uses for a URL.
func URLID(u string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(u))
}

// New returns the client for a lookup kind.
func New(kind string, opts Options) (Client, error) {
	switch kind {
	case validate.KindIP:
		return NewIPClient(opts), nil
	case validate.KindURL:
		return NewURLClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown lookup kind %q", kind)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package transport implements the HTTPS transport layer for connector messages
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// Recommended TLS 1.2 cipher suites
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// Failure classes returned by Send. Every error from Send wraps exactly one.
var (
	// ErrTimeout is returned when the peer did not answer in time
	ErrTimeout = errors.New("transport timeout")
	// ErrUnreachable is returned when no connection to the peer could be made
	ErrUnreachable = errors.New("peer unreachable")
	// ErrTransport is returned for any other transmission failure
	ErrTransport = errors.New("transport error")
)

// HTTPSConfig contains HTTPS client/server configuration
type HTTPSConfig struct {
	MinTLSVersion   uint16
	MaxTLSVersion   uint16
	CipherSuites    []uint16
	ClientAuth      tls.ClientAuthType
	Certificates    []tls.Certificate
	RootCAs         *x509.CertPool
	ClientCAs       *x509.CertPool
	Timeout         time.Duration
	IdleConnTimeout time.Duration

	// Breaker trips after this many consecutive failures towards one host.
	// Zero disables the breaker.
	BreakerMaxFailures uint32
	// BreakerOpenTimeout is how long a tripped breaker rejects calls
	BreakerOpenTimeout time.Duration
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:      TLS12,
		MaxTLSVersion:      TLS13,
		CipherSuites:       RecommendedTLS12CipherSuites,
		ClientAuth:         tls.NoClientCert,
		Timeout:            30 * time.Second,
		IdleConnTimeout:    90 * time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

// TLSConfig builds the server side TLS configuration
func (c *HTTPSConfig) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   c.MinTLSVersion,
		MaxVersion:   c.MaxTLSVersion,
		CipherSuites: c.CipherSuites,
		Certificates: c.Certificates,
		ClientCAs:    c.ClientCAs,
		ClientAuth:   c.ClientAuth,
	}
}

// Response is a raw reply from a peer
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// HTTPSClient handles message transmission over HTTPS
type HTTPSClient struct {
	client *http.Client
	config *HTTPSConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTPSClient creates a new HTTPS client
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	if config == nil {
		config = DefaultHTTPSConfig()
	}

	tlsConfig := &tls.Config{
		MinVersion:   config.MinTLSVersion,
		MaxVersion:   config.MaxTLSVersion,
		CipherSuites: config.CipherSuites,
		Certificates: config.Certificates,
		RootCAs:      config.RootCAs,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Send posts body to endpoint and returns the peer's reply.
// Send never retries; a failure is classified and returned immediately.
func (c *HTTPSClient) Send(ctx context.Context, endpoint string, body []byte, contentType string) (*Response, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid endpoint %q", ErrUnreachable, endpoint)
	}

	cb := c.breaker(u.Host)
	if cb == nil {
		return c.do(ctx, endpoint, body, contentType)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return c.do(ctx, endpoint, body, contentType)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit open for %s", ErrUnreachable, u.Host)
	}
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (c *HTTPSClient) do(ctx context.Context, endpoint string, body []byte, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "dataspace-connector/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status code %d: %s", ErrTransport, resp.StatusCode, truncate(responseBody, 256))
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        responseBody,
	}, nil
}

func (c *HTTPSClient) breaker(host string) *gobreaker.CircuitBreaker {
	if c.config.BreakerMaxFailures == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	maxFailures := c.config.BreakerMaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: c.config.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// only connectivity problems count against the peer
			return err == nil || !(errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable))
		},
	})
	c.breakers[host] = cb
	return cb
}

// classify maps a client error onto one of the transport failure classes
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

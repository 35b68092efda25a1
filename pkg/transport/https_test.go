package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultHTTPSConfig(t *testing.T) {
	config := DefaultHTTPSConfig()

	if config == nil {
		t.Fatal("expected non-nil config")
	}

	if config.MinTLSVersion != TLS12 {
		t.Errorf("expected MinTLSVersion TLS12, got %d", config.MinTLSVersion)
	}
	if config.MaxTLSVersion != TLS13 {
		t.Errorf("expected MaxTLSVersion TLS13, got %d", config.MaxTLSVersion)
	}
	if len(config.CipherSuites) == 0 {
		t.Error("expected CipherSuites to be set")
	}
	if config.ClientAuth != tls.NoClientCert {
		t.Errorf("expected NoClientCert, got %d", config.ClientAuth)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("expected Timeout 30s, got %v", config.Timeout)
	}
	if config.BreakerMaxFailures != 5 {
		t.Errorf("expected BreakerMaxFailures 5, got %d", config.BreakerMaxFailures)
	}
}

func TestHTTPSConfig_TLSConfig(t *testing.T) {
	config := DefaultHTTPSConfig()
	config.ClientAuth = tls.RequireAndVerifyClientCert

	tlsConfig := config.TLSConfig()
	if tlsConfig.MinVersion != TLS12 {
		t.Errorf("expected MinVersion TLS12, got %d", tlsConfig.MinVersion)
	}
	if tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("expected client auth to carry over")
	}
}

func TestNewHTTPSClient_NilConfig(t *testing.T) {
	client := NewHTTPSClient(nil)

	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if client.client == nil {
		t.Error("expected http.Client to be initialized")
	}
	if client.config == nil {
		t.Error("expected config to be set to default")
	}
}

func TestHTTPSClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "multipart/form-data; boundary=x" {
			t.Errorf("unexpected content-type '%s'", ct)
		}

		w.Header().Set("Content-Type", "multipart/form-data; boundary=y")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("reply"))
	}))
	defer server.Close()

	client := NewHTTPSClient(nil)

	response, err := client.Send(context.Background(), server.URL, []byte("request"), "multipart/form-data; boundary=x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(response.Body) != "reply" {
		t.Errorf("unexpected response: %s", string(response.Body))
	}
	if response.ContentType != "multipart/form-data; boundary=y" {
		t.Errorf("unexpected content type: %s", response.ContentType)
	}
	if response.StatusCode != http.StatusOK {
		t.Errorf("unexpected status: %d", response.StatusCode)
	}
}

func TestHTTPSClient_Send_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewHTTPSClient(nil)

	_, err := client.Send(context.Background(), server.URL, []byte("request"), "text/plain")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestHTTPSClient_Send_InvalidEndpoint(t *testing.T) {
	client := NewHTTPSClient(nil)

	_, err := client.Send(context.Background(), "not a url", []byte("request"), "text/plain")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestHTTPSClient_Send_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := NewHTTPSClient(nil)

	_, err := client.Send(context.Background(), endpoint, []byte("request"), "text/plain")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestHTTPSClient_Send_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPSClient(&HTTPSConfig{Timeout: 50 * time.Millisecond})

	_, err := client.Send(context.Background(), server.URL, []byte("request"), "text/plain")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestHTTPSClient_Send_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPSClient(&HTTPSConfig{Timeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, server.URL, []byte("request"), "text/plain")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestHTTPSClient_BreakerOpensAfterFailures(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPSClient(&HTTPSConfig{
		Timeout:            20 * time.Millisecond,
		BreakerMaxFailures: 2,
		BreakerOpenTimeout: time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := client.Send(context.Background(), server.URL, []byte("request"), "text/plain")
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("attempt %d: expected ErrTimeout, got %v", i, err)
		}
	}

	_, err := client.Send(context.Background(), server.URL, []byte("request"), "text/plain")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable from open breaker, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("expected 2 requests to reach the server, got %d", n)
	}
}

func TestHTTPSClient_BreakerIgnoresStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPSClient(&HTTPSConfig{
		Timeout:            time.Second,
		BreakerMaxFailures: 1,
		BreakerOpenTimeout: time.Minute,
	})

	for i := 0; i < 3; i++ {
		_, err := client.Send(context.Background(), server.URL, []byte("request"), "text/plain")
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("attempt %d: expected ErrTransport, got %v", i, err)
		}
	}
}

package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewServer(t *testing.T) {
	server := NewServer(":8080", http.NotFoundHandler())

	if server == nil {
		t.Fatal("expected server to be created")
	}

	if server.Addr() != ":8080" {
		t.Errorf("expected addr :8080, got %s", server.Addr())
	}

	if server.httpServer == nil {
		t.Error("expected httpServer to be initialized")
	}

	if server.httpServer.ReadHeaderTimeout == 0 {
		t.Error("expected a read header timeout")
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	// Use a random available port
	server := NewServer("127.0.0.1:0", http.NotFoundHandler())

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	// Shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}

	// Check for start errors
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("server start error: %v", err)
		}
	case <-time.After(1 * time.Second):
		// Server started and shutdown successfully
	}
}

func TestServerServe(t *testing.T) {
	env := newTestEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := NewServer(ln.Addr().String(), env.handler)

	done := make(chan error, 1)
	go func() { done <- server.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, body %s", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v after shutdown", err)
	}
}

func TestServerShutdownNilServer(t *testing.T) {
	server := &Server{}

	ctx := context.Background()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("expected nil error for nil httpServer, got: %v", err)
	}
}

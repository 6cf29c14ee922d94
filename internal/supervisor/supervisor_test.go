package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"
)

type fakeServer struct {
	mu       sync.Mutex
	started  chan struct{}
	stop     chan struct{}
	shutdown bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{started: make(chan struct{}), stop: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	close(f.started)
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	close(f.stop)
	return nil
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	srv := newFakeServer()
	svc := newHTTPService(srv, ":0", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.shutdown {
		t.Error("Shutdown was not called")
	}
}

type failingServer struct{}

func (failingServer) ListenAndServe() error          { return errors.New("bind: address in use") }
func (failingServer) Shutdown(context.Context) error { return nil }

func TestHTTPServiceReportsListenFailure(t *testing.T) {
	svc := newHTTPService(failingServer{}, ":0", time.Second)
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("Serve() should return the listen error")
	}
}

type countingService struct {
	ran chan struct{}
}

func (c *countingService) Serve(ctx context.Context) error {
	close(c.ran)
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeRunsServices(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tree := NewTree(logger, TreeConfig{})

	api := &countingService{ran: make(chan struct{})}
	bg := &countingService{ran: make(chan struct{})}
	tree.AddAPIService(api)
	tree.AddMaintenanceService(bg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tree.Serve(ctx) }()

	for _, ch := range []chan struct{}{api.ran, bg.ran} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("service did not start")
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}
}

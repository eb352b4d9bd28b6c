package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// httpService runs the API server under the supervisor. The first Serve uses the
// listener bound by Start; restarts bind the same address again.
type httpService struct {
	server          *http.Server
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
}

func newHTTPService(server *http.Server, listener net.Listener, shutdownTimeout time.Duration) *httpService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &httpService{server: server, listener: listener, shutdownTimeout: shutdownTimeout}
}

func (h *httpService) takeListener() (net.Listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		ln := h.listener
		h.listener = nil
		return ln, nil
	}
	return net.Listen("tcp", h.server.Addr)
}

func (h *httpService) Serve(ctx context.Context) error {
	ln, err := h.takeListener()
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpService) String() string {
	return "http-server"
}

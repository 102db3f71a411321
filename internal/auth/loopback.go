package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"dvbox/internal/dverrors"
	"dvbox/pkg/logging"
)

// callbackResult is what the identity provider delivered to the
// redirect URI, before any validation.
type callbackResult struct {
	Code             string
	State            string
	ErrorCode        string
	ErrorDescription string
}

type outcomeKind int

const (
	outcomePending outcomeKind = iota
	outcomeSuccess
	outcomeError
)

// loopbackServer is the ephemeral HTTP listener for one interactive
// sign-in. It serves three things on "/": the provider redirect (query
// carries code or error), the interstitial validating page, and the
// final outcome page the interstitial polls for.
//
// At most one loopback server exists per process; the engine closes
// any previous instance and waits for its port release before starting
// a new one.
type loopbackServer struct {
	listener net.Listener
	server   *http.Server
	port     int

	resultOnce sync.Once
	resultCh   chan callbackResult

	// touched flips when any browser request arrives; without it there
	// is nothing to keep the final page alive for on Close.
	touched atomic.Bool

	mu           sync.Mutex
	outcome      outcomeKind
	outcomeMsg   string
	outcomeReady chan struct{}

	servedOnce sync.Once
	pageServed chan struct{}

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// startLoopbackServer binds 127.0.0.1 on an OS-assigned port and begins
// serving.
func startLoopbackServer() (*loopbackServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("start loopback listener: %w", err)
	}

	s := &loopbackServer{
		listener:     listener,
		port:         listener.Addr().(*net.TCPAddr).Port,
		resultCh:     make(chan callbackResult, 1),
		outcomeReady: make(chan struct{}),
		pageServed:   make(chan struct{}),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Debug("Auth", "Loopback server exited: %v", err)
		}
	}()

	logging.Debug("Auth", "Loopback server listening on 127.0.0.1:%d", s.port)
	return s, nil
}

// RedirectURI is the exact redirect_uri sent on the authorization
// request; the provider must match it byte for byte on the exchange.
func (s *loopbackServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.port)
}

func (s *loopbackServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.touched.Store(true)
	if r.URL.Path != "/" {
		// Browsers probe /favicon.ico; nothing else is served here.
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	switch {
	case query.Get("error") != "":
		result := callbackResult{
			ErrorCode:        query.Get("error"),
			ErrorDescription: query.Get("error_description"),
			State:            query.Get("state"),
		}
		// A provider error ends the flow here; this response is the
		// final page, so Close has nothing more to wait for.
		writeErrorPage(w, providerErrorMessage(result))
		s.servedOnce.Do(func() { close(s.pageServed) })
		s.deliver(result)

	case query.Get("code") != "":
		// Respond immediately so the user sees progress while the code
		// exchange and environment probe run.
		writeValidatingPage(w)
		s.deliver(callbackResult{Code: query.Get("code"), State: query.Get("state")})

	default:
		s.serveOutcome(w, r)
	}
}

// serveOutcome blocks the interstitial's poll until the flow resolves,
// then renders the final page exactly once per flow outcome.
func (s *loopbackServer) serveOutcome(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.outcomeReady:
	case <-r.Context().Done():
		return
	case <-s.closing:
	}

	s.mu.Lock()
	outcome, msg := s.outcome, s.outcomeMsg
	s.mu.Unlock()

	switch outcome {
	case outcomeSuccess:
		writeSuccessPage(w)
	case outcomeError:
		writeErrorPage(w, msg)
	default:
		// Closing before any outcome: the flow was abandoned.
		writeErrorPage(w, "The sign-in attempt was cancelled.")
	}
	s.servedOnce.Do(func() { close(s.pageServed) })
}

// deliver hands the callback to the waiting flow. Only the first
// callback counts; a user refreshing the redirect URL is ignored.
func (s *loopbackServer) deliver(result callbackResult) {
	s.resultOnce.Do(func() {
		s.resultCh <- result
	})
}

// WaitForCallback blocks until the provider redirects back, the timer
// expires, or the context is cancelled.
func (s *loopbackServer) WaitForCallback(ctx context.Context, timeout time.Duration) (callbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultCh:
		return result, nil
	case <-timer.C:
		return callbackResult{}, dverrors.Newf(dverrors.KindTimeout,
			"interactive sign-in timed out after %s; run the sign-in again", timeout)
	case <-ctx.Done():
		return callbackResult{}, dverrors.Wrap(dverrors.KindAuthFailed, "interactive sign-in cancelled", ctx.Err())
	}
}

// Resolve records the final outcome for the interstitial's poll. The
// first resolution wins.
func (s *loopbackServer) Resolve(success bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != outcomePending {
		return
	}
	if success {
		s.outcome = outcomeSuccess
	} else {
		s.outcome = outcomeError
		s.outcomeMsg = message
	}
	close(s.outcomeReady)
}

// Close tears the server down: graceful shutdown first so an in-flight
// outcome page can finish, then forced connection close, then wait for
// the listener goroutine so the port is actually released. grace bounds
// how long we wait for the browser to collect the final page.
func (s *loopbackServer) Close(grace time.Duration) {
	s.closeOnce.Do(func() {
		close(s.closing)

		if grace > 0 && s.touched.Load() {
			select {
			case <-s.pageServed:
			case <-time.After(grace):
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			logging.Debug("Auth", "Loopback graceful shutdown: %v", err)
		}
		s.server.Close()
		s.listener.Close()
		<-s.done
		logging.Debug("Auth", "Loopback server on port %d closed", s.port)
	})
}

func providerErrorMessage(result callbackResult) string {
	if result.ErrorDescription != "" {
		return fmt.Sprintf("%s: %s", result.ErrorCode, result.ErrorDescription)
	}
	return result.ErrorCode
}

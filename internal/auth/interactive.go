package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"

	"dvbox/internal/connection"
	"dvbox/internal/dverrors"
	"dvbox/pkg/logging"
)

// acquireInteractive drives the authorization-code flow with a PKCE
// loopback redirect:
//
//	IDLE -> SERVER_STARTING -> AWAITING_CODE -> VALIDATING -> SUCCESS
//	                                                       -> FAILED / TIMED_OUT
//
// The loopback handler answers the provider redirect with an
// interstitial page, the code is exchanged, the new token is probed
// against WhoAmI, and only then does the browser get its final page.
func (e *Engine) acquireInteractive(ctx context.Context, conn *connection.Connection) (*TokenResult, error) {
	client, err := e.publicClientFor(conn)
	if err != nil {
		return nil, err
	}

	e.setState(StateServerStarting)
	srv, err := e.reserveLoopback()
	if err != nil {
		e.setState(StateFailed)
		return nil, err
	}
	defer e.releaseLoopback(srv)

	pkce, err := newPKCEPair()
	if err != nil {
		e.setState(StateFailed)
		return nil, dverrors.Wrap(dverrors.KindAuthFailed, "could not prepare the sign-in request", err)
	}
	state, err := newState()
	if err != nil {
		e.setState(StateFailed)
		return nil, dverrors.Wrap(dverrors.KindAuthFailed, "could not prepare the sign-in request", err)
	}

	scopes := defaultScopes(conn.URL)
	authURL := buildAuthorizeURL(e.authorityFor(conn), e.clientIDFor(conn), srv.RedirectURI(), scopes, pkce.Challenge, state, conn.Username)

	if err := e.browser.Open(authURL); err != nil {
		e.setState(StateFailed)
		return nil, dverrors.Wrap(dverrors.KindAuthFailed, "could not open the browser for sign-in", err)
	}

	e.setState(StateAwaitingCode)
	callback, err := srv.WaitForCallback(ctx, interactiveTimeout)
	if err != nil {
		if dverrors.IsKind(err, dverrors.KindTimeout) {
			e.setState(StateTimedOut)
		} else {
			e.setState(StateFailed)
		}
		srv.Resolve(false, "The sign-in attempt expired. Close this window and try again.")
		return nil, err
	}

	if callback.ErrorCode != "" {
		e.setState(StateFailed)
		// The handler already rendered the provider's message.
		srv.Resolve(false, providerErrorMessage(callback))
		return nil, dverrors.Newf(dverrors.KindAuthFailed, "sign-in was rejected: %s", providerErrorMessage(callback))
	}
	if callback.State != state {
		e.setState(StateFailed)
		srv.Resolve(false, "The sign-in response did not match this request.")
		return nil, dverrors.New(dverrors.KindAuthFailed,
			"authorization response state mismatch; discard the browser tab and sign in again")
	}

	e.setState(StateValidating)
	result, err := client.AcquireTokenByAuthCode(ctx, callback.Code, srv.RedirectURI(), scopes,
		public.WithChallenge(pkce.Verifier))
	if err != nil {
		e.setState(StateFailed)
		srv.Resolve(false, "The authorization code could not be exchanged. Close this window and try again.")
		return nil, mapAuthError("code exchange failed", err)
	}

	who, err := e.ValidateEnvironmentAccess(ctx, conn.URL, result.AccessToken)
	if err != nil {
		e.setState(StateFailed)
		srv.Resolve(false, pageMessage(err))
		return nil, err
	}

	srv.Resolve(true, "")
	e.setState(StateSucceeded)
	logging.Info("Auth", "Interactive sign-in validated (user %s)", who.UserID)

	return &TokenResult{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
		AccountID:   result.Account.HomeAccountID,
	}, nil
}

// reserveLoopback enforces the one-server-per-process rule: any prior
// server is closed and its port release awaited before the new one
// starts.
func (e *Engine) reserveLoopback() (*loopbackServer, error) {
	e.mu.Lock()
	prior := e.loopback
	e.loopback = nil
	e.mu.Unlock()

	if prior != nil {
		logging.Debug("Auth", "Closing previous loopback server before starting a new flow")
		prior.Close(0)
	}

	srv, err := startLoopbackServer()
	if err != nil {
		return nil, dverrors.Wrap(dverrors.KindAuthFailed, "could not start the local sign-in listener", err)
	}

	e.mu.Lock()
	e.loopback = srv
	e.mu.Unlock()
	return srv, nil
}

// releaseLoopback closes the server with enough grace for the browser
// to collect the final page.
func (e *Engine) releaseLoopback(srv *loopbackServer) {
	srv.Close(3 * time.Second)
	e.mu.Lock()
	if e.loopback == srv {
		e.loopback = nil
	}
	e.mu.Unlock()
}

// buildAuthorizeURL assembles the /authorize request. The library's
// URL builder has no PKCE hook, so the request is built directly and
// the verifier is supplied again at exchange time.
func buildAuthorizeURL(authority, clientID, redirectURI string, scopes []string, challenge, state, loginHint string) string {
	values := url.Values{}
	values.Set("client_id", clientID)
	values.Set("response_type", "code")
	values.Set("redirect_uri", redirectURI)
	values.Set("response_mode", "query")
	values.Set("scope", strings.Join(scopes, " "))
	values.Set("state", state)
	values.Set("code_challenge", challenge)
	values.Set("code_challenge_method", "S256")
	values.Set("prompt", "select_account")
	if loginHint != "" {
		values.Set("login_hint", loginHint)
	}
	return fmt.Sprintf("%s/oauth2/v2.0/authorize?%s", strings.TrimRight(authority, "/"), values.Encode())
}

// pageMessage picks the short classified message for the browser page,
// falling back to the raw error text.
func pageMessage(err error) string {
	var de *dverrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

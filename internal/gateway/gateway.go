package gateway

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"dvbox/internal/auth"
	"dvbox/internal/connection"
	"dvbox/internal/dverrors"
	"dvbox/pkg/logging"
)

// tokenExpiryWindow is the preemptive refresh margin. A token expiring
// inside this window is refreshed before use so a long-running request
// does not outlive a token that was valid when it started.
const tokenExpiryWindow = 5 * time.Minute

// AuthProvider is the slice of the auth engine the gateway drives.
type AuthProvider interface {
	Authenticate(ctx context.Context, conn *connection.Connection) (*auth.TokenResult, error)
	AcquireSilent(ctx context.Context, conn *connection.Connection) (*auth.TokenResult, error)
	HasCachedAccount(ctx context.Context, conn *connection.Connection) bool
	RefreshWithToken(ctx context.Context, conn *connection.Connection) (*auth.TokenResult, error)
	Cleanup()
}

// Gateway hands out usable access tokens. It is the single writer of
// token fields: every acquisition and refresh funnels through it so the
// {access, refresh, expiry, account} set stays coherent on the record.
type Gateway struct {
	store *connection.Store
	auth  AuthProvider

	// group deduplicates concurrent acquisitions per connection so two
	// parallel operations cannot run duplicate flows.
	group singleflight.Group

	now func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock substitutes the time source used for expiry-window checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a gateway over the given store and auth provider.
func New(store *connection.Store, provider AuthProvider, opts ...Option) *Gateway {
	g := &Gateway{
		store: store,
		auth:  provider,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// usableToken pairs the connection snapshot with the token to present.
type usableToken struct {
	conn  *connection.Connection
	token string
}

// GetUsableToken returns the connection and an access token ready to
// present to Dataverse, refreshing or re-acquiring as needed. The first
// matching branch wins:
//
//  1. interactive with a cached account: silent acquisition, or
//     reauth-required when the account is gone.
//  2. clientSecret: re-acquire when absent, expired, or inside the
//     expiry window; else return the stored token.
//  3. usernamePassword: silent via cached account when recorded, else a
//     legacy refresh-token exchange inside the window.
//  4. interactive without an account but with a refresh token: legacy
//     exchange inside the window.
//  5. fallback: any stored token is returned as-is; with nothing stored
//     the caller must sign in.
func (g *Gateway) GetUsableToken(ctx context.Context, connectionID string) (*connection.Connection, string, error) {
	result, err, _ := g.group.Do(connectionID, func() (interface{}, error) {
		return g.acquire(ctx, connectionID)
	})
	if err != nil {
		return nil, "", err
	}
	usable := result.(*usableToken)
	return usable.conn, usable.token, nil
}

func (g *Gateway) acquire(ctx context.Context, connectionID string) (*usableToken, error) {
	conn, err := g.store.Get(connectionID)
	if err != nil {
		return nil, err
	}

	switch {
	case conn.AuthenticationType == connection.AuthInteractive && conn.MSALAccountID != "":
		return g.silentOrReauth(ctx, conn)

	case conn.AuthenticationType == connection.AuthClientSecret:
		if !g.needsRefresh(conn) {
			return g.finish(conn, conn.AccessToken)
		}
		logging.Debug("Gateway", "Re-acquiring app token for connection %s", conn.ID)
		result, err := g.auth.Authenticate(ctx, conn)
		if err != nil {
			return nil, err
		}
		return g.writeBack(conn, result)

	case conn.AuthenticationType == connection.AuthUsernamePassword:
		if conn.MSALAccountID != "" {
			return g.silentOrReauth(ctx, conn)
		}
		if g.needsRefresh(conn) && conn.RefreshToken != "" {
			return g.legacyRefresh(ctx, conn)
		}

	case conn.AuthenticationType == connection.AuthInteractive && conn.RefreshToken != "":
		if g.needsRefresh(conn) {
			return g.legacyRefresh(ctx, conn)
		}
	}

	// Whatever is stored is the best available; an expired token fails
	// at the service with a clearer message than guessing here would.
	if conn.AccessToken != "" {
		return g.finish(conn, conn.AccessToken)
	}
	return nil, dverrors.New(dverrors.KindReauthRequired,
		"no token available for this connection; sign in first")
}

// silentOrReauth redeems the connection's cached account. A missing
// account means the process restarted since sign-in: the stored tokens
// are stale and are cleared so the record reflects reality.
func (g *Gateway) silentOrReauth(ctx context.Context, conn *connection.Connection) (*usableToken, error) {
	if !g.auth.HasCachedAccount(ctx, conn) {
		logging.Info("Gateway", "Cached account for connection %s is gone, clearing stored tokens", conn.ID)
		if err := g.store.ClearTokens(conn.ID); err != nil {
			logging.Error("Gateway", err, "Failed to clear tokens for connection %s", conn.ID)
		}
		return nil, dverrors.New(dverrors.KindReauthRequired,
			"the cached sign-in for this connection is gone; sign in again")
	}

	result, err := g.auth.AcquireSilent(ctx, conn)
	if err != nil {
		return nil, err
	}
	return g.writeBack(conn, result)
}

// legacyRefresh exchanges the stored refresh token. Only connections
// signed in before account caching existed take this path.
func (g *Gateway) legacyRefresh(ctx context.Context, conn *connection.Connection) (*usableToken, error) {
	logging.Debug("Gateway", "Refreshing legacy token for connection %s", conn.ID)
	result, err := g.auth.RefreshWithToken(ctx, conn)
	if err != nil {
		return nil, err
	}
	return g.writeBack(conn, result)
}

// writeBack persists the acquisition result and returns the refreshed
// snapshot. Fields the flow did not produce keep their stored values so
// a silent acquisition cannot wipe a refresh token or account id.
func (g *Gateway) writeBack(conn *connection.Connection, result *auth.TokenResult) (*usableToken, error) {
	update := connection.TokenUpdate{
		AccessToken:   result.AccessToken,
		RefreshToken:  conn.RefreshToken,
		TokenExpiry:   result.ExpiresOn,
		MSALAccountID: conn.MSALAccountID,
	}
	if result.RefreshToken != "" {
		update.RefreshToken = result.RefreshToken
	}
	if result.AccountID != "" {
		update.MSALAccountID = result.AccountID
	}

	if err := g.store.UpdateTokens(conn.ID, update); err != nil {
		return nil, err
	}

	conn.AccessToken = update.AccessToken
	conn.RefreshToken = update.RefreshToken
	conn.TokenExpiry = connection.FormatInstant(update.TokenExpiry)
	if update.TokenExpiry.IsZero() {
		conn.TokenExpiry = ""
	}
	conn.MSALAccountID = update.MSALAccountID
	return g.finish(conn, update.AccessToken)
}

// finish stamps usage and hands the token out.
func (g *Gateway) finish(conn *connection.Connection, token string) (*usableToken, error) {
	at := g.now()
	if err := g.store.TouchLastUsed(conn.ID, at); err != nil {
		logging.Error("Gateway", err, "Failed to stamp last use for connection %s", conn.ID)
	} else {
		conn.LastUsedAt = connection.FormatInstant(at)
	}
	return &usableToken{conn: conn, token: token}, nil
}

// needsRefresh reports whether the stored token is absent, expired, or
// expiring inside the preemptive window.
func (g *Gateway) needsRefresh(conn *connection.Connection) bool {
	if conn.AccessToken == "" {
		return true
	}
	expiry, ok := conn.TokenExpiryTime()
	if !ok {
		return true
	}
	return !expiry.After(g.now().Add(tokenExpiryWindow))
}

// SignIn runs the connection's full authentication flow and persists
// the resulting tokens. This is the only entry point that may write a
// brand-new account id onto the record.
func (g *Gateway) SignIn(ctx context.Context, connectionID string) (*connection.Connection, error) {
	result, err, _ := g.group.Do(connectionID, func() (interface{}, error) {
		conn, err := g.store.Get(connectionID)
		if err != nil {
			return nil, err
		}
		tokens, err := g.auth.Authenticate(ctx, conn)
		if err != nil {
			return nil, err
		}
		return g.writeBack(conn, tokens)
	})
	if err != nil {
		return nil, err
	}
	return result.(*usableToken).conn, nil
}

// SignOut discards the connection's stored tokens. The account id is
// retained so a later silent sign-in can still find the cached account
// while the process lives.
func (g *Gateway) SignOut(connectionID string) error {
	return g.store.ClearTokens(connectionID)
}

// Shutdown quiesces the gateway: library caches are dropped and every
// stored access/refresh token is cleared, forcing a fresh flow on next
// launch. Account ids survive.
func (g *Gateway) Shutdown() {
	g.auth.Cleanup()
	if err := g.store.ClearAllTokens(); err != nil {
		logging.Error("Gateway", err, "Failed to clear stored tokens on shutdown")
	}
	logging.Info("Gateway", "Quiesced; caches and stored tokens cleared")
}

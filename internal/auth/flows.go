package auth

import (
	"context"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"

	"dvbox/internal/connection"
	"dvbox/internal/dverrors"
	"dvbox/pkg/logging"
)

// acquireClientCredential runs the client-credentials flow. The library
// caches app tokens per client, so the silent call is tried first and
// returns the same token until it nears expiry.
func (e *Engine) acquireClientCredential(ctx context.Context, conn *connection.Connection) (*TokenResult, error) {
	client, err := e.confidentialClientFor(conn)
	if err != nil {
		return nil, err
	}
	scopes := defaultScopes(conn.URL)

	result, err := client.AcquireTokenSilent(ctx, scopes)
	if err != nil {
		logging.Debug("Auth", "App token cache miss for %s, acquiring by credential", conn.ID)
		result, err = client.AcquireTokenByCredential(ctx, scopes)
		if err != nil {
			return nil, mapAuthError("client credential sign-in failed", err)
		}
	}

	// App-only tokens have no account and no refresh token.
	return &TokenResult{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
	}, nil
}

// acquireUsernamePassword runs the ROPC flow. Tenants commonly block it
// with MFA or Conditional Access, so failures are mapped to messages
// that tell the user what to change.
func (e *Engine) acquireUsernamePassword(ctx context.Context, conn *connection.Connection) (*TokenResult, error) {
	client, err := e.publicClientFor(conn)
	if err != nil {
		return nil, err
	}

	result, err := client.AcquireTokenByUsernamePassword(ctx, delegatedScopes(conn.URL), conn.Username, conn.Password)
	if err != nil {
		return nil, mapUsernamePasswordError(err)
	}

	return &TokenResult{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
		AccountID:   result.Account.HomeAccountID,
	}, nil
}

// AcquireSilent redeems the connection's cached account for a fresh
// token without user interaction. Every failure surfaces as
// reauth-required: the only fix is re-running the connection's flow.
func (e *Engine) AcquireSilent(ctx context.Context, conn *connection.Connection) (*TokenResult, error) {
	client, err := e.publicClientFor(conn)
	if err != nil {
		return nil, err
	}

	account, ok, err := e.findAccount(ctx, client, conn.MSALAccountID)
	if err != nil {
		return nil, dverrors.Wrap(dverrors.KindReauthRequired,
			"could not read the account cache; sign in again", err)
	}
	if !ok {
		return nil, dverrors.New(dverrors.KindReauthRequired,
			"no cached account for this connection; sign in again")
	}

	result, err := client.AcquireTokenSilent(ctx, silentScopes(conn), public.WithSilentAccount(account))
	if err != nil {
		return nil, dverrors.Wrap(dverrors.KindReauthRequired,
			"silent token acquisition failed; sign in again", err)
	}

	return &TokenResult{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
		AccountID:   result.Account.HomeAccountID,
	}, nil
}

// HasCachedAccount reports whether the public client still holds the
// account the connection recorded. A restart wipes the in-memory cache,
// which is the usual reason this goes false.
func (e *Engine) HasCachedAccount(ctx context.Context, conn *connection.Connection) bool {
	if conn.MSALAccountID == "" {
		return false
	}
	client, err := e.publicClientFor(conn)
	if err != nil {
		return false
	}
	_, ok, err := e.findAccount(ctx, client, conn.MSALAccountID)
	return err == nil && ok
}

// findAccount locates the cached account by home account id, falling
// back to the first account when no id is pinned.
func (e *Engine) findAccount(ctx context.Context, client public.Client, homeAccountID string) (public.Account, bool, error) {
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return public.Account{}, false, err
	}
	if homeAccountID != "" {
		for _, account := range accounts {
			if account.HomeAccountID == homeAccountID {
				return account, true, nil
			}
		}
		return public.Account{}, false, nil
	}
	if len(accounts) > 0 {
		return accounts[0], true, nil
	}
	return public.Account{}, false, nil
}

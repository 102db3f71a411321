package auth

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"dvbox/internal/connection"
	"dvbox/internal/dverrors"
)

// RefreshWithToken exchanges a stored refresh token at the common token
// endpoint. Only legacy connections that never recorded an MSAL account
// id take this path; account-cached flows refresh through the library.
func (e *Engine) RefreshWithToken(ctx context.Context, conn *connection.Connection) (*TokenResult, error) {
	if conn.RefreshToken == "" {
		return nil, dverrors.New(dverrors.KindReauthRequired, "no refresh token stored; sign in again")
	}

	conf := &oauth2.Config{
		ClientID: e.clientIDFor(conn),
		Endpoint: microsoft.AzureADEndpoint("common"),
		Scopes:   silentScopes(conn),
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, dverrors.Wrap(dverrors.KindReauthRequired, "refresh token exchange failed; sign in again", err)
	}

	result := &TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresOn:    token.Expiry,
	}
	if result.RefreshToken == "" {
		// The provider does not always rotate; keep presenting the one
		// that still works.
		result.RefreshToken = conn.RefreshToken
	}
	return result, nil
}

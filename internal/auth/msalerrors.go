package auth

import (
	"strings"

	"dvbox/internal/dverrors"
)

// mapUsernamePasswordError turns the identity platform's ROPC rejections
// into messages that say what to change. The AADSTS codes are stable;
// the text matches are a fallback for proxied or localized responses.
func mapUsernamePasswordError(err error) error {
	text := strings.ToLower(err.Error())

	switch {
	case strings.Contains(text, "aadsts50079"),
		strings.Contains(text, "mfa"),
		strings.Contains(text, "multi-factor authentication"):
		return dverrors.Wrap(dverrors.KindAuthFailed,
			"this account requires multi-factor authentication; switch the connection to interactive sign-in", err)

	case strings.Contains(text, "aadsts50076"),
		strings.Contains(text, "aadsts50158"),
		strings.Contains(text, "conditional access"),
		strings.Contains(text, "ca policy"):
		return dverrors.Wrap(dverrors.KindAuthFailed,
			"a Conditional Access policy blocks username/password sign-in; switch the connection to interactive sign-in", err)

	case strings.Contains(text, "aadsts50126"),
		strings.Contains(text, "invalid_grant"):
		return dverrors.Wrap(dverrors.KindAuthFailed,
			"invalid username or password", err)

	default:
		return mapAuthError("username/password sign-in failed", err)
	}
}

// mapAuthError wraps a library failure with a stable, user-safe prefix.
func mapAuthError(message string, err error) error {
	return dverrors.Wrap(dverrors.KindAuthFailed, message, err)
}

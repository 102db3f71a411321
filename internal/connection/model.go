package connection

import (
	"fmt"
	"strings"
	"time"

	"dvbox/internal/dverrors"
)

// AuthType selects which acquisition flow a connection uses.
type AuthType string

const (
	AuthInteractive      AuthType = "interactive"
	AuthClientSecret     AuthType = "clientSecret"
	AuthUsernamePassword AuthType = "usernamePassword"

	// AuthConnectionString is a transitional state. The settings UI
	// resolves it into one of the concrete types before any token
	// operation; reaching a token path with this type is a
	// configuration error.
	AuthConnectionString AuthType = "connectionString"
)

// Environment tags a connection for display and guard rails in the UI.
type Environment string

const (
	EnvDev        Environment = "Dev"
	EnvTest       Environment = "Test"
	EnvUAT        Environment = "UAT"
	EnvProduction Environment = "Production"
)

// Connection is one Dataverse environment plus the credentials and token
// state needed to call it. The JSON field names match the settings
// document shared with the desktop shell, which persists instants as
// RFC 3339 strings.
//
// SECURITY: ClientSecret, Password, AccessToken, and RefreshToken must
// never be logged or included in event payloads.
type Connection struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	URL                string      `json:"url"`
	Environment        Environment `json:"environment,omitempty"`
	AuthenticationType AuthType    `json:"authenticationType"`

	TenantID     string `json:"tenantId,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`

	AccessToken   string `json:"accessToken,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`
	TokenExpiry   string `json:"tokenExpiry,omitempty"`
	MSALAccountID string `json:"msalAccountId,omitempty"`
	LastUsedAt    string `json:"lastUsedAt,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate store state.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	dup := *c
	return &dup
}

// TokenExpiryTime parses the stored expiry. The second return is false
// when the expiry is absent or unparseable; both count as "no expiry".
func (c *Connection) TokenExpiryTime() (time.Time, bool) {
	if c.TokenExpiry == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, c.TokenExpiry)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// LastUsedTime parses the last-used instant, if any.
func (c *Connection) LastUsedTime() (time.Time, bool) {
	if c.LastUsedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, c.LastUsedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatInstant renders an instant the way the settings document stores
// them.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Validate checks the fields every connection needs regardless of flow.
func (c *Connection) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return dverrors.New(dverrors.KindConfiguration, "connection name is required")
	}
	if strings.TrimSpace(c.URL) == "" {
		return dverrors.New(dverrors.KindConfiguration, "environment URL is required")
	}
	if !strings.HasPrefix(strings.ToLower(c.URL), "https://") {
		return dverrors.Newf(dverrors.KindConfiguration, "environment URL must use https, got %q", c.URL)
	}
	return nil
}

// Authenticatable reports whether a token flow can run for this
// connection: the auth type must be concrete and the flow-required
// fields present.
func (c *Connection) Authenticatable() error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch c.AuthenticationType {
	case AuthInteractive:
		return nil
	case AuthClientSecret:
		var missing []string
		if c.ClientID == "" {
			missing = append(missing, "clientId")
		}
		if c.ClientSecret == "" {
			missing = append(missing, "clientSecret")
		}
		if c.TenantID == "" {
			missing = append(missing, "tenantId")
		}
		if len(missing) > 0 {
			return dverrors.Newf(dverrors.KindConfiguration,
				"client secret connection %q is missing %s", c.Name, strings.Join(missing, ", "))
		}
		return nil
	case AuthUsernamePassword:
		var missing []string
		if c.Username == "" {
			missing = append(missing, "username")
		}
		if c.Password == "" {
			missing = append(missing, "password")
		}
		if len(missing) > 0 {
			return dverrors.Newf(dverrors.KindConfiguration,
				"username/password connection %q is missing %s", c.Name, strings.Join(missing, ", "))
		}
		return nil
	case AuthConnectionString:
		return dverrors.New(dverrors.KindConfiguration,
			"connection string has not been resolved into a concrete auth type; edit the connection first")
	default:
		return dverrors.Newf(dverrors.KindConfiguration,
			"unknown authentication type %q", string(c.AuthenticationType))
	}
}

// String identifies the connection for logs without leaking secrets.
func (c *Connection) String() string {
	return fmt.Sprintf("%s (%s, %s)", c.Name, c.ID, c.AuthenticationType)
}

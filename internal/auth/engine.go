package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"github.com/hashicorp/go-cleanhttp"

	"dvbox/internal/connection"
	"dvbox/internal/dverrors"
	"dvbox/internal/httpclient"
	"dvbox/pkg/logging"
)

const (
	// DefaultPublicClientID is the well-known first-party app
	// registration Microsoft ships for Dataverse developer tooling.
	// Used when a connection does not bring its own client id.
	DefaultPublicClientID = "51f81489-12ee-4a9e-aaae-a2591f45987d"

	// DefaultTenant routes interactive and username/password sign-ins
	// that do not pin a tenant.
	DefaultTenant = "organizations"

	authorityHost = "https://login.microsoftonline.com/"

	// interactiveTimeout bounds how long the loopback server waits for
	// the provider redirect.
	interactiveTimeout = 5 * time.Minute
)

// TokenResult is what a completed acquisition yields. RefreshToken is
// empty whenever the library manages refresh internally through its
// account cache; AccountID is set only by flows that produced a
// cacheable account.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresOn    time.Time
	AccountID    string
}

// FlowState tracks the interactive sign-in state machine, mainly so
// UIs can narrate progress.
type FlowState int

const (
	StateIdle FlowState = iota
	StateServerStarting
	StateAwaitingCode
	StateValidating
	StateSucceeded
	StateFailed
	StateTimedOut
)

// String makes FlowState satisfy the fmt.Stringer interface.
func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateServerStarting:
		return "starting local server"
	case StateAwaitingCode:
		return "waiting for browser sign-in"
	case StateValidating:
		return "validating access"
	case StateSucceeded:
		return "signed in"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Engine owns token acquisition. Public and confidential clients are
// cached per connection id, never per tenant, so two connections
// sharing an app registration cannot see each other's accounts.
type Engine struct {
	httpClient      *http.Client
	api             *httpclient.Client
	browser         Opener
	defaultClientID string
	defaultTenant   string

	mu                  sync.Mutex
	publicClients       map[string]public.Client
	confidentialClients map[string]confidential.Client
	loopback            *loopbackServer
	state               FlowState
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHTTPClient substitutes the transport used for token endpoints and
// the WhoAmI probe.
func WithHTTPClient(hc *http.Client) EngineOption {
	return func(e *Engine) {
		if hc != nil {
			e.httpClient = hc
		}
	}
}

// WithBrowser substitutes the browser opener.
func WithBrowser(o Opener) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.browser = o
		}
	}
}

// WithDefaults overrides the fallback client id and tenant applied to
// connections that omit them.
func WithDefaults(clientID, tenant string) EngineOption {
	return func(e *Engine) {
		if clientID != "" {
			e.defaultClientID = clientID
		}
		if tenant != "" {
			e.defaultTenant = tenant
		}
	}
}

// NewEngine creates an engine with an empty client cache.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		httpClient:          cleanhttp.DefaultPooledClient(),
		browser:             &SystemBrowser{},
		defaultClientID:     DefaultPublicClientID,
		defaultTenant:       DefaultTenant,
		publicClients:       make(map[string]public.Client),
		confidentialClients: make(map[string]confidential.Client),
		state:               StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.api = httpclient.New(httpclient.WithHTTPClient(e.httpClient))
	return e
}

// Authenticate runs the connection's configured flow and returns fresh
// tokens. It does not write to the connection store; the caller owns
// persistence.
func (e *Engine) Authenticate(ctx context.Context, conn *connection.Connection) (*TokenResult, error) {
	if err := conn.Authenticatable(); err != nil {
		return nil, err
	}

	switch conn.AuthenticationType {
	case connection.AuthInteractive:
		return e.acquireInteractive(ctx, conn)
	case connection.AuthClientSecret:
		return e.acquireClientCredential(ctx, conn)
	case connection.AuthUsernamePassword:
		return e.acquireUsernamePassword(ctx, conn)
	default:
		// Authenticatable already rejected connectionString and unknown
		// types; this is unreachable but keeps the switch total.
		return nil, dverrors.Newf(dverrors.KindConfiguration,
			"cannot authenticate connection with type %q", string(conn.AuthenticationType))
	}
}

// CurrentFlowState reports where the interactive state machine is.
func (e *Engine) CurrentFlowState() FlowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(next FlowState) {
	e.mu.Lock()
	prev := e.state
	e.state = next
	e.mu.Unlock()
	if prev != next {
		logging.Debug("Auth", "Interactive flow %s -> %s", prev, next)
	}
}

// Cleanup drops every cached client and closes any live loopback
// server. After cleanup, all connections need a fresh flow: the token
// caches die with the clients.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	loopback := e.loopback
	e.loopback = nil
	e.publicClients = make(map[string]public.Client)
	e.confidentialClients = make(map[string]confidential.Client)
	e.mu.Unlock()

	if loopback != nil {
		loopback.Close(0)
	}
	logging.Debug("Auth", "Cleared client caches")
}

func (e *Engine) clientIDFor(conn *connection.Connection) string {
	if conn.ClientID != "" {
		return conn.ClientID
	}
	return e.defaultClientID
}

func (e *Engine) tenantFor(conn *connection.Connection) string {
	if conn.TenantID != "" {
		return conn.TenantID
	}
	return e.defaultTenant
}

func (e *Engine) authorityFor(conn *connection.Connection) string {
	return authorityHost + e.tenantFor(conn)
}

// publicClientFor returns the cached public client for this connection,
// creating it on first use.
func (e *Engine) publicClientFor(conn *connection.Connection) (public.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if client, ok := e.publicClients[conn.ID]; ok {
		return client, nil
	}
	client, err := public.New(e.clientIDFor(conn),
		public.WithAuthority(e.authorityFor(conn)),
		public.WithHTTPClient(e.httpClient),
	)
	if err != nil {
		return public.Client{}, dverrors.Wrap(dverrors.KindConfiguration, "create public client", err)
	}
	e.publicClients[conn.ID] = client
	return client, nil
}

// confidentialClientFor returns the cached confidential client for this
// connection, creating it on first use.
func (e *Engine) confidentialClientFor(conn *connection.Connection) (confidential.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if client, ok := e.confidentialClients[conn.ID]; ok {
		return client, nil
	}
	cred, err := confidential.NewCredFromSecret(conn.ClientSecret)
	if err != nil {
		return confidential.Client{}, dverrors.Wrap(dverrors.KindConfiguration, "create client credential", err)
	}
	client, err := confidential.New(e.authorityFor(conn), e.clientIDFor(conn), cred,
		confidential.WithHTTPClient(e.httpClient),
	)
	if err != nil {
		return confidential.Client{}, dverrors.Wrap(dverrors.KindConfiguration, "create confidential client", err)
	}
	e.confidentialClients[conn.ID] = client
	return client, nil
}

// resourceBase normalizes the environment URL for scope construction.
func resourceBase(envURL string) string {
	return strings.TrimRight(envURL, "/")
}

// defaultScopes is the application-permission scope used by interactive
// and client-secret flows.
func defaultScopes(envURL string) []string {
	return []string{resourceBase(envURL) + "/.default"}
}

// delegatedScopes is the delegated scope used by the username/password
// flow, which only supports delegated permissions.
func delegatedScopes(envURL string) []string {
	return []string{resourceBase(envURL) + "/user_impersonation"}
}

// silentScopes picks the scope silent acquisition must request for the
// connection's flow.
func silentScopes(conn *connection.Connection) []string {
	if conn.AuthenticationType == connection.AuthUsernamePassword {
		return delegatedScopes(conn.URL)
	}
	return defaultScopes(conn.URL)
}

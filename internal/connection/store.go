package connection

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dvbox/internal/events"
	"dvbox/pkg/logging"
)

// ErrNotFound is returned when no connection has the requested id.
var ErrNotFound = errors.New("connection not found")

// Persister saves the full connection set. The settings file adapter
// implements it; the desktop shell substitutes its own settings bridge.
type Persister interface {
	SaveConnections(conns []*Connection) error
}

// TokenUpdate is the coherent token subset written by a single
// acquisition or refresh. All four fields are applied together; callers
// that want to keep an existing value must copy it into the update.
type TokenUpdate struct {
	AccessToken   string
	RefreshToken  string
	TokenExpiry   time.Time // zero clears the stored expiry
	MSALAccountID string
}

// Store holds the connection set in memory. All reads return clones so
// callers can never mutate shared state; token fields change only
// through UpdateTokens/ClearTokens so the stored set stays coherent.
type Store struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	persister Persister
	bus       *events.Bus
}

// NewStore creates a store. Both persister and bus may be nil (tests,
// read-only tooling).
func NewStore(persister Persister, bus *events.Bus) *Store {
	return &Store{
		conns:     make(map[string]*Connection),
		persister: persister,
		bus:       bus,
	}
}

// Load replaces the in-memory set without emitting events or
// persisting. Used once at startup with the settings document contents.
func (s *Store) Load(conns []*Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns = make(map[string]*Connection, len(conns))
	for _, c := range conns {
		if c == nil || c.ID == "" {
			continue
		}
		s.conns[c.ID] = c.Clone()
	}
	logging.Debug("Connections", "Loaded %d connections", len(s.conns))
}

// Reload merges an externally edited connection set into the store. The
// settings document is shared with the desktop shell, which never
// writes token fields, so tokens held in memory survive the merge.
func (s *Store) Reload(conns []*Connection) {
	type change struct {
		typ events.Type
		id  string
	}
	var changes []change

	s.mu.Lock()
	incoming := make(map[string]*Connection, len(conns))
	for _, c := range conns {
		if c == nil || c.ID == "" {
			continue
		}
		incoming[c.ID] = c.Clone()
	}

	for id, next := range incoming {
		prev, ok := s.conns[id]
		if !ok {
			s.conns[id] = next
			changes = append(changes, change{events.ConnectionCreated, id})
			continue
		}
		next.AccessToken = prev.AccessToken
		next.RefreshToken = prev.RefreshToken
		next.TokenExpiry = prev.TokenExpiry
		if next.MSALAccountID == "" {
			next.MSALAccountID = prev.MSALAccountID
		}
		s.conns[id] = next
		changes = append(changes, change{events.ConnectionUpdated, id})
	}
	for id := range s.conns {
		if _, ok := incoming[id]; !ok {
			delete(s.conns, id)
			changes = append(changes, change{events.ConnectionDeleted, id})
		}
	}
	s.mu.Unlock()

	for _, ch := range changes {
		s.publish(ch.typ, ch.id, nil)
	}
}

// Get returns a copy of the connection with the given id.
func (s *Store) Get(id string) (*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.Clone(), nil
}

// List returns copies of all connections sorted by name.
func (s *Store) List() []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Create validates and adds a new connection. A missing id is assigned.
func (s *Store) Create(c *Connection) (*Connection, error) {
	if c == nil {
		return nil, dvErrNilConnection()
	}
	stored := c.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if err := stored.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.conns[stored.ID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("connection %s already exists", stored.ID)
	}
	s.conns[stored.ID] = stored
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	logging.Info("Connections", "Created connection %s", stored)
	s.publish(events.ConnectionCreated, stored.ID, nil)
	return stored.Clone(), nil
}

// Update replaces a full connection record.
func (s *Store) Update(c *Connection) error {
	if c == nil {
		return dvErrNilConnection()
	}
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.conns[c.ID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}
	s.conns[c.ID] = c.Clone()
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.publish(events.ConnectionUpdated, c.ID, nil)
	return nil
}

// Delete removes a connection.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.conns[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.conns, id)
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	logging.Info("Connections", "Deleted connection %s", id)
	s.publish(events.ConnectionDeleted, id, nil)
	return nil
}

// UpdateTokens applies the token subset atomically. This is the only
// way token fields change, so {access, refresh, expiry, account} always
// reflect a single acquisition.
func (s *Store) UpdateTokens(id string, upd TokenUpdate) error {
	s.mu.Lock()
	c, ok := s.conns[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.AccessToken = upd.AccessToken
	c.RefreshToken = upd.RefreshToken
	if upd.TokenExpiry.IsZero() {
		c.TokenExpiry = ""
	} else {
		c.TokenExpiry = FormatInstant(upd.TokenExpiry)
	}
	c.MSALAccountID = upd.MSALAccountID
	fields := tokenEventFields(c)
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	logging.Debug("Connections", "Updated tokens for %s (expiry %s)", id, fields["tokenExpiry"])
	s.publish(events.ConnectionUpdated, id, fields)
	return nil
}

// ClearTokens drops the access and refresh tokens plus expiry for one
// connection. The MSAL account id is retained so a cached account can
// still be located for silent re-acquisition.
func (s *Store) ClearTokens(id string) error {
	s.mu.Lock()
	c, ok := s.conns[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.clearTokensLocked(c)
	fields := tokenEventFields(c)
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.publish(events.ConnectionUpdated, id, fields)
	return nil
}

// ClearAllTokens clears token state on every connection. Called at
// startup and shutdown so a process restart always forces reauth
// instead of presenting a token whose backing cache is gone.
func (s *Store) ClearAllTokens() error {
	s.mu.Lock()
	var cleared []string
	for id, c := range s.conns {
		if c.AccessToken == "" && c.RefreshToken == "" && c.TokenExpiry == "" {
			continue
		}
		s.clearTokensLocked(c)
		cleared = append(cleared, id)
	}
	var err error
	if len(cleared) > 0 {
		err = s.persistLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if len(cleared) > 0 {
		logging.Info("Connections", "Cleared tokens on %d connections", len(cleared))
	}
	for _, id := range cleared {
		s.publish(events.ConnectionUpdated, id, map[string]interface{}{
			"hasAccessToken":  false,
			"hasRefreshToken": false,
		})
	}
	return nil
}

// TouchLastUsed stamps the connection after a successful token hand-out.
func (s *Store) TouchLastUsed(id string, at time.Time) error {
	s.mu.Lock()
	c, ok := s.conns[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.LastUsedAt = FormatInstant(at)
	stamp := c.LastUsedAt
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.publish(events.ConnectionUpdated, id, map[string]interface{}{"lastUsedAt": stamp})
	return nil
}

// IsTokenExpired reports whether the stored token can no longer be
// presented: true when the expiry is absent, unparseable, or in the
// past.
func (s *Store) IsTokenExpired(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conns[id]
	if !ok {
		return true, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	exp, ok := c.TokenExpiryTime()
	if !ok {
		return true, nil
	}
	return !exp.After(time.Now()), nil
}

func (s *Store) clearTokensLocked(c *Connection) {
	c.AccessToken = ""
	c.RefreshToken = ""
	c.TokenExpiry = ""
}

// persistLocked snapshots the set for the persister. Caller holds s.mu.
func (s *Store) persistLocked() error {
	if s.persister == nil {
		return nil
	}
	snapshot := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		snapshot = append(snapshot, c.Clone())
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	if err := s.persister.SaveConnections(snapshot); err != nil {
		return fmt.Errorf("persist connections: %w", err)
	}
	return nil
}

func (s *Store) publish(typ events.Type, id string, fields map[string]interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: typ, ConnectionID: id, Fields: fields})
}

// tokenEventFields builds an update payload describing token state
// without carrying the token values themselves.
func tokenEventFields(c *Connection) map[string]interface{} {
	return map[string]interface{}{
		"hasAccessToken":  c.AccessToken != "",
		"hasRefreshToken": c.RefreshToken != "",
		"tokenExpiry":     c.TokenExpiry,
		"msalAccountId":   c.MSALAccountID,
	}
}

func dvErrNilConnection() error {
	return errors.New("connection is nil")
}

package connection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvbox/internal/events"
)

type recordingPersister struct {
	saves     int
	lastConns []*Connection
	fail      error
}

func (p *recordingPersister) SaveConnections(conns []*Connection) error {
	if p.fail != nil {
		return p.fail
	}
	p.saves++
	p.lastConns = conns
	return nil
}

func newTestConnection(id string) *Connection {
	return &Connection{
		ID:                 id,
		Name:               "conn-" + id,
		URL:                "https://org.crm.dynamics.com",
		AuthenticationType: AuthInteractive,
	}
}

func TestStoreCreateAssignsIDAndPersists(t *testing.T) {
	persister := &recordingPersister{}
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(func(ev events.Event) { got = append(got, ev) })

	store := NewStore(persister, bus)

	created, err := store.Create(&Connection{
		Name: "dev", URL: "https://org.crm.dynamics.com", AuthenticationType: AuthInteractive,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, persister.saves)

	require.Len(t, got, 1)
	assert.Equal(t, events.ConnectionCreated, got[0].Type)
	assert.Equal(t, created.ID, got[0].ConnectionID)
}

func TestStoreCreateRejectsInvalid(t *testing.T) {
	store := NewStore(nil, nil)

	_, err := store.Create(&Connection{Name: "dev", URL: "ftp://nope", AuthenticationType: AuthInteractive})
	assert.Error(t, err)
}

func TestStoreGetNotFound(t *testing.T) {
	store := NewStore(nil, nil)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreGetReturnsClone(t *testing.T) {
	store := NewStore(nil, nil)
	store.Load([]*Connection{newTestConnection("c1")})

	first, err := store.Get("c1")
	require.NoError(t, err)
	first.AccessToken = "mutated"

	second, err := store.Get("c1")
	require.NoError(t, err)
	assert.Empty(t, second.AccessToken, "store state must not be reachable through returned records")
}

func TestStoreListSortedByName(t *testing.T) {
	store := NewStore(nil, nil)
	a := newTestConnection("1")
	a.Name = "zeta"
	b := newTestConnection("2")
	b.Name = "alpha"
	store.Load([]*Connection{a, b})

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
}

func TestUpdateTokensAtomicSet(t *testing.T) {
	persister := &recordingPersister{}
	store := NewStore(persister, nil)
	store.Load([]*Connection{newTestConnection("c1")})

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	err := store.UpdateTokens("c1", TokenUpdate{
		AccessToken:   "at",
		RefreshToken:  "rt",
		TokenExpiry:   expiry,
		MSALAccountID: "home.account",
	})
	require.NoError(t, err)

	c, err := store.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, "at", c.AccessToken)
	assert.Equal(t, "rt", c.RefreshToken)
	assert.Equal(t, "home.account", c.MSALAccountID)

	got, ok := c.TokenExpiryTime()
	require.True(t, ok)
	assert.True(t, got.Equal(expiry))
	assert.Equal(t, 1, persister.saves)
}

func TestUpdateTokensZeroExpiryClears(t *testing.T) {
	store := NewStore(nil, nil)
	c := newTestConnection("c1")
	c.TokenExpiry = FormatInstant(time.Now())
	store.Load([]*Connection{c})

	require.NoError(t, store.UpdateTokens("c1", TokenUpdate{AccessToken: "at"}))

	got, err := store.Get("c1")
	require.NoError(t, err)
	assert.Empty(t, got.TokenExpiry)
}

func TestClearTokensRetainsAccountID(t *testing.T) {
	store := NewStore(nil, nil)
	c := newTestConnection("c1")
	c.AccessToken = "at"
	c.RefreshToken = "rt"
	c.TokenExpiry = FormatInstant(time.Now())
	c.MSALAccountID = "home.account"
	store.Load([]*Connection{c})

	require.NoError(t, store.ClearTokens("c1"))

	got, err := store.Get("c1")
	require.NoError(t, err)
	assert.Empty(t, got.AccessToken)
	assert.Empty(t, got.RefreshToken)
	assert.Empty(t, got.TokenExpiry)
	assert.Equal(t, "home.account", got.MSALAccountID, "account id must survive so silent re-acquisition can find the cached account")
}

func TestClearAllTokens(t *testing.T) {
	store := NewStore(nil, nil)
	c1 := newTestConnection("c1")
	c1.AccessToken = "at1"
	c2 := newTestConnection("c2")
	c2.RefreshToken = "rt2"
	c3 := newTestConnection("c3")
	store.Load([]*Connection{c1, c2, c3})

	require.NoError(t, store.ClearAllTokens())

	for _, id := range []string{"c1", "c2", "c3"} {
		got, err := store.Get(id)
		require.NoError(t, err)
		assert.Empty(t, got.AccessToken, id)
		assert.Empty(t, got.RefreshToken, id)
	}
}

func TestIsTokenExpired(t *testing.T) {
	store := NewStore(nil, nil)

	absent := newTestConnection("absent")
	past := newTestConnection("past")
	past.TokenExpiry = FormatInstant(time.Now().Add(-time.Minute))
	future := newTestConnection("future")
	future.TokenExpiry = FormatInstant(time.Now().Add(time.Hour))
	garbled := newTestConnection("garbled")
	garbled.TokenExpiry = "yesterday-ish"
	store.Load([]*Connection{absent, past, future, garbled})

	tests := []struct {
		id      string
		expired bool
	}{
		{"absent", true},
		{"past", true},
		{"future", false},
		{"garbled", true},
	}
	for _, test := range tests {
		expired, err := store.IsTokenExpired(test.id)
		require.NoError(t, err, test.id)
		assert.Equal(t, test.expired, expired, test.id)
	}

	_, err := store.IsTokenExpired("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReloadPreservesInMemoryTokens(t *testing.T) {
	store := NewStore(nil, nil)
	c := newTestConnection("c1")
	store.Load([]*Connection{c})
	require.NoError(t, store.UpdateTokens("c1", TokenUpdate{
		AccessToken:   "at",
		TokenExpiry:   time.Now().Add(time.Hour),
		MSALAccountID: "home.account",
	}))

	// The shell edited the record on disk; it never writes token fields.
	edited := newTestConnection("c1")
	edited.Name = "renamed"
	store.Reload([]*Connection{edited, newTestConnection("c2")})

	got, err := store.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "at", got.AccessToken)
	assert.Equal(t, "home.account", got.MSALAccountID)

	_, err = store.Get("c2")
	assert.NoError(t, err)
}

func TestReloadDeletesMissing(t *testing.T) {
	bus := events.NewBus()
	var deleted []string
	bus.Subscribe(func(ev events.Event) {
		if ev.Type == events.ConnectionDeleted {
			deleted = append(deleted, ev.ConnectionID)
		}
	})

	store := NewStore(nil, bus)
	store.Load([]*Connection{newTestConnection("c1"), newTestConnection("c2")})

	store.Reload([]*Connection{newTestConnection("c1")})

	_, err := store.Get("c2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"c2"}, deleted)
}

func TestTokenEventsCarryNoSecrets(t *testing.T) {
	bus := events.NewBus()
	var payloads []map[string]interface{}
	bus.Subscribe(func(ev events.Event) { payloads = append(payloads, ev.Fields) })

	store := NewStore(nil, bus)
	store.Load([]*Connection{newTestConnection("c1")})
	require.NoError(t, store.UpdateTokens("c1", TokenUpdate{
		AccessToken:  "very-secret-token",
		RefreshToken: "very-secret-refresh",
		TokenExpiry:  time.Now().Add(time.Hour),
	}))

	require.NotEmpty(t, payloads)
	for _, fields := range payloads {
		for key, value := range fields {
			s, ok := value.(string)
			if !ok {
				continue
			}
			assert.NotContains(t, s, "very-secret", "field %s leaked a token", key)
		}
	}
}

func TestPersistFailureSurfaces(t *testing.T) {
	persister := &recordingPersister{fail: errors.New("disk full")}
	store := NewStore(persister, nil)
	store.Load([]*Connection{newTestConnection("c1")})

	err := store.UpdateTokens("c1", TokenUpdate{AccessToken: "at"})
	assert.ErrorContains(t, err, "disk full")
}

func TestTouchLastUsed(t *testing.T) {
	store := NewStore(nil, nil)
	store.Load([]*Connection{newTestConnection("c1")})

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchLastUsed("c1", at))

	got, err := store.Get("c1")
	require.NoError(t, err)
	stamp, ok := got.LastUsedTime()
	require.True(t, ok)
	assert.True(t, stamp.Equal(at))
}

package connection

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings", "connections.json")
	file := NewSettingsFile(path)

	conns := []*Connection{
		{
			ID: "c1", Name: "dev", URL: "https://org.crm.dynamics.com",
			AuthenticationType: AuthInteractive, Environment: EnvDev,
			MSALAccountID: "home.account",
		},
		{
			ID: "c2", Name: "prod", URL: "https://prod.crm.dynamics.com",
			AuthenticationType: AuthClientSecret, Environment: EnvProduction,
			TenantID: "tenant", ClientID: "app", ClientSecret: "shh",
		},
	}
	require.NoError(t, file.SaveConnections(conns))

	loaded, err := file.LoadConnections()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "dev", loaded[0].Name)
	assert.Equal(t, "home.account", loaded[0].MSALAccountID)
	assert.Equal(t, AuthClientSecret, loaded[1].AuthenticationType)
}

func TestSettingsFileMissingIsEmpty(t *testing.T) {
	file := NewSettingsFile(filepath.Join(t.TempDir(), "never-written.json"))

	loaded, err := file.LoadConnections()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSettingsFileCorruptIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewSettingsFile(path).LoadConnections()
	assert.Error(t, err)
}

func TestSettingsFileOwnerOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), "connections.json")
	file := NewSettingsFile(path)
	require.NoError(t, file.SaveConnections([]*Connection{{ID: "c1", Name: "dev", URL: "https://x", AuthenticationType: AuthInteractive}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "settings carry clear-text secrets")
}

func TestSettingsFileNilSavesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	file := NewSettingsFile(path)
	require.NoError(t, file.SaveConnections(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"connections": []`)
}

package config

// Config is the dvbox configuration document, config.yaml in the
// config directory. Everything is optional; absent keys keep their
// defaults.
type Config struct {
	Auth     AuthConfig     `yaml:"auth,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Settings SettingsConfig `yaml:"settings,omitempty"`
}

// AuthConfig overrides the built-in authentication defaults.
type AuthConfig struct {
	// ClientID replaces the first-party app registration for
	// connections that do not bring their own client id.
	ClientID string `yaml:"clientId,omitempty"`

	// TenantID replaces the multi-tenant "organizations" default.
	TenantID string `yaml:"tenantId,omitempty"`

	// BrowserProfile names the Chrome profile interactive sign-ins
	// open in. Empty uses the system default browser.
	BrowserProfile string `yaml:"browserProfile,omitempty"`
}

// LoggingConfig selects the log level for the CLI.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// SettingsConfig locates the connections document shared with the
// desktop shell.
type SettingsConfig struct {
	Path string `yaml:"path,omitempty"`
}

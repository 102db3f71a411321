package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env carries the environment-provided endpoints for the tool registry.
// These are deployment endpoints rather than user preferences, which is
// why they live in the environment and not in config.yaml. The CLI
// loads an optional .env file before parsing.
type Env struct {
	// RegistryURL is the base URL of the tool registry API.
	RegistryURL string `env:"DVBOX_REGISTRY_URL"`

	// RegistryKey authenticates registry API requests.
	RegistryKey string `env:"DVBOX_REGISTRY_KEY"`

	// BlobBaseURL is the storage account tools are downloaded from.
	BlobBaseURL string `env:"DVBOX_BLOB_BASE_URL"`
}

// LoadEnv parses the registry endpoints out of the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

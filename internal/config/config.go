package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Store backends.
const (
	StoreEmbedded = "embedded"
	StoreMongo    = "mongo"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Store selects the backend: "embedded" (local Pebble) or "mongo".
	Store string `json:"store"`

	// DataDir holds the embedded store's files.
	DataDir string `json:"dataDir"`

	Mongo MongoConfig `json:"mongo"`

	// HTTPAddr is the serve listen address.
	HTTPAddr string `json:"httpAddr"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`
}

// MongoConfig locates the queue's collection and blob bucket.
type MongoConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
	BlobBucket string `json:"blobBucket"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Store:   StoreEmbedded,
		DataDir: DefaultDataDir(),
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "docq",
			Collection: "entries",
			BlobBucket: "streams",
		},
		HTTPAddr:  ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads configuration from a JSON file over the defaults. If path is
// empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no backend can act on.
func (c Config) Validate() error {
	switch c.Store {
	case StoreEmbedded, StoreMongo:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.Store == StoreMongo && c.Mongo.URI == "" {
		return fmt.Errorf("config: mongo store needs a uri")
	}
	if c.Store == StoreEmbedded && c.DataDir == "" {
		return fmt.Errorf("config: embedded store needs a data dir")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreEmbedded {
		t.Fatalf("default store = %q", cfg.Store)
	}
	if cfg.Mongo.Collection != "entries" {
		t.Fatalf("default collection = %q", cfg.Mongo.Collection)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docq.json")
	body := `{"store":"mongo","mongo":{"uri":"mongodb://db:27017","database":"jobs"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreMongo || cfg.Mongo.URI != "mongodb://db:27017" {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.Mongo.Database != "jobs" {
		t.Fatalf("nested override lost: %+v", cfg.Mongo)
	}
	// Fields the file omits keep their defaults.
	if cfg.Mongo.Collection != "entries" || cfg.HTTPAddr != ":8080" {
		t.Fatalf("defaults clobbered: %+v", cfg)
	}
}

func TestLoadRejectsBadStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docq.json")
	if err := os.WriteFile(path, []byte(`{"store":"redis"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("unknown store accepted")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DOCQ_STORE", "mongo")
	t.Setenv("DOCQ_MONGO_URI", "mongodb://env:27017")
	t.Setenv("DOCQ_LOG_LEVEL", "debug")

	cfg := Default()
	FromEnv(&cfg)
	if cfg.Store != StoreMongo {
		t.Fatalf("env store not applied: %q", cfg.Store)
	}
	if cfg.Mongo.URI != "mongodb://env:27017" {
		t.Fatalf("env uri not applied: %q", cfg.Mongo.URI)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("env level not applied: %q", cfg.LogLevel)
	}
}

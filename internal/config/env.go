package config

import "os"

// FromEnv overlays DOCQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("DOCQ_STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("DOCQ_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DOCQ_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("DOCQ_MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("DOCQ_MONGO_COLLECTION"); v != "" {
		cfg.Mongo.Collection = v
	}
	if v := os.Getenv("DOCQ_MONGO_BLOB_BUCKET"); v != "" {
		cfg.Mongo.BlobBucket = v
	}
	if v := os.Getenv("DOCQ_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("DOCQ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DOCQ_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

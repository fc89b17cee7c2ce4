package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cfgpkg "github.com/docq-io/docq/internal/config"
	"github.com/docq-io/docq/internal/queue"
	httpserver "github.com/docq-io/docq/internal/server/http"
	"github.com/docq-io/docq/internal/storage"
	mongostore "github.com/docq-io/docq/internal/storage/mongo"
	pebblestore "github.com/docq-io/docq/internal/storage/pebble"
	"github.com/docq-io/docq/internal/storage/pebbledoc"
	logpkg "github.com/docq-io/docq/pkg/log"
)

type Options struct {
	Config        cfgpkg.Config
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
}

// Run opens the configured store, ensures the queue's base indexes, and
// serves the HTTP API. It blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers
	// without signal handling still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	logger := NewLogger(cfg)
	logpkg.RedirectStdLog(logger)

	store, blobs, closeStore, err := openStore(sctx, cfg, opts)
	if err != nil {
		return err
	}
	defer closeStore()

	q, err := queue.New(queue.Options{Store: store, Blobs: blobs, Logger: logger})
	if err != nil {
		return err
	}
	if err := q.EnsureGetIndex(sctx, nil, nil); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	logger.Info("starting docq server",
		logpkg.Str("store", cfg.Store),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("level", cfg.LogLevel),
		logpkg.Str("format", cfg.LogFormat),
	)

	hsrv := httpserver.New(q, logger)
	defer hsrv.Close()
	return hsrv.ListenAndServe(sctx, cfg.HTTPAddr)
}

// NewLogger builds the process logger from config; bad values fall back to
// info/text.
func NewLogger(cfg cfgpkg.Config) logpkg.Logger {
	level, err := logpkg.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logpkg.InfoLevel
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if cfg.LogFormat == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
}

func openStore(ctx context.Context, cfg cfgpkg.Config, opts Options) (storage.Store, storage.BlobStore, func(), error) {
	switch cfg.Store {
	case cfgpkg.StoreMongo:
		client, err := mongostore.Dial(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		blobs, err := client.Blobs(cfg.Mongo.BlobBucket)
		if err != nil {
			_ = client.Close(ctx)
			return nil, nil, nil, err
		}
		closeFn := func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(cctx)
		}
		return client.Store(cfg.Mongo.Collection), blobs, closeFn, nil

	case cfgpkg.StoreEmbedded:
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       filepath.Join(cfg.DataDir, "store"),
			Fsync:         opts.Fsync,
			FsyncInterval: opts.FsyncInterval,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return pebbledoc.NewStore(db), pebbledoc.NewBlobStore(db), func() { _ = db.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

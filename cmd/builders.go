package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tollwatch/internal/archive"
	"github.com/sells-group/tollwatch/internal/config"
	"github.com/sells-group/tollwatch/internal/db"
	"github.com/sells-group/tollwatch/internal/fetcher"
	"github.com/sells-group/tollwatch/internal/model"
	"github.com/sells-group/tollwatch/internal/runlog"
	"github.com/sells-group/tollwatch/internal/snapshot"
	"github.com/sells-group/tollwatch/internal/source"
)

// initStore opens the configured snapshot store. The returned func releases it.
func initStore(ctx context.Context, c *config.Config) (snapshot.Store, func(), error) {
	switch c.Store.Driver {
	case "file":
		st, err := snapshot.NewFileStore(c.Store.Root)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case "postgres":
		pool, err := db.Connect(ctx, c.Store.DatabaseURL, db.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := snapshot.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, eris.Wrap(err, "migrate snapshot store")
		}
		return snapshot.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

func initSource(c *config.Config) source.Source {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.Source.UserAgent,
		Timeout:           time.Duration(c.Source.TimeoutSecs) * time.Second,
		MaxRetries:        c.Source.MaxRetries,
		RequestsPerSecond: c.Source.RequestsPerSecond,
	})
	return source.NewLTA(source.LTAConfig{
		MarkersURL:    c.Source.MarkersURL,
		CategoriesURL: c.Source.CategoriesURL,
		RateURL:       c.Source.RateURL,
	}, f)
}

// initRunLog opens the run log, or returns nil when none is configured.
func initRunLog(ctx context.Context, c *config.Config) (*runlog.RunLog, error) {
	if c.RunLog.Path == "" {
		return nil, nil
	}
	return runlog.Open(ctx, c.RunLog.Path)
}

// initPublisher returns the archive publisher, or nil when archiving is off.
func initPublisher(ctx context.Context, c *config.Config) (*archive.Publisher, error) {
	if !c.Archive.Enabled {
		return nil, nil
	}
	var storage archive.ObjectStorage
	switch c.Archive.Backend {
	case "local":
		ls, err := archive.NewLocalStorage(c.Archive.Dir)
		if err != nil {
			return nil, err
		}
		storage = ls
	case "s3":
		s3s, err := archive.NewS3Storage(ctx, c.Archive.Bucket, archive.S3Config{
			Region:       c.Archive.Region,
			Endpoint:     c.Archive.Endpoint,
			UsePathStyle: c.Archive.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		storage = s3s
	default:
		return nil, eris.Errorf("unsupported archive backend: %s", c.Archive.Backend)
	}
	return archive.NewPublisher(storage, c.Archive.Prefix), nil
}

// parseDateFlag parses a YYYY-MM-DD flag value. Empty means the zero time.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := model.ParseDate(value)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid --%s", name)
	}
	return d, nil
}

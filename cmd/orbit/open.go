package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"orbit/internal/blobstore"
	"orbit/internal/broker"
	brokerkafka "orbit/internal/broker/kafka"
	brokermem "orbit/internal/broker/memory"
	brokermqtt "orbit/internal/broker/mqtt"
	brokermqtt5 "orbit/internal/broker/mqtt5"
	"orbit/internal/inventory"
	invmem "orbit/internal/inventory/memory"
	invsqlite "orbit/internal/inventory/sqlite"
	"orbit/internal/jobtype"
)

// staticTypes is the built-in job type table used when no translation source
// is configured. Generic fetch and store work for any RUBIC robot without
// per-vendor configuration.
func staticTypes() jobtype.Source {
	return jobtype.NewStatic([]jobtype.Type{
		{Vendor: "RUBIC", JobType: "FETCH_INVENTORY", GenericType: inventory.JobFetchInventory},
		{Vendor: "RUBIC", JobType: "STORE_INVENTORY", GenericType: inventory.JobStoreInventory},
	})
}

func openStore(rawURL string) (inventory.Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	switch u.Scheme {
	case "mem":
		return invmem.New(), nil
	case "sqlite":
		path := urlPath(u)
		if path == "" {
			return nil, errors.New("sqlite store url needs a path")
		}
		return invsqlite.NewStore(path)
	default:
		return nil, fmt.Errorf("unknown store scheme %q", u.Scheme)
	}
}

func openBlob(ctx context.Context, rawURL string, logger *slog.Logger) (blobstore.Store, error) {
	return blobstore.Open(ctx, rawURL, logger)
}

// openTranslate builds the vendor job type source. File sources watch for
// changes in the background until ctx ends.
func openTranslate(ctx context.Context, rawURL string, logger *slog.Logger) (jobtype.Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse translate url: %w", err)
	}
	switch u.Scheme {
	case "static":
		return staticTypes(), nil
	case "file":
		path := urlPath(u)
		if path == "" {
			return nil, errors.New("file translate url needs a path")
		}
		f, err := jobtype.NewFile(path, logger)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := f.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("job type watch stopped", "path", path, "error", err)
			}
		}()
		return f, nil
	case "sqlite":
		path := urlPath(u)
		if path == "" {
			return nil, errors.New("sqlite translate url needs a path")
		}
		s, err := jobtype.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return jobtype.NewCatalog(s), nil
	default:
		return nil, fmt.Errorf("unknown translate scheme %q", u.Scheme)
	}
}

func openBroker(ctx context.Context, rawURL string, logger *slog.Logger) (broker.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	user := ""
	pass := ""
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	switch u.Scheme {
	case "mem":
		return brokermem.New(logger), nil
	case "mqtt":
		return brokermqtt.Dial(ctx, brokermqtt.Config{
			URL:      "tcp://" + u.Host,
			ClientID: u.Query().Get("client_id"),
			Username: user,
			Password: pass,
			Logger:   logger,
		})
	case "mqtt5":
		return brokermqtt5.Dial(ctx, brokermqtt5.Config{
			URL:      "mqtt://" + u.Host,
			ClientID: u.Query().Get("client_id"),
			Username: user,
			Password: pass,
			Logger:   logger,
		})
	case "kafka":
		q := u.Query()
		cfg := brokerkafka.Config{
			Brokers: strings.Split(u.Host, ","),
			Group:   strings.TrimPrefix(u.Path, "/"),
			TLS:     q.Get("tls") == "true" || q.Get("tls") == "1",
			Logger:  logger,
		}
		if mech := q.Get("sasl"); mech != "" {
			cfg.SASL = &brokerkafka.SASLConfig{Mechanism: mech, User: user, Password: pass}
		}
		return brokerkafka.Dial(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown broker scheme %q", u.Scheme)
	}
}

// urlPath joins host and path, so both file://types.json and
// file:///abs/types.json resolve.
func urlPath(u *url.URL) string {
	if u.Host != "" {
		return u.Host + u.Path
	}
	return u.Path
}

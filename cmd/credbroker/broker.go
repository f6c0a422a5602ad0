package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/credbroker/internal/config"
	"github.com/alexjbarnes/credbroker/internal/keys"
	"github.com/alexjbarnes/credbroker/internal/oauth1store"
	"github.com/alexjbarnes/credbroker/internal/oauth2store"
	"github.com/alexjbarnes/credbroker/internal/secrets"
	"github.com/alexjbarnes/credbroker/internal/state"
	"github.com/viant/afs"
)

// documents holds the raw config documents fetched at startup.
type documents struct {
	oauth1 []byte
	oauth2 []byte
}

// broker owns the credential stores for the life of the process.
type broker struct {
	cfg    *config.Config
	fs     afs.Service
	docs   documents
	logger *slog.Logger

	oauth2    *oauth2store.Store
	persister *oauth2store.ConfigPersister
	oauth1    *oauth1store.Store
	state     *state.State
}

func fetch(ctx context.Context, fs afs.Service, docURL string) ([]byte, error) {
	return oauth2store.FetchDocument(ctx, fs, docURL)
}

func openState(path string) (*state.State, error) {
	if path == config.TokenDBDefault {
		return state.Load()
	}

	return state.LoadAt(path)
}

func newBroker(cfg *config.Config, enc secrets.Encrypter, docs documents, fs afs.Service, logger *slog.Logger) (*broker, error) {
	placeholders, err := cfg.Placeholders()
	if err != nil {
		return nil, err
	}

	b := &broker{cfg: cfg, fs: fs, docs: docs, logger: logger}

	if cfg.OAuth2ConfigURL != "" {
		d := keys.ForPolicy(cfg.KeyPolicy)

		b.persister = oauth2store.NewConfigPersister(docs.oauth2, oauth2store.FormatForURL(cfg.OAuth2ConfigURL), placeholders, enc, logger)

		var p oauth2store.Persister = b.persister

		if cfg.TokenDB != "" {
			b.state, err = openState(cfg.TokenDB)
			if err != nil {
				return nil, fmt.Errorf("opening token database: %w", err)
			}

			logger.Info("durable oauth2 tokens", slog.Int("stored", b.state.TokenCount()))

			p = oauth2store.NewDurablePersister(b.persister, b.state, d)
		}

		b.oauth2 = oauth2store.NewStore(oauth2store.NewMemoryCache(d), p,
			oauth2store.WithLogger(logger.With(slog.String("store", "oauth2"))),
			oauth2store.WithEncrypter(enc),
		)
	}

	if cfg.OAuth1ConfigURL != "" {
		b.oauth1 = oauth1store.NewStore(placeholders, logger.With(slog.String("store", "oauth1")))
	}

	return b, nil
}

// prime loads both stores from the fetched documents.
func (b *broker) prime() error {
	var errs []error

	if b.oauth2 != nil {
		if _, err := b.oauth2.Init(); err != nil {
			errs = append(errs, fmt.Errorf("oauth2 config %s: %w", b.cfg.OAuth2ConfigURL, err))
		}
	}

	if b.oauth1 != nil {
		if err := b.oauth1.Init(b.docs.oauth1); err != nil {
			errs = append(errs, fmt.Errorf("oauth1 config %s: %w", b.cfg.OAuth1ConfigURL, err))
		}
	}

	return errors.Join(errs...)
}

// init primes the stores. A failure leaves the OAuth2 store loading
// clients on demand; a later reload retries the bulk load.
func (b *broker) init() {
	if err := b.prime(); err != nil {
		b.logger.Error("priming credential stores", slog.String("error", err.Error()))
	}
}

// check primes the stores and fails on any config error.
func (b *broker) check() error {
	if err := b.prime(); err != nil {
		return err
	}

	b.logger.Info("config documents are valid")

	return nil
}

func (b *broker) reloadOAuth2(ctx context.Context, path string) error {
	data, err := fetch(ctx, b.fs, path)
	if err != nil {
		return err
	}

	b.persister.Reload(data)

	return b.oauth2.Reprime()
}

func (b *broker) reloadOAuth1(ctx context.Context, path string) error {
	data, err := fetch(ctx, b.fs, path)
	if err != nil {
		return err
	}

	return b.oauth1.Init(data)
}

func (b *broker) Close() error {
	if b.state != nil {
		return b.state.Close()
	}

	return nil
}

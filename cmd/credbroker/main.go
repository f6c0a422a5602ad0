package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/credbroker/internal/config"
	"github.com/alexjbarnes/credbroker/internal/logging"
	"github.com/alexjbarnes/credbroker/internal/secrets"
	"github.com/alexjbarnes/credbroker/internal/watch"
	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	// Subcommands that need no configuration.
	if len(os.Args) > 1 && os.Args[1] == "gen-key" {
		genKey()
		return
	}

	check := len(os.Args) > 1 && os.Args[1] == "check"

	if err := run(check); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func genKey() {
	key, err := secrets.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(key)
}

func run(check bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("credbroker starting",
		slog.String("version", Version),
		slog.String("key_policy", cfg.KeyPolicy),
		slog.Bool("durable_tokens", cfg.TokenDB != ""),
		slog.Bool("watch", cfg.WatchConfig),
	)

	enc, err := newEncrypter(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs := afs.New()

	docs, err := fetchDocuments(ctx, fs, cfg, logger, check)
	if err != nil {
		return err
	}

	b, err := newBroker(cfg, enc, docs, fs, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if check {
		return b.check()
	}

	b.init()

	if !cfg.WatchConfig {
		<-ctx.Done()
		logger.Info("credbroker stopping")

		return nil
	}

	w := watch.New(logger, watch.DefaultDebounce)

	if path := config.LocalPath(cfg.OAuth2ConfigURL); path != "" {
		if err := w.Add(path, b.reloadOAuth2); err != nil {
			return err
		}
	}

	if path := config.LocalPath(cfg.OAuth1ConfigURL); path != "" {
		if err := w.Add(path, b.reloadOAuth1); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})

	err = g.Wait()
	logger.Info("credbroker stopping")

	if ctx.Err() != nil {
		return nil
	}

	return err
}

func newEncrypter(cfg *config.Config, logger *slog.Logger) (secrets.Encrypter, error) {
	if cfg.EncryptionKey == "" {
		logger.Warn("OAUTH_ENCRYPTION_KEY not set, secrets are held in plaintext")
		return secrets.Plaintext{}, nil
	}

	enc, err := secrets.NewAESEncrypter([]byte(cfg.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("creating encrypter: %w", err)
	}

	return enc, nil
}

// emptyOAuth1Doc stands in for an OAuth 1.0 document that could not be
// fetched.
var emptyOAuth1Doc = []byte("{}")

// fetchDocuments downloads both config documents concurrently. Unless
// strict is set, a document that cannot be fetched is logged and replaced
// by an empty one so the broker starts with no credentials for it.
func fetchDocuments(ctx context.Context, fs afs.Service, cfg *config.Config, logger *slog.Logger, strict bool) (documents, error) {
	var docs documents

	g, gctx := errgroup.WithContext(ctx)

	load := func(kind, url string, empty []byte, dst *[]byte) {
		g.Go(func() error {
			data, err := fetch(gctx, fs, url)
			if err == nil {
				*dst = data
				return nil
			}

			if strict {
				return fmt.Errorf("loading %s config: %w", kind, err)
			}

			logger.Error("loading config document, starting without its credentials",
				slog.String("kind", kind),
				slog.String("url", url),
				slog.String("error", err.Error()),
			)

			*dst = empty

			return nil
		})
	}

	if cfg.OAuth2ConfigURL != "" {
		load("oauth2", cfg.OAuth2ConfigURL, nil, &docs.oauth2)
	}

	if cfg.OAuth1ConfigURL != "" {
		load("oauth1", cfg.OAuth1ConfigURL, emptyOAuth1Doc, &docs.oauth1)
	}

	if err := g.Wait(); err != nil {
		return documents{}, err
	}

	return docs, nil
}

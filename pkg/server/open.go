package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haivivi/ishe/pkg/auth"
	"github.com/haivivi/ishe/pkg/conversation"
	"github.com/haivivi/ishe/pkg/embed"
	"github.com/haivivi/ishe/pkg/kv"
	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
	"github.com/haivivi/ishe/pkg/prompt"
	"github.com/haivivi/ishe/pkg/storage"
	"github.com/haivivi/ishe/pkg/vecstore"
)

// Open builds a Server from cfg: it validates the OpenAI key, opens the
// conversation store and recording storage, and loads prompt overrides.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	if !cfg.OpenAI.SkipValidation {
		if err := embed.NewOpenAI(cfg.OpenAI.APIKey).Validate(ctx); err != nil {
			return nil, fmt.Errorf("invalid OpenAI API key: %w", err)
		}
		logger.Info("openai api key validated")
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience),
		auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	prompts := prompt.New()
	if cfg.Prompts.Dir != "" {
		if err := prompts.LoadDir(cfg.Prompts.Dir); err != nil {
			return nil, err
		}
	}

	files, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	embedder := newEmbedder(cfg)
	store, err := openStore(ctx, cfg.Store, embedder.Dimension(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("conversation store opened", "type", cfg.Store.Type, "embedder", cfg.Embedder.Type)

	convs := conversation.NewService(store, embedder,
		conversation.WithLogger(logger),
		conversation.WithMinSimilarity(cfg.Store.MinSimilarity))

	srv, err := New(Options{
		Conversations: convs,
		Recordings:    files,
		Provider: openairealtime.NewProviderClient(cfg.OpenAI.APIKey,
			openairealtime.WithProviderURL(cfg.OpenAI.RealtimeURL),
			openairealtime.WithProviderModel(cfg.OpenAI.Model)),
		Verifier:       verifier,
		Prompts:        prompts,
		Model:          cfg.OpenAI.Model,
		Voice:          cfg.OpenAI.Voice,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		convs.Close()
		return nil, err
	}
	return srv, nil
}

func newEmbedder(cfg *Config) embed.Embedder {
	if cfg.Embedder.Type == "hash" {
		return embed.NewHash(cfg.Embedder.Dimension)
	}
	opts := []embed.Option{embed.WithModel(cfg.Embedder.Model), embed.WithDimension(cfg.Embedder.Dimension)}
	if cfg.Embedder.BaseURL != "" {
		opts = append(opts, embed.WithBaseURL(cfg.Embedder.BaseURL))
	}
	return embed.NewOpenAI(cfg.OpenAI.APIKey, opts...)
}

func openStore(ctx context.Context, cfg StoreConfig, dim int, logger *slog.Logger) (conversation.Store, error) {
	switch cfg.Type {
	case "memory":
		return conversation.OpenKV(ctx, kv.NewMemory(), vecstore.NewMemory(), logger)
	case "badger":
		db, err := kv.OpenBadger(kv.BadgerOptions{Dir: cfg.Dir, Logger: logger})
		if err != nil {
			return nil, err
		}
		s, err := conversation.OpenKV(ctx, db, vecstore.NewMemory(), logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		return conversation.OpenSQLite(ctx, cfg.DSN)
	case "postgres":
		return conversation.OpenPostgres(ctx, cfg.DSN, dim)
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}

func openStorage(ctx context.Context, cfg StorageConfig) (storage.FileStore, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocal(cfg.Dir)
	case "s3":
		return storage.OpenS3(ctx, storage.S3Options{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

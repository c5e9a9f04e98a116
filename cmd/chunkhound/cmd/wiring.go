package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/ofriw/chunkhound-sub000/internal/config"
	"github.com/ofriw/chunkhound-sub000/internal/discovery"
	"github.com/ofriw/chunkhound-sub000/internal/embed"
	"github.com/ofriw/chunkhound-sub000/internal/index"
	"github.com/ofriw/chunkhound-sub000/internal/llm"
	"github.com/ofriw/chunkhound-sub000/internal/parsing"
	"github.com/ofriw/chunkhound-sub000/internal/research"
	"github.com/ofriw/chunkhound-sub000/internal/search"
	"github.com/ofriw/chunkhound-sub000/internal/store"
)

// components bundles everything serve/index/stats build from config, so
// each command wires once and picks what it needs.
type components struct {
	cfg         *config.Config
	root        string
	engine      *store.Engine
	discovery   *discovery.Cache
	parser      parsing.Parser
	embedder    embed.Embedder // static when offline, nil when no embedding base URL is configured
	embedSvc    *embed.Service
	coordinator *index.Coordinator
	searchSvc   *search.Service
	completer   llm.Completer // nil if no LLM base URL is configured
	researchSvc *research.Service
}

// buildComponents loads config for root and constructs every collaborator a
// running server or CLI command needs. offline forces a static embedder
// (no network, no API key) in place of the configured HTTP provider.
func buildComponents(root string, offline bool) (*components, error) {
	cfg, err := config.Load(config.LoadOptions{ProjectDir: root, ExplicitConfigPath: configFile})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	engine, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage engine: %w", err)
	}

	disc, err := discovery.New(0, 0)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("build discovery cache: %w", err)
	}

	parser := parsing.NewLineWindowParser()

	var embedder embed.Embedder
	if offline {
		embedder = embed.NewStaticEmbedder(0)
	} else if cfg.Embedding.BaseURL != "" {
		embedder = embed.NewCachedEmbedderWithDefaults(embed.NewHTTPEmbedder(embed.HTTPConfig{
			Provider:  string(cfg.Embedding.Provider),
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			APIKey:    cfg.Embedding.APIKey,
			BatchSize: cfg.Embedding.BatchSize,
		}))
	}

	var embedSvc *embed.Service
	var enqueuer index.EmbedEnqueuer
	if embedder != nil {
		embedSvc = embed.NewService(engine, embedder, cfg.Embedding)
		enqueuer = embedSvc
	}

	coordinator := index.NewCoordinator(engine, parser, disc, enqueuer, cfg.Indexing)

	searchSvc := search.NewService(engine, embedder)

	var completer llm.Completer
	if cfg.LLM.BaseURL != "" {
		completer = llm.NewHTTPCompleter(llm.HTTPConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			APIKey:  cfg.LLM.APIKey,
		})
	}

	var researchSvc *research.Service
	if completer != nil {
		researchSvc = research.NewService(root, searchSvc, completer, nil, engine)
	}

	return &components{
		cfg:         cfg,
		root:        root,
		engine:      engine,
		discovery:   disc,
		parser:      parser,
		embedder:    embedder,
		embedSvc:    embedSvc,
		coordinator: coordinator,
		searchSvc:   searchSvc,
		completer:   completer,
		researchSvc: researchSvc,
	}, nil
}

// Close releases every collaborator that owns a resource.
func (c *components) Close() {
	if c.embedder != nil {
		c.embedder.Close()
	}
	if c.completer != nil {
		c.completer.Close()
	}
	c.engine.Close()
}

// indexOptions builds the coordinator options shared by the index command
// and serve's initial scan.
func indexOptions(force, skipEmbeddings bool) index.ProcessOptions {
	return index.ProcessOptions{Force: force, SkipEmbeddings: skipEmbeddings}
}

// resolveRoot returns path if non-empty, otherwise the discovered project
// root starting from the current directory.
func resolveRoot(path string) (string, error) {
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	return discovery.FindProjectRoot(".")
}

package cli

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lunai408/local-agent-factory/config"
	"github.com/lunai408/local-agent-factory/embedder"
	"github.com/lunai408/local-agent-factory/embedder/mock"
	"github.com/lunai408/local-agent-factory/embedder/ollama"
	"github.com/lunai408/local-agent-factory/embedder/onnx"
	"github.com/lunai408/local-agent-factory/engine"
	"github.com/lunai408/local-agent-factory/knowledge"
	"github.com/lunai408/local-agent-factory/memory"
	"github.com/lunai408/local-agent-factory/storage"
	"github.com/lunai408/local-agent-factory/tools"
	"github.com/lunai408/local-agent-factory/vectorindex"
)

// runtime bundles the wired components for one command invocation.
type runtime struct {
	cfg        config.Config
	db         *sql.DB
	provider   embedder.Provider
	index      *vectorindex.Index
	knowledge  *knowledge.Store
	memory     *memory.Store
	recall     *memory.RecallIndex
	summarizer *memory.Summarizer
	router     *tools.Router
	dispatcher *engine.Dispatcher
	model      *engine.AnthropicClient
}

func (r *runtime) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// newRuntime loads configuration and wires every component. Dimension or
// metric mismatches fail here, at startup, never mid-request.
func newRuntime(withModel bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(filepath.Join(cfg.DataDir, "agentd.db"))
	if err != nil {
		return nil, err
	}
	r := &runtime{cfg: cfg, db: db}

	provider, err := newProvider(cfg)
	if err != nil {
		r.Close()
		return nil, err
	}
	if cfg.Embedding.CacheSize > 0 {
		provider, err = embedder.NewCachedProvider(provider, cfg.Embedding.CacheSize)
		if err != nil {
			r.Close()
			return nil, err
		}
	}
	r.provider = provider

	r.index, err = vectorindex.New(vectorindex.Config{
		Dimensions:     cfg.Embedding.Dimensions,
		Metric:         cfg.Metric(),
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
	})
	if err != nil {
		r.Close()
		return nil, err
	}

	r.knowledge, err = knowledge.NewStore(db, r.index, provider, knowledge.DefaultChunkOptions())
	if err != nil {
		r.Close()
		return nil, err
	}
	r.memory, err = memory.NewStore(db)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.recall = memory.NewRecallIndex(provider)

	artifactsDir := cfg.Tools.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = filepath.Join(cfg.DataDir, "artifacts")
	}
	r.router, err = tools.NewRouter(db, artifactsDir, tools.DefaultDefinitions(tools.Endpoints{
		ChartURL: cfg.Tools.ChartURL,
		PDFURL:   cfg.Tools.PDFURL,
		ImageURL: cfg.Tools.ImageURL,
	}))
	if err != nil {
		r.Close()
		return nil, err
	}

	if !withModel {
		return r, nil
	}

	if cfg.Model.APIKey == "" {
		r.Close()
		return nil, fmt.Errorf("no API key configured (set ANTHROPIC_API_KEY or model.api_key)")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.Model.APIKey))
	r.model = engine.NewAnthropicClient(&client, cfg.Model.Name, cfg.Model.MaxTokens)
	r.summarizer = memory.NewSummarizer(r.memory, r.model, cfg.Context.SummarizeEvery)

	r.dispatcher = engine.NewDispatcher(r.model, r.memory, r.summarizer, engine.Config{
		ContextBudget:    cfg.Context.BudgetBytes,
		RecentTurns:      cfg.Context.RecentTurns,
		RecallLimit:      cfg.Context.RecallLimit,
		KnowledgeResults: cfg.Context.KnowledgeResults,
		Model:            cfg.Model.Name,
		MaxTokens:        cfg.Model.MaxTokens,
	},
		engine.WithRecall(r.recall),
		engine.WithKnowledge(r.knowledge),
		engine.WithRouter(r.router),
		engine.WithExtractor(r.model),
	)
	return r, nil
}

func newProvider(cfg config.Config) (embedder.Provider, error) {
	switch cfg.Embedding.Provider {
	case "mock":
		return mock.New(cfg.Embedding.Dimensions), nil
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL:    cfg.Embedding.OllamaHost,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	case "onnx":
		return onnx.New(onnx.Config{
			ModelPath:     cfg.Embedding.ModelPath,
			TokenizerPath: cfg.Embedding.TokenizerPath,
			Dimensions:    cfg.Embedding.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

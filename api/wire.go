package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	agentHandlers "careassist/api/handlers/agents"
	"careassist/api/handlers/mcpserver"
	sessionHandlers "careassist/api/handlers/session"
	toolHandlers "careassist/api/handlers/tools"
	uploadHandlers "careassist/api/handlers/upload"
	"careassist/internal/assistant"
	"careassist/internal/config"
	"careassist/internal/costlookup"
	"careassist/internal/infra"
	"careassist/internal/infra/queue"
	"careassist/internal/logger"
	"careassist/internal/rag"
	"careassist/internal/rag/parsers"
	"careassist/internal/session"
	"careassist/internal/tools"
	"careassist/internal/tools/builtin"
	"careassist/internal/worker"
	workerHandlers "careassist/internal/worker/handlers"
	"careassist/internal/worker/tasks"

	"github.com/redis/go-redis/v9"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器，HTTP 服务与 CLI 共用
type AppContainer struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Embedder  rag.EmbeddingProvider
	Store     *rag.StoreClient
	Vectorize *rag.VectorizeClient
	Retrieval *rag.Orchestrator
	Extractor *parsers.Registry

	StorePipeline     *rag.Pipeline
	VectorizePipeline *rag.Pipeline

	Session    *session.Manager
	CostLookup *costlookup.Service
	Registry   *tools.ToolRegistry
	Dispatcher *tools.Dispatcher
	Agent      *assistant.Agent

	Queue  queue.Client
	Worker *worker.Server

	ServerInfo mcpserver.ServerInfo
}

// BuildContainer 按配置组装全部组件
// db 与 rdb 可为 nil：无数据库时不记录工具执行，无 Redis 时关闭缓存 L2、分布式限流与异步入库
func BuildContainer(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*AppContainer, error) {
	log := logger.Get()
	c := &AppContainer{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		ServerInfo: mcpserver.ServerInfo{
			Name:    cfg.MCP.ServerName,
			Version: cfg.MCP.Version,
		},
	}

	// 向量化
	embedder, err := buildEmbedder(cfg, rdb)
	if err != nil {
		return nil, err
	}
	c.Embedder = embedder

	// 主向量库
	primary, err := buildPrimaryStore(cfg, db)
	if err != nil {
		return nil, err
	}
	c.Store = rag.NewStoreClient(embedder, primary, rag.StoreClientOptions{
		EmbedBatchSize:  cfg.RAG.EmbedBatchSize,
		UpsertBatchSize: cfg.RAG.UpsertBatch,
		UpsertRPS:       cfg.RAG.UpsertRPS,
		Logger:          logger.Named("store"),
	})

	// Vectorize 为可选后端
	if vcfg := cfg.VectorStore.Vectorize; vcfg.AccessToken != "" {
		c.Vectorize, err = rag.NewVectorizeClient(rag.VectorizeOptions{
			BaseURL:        vcfg.BaseURL,
			AccessToken:    vcfg.AccessToken,
			OrganizationID: vcfg.OrganizationID,
			PipelineID:     vcfg.PipelineID,
			ConnectorID:    vcfg.ConnectorID,
			Timeout:        seconds(vcfg.TimeoutSeconds),
		})
		if err != nil {
			return nil, err
		}
	}

	// 检索编排
	backends, err := c.searchBackends(cfg, db)
	if err != nil {
		return nil, err
	}
	c.Retrieval = rag.NewOrchestrator(backends, rag.OrchestratorOptions{
		TopK:   cfg.RAG.TopK,
		Policy: rag.FallbackPolicy{FallbackOnEmpty: cfg.RAG.FallbackOnEmpty},
		Logger: logger.Named("retrieval"),
	})

	// 入库流水线
	c.Extractor = parsers.NewRegistry(logger.Named("parsers"))
	chunker := rag.NewChunker(rag.ChunkOptions{
		Size:      cfg.RAG.ChunkSize,
		Overlap:   cfg.RAG.ChunkOverlap,
		MinLength: cfg.RAG.MinChunkLength,
	})
	c.StorePipeline = rag.NewPipeline(c.Extractor, chunker, c.Store, rag.PipelineOptions{
		MaxBytes: cfg.RAG.MaxUploadBytes,
		Timeout:  cfg.RAG.IngestTimeout,
		Strategy: rag.StrategySlidingWindow,
		Logger:   logger.Named("ingest"),
	})
	if c.Vectorize != nil && cfg.VectorStore.Vectorize.ConnectorID != "" {
		c.VectorizePipeline = rag.NewPipeline(c.Extractor, chunker, c.Vectorize, rag.PipelineOptions{
			MaxBytes: cfg.RAG.MaxUploadBytes,
			Timeout:  cfg.RAG.IngestTimeout,
			Strategy: rag.StrategyWords,
			Logger:   logger.Named("ingest.vectorize"),
		})
	}

	// 会话
	c.Session, err = session.NewManager(c.Store, session.Config{
		ClearOnStart: cfg.Session.ClearOnStart,
		ClearMethod:  session.ClearMethod(cfg.Session.ClearMethod),
	}, logger.Named("session"))
	if err != nil {
		return nil, err
	}

	// 费用查询
	var searcher costlookup.Searcher
	gs, err := costlookup.NewGoogleSearcher(ctx, costlookup.GoogleOptions{
		APIKey:   cfg.Search.GoogleAPIKey,
		CX:       cfg.Search.GoogleCX,
		Endpoint: cfg.Search.Endpoint,
		Timeout:  seconds(cfg.Search.TimeoutSeconds),
	})
	switch {
	case err == nil:
		searcher = gs
	case errors.Is(err, costlookup.ErrNotConfigured):
		log.Warn("未配置 Google Custom Search，费用查询将返回默认提示")
	default:
		return nil, err
	}
	c.CostLookup = costlookup.NewService(searcher, logger.Named("costlookup"))

	// 工具
	c.Registry = tools.NewToolRegistry()
	if err := builtin.RegisterAll(c.Registry, builtin.Deps{
		Retriever:  c.Retrieval,
		CostLookup: c.CostLookup,
		Ingester:   c.StorePipeline,
		Logger:     logger.Named("tools"),
	}); err != nil {
		return nil, fmt.Errorf("注册内置工具失败: %w", err)
	}
	if db != nil && cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(db, &tools.ToolExecution{}); err != nil {
			return nil, err
		}
	}
	c.Dispatcher = tools.NewDispatcher(c.Registry, db, tools.DispatcherOptions{
		DefaultTimeout: seconds(cfg.MCP.ToolTimeoutSecs),
		Logger:         logger.Named("dispatcher"),
	})

	// 对话助手
	c.Agent = assistant.NewAgent(openai.NewClientWithConfig(openAIConfig(cfg.AI.OpenAI)), c.Registry, c.Dispatcher, assistant.Options{
		Model:            cfg.AI.OpenAI.ChatModel,
		MaxSteps:         cfg.Assistant.MaxSteps,
		MaxHistoryTokens: cfg.Assistant.MaxHistoryTokens,
		SystemPrompt:     cfg.Assistant.SystemPrompt,
		Logger:           logger.Named("assistant"),
	})

	// 异步入库
	if rdb != nil && cfg.Worker.Enabled {
		c.Queue = queue.NewClient(cfg.Redis, queue.Options{
			MaxRetry: cfg.Worker.MaxRetry,
			Timeout:  cfg.RAG.IngestTimeout + time.Minute,
		})
		pipelines := map[string]workerHandlers.Ingester{tasks.TargetStore: c.StorePipeline}
		if c.VectorizePipeline != nil {
			pipelines[tasks.TargetVectorize] = c.VectorizePipeline
		}
		c.Worker = worker.NewServer(cfg.Redis, cfg.Worker,
			workerHandlers.NewIngestHandler(pipelines, logger.Named("worker")),
			logger.Named("worker"))
	}

	log.Info("组件装配完成",
		zap.String("primary", c.Store.Name()),
		zap.Strings("backends", c.Retrieval.Backends()),
		zap.Strings("tools", c.Registry.Names()),
		zap.Bool("vectorize_upload", c.VectorizePipeline != nil),
		zap.Bool("async_ingest", c.Queue != nil),
	)
	return c, nil
}

// Close 释放队列连接
func (c *AppContainer) Close() error {
	if c.Queue != nil {
		return c.Queue.Close()
	}
	return nil
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Upload    *uploadHandlers.Handler
	Session   *sessionHandlers.Handler
	Tools     *toolHandlers.ToolHandler
	Agent     *agentHandlers.AgentHandler
	Transport *mcpserver.TransportHandler
}

// NewHandlers 创建全部处理器
func NewHandlers(c *AppContainer) *Handlers {
	var vectorize uploadHandlers.Ingester
	if c.VectorizePipeline != nil {
		vectorize = c.VectorizePipeline
	}
	var taskQueue uploadHandlers.TaskQueue
	if c.Queue != nil {
		taskQueue = c.Queue
	}
	var agent agentHandlers.Chatter
	if c.Agent != nil {
		agent = c.Agent
	}

	return &Handlers{
		Upload:    uploadHandlers.NewHandler(c.StorePipeline, vectorize, taskQueue),
		Session:   sessionHandlers.NewHandler(c.Session),
		Tools:     toolHandlers.NewToolHandler(c.Registry, c.Dispatcher),
		Agent:     agentHandlers.NewAgentHandler(agent, c.Session.ID),
		Transport: mcpserver.NewTransportHandler(c.Registry, c.Dispatcher, c.ServerInfo),
	}
}

func buildEmbedder(cfg *config.Config, rdb *redis.Client) (rag.EmbeddingProvider, error) {
	ocfg := cfg.AI.OpenAI
	provider, err := rag.NewOpenAIEmbeddingProvider(rag.OpenAIOptions{
		APIKey:  ocfg.APIKey,
		BaseURL: ocfg.BaseURL,
		OrgID:   ocfg.OrgID,
		Model:   ocfg.EmbeddingModel,
		Timeout: seconds(ocfg.TimeoutSeconds),
	})
	if err != nil {
		return nil, err
	}
	if !cfg.RAG.EmbeddingCache {
		return provider, nil
	}
	cache := rag.NewEmbeddingCache(rdb, 0, logger.Named("embedding_cache"))
	return rag.NewCachedEmbeddingProvider(provider, cache), nil
}

func openAIConfig(ocfg config.OpenAIConfig) openai.ClientConfig {
	clientCfg := openai.DefaultConfig(ocfg.APIKey)
	if ocfg.BaseURL != "" {
		clientCfg.BaseURL = ocfg.BaseURL
	}
	if ocfg.OrgID != "" {
		clientCfg.OrgID = ocfg.OrgID
	}
	return clientCfg
}

// searchBackends 按配置顺序构建检索后端，主库复用写入端的 StoreClient
func (c *AppContainer) searchBackends(cfg *config.Config, db *gorm.DB) ([]rag.SearchBackend, error) {
	names := cfg.VectorStore.Backends
	if len(names) == 0 {
		names = []string{c.Store.Name()}
	}

	backends := make([]rag.SearchBackend, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case name == c.Store.Name():
			backends = append(backends, c.Store)
		case name == "vectorize":
			if c.Vectorize == nil {
				logger.Warn("检索后端 vectorize 未配置，已跳过")
				continue
			}
			backends = append(backends, c.Vectorize)
		default:
			store, err := BuildVectorStore(name, cfg, db)
			if err != nil {
				return nil, fmt.Errorf("构建检索后端 %s 失败: %w", name, err)
			}
			backends = append(backends, rag.NewStoreClient(c.Embedder, store, rag.StoreClientOptions{
				EmbedBatchSize: cfg.RAG.EmbedBatchSize,
				Logger:         logger.Named("store." + name),
			}))
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("没有可用的检索后端")
	}
	return backends, nil
}

func buildPrimaryStore(cfg *config.Config, db *gorm.DB) (rag.VectorStore, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.VectorStore.Primary))
	if name == "" {
		name = "pinecone"
	}
	if name == "vectorize" {
		return nil, fmt.Errorf("vectorize 不能作为主向量库，请使用 /api/upload-vectorize")
	}
	return BuildVectorStore(name, cfg, db)
}

// BuildVectorStore 按名称构建向量库
func BuildVectorStore(name string, cfg *config.Config, db *gorm.DB) (rag.VectorStore, error) {
	vs := cfg.VectorStore
	switch name {
	case "pinecone":
		return rag.NewPineconeStore(rag.PineconeOptions{
			APIKey:    vs.Pinecone.APIKey,
			IndexHost: vs.Pinecone.IndexHost,
			Namespace: vs.Pinecone.Namespace,
			Timeout:   seconds(vs.Pinecone.TimeoutSeconds),
		})
	case "qdrant":
		return rag.NewQdrantStore(rag.QdrantOptions{
			Endpoint:        vs.Qdrant.Endpoint,
			APIKey:          vs.Qdrant.APIKey,
			Collection:      vs.Qdrant.Collection,
			VectorDimension: vs.Qdrant.VectorDimension,
			Distance:        vs.Qdrant.Distance,
			TimeoutSeconds:  vs.Qdrant.TimeoutSeconds,
		})
	case "pgvector":
		if db == nil || cfg.Database.Driver != "postgres" {
			return nil, fmt.Errorf("pgvector 需要 postgres 数据库连接")
		}
		return rag.NewPGVectorStore(db, vs.PGVector.Table, cfg.AI.OpenAI.Dimension)
	}
	return nil, fmt.Errorf("不支持的向量库: %s (可选: pinecone, qdrant, pgvector, vectorize)", name)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

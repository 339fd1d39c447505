package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	AI          AIConfig          `mapstructure:"ai"`
	RAG         RAGConfig         `mapstructure:"rag"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Session     SessionConfig     `mapstructure:"session"`
	Search      SearchConfig      `mapstructure:"search"`
	MCP         MCPConfig         `mapstructure:"mcp"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Assistant   AssistantConfig   `mapstructure:"assistant"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
// Driver 为空时不连接数据库，工具调用审计被关闭
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig AI 模型配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	OrgID          string `mapstructure:"org_id"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	ChatModel      string `mapstructure:"chat_model"`
	Dimension      int    `mapstructure:"dimension"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RAGConfig 切分、批量与检索参数
type RAGConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size"`
	ChunkOverlap   int           `mapstructure:"chunk_overlap"`
	MinChunkLength int           `mapstructure:"min_chunk_length"`
	EmbedBatchSize int           `mapstructure:"embed_batch_size"`
	UpsertBatch    int           `mapstructure:"upsert_batch_size"`
	UpsertRPS      float64       `mapstructure:"upsert_rps"` // 0 表示不限速
	TopK           int           `mapstructure:"top_k"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	IngestTimeout  time.Duration `mapstructure:"ingest_timeout"`
	EmbeddingCache bool          `mapstructure:"embedding_cache"`
	// FallbackOnEmpty 为 true 时，后端成功但无结果也会继续尝试下一个后端
	FallbackOnEmpty bool `mapstructure:"fallback_on_empty"`
}

// VectorStoreConfig 向量存储配置
// Primary 决定写入端，Backends 决定检索顺序
type VectorStoreConfig struct {
	Primary   string          `mapstructure:"primary"` // pinecone, qdrant, pgvector
	Backends  []string        `mapstructure:"backends"`
	Pinecone  PineconeConfig  `mapstructure:"pinecone"`
	Vectorize VectorizeConfig `mapstructure:"vectorize"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	PGVector  PGVectorConfig  `mapstructure:"pgvector"`
}

// PineconeConfig Pinecone 索引配置
type PineconeConfig struct {
	APIKey         string `mapstructure:"api_key"`
	IndexHost      string `mapstructure:"index_host"` // https://<index>-<project>.svc.<env>.pinecone.io
	Namespace      string `mapstructure:"namespace"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// VectorizeConfig Vectorize.io 管道配置
type VectorizeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	AccessToken    string `mapstructure:"access_token"`
	OrganizationID string `mapstructure:"organization_id"`
	PipelineID     string `mapstructure:"pipeline_id"`
	ConnectorID    string `mapstructure:"connector_id"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// QdrantConfig Qdrant 外部向量数据库配置
type QdrantConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	APIKey          string `mapstructure:"api_key"`
	Collection      string `mapstructure:"collection"`
	VectorDimension int    `mapstructure:"vector_dimension"`
	Distance        string `mapstructure:"distance"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// PGVectorConfig pgvector 表配置（复用 Database 连接）
type PGVectorConfig struct {
	Table string `mapstructure:"table"`
}

// SessionConfig 会话启动清理配置
type SessionConfig struct {
	ClearOnStart bool   `mapstructure:"clear_on_start"`
	ClearMethod  string `mapstructure:"clear_method"` // all, none
}

// SearchConfig Google Custom Search 配置
type SearchConfig struct {
	GoogleAPIKey   string `mapstructure:"google_api_key"`
	GoogleCX       string `mapstructure:"google_cx"`
	Endpoint       string `mapstructure:"endpoint"` // 测试时覆盖
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MCPConfig 工具服务元信息
type MCPConfig struct {
	ServerName      string `mapstructure:"server_name"`
	Version         string `mapstructure:"version"`
	ToolTimeoutSecs int    `mapstructure:"tool_timeout_seconds"`
}

// WorkerConfig 异步入库 worker
type WorkerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
	MaxRetry    int  `mapstructure:"max_retry"`
}

// RateLimitConfig 接口限流
type RateLimitConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	PerMinute int  `mapstructure:"per_minute"`
}

// AssistantConfig 对话助手
type AssistantConfig struct {
	MaxSteps         int    `mapstructure:"max_steps"`
	MaxHistoryTokens int    `mapstructure:"max_history_tokens"`
	SystemPrompt     string `mapstructure:"system_prompt"`
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
// 配置文件不存在时仅使用默认值与环境变量
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // APP_VECTOR_STORE_PINECONE_API_KEY

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 330)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("ai.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.openai.chat_model", "gpt-4o")
	v.SetDefault("ai.openai.dimension", 1536)
	v.SetDefault("ai.openai.timeout_seconds", 60)

	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.min_chunk_length", 50)
	v.SetDefault("rag.embed_batch_size", 20)
	v.SetDefault("rag.upsert_batch_size", 100)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.max_upload_bytes", 10*1024*1024)
	v.SetDefault("rag.ingest_timeout", 5*time.Minute)

	v.SetDefault("vector_store.primary", "pinecone")
	v.SetDefault("vector_store.backends", []string{"pinecone", "vectorize"})
	v.SetDefault("vector_store.pinecone.timeout_seconds", 30)
	v.SetDefault("vector_store.vectorize.base_url", "https://api.vectorize.io/v1")
	v.SetDefault("vector_store.vectorize.connector_id", "medical_insurance_booklet")
	v.SetDefault("vector_store.vectorize.timeout_seconds", 30)
	v.SetDefault("vector_store.qdrant.collection", "careassist")
	v.SetDefault("vector_store.qdrant.vector_dimension", 1536)
	v.SetDefault("vector_store.qdrant.distance", "Cosine")
	v.SetDefault("vector_store.qdrant.timeout_seconds", 15)
	v.SetDefault("vector_store.pgvector.table", "document_vectors")

	v.SetDefault("session.clear_on_start", true)
	v.SetDefault("session.clear_method", "all")

	v.SetDefault("search.timeout_seconds", 15)

	v.SetDefault("mcp.server_name", "Healthcare AI Assistant MCP Server")
	v.SetDefault("mcp.version", "1.0.0")
	v.SetDefault("mcp.tool_timeout_seconds", 300)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_retry", 3)

	v.SetDefault("rate_limit.per_minute", 120)

	v.SetDefault("assistant.max_steps", 5)
	v.SetDefault("assistant.max_history_tokens", 8000)

	// 未设默认值的键需要显式绑定环境变量，Unmarshal 才能读到
	for _, key := range []string{
		"ai.openai.api_key", "ai.openai.base_url", "ai.openai.org_id",
		"vector_store.pinecone.api_key", "vector_store.pinecone.index_host", "vector_store.pinecone.namespace",
		"vector_store.vectorize.access_token", "vector_store.vectorize.organization_id", "vector_store.vectorize.pipeline_id",
		"vector_store.qdrant.endpoint", "vector_store.qdrant.api_key",
		"search.google_api_key", "search.google_cx", "search.endpoint",
		"database.driver", "database.host", "database.port", "database.user", "database.password", "database.dbname", "database.sqlite_path",
		"redis.enabled", "redis.password", "redis.db",
		"worker.enabled", "rate_limit.enabled", "rag.upsert_rps", "rag.embedding_cache", "rag.fallback_on_empty",
		"assistant.system_prompt",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size 必须大于 0")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap 必须在 [0, chunk_size) 范围内")
	}
	if c.RAG.EmbedBatchSize <= 0 || c.RAG.UpsertBatch <= 0 {
		return fmt.Errorf("rag 批量大小必须大于 0")
	}
	if c.RAG.MaxUploadBytes <= 0 {
		return fmt.Errorf("rag.max_upload_bytes 必须大于 0")
	}
	switch c.Session.ClearMethod {
	case "all", "none":
	case "by-session", "by-age":
		return fmt.Errorf("session.clear_method %q 尚未实现，仅支持 all 或 none", c.Session.ClearMethod)
	default:
		return fmt.Errorf("未知的 session.clear_method: %q", c.Session.ClearMethod)
	}
	if len(c.VectorStore.Backends) == 0 {
		return fmt.Errorf("vector_store.backends 不能为空")
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

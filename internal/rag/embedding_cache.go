package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EmbeddingCache 向量缓存：进程内 L1 + Redis L2
// 问题向量化是检索的热点，同一问题重复提问时可以省掉一次模型调用
type EmbeddingCache struct {
	redis    *redis.Client
	prefix   string
	ttl      time.Duration
	maxLocal int
	logger   *zap.Logger

	mu    sync.Mutex
	local map[string][]float32
}

// NewEmbeddingCache 创建向量缓存，redisClient 为 nil 时只用本地缓存
func NewEmbeddingCache(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingCache{
		redis:    redisClient,
		prefix:   "careassist:emb:",
		ttl:      ttl,
		maxLocal: 5000,
		logger:   logger,
		local:    make(map[string][]float32),
	}
}

// GetBatch 批量查询，返回命中结果（按输入下标）与未命中下标
func (c *EmbeddingCache) GetBatch(ctx context.Context, texts []string, model string) (map[int][]float32, []int) {
	hits := make(map[int][]float32, len(texts))
	var pending []int

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.local[c.key(text, model)]; ok {
			hits[i] = vec
		} else {
			pending = append(pending, i)
		}
	}
	c.mu.Unlock()

	if c.redis == nil || len(pending) == 0 {
		return hits, pending
	}

	keys := make([]string, len(pending))
	for j, idx := range pending {
		keys[j] = c.key(texts[idx], model)
	}
	values, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("读取向量缓存失败", zap.Error(err))
		return hits, pending
	}

	var missing []int
	for j, raw := range values {
		idx := pending[j]
		s, ok := raw.(string)
		if !ok {
			missing = append(missing, idx)
			continue
		}
		var vec []float32
		if json.Unmarshal([]byte(s), &vec) != nil {
			missing = append(missing, idx)
			continue
		}
		hits[idx] = vec
		c.setLocal(keys[j], vec)
	}
	return hits, missing
}

// SetBatch 写入缓存，Redis 失败只记录日志
func (c *EmbeddingCache) SetBatch(ctx context.Context, texts []string, model string, vectors [][]float32) {
	if len(texts) != len(vectors) {
		return
	}
	var pipe redis.Pipeliner
	if c.redis != nil {
		pipe = c.redis.Pipeline()
	}
	for i, text := range texts {
		key := c.key(text, model)
		c.setLocal(key, vectors[i])
		if pipe != nil {
			data, err := json.Marshal(vectors[i])
			if err != nil {
				continue
			}
			pipe.Set(ctx, key, data, c.ttl)
		}
	}
	if pipe != nil {
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("写入向量缓存失败", zap.Error(err))
		}
	}
}

func (c *EmbeddingCache) key(text, model string) string {
	hash := sha256.Sum256([]byte(text))
	return c.prefix + model + ":" + hex.EncodeToString(hash[:16])
}

func (c *EmbeddingCache) setLocal(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.local) >= c.maxLocal {
		// 满了清掉一半，map 遍历顺序随机
		n := 0
		for k := range c.local {
			delete(c.local, k)
			n++
			if n >= c.maxLocal/2 {
				break
			}
		}
	}
	c.local[key] = vec
}

// CachedEmbeddingProvider 带缓存的 Embedding 提供者包装器
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	cache    *EmbeddingCache
}

// NewCachedEmbeddingProvider 创建带缓存的 Embedding 提供者
func NewCachedEmbeddingProvider(provider EmbeddingProvider, cache *EmbeddingCache) *CachedEmbeddingProvider {
	return &CachedEmbeddingProvider{provider: provider, cache: cache}
}

// Embed 单条向量化 (带缓存)
func (p *CachedEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量向量化 (带缓存)，只对未命中的文本调用底层提供者
func (p *CachedEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := p.provider.GetModel()
	hits, missing := p.cache.GetBatch(ctx, texts, model)

	result := make([][]float32, len(texts))
	for idx, vec := range hits {
		result[idx] = vec
	}
	if len(missing) == 0 {
		return result, nil
	}

	missingTexts := make([]string, len(missing))
	for j, idx := range missing {
		missingTexts[j] = texts[idx]
	}
	vectors, err := p.provider.EmbedBatch(ctx, missingTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missingTexts) {
		return nil, NewError(KindEmbedding, p.provider.GetProviderName(),
			fmt.Errorf("返回向量数量不匹配: 期望%d, 实际%d", len(missingTexts), len(vectors)))
	}
	p.cache.SetBatch(ctx, missingTexts, model, vectors)
	for j, idx := range missing {
		result[idx] = vectors[j]
	}
	return result, nil
}

// GetModel 获取模型名称
func (p *CachedEmbeddingProvider) GetModel() string {
	return p.provider.GetModel()
}

// GetProviderName 获取提供者名称
func (p *CachedEmbeddingProvider) GetProviderName() string {
	return p.provider.GetProviderName()
}

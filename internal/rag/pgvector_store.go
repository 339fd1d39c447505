package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DocumentVector pgvector 表中的一行
type DocumentVector struct {
	ID        string          `gorm:"primaryKey;column:id"`
	Filename  string          `gorm:"column:filename;index"`
	Content   string          `gorm:"column:content"`
	Metadata  string          `gorm:"column:metadata;type:jsonb"`
	Embedding pgvector.Vector `gorm:"column:embedding"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

// PGVectorStore 基于PostgreSQL pgvector扩展的向量存储实现
type PGVectorStore struct {
	db        *gorm.DB
	table     string
	dimension int
}

// NewPGVectorStore 创建新的pgvector存储实例，并确保扩展与表存在
func NewPGVectorStore(db *gorm.DB, table string, dimension int) (*PGVectorStore, error) {
	if table == "" {
		table = "document_vectors"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("非法的表名: %s", table)
	}
	if dimension <= 0 {
		dimension = 1536
	}
	store := &PGVectorStore{db: db, table: table, dimension: dimension}
	if err := store.ensureSchema(); err != nil {
		return nil, fmt.Errorf("初始化 pgvector 表失败: %w", err)
	}
	return store, nil
}

func (s *PGVectorStore) ensureSchema() error {
	if err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return err
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, s.table, s.dimension)
	if err := s.db.Exec(ddl).Error; err != nil {
		return err
	}
	return s.db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_filename ON %s (filename)", s.table, s.table)).Error
}

// Name 后端名称
func (s *PGVectorStore) Name() string { return "pgvector" }

// Upsert 按 ID 插入或覆盖
func (s *PGVectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]DocumentVector, len(records))
	now := time.Now()
	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return NewError(KindUpsert, "pgvector upsert", err)
		}
		rows[i] = DocumentVector{
			ID:        r.ID,
			Filename:  r.Metadata.Filename,
			Content:   r.Text,
			Metadata:  string(meta),
			Embedding: pgvector.NewVector(r.Values),
			UpdatedAt: now,
		}
	}

	err := s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return NewError(KindUpsert, "pgvector upsert", err)
	}
	return nil
}

// Query 余弦相似度检索，<=> 是 pgvector 的余弦距离操作符
func (s *PGVectorStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, NewError(KindRetrieval, "pgvector query", fmt.Errorf("查询向量不能为空"))
	}
	if topK <= 0 {
		topK = 5
	}

	q := pgvector.NewVector(vector)
	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> ?) AS similarity
		FROM %s
		ORDER BY embedding <=> ?
		LIMIT ?`, s.table)

	var rows []struct {
		ID         string  `gorm:"column:id"`
		Content    string  `gorm:"column:content"`
		Metadata   string  `gorm:"column:metadata"`
		Similarity float64 `gorm:"column:similarity"`
	}
	if err := s.db.WithContext(ctx).Raw(query, q, q, topK).Scan(&rows).Error; err != nil {
		return nil, NewError(KindRetrieval, "pgvector query", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		var meta ChunkMetadata
		_ = json.Unmarshal([]byte(r.Metadata), &meta)
		matches = append(matches, Match{ID: r.ID, Score: r.Similarity, Text: r.Content, URL: meta.Source, Metadata: meta})
	}
	return matches, nil
}

// DescribeStats 统计行数
func (s *PGVectorStore) DescribeStats(ctx context.Context) (*StoreStats, error) {
	var count int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&count).Error; err != nil {
		return nil, NewError(KindRetrieval, "pgvector count", err)
	}
	return &StoreStats{TotalVectorCount: count}, nil
}

// DeleteAll 清空表
func (s *PGVectorStore) DeleteAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s", s.table)).Error; err != nil {
		return NewError(KindUpsert, "pgvector delete all", err)
	}
	return nil
}

// DeleteByFilter 按元数据等值删除，filename 走独立列
func (s *PGVectorStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return NewError(KindValidation, "pgvector delete", fmt.Errorf("过滤条件不能为空"))
	}
	tx := s.db.WithContext(ctx).Table(s.table)
	for k, v := range filter {
		if k == "filename" {
			tx = tx.Where("filename = ?", v)
		} else {
			tx = tx.Where("metadata->>? = ?", k, v)
		}
	}
	if err := tx.Delete(&DocumentVector{}).Error; err != nil {
		return NewError(KindUpsert, "pgvector delete", err)
	}
	return nil
}

// Export 按 ID 顺序分页导出向量，用于迁移到其他向量库
func (s *PGVectorStore) Export(ctx context.Context, offset, limit int) ([]VectorRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []DocumentVector
	if err := s.db.WithContext(ctx).Table(s.table).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, NewError(KindRetrieval, "pgvector export", err)
	}

	records := make([]VectorRecord, 0, len(rows))
	for _, r := range rows {
		var meta ChunkMetadata
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return nil, NewError(KindValidation, "pgvector export", fmt.Errorf("解析 %s 的 metadata 失败: %w", r.ID, err))
		}
		records = append(records, VectorRecord{
			ID:       r.ID,
			Values:   r.Embedding.Slice(),
			Text:     r.Content,
			Metadata: meta,
		})
	}
	return records, nil
}

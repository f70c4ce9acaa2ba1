package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Vector 以 JSON 文本存储的 embedding
type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (v *Vector) Scan(value interface{}) error {
	var raw []byte
	switch val := value.(type) {
	case nil:
		*v = Vector{}
		return nil
	case []byte:
		raw = val
	case string:
		raw = []byte(val)
	default:
		return fmt.Errorf("unsupported vector column type %T", value)
	}
	if len(raw) == 0 {
		*v = Vector{}
		return nil
	}
	return json.Unmarshal(raw, (*[]float32)(v))
}

// DocChunk 文档分块，(url_hash, chunk_index) 唯一
type DocChunk struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	DocumentID string    `gorm:"size:36;not null;index" json:"document_id"`
	SourceURL  string    `gorm:"size:1000;not null" json:"source_url"`
	URLHash    string    `gorm:"size:64;not null;uniqueIndex:idx_url_hash_chunk" json:"url_hash"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_url_hash_chunk" json:"chunk_index"`
	Version    string    `gorm:"size:50;default:latest" json:"version"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  Vector    `gorm:"type:mediumtext" json:"-"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (DocChunk) TableName() string {
	return "doc_chunks"
}

// HasEmbedding 是否带有可用向量
func (c *DocChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

package dto

// CreateGenerationRequest 发起代码生成请求
type CreateGenerationRequest struct {
	TaskDescription   string `json:"task_description" binding:"required,max=4000"`
	DocURL            string `json:"doc_url,omitempty" binding:"omitempty,url,max=1000"`
	DocContent        string `json:"doc_content,omitempty" binding:"omitempty,max=200000"`
	Language          string `json:"language" binding:"required,max=30"`
	SelectedTaskIndex int    `json:"selected_task_index,omitempty" binding:"omitempty,min=0,max=2"`
}

// GenerationListItem 生成记录列表项
type GenerationListItem struct {
	ID                 int64  `json:"id"`
	TaskDescription    string `json:"task_description"`
	Language           string `json:"language"`
	Status             string `json:"status"`
	ConfidenceScore    int    `json:"confidence_score"`
	VerificationStatus string `json:"verification_status,omitempty"`
	CreatedAt          string `json:"created_at"`
}

// IngestRequest 文档摄取请求
type IngestRequest struct {
	URL          string `json:"url" binding:"required,url,max=1000"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

// IngestResponse 文档摄取结果
type IngestResponse struct {
	DocumentID string   `json:"document_id"`
	ChunkCount int      `json:"chunk_count"`
	Version    string   `json:"version"`
	Cached     bool     `json:"cached"`
	ArchiveURL string   `json:"archive_url,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ChunkResponse 文档分块（不含向量）
type ChunkResponse struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	SourceURL  string `json:"source_url"`
	ChunkIndex int    `json:"chunk_index"`
	Version    string `json:"version"`
}

// QuotaInfo 配额信息
type QuotaInfo struct {
	DailyQuota      int    `json:"daily_quota"`
	UsedToday       int    `json:"used_today"`
	Remaining       int    `json:"remaining"`
	GenerationCount int64  `json:"generation_count"`
	ResetAt         string `json:"reset_at,omitempty"`
}

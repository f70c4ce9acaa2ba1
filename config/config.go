package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OSS      OSSConfig      `mapstructure:"oss"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Usage    UsageConfig    `mapstructure:"usage"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`

	// 生成接口按用户限流
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

// Enabled 是否配置了 OSS 归档
func (c OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.BucketName != ""
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`   // 为空时只输出到 stdout
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// LLMConfig OpenAI 兼容的模型后端
type LLMConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	RateLimit       float64       `mapstructure:"rate_limit"` // 每秒请求数
	RateBurst       int           `mapstructure:"rate_burst"`
	ReasoningModels []string      `mapstructure:"reasoning_models"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
}

// PipelineConfig 生成流水线参数
type PipelineConfig struct {
	EnhanceModel       string  `mapstructure:"enhance_model"`
	PrimaryModel       string  `mapstructure:"primary_model"`
	AlternativeModel   string  `mapstructure:"alternative_model"`
	JudgeModel         string  `mapstructure:"judge_model"`
	ValidateModel      string  `mapstructure:"validate_model"`
	FixModel           string  `mapstructure:"fix_model"`
	AuditModel         string  `mapstructure:"audit_model"`
	PrimaryTemperature float64 `mapstructure:"primary_temperature"`
	AltTemperature     float64 `mapstructure:"alt_temperature"`
	MaxTokens          int     `mapstructure:"max_tokens"`
	MaxRepairAttempts  int     `mapstructure:"max_repair_attempts"`
	RetrievalMaxChunks int     `mapstructure:"retrieval_max_chunks"`
	RetrievalThreshold float64 `mapstructure:"retrieval_threshold"`
	TraceThreshold     float64 `mapstructure:"trace_threshold"`
	DocContextCap      int     `mapstructure:"doc_context_cap"`
	AutoIngest         bool    `mapstructure:"auto_ingest"`
}

type IngestConfig struct {
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	MinContentLength int           `mapstructure:"min_content_length"`
	MinChunkTokens   int           `mapstructure:"min_chunk_tokens"`
	MaxChunkTokens   int           `mapstructure:"max_chunk_tokens"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	// ChunkExpireDays 超过该天数未刷新的文档由定时任务清理，0 表示不清理
	ChunkExpireDays  int           `mapstructure:"chunk_expire_days"`
}

type CacheConfig struct {
	ChunkCapacity int `mapstructure:"chunk_capacity"`
}

type UsageConfig struct {
	DailyQuota int `mapstructure:"daily_quota"`
}

// Default 返回内置默认配置，配置文件中出现的字段会覆盖它
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "debug", RateLimit: 2, RateBurst: 5},
		Database: DatabaseConfig{Driver: "mysql", Port: 3306, MaxIdleConns: 10, MaxOpenConns: 50},
		Redis:    RedisConfig{Host: "127.0.0.1", Port: 6379, PoolSize: 20},
		JWT:      JWTConfig{ExpireHours: 72},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		},
		Log: LogConfig{Level: "info"},
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			Timeout:    120 * time.Second,
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   10 * time.Second,
			RateLimit:  10,
			RateBurst:  10,
			ReasoningModels: []string{
				"o1", "o1-mini", "o1-preview", "o3", "o3-mini", "o4-mini", "gpt-5", "gpt-5-mini",
			},
			EmbeddingModel: "text-embedding-3-small",
		},
		Pipeline: PipelineConfig{
			EnhanceModel:       "gpt-4o-mini",
			PrimaryModel:       "gpt-4o",
			AlternativeModel:   "gpt-4o-mini",
			JudgeModel:         "gpt-4o",
			ValidateModel:      "gpt-4o-mini",
			FixModel:           "gpt-4o",
			AuditModel:         "gpt-4o-mini",
			PrimaryTemperature: 0.2,
			AltTemperature:     0.8,
			MaxTokens:          4096,
			MaxRepairAttempts:  2,
			RetrievalMaxChunks: 5,
			RetrievalThreshold: 0.4,
			TraceThreshold:     0.3,
			DocContextCap:      8000,
			AutoIngest:         true,
		},
		Ingest: IngestConfig{
			FetchTimeout:     15 * time.Second,
			MaxBodyBytes:     5 << 20,
			MinContentLength: 200,
			MinChunkTokens:   800,
			MaxChunkTokens:   1200,
			LockTTL:          2 * time.Minute,
			ChunkExpireDays:  30,
		},
		Cache: CacheConfig{ChunkCapacity: 512},
		Usage: UsageConfig{DailyQuota: 20},
	}
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelGenerationProgress = "generation_progress"

	MessageTypeProgress = "generation_progress"
)

// ProgressMessage 进度消息
type ProgressMessage struct {
	Type               string `json:"type"`
	UserID             int64  `json:"user_id"`
	GenerationID       int64  `json:"generation_id"`
	Status             string `json:"status"`
	Stage              string `json:"stage"`
	Progress           int    `json:"progress"`
	Message            string `json:"message,omitempty"`
	ConfidenceScore    *int   `json:"confidence_score,omitempty"`
	VerificationStatus string `json:"verification_status,omitempty"`
	Error              string `json:"error,omitempty"`
}

// 流水线阶段事件
const (
	StageEnhancing  = "enhancing_task"
	StageRetrieving = "retrieving_docs"
	StageGenerating = "generating_code"
	StageJudging    = "judging"
	StageValidating = "validating"
	StageFixing     = "fixing_code"
	StageAuditing   = "security_audit"
	StageTracing    = "trace_mapping"
	StageScoring    = "scoring"
	StageFinalizing = "finalizing"
	StageComplete   = "complete"
	StageError      = "error"
)

// 阶段对应的进度百分比
var StageProgress = map[string]int{
	StageEnhancing:  10,
	StageRetrieving: 20,
	StageGenerating: 35,
	StageJudging:    50,
	StageValidating: 60,
	StageFixing:     65,
	StageAuditing:   75,
	StageTracing:    85,
	StageScoring:    92,
	StageFinalizing: 97,
	StageComplete:   100,
}

// 阶段对应的消息
var StageMessages = map[string]string{
	StageEnhancing:  "正在增强任务描述",
	StageRetrieving: "正在检索相关文档",
	StageGenerating: "正在生成候选代码",
	StageJudging:    "正在评审候选代码",
	StageValidating: "正在验证代码",
	StageFixing:     "正在修复代码",
	StageAuditing:   "正在进行安全审计",
	StageTracing:    "正在映射文档来源",
	StageScoring:    "正在计算置信度",
	StageFinalizing: "正在保存结果",
	StageComplete:   "生成完成",
	StageError:      "生成失败",
}

// Fill 自动填充类型、进度和消息
func (m *ProgressMessage) Fill() {
	m.Type = MessageTypeProgress
	if m.Progress == 0 && m.Stage != "" {
		if progress, ok := StageProgress[m.Stage]; ok {
			m.Progress = progress
		}
	}
	if m.Message == "" && m.Stage != "" {
		if message, ok := StageMessages[m.Stage]; ok {
			m.Message = message
		}
	}
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Fill()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelGenerationProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息，阻塞直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelGenerationProgress)
	defer pubsub.Close()

	// 确认订阅建立后再开始消费
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ChannelGenerationProgress, err)
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}

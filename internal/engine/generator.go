package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
)

// ErrGenerationFailed 两路生成都失败
var ErrGenerationFailed = errors.New("code generation failed")

// GeneratorConfig 两路生成的模型与温度
type GeneratorConfig struct {
	PrimaryModel       string
	AlternativeModel   string
	PrimaryTemperature float64
	AltTemperature     float64
	MaxTokens          int
}

// GenerationOutput 成功的候选（primary 在前）与失败原因
type GenerationOutput struct {
	Candidates []model.Candidate
	Errors     []string
}

type Generator struct {
	llm    llm.Completer
	cfg    GeneratorConfig
	logger *zap.Logger
}

func NewGenerator(completer llm.Completer, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	return &Generator{llm: completer, cfg: cfg, logger: orNop(logger)}
}

type generationCall struct {
	role        string
	model       string
	system      string
	temperature float64
}

// Generate 并发发起 primary / alternative 两次调用，各自独立成败；两路都失败才返回错误
func (g *Generator) Generate(ctx context.Context, task, docContext, language string) (*GenerationOutput, error) {
	calls := []generationCall{
		{model.RolePrimary, g.cfg.PrimaryModel, fmt.Sprintf(primarySystemPrompt, language), g.cfg.PrimaryTemperature},
		{model.RoleAlternative, g.cfg.AlternativeModel, fmt.Sprintf(alternativeSystemPrompt, language), g.cfg.AltTemperature},
	}
	userPrompt := generateUserPrompt(task, docContext, language)

	candidates := make([]*model.Candidate, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call generationCall) {
			defer wg.Done()
			candidates[i], errs[i] = g.generateOne(ctx, call, userPrompt)
		}(i, call)
	}
	wg.Wait()

	out := &GenerationOutput{}
	for i, call := range calls {
		if errs[i] != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s (%s): %v", call.role, call.model, errs[i]))
			g.logger.Warn("candidate generation failed",
				zap.String("role", call.role), zap.String("model", call.model), zap.Error(errs[i]))
			continue
		}
		out.Candidates = append(out.Candidates, *candidates[i])
	}

	if len(out.Candidates) == 0 {
		return out, fmt.Errorf("%w: primary: %v; alternative: %v", ErrGenerationFailed, errs[0], errs[1])
	}
	return out, nil
}

func (g *Generator) generateOne(ctx context.Context, call generationCall, userPrompt string) (*model.Candidate, error) {
	text, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Model: call.model,
		Messages: []llm.Message{
			{Role: "system", Content: call.system},
			{Role: "user", Content: userPrompt},
		},
		Temperature: call.temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	code := llm.StripCodeFences(text)
	if code == "" {
		return nil, errors.New("model returned no code")
	}
	return &model.Candidate{
		Code:        code,
		Model:       call.model,
		Role:        call.role,
		GeneratedAt: time.Now(),
	}, nil
}

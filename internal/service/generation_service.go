package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/model/dto"
	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/worker"
)

var (
	ErrGenerationNotFound = errors.New("生成记录不存在")
	ErrEmptyTask          = errors.New("任务描述不能为空")
)

// Runner 执行流水线
type Runner interface {
	Run(ctx context.Context, req worker.Request) (*model.Generation, error)
}

type GenerationService struct {
	runner         Runner
	generationRepo *repository.GenerationRepository
	quotaService   *QuotaService
}

func NewGenerationService(
	runner Runner,
	generationRepo *repository.GenerationRepository,
	quotaService *QuotaService,
) *GenerationService {
	return &GenerationService{
		runner:         runner,
		generationRepo: generationRepo,
		quotaService:   quotaService,
	}
}

// Create 检查配额后同步执行流水线。致命失败时同时返回已落库的 failed 记录和错误
func (s *GenerationService) Create(ctx context.Context, userID int64, req *dto.CreateGenerationRequest) (*model.Generation, error) {
	task := strings.TrimSpace(req.TaskDescription)
	if task == "" {
		return nil, ErrEmptyTask
	}

	hasQuota, err := s.quotaService.CheckQuota(userID)
	if err != nil {
		return nil, err
	}
	if !hasQuota {
		return nil, ErrQuotaExceeded
	}

	return s.runner.Run(ctx, worker.Request{
		UserID:            userID,
		TaskDescription:   task,
		DocURL:            strings.TrimSpace(req.DocURL),
		DocContent:        req.DocContent,
		Language:          strings.TrimSpace(req.Language),
		SelectedTaskIndex: req.SelectedTaskIndex,
	})
}

// GetByID 只返回本人的记录
func (s *GenerationService) GetByID(userID, generationID int64) (*model.Generation, error) {
	g, err := s.generationRepo.GetByID(generationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, err
	}
	if g.UserID != userID {
		return nil, ErrGenerationNotFound
	}
	return g, nil
}

// List 分页列出本人的生成记录
func (s *GenerationService) List(userID int64, page, pageSize int) ([]*dto.GenerationListItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := s.generationRepo.ListByUser(userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	list := make([]*dto.GenerationListItem, 0, len(items))
	for _, g := range items {
		list = append(list, &dto.GenerationListItem{
			ID:                 g.ID,
			TaskDescription:    g.TaskDescription,
			Language:           g.Language,
			Status:             g.Status,
			ConfidenceScore:    g.ConfidenceScore,
			VerificationStatus: g.VerificationStatus,
			CreatedAt:          g.CreatedAt.Format(time.RFC3339),
		})
	}
	return list, total, nil
}

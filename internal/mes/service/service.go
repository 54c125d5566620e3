package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Route  *RouteService
	Import *ImportService
	Part   *PartService
	User   *UserService
	Audit  *AuditService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, store storage.Storage, notifier Notifier, vocab Vocabulary, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	routes := NewRouteService(repos, logger.Named("route"))
	return &Services{
		Route:  routes,
		Import: NewImportService(repos, routes, notifier, vocab, logger.Named("import")),
		Part:   NewPartService(repos, routes, store, notifier, logger.Named("part")),
		User:   NewUserService(repos.User),
		Audit:  NewAuditService(repos.Audit),
	}
}

// UserService 用户服务
type UserService struct {
	repo *repository.UserRepository
}

func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ListActive 可被指派为负责人的用户
func (s *UserService) ListActive(ctx context.Context) ([]entity.User, error) {
	return s.repo.ListActive(ctx)
}

// EnsureUser 按用户名查找，不存在则创建（初始化数据用）
func (s *UserService) EnsureUser(ctx context.Context, username, name, role string) (*entity.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	user = &entity.User{
		ID:       uuid.New().String()[:32],
		Username: username,
		Name:     name,
		Role:     role,
		Status:   "active",
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// AuditService 审计日志查询
type AuditService struct {
	repo *repository.AuditRepository
}

func NewAuditService(repo *repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) ListByPart(ctx context.Context, partID string) ([]entity.AuditLog, error) {
	return s.repo.ListByPart(ctx, partID)
}

func (s *AuditService) List(ctx context.Context, category string, page, pageSize int) ([]entity.AuditLog, int64, error) {
	return s.repo.List(ctx, category, page, pageSize)
}

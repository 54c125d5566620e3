package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"go.uber.org/zap"
)

// RouteNameSeparator 由工序列表派生路线名称时的连接符
const RouteNameSeparator = " -> "

// RouteService 工艺路线解析与管理
type RouteService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewRouteService(repos *repository.Repositories, logger *zap.Logger) *RouteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteService{repos: repos, logger: logger}
}

// SplitOperations 逗号分隔的工序文本 -> 去空格、去空项的工序列表
func SplitOperations(text string) []string {
	if isNull(text) {
		return nil
	}
	var ops []string
	for _, op := range strings.Split(text, ",") {
		if op = strings.TrimSpace(op); op != "" {
			ops = append(ops, op)
		}
	}
	return ops
}

// RouteName 工序列表对应的路线名称
func RouteName(ops []string) string {
	return strings.Join(ops, RouteNameSeparator)
}

// Resolve 把工序文本解析为路线模板，需要时创建
func (s *RouteService) Resolve(ctx context.Context, operations string) (*entity.RouteTemplate, error) {
	return s.ResolveIn(ctx, s.repos, operations)
}

// ResolveIn 在给定的（事务）仓库上解析路线。
// 空文本返回默认路线；否则按派生名称查找，不存在则创建，工序按名称大小写无关复用。
func (s *RouteService) ResolveIn(ctx context.Context, repos *repository.Repositories, operations string) (*entity.RouteTemplate, error) {
	ops := SplitOperations(operations)
	if len(ops) == 0 {
		return s.FindDefaultIn(ctx, repos)
	}

	name := RouteName(ops)
	route, err := repos.Route.FindByName(ctx, name)
	if err == nil {
		return route, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find route %q: %w", name, err)
	}

	return s.createRoute(ctx, repos, name, ops)
}

// createRoute 在 savepoint 中创建路线及工序绑定；名称已被并发创建时回读已有路线
func (s *RouteService) createRoute(ctx context.Context, repos *repository.Repositories, name string, ops []string) (*entity.RouteTemplate, error) {
	route := &entity.RouteTemplate{Name: name}
	err := repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Route.Create(ctx, route); err != nil {
			return err
		}
		for i, op := range ops {
			stage, err := s.findOrCreateStage(ctx, tx, op)
			if err != nil {
				return err
			}
			rs := &entity.RouteStage{TemplateID: route.ID, StageID: stage.ID, Order: i}
			if err := tx.Route.AddStage(ctx, rs); err != nil {
				return fmt.Errorf("bind stage %q: %w", op, err)
			}
			rs.Stage = stage
			route.Stages = append(route.Stages, *rs)
		}
		return nil
	})
	if err != nil {
		if repository.IsDuplicate(err) {
			existing, findErr := repos.Route.FindByName(ctx, name)
			if findErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create route %q: %w", name, err)
	}

	s.logger.Info("route template created", zap.String("name", name), zap.Uint("id", route.ID))
	return route, nil
}

// findOrCreateStage 按名称大小写无关查找工序，不存在则以该拼写创建
func (s *RouteService) findOrCreateStage(ctx context.Context, repos *repository.Repositories, name string) (*entity.Stage, error) {
	stage, err := repos.Stage.FindByName(ctx, name)
	if err == nil {
		return stage, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find stage %q: %w", name, err)
	}

	stage = &entity.Stage{Name: name}
	err = repos.Transaction(ctx, func(tx *repository.Repositories) error {
		return tx.Stage.Create(ctx, stage)
	})
	if err != nil {
		if repository.IsDuplicate(err) {
			return repos.Stage.FindByName(ctx, name)
		}
		return nil, fmt.Errorf("create stage %q: %w", name, err)
	}
	return stage, nil
}

// FindDefault 当前默认路线
func (s *RouteService) FindDefault(ctx context.Context) (*entity.RouteTemplate, error) {
	return s.FindDefaultIn(ctx, s.repos)
}

func (s *RouteService) FindDefaultIn(ctx context.Context, repos *repository.Repositories) (*entity.RouteTemplate, error) {
	id, err := repos.Setting.DefaultRouteID(ctx)
	if err != nil {
		return nil, fmt.Errorf("load default route: %w", err)
	}
	if id == nil {
		return nil, ErrNoDefaultRoute
	}
	route, err := repos.Route.FindByID(ctx, *id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoDefaultRoute
		}
		return nil, fmt.Errorf("load default route: %w", err)
	}
	route.IsDefault = true
	return route, nil
}

// List 全部路线，标记默认路线
func (s *RouteService) List(ctx context.Context) ([]entity.RouteTemplate, error) {
	routes, err := s.repos.Route.List(ctx)
	if err != nil {
		return nil, err
	}
	defaultID, err := s.repos.Setting.DefaultRouteID(ctx)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		routes[i].IsDefault = defaultID != nil && routes[i].ID == *defaultID
	}
	return routes, nil
}

// Get 获取路线详情
func (s *RouteService) Get(ctx context.Context, id uint) (*entity.RouteTemplate, error) {
	route, err := s.repos.Route.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	defaultID, err := s.repos.Setting.DefaultRouteID(ctx)
	if err != nil {
		return nil, err
	}
	route.IsDefault = defaultID != nil && *defaultID == route.ID
	return route, nil
}

// CreateTemplate 手工创建命名路线
func (s *RouteService) CreateTemplate(ctx context.Context, name string, stageNames []string) (*entity.RouteTemplate, error) {
	name = strings.TrimSpace(name)
	var ops []string
	for _, op := range stageNames {
		if op = strings.TrimSpace(op); op != "" {
			ops = append(ops, op)
		}
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: route needs at least one stage", ErrInvalidInput)
	}
	if name == "" {
		name = RouteName(ops)
	}

	if _, err := s.repos.Route.FindByName(ctx, name); err == nil {
		return nil, ErrRouteExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	var route *entity.RouteTemplate
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		route, err = s.createRoute(ctx, tx, name, ops)
		return err
	})
	if err != nil {
		return nil, err
	}
	return route, nil
}

// SetDefault 指定默认路线
func (s *RouteService) SetDefault(ctx context.Context, id uint) (*entity.RouteTemplate, error) {
	route, err := s.repos.Route.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	if err := s.repos.Setting.SetDefaultRoute(ctx, &route.ID); err != nil {
		return nil, fmt.Errorf("set default route: %w", err)
	}
	route.IsDefault = true
	s.logger.Info("default route changed", zap.Uint("id", route.ID), zap.String("name", route.Name))
	return route, nil
}

// EnsureDefault 未配置默认路线时，按名称查找或创建并设为默认（初始化数据用）
func (s *RouteService) EnsureDefault(ctx context.Context, name string, stageNames []string) (*entity.RouteTemplate, error) {
	if route, err := s.FindDefault(ctx); err == nil {
		return route, nil
	} else if !errors.Is(err, ErrNoDefaultRoute) {
		return nil, err
	}

	route, err := s.repos.Route.FindByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, repository.ErrNotFound) {
		route, err = s.CreateTemplate(ctx, name, stageNames)
	}
	if err != nil {
		return nil, err
	}
	return s.SetDefault(ctx, route.ID)
}

// Delete 删除路线；仍被零件引用时拒绝，删除默认路线时清除默认设置
func (s *RouteService) Delete(ctx context.Context, id uint) error {
	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Route.FindByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRouteNotFound
			}
			return err
		}
		used, err := tx.Part.CountByRoute(ctx, id)
		if err != nil {
			return err
		}
		if used > 0 {
			return fmt.Errorf("%w: %d parts", ErrRouteInUse, used)
		}
		defaultID, err := tx.Setting.DefaultRouteID(ctx)
		if err != nil {
			return err
		}
		if defaultID != nil && *defaultID == id {
			if err := tx.Setting.SetDefaultRoute(ctx, nil); err != nil {
				return err
			}
		}
		return tx.Route.Delete(ctx, id)
	})
}

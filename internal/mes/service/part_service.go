package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/storage"
	"go.uber.org/zap"
)

// PartInput 单个零件的表单数据
type PartInput struct {
	PartID             string `json:"part_id"`
	ProductDesignation string `json:"product_designation"`
	Name               string `json:"name"`
	Material           string `json:"material"`
	Size               string `json:"size"`
	QuantityTotal      int    `json:"quantity_total"`
	RouteTemplateID    *uint  `json:"route_template_id"`
}

// UpdatePartInput 可修改字段，nil 表示不修改
type UpdatePartInput struct {
	ProductDesignation *string `json:"product_designation"`
	Name               *string `json:"name"`
	Material           *string `json:"material"`
	Size               *string `json:"size"`
	QuantityTotal      *int    `json:"quantity_total"`
}

// Drawing 上传的图纸文件
type Drawing struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// PartService 零件登记、修改、工序流转
type PartService struct {
	repos    *repository.Repositories
	routes   *RouteService
	storage  storage.Storage
	notifier Notifier
	logger   *zap.Logger
}

func NewPartService(repos *repository.Repositories, routes *RouteService, store storage.Storage, notifier Notifier, logger *zap.Logger) *PartService {
	if notifier == nil {
		notifier = NopNotifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartService{
		repos:    repos,
		routes:   routes,
		storage:  store,
		notifier: notifier,
		logger:   logger,
	}
}

// Get 零件详情
func (s *PartService) Get(ctx context.Context, partID string) (*entity.Part, error) {
	part, err := s.repos.Part.FindByID(ctx, partID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPartNotFound
		}
		return nil, err
	}
	return part, nil
}

// List 分页查询
func (s *PartService) List(ctx context.Context, page, pageSize int, filter repository.PartFilter) ([]entity.Part, int64, error) {
	return s.repos.Part.List(ctx, page, pageSize, filter)
}

// History 工序完成记录和审计日志
func (s *PartService) History(ctx context.Context, partID string) ([]entity.StatusHistory, []entity.AuditLog, error) {
	if _, err := s.Get(ctx, partID); err != nil {
		return nil, nil, err
	}
	statuses, err := s.repos.History.ListStatus(ctx, partID)
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.repos.Audit.ListByPart(ctx, partID)
	if err != nil {
		return nil, nil, err
	}
	return statuses, logs, nil
}

// DrawingURL 图纸访问地址，没有图纸返回空
func (s *PartService) DrawingURL(part *entity.Part) string {
	if part.DrawingHandle == nil || s.storage == nil {
		return ""
	}
	return s.storage.URL(*part.DrawingHandle)
}

// OpenDrawing 读取零件图纸
func (s *PartService) OpenDrawing(ctx context.Context, partID string) (io.ReadCloser, error) {
	part, err := s.Get(ctx, partID)
	if err != nil {
		return nil, err
	}
	if part.DrawingHandle == nil || s.storage == nil {
		return nil, storage.ErrNotFound
	}
	return s.storage.Open(ctx, *part.DrawingHandle)
}

func (s *PartService) saveDrawing(ctx context.Context, d *Drawing) (*string, error) {
	if d == nil {
		return nil, nil
	}
	if s.storage == nil {
		return nil, fmt.Errorf("drawing storage is not configured")
	}
	handle, err := s.storage.Save(ctx, d.Filename, d.Reader, d.Size, d.ContentType)
	if err != nil {
		return nil, err
	}
	return &handle, nil
}

// removeDrawing 删除失败只记录日志
func (s *PartService) removeDrawing(ctx context.Context, handle *string) {
	if handle == nil || s.storage == nil {
		return
	}
	if err := s.storage.Remove(ctx, *handle); err != nil {
		s.logger.Warn("remove drawing failed", zap.String("handle", *handle), zap.Error(err))
	}
}

func normalizeInput(in *PartInput) error {
	in.PartID = strings.TrimSpace(in.PartID)
	in.Name = strings.TrimSpace(in.Name)
	in.ProductDesignation = strings.TrimSpace(in.ProductDesignation)
	in.Material = strings.TrimSpace(in.Material)
	in.Size = strings.TrimSpace(in.Size)
	if in.PartID == "" {
		return fmt.Errorf("%w: part id is required", ErrInvalidInput)
	}
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.QuantityTotal == 0 {
		in.QuantityTotal = 1
	}
	if in.QuantityTotal < 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	return nil
}

// CreatePart 手工登记一个零件，未指定路线时使用默认路线
func (s *PartService) CreatePart(ctx context.Context, in PartInput, drawing *Drawing, actor Actor) (*entity.Part, error) {
	if err := normalizeInput(&in); err != nil {
		return nil, err
	}

	if exists, err := s.repos.Part.Exists(ctx, in.PartID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrPartExists
	}

	var route *entity.RouteTemplate
	var err error
	if in.RouteTemplateID != nil {
		route, err = s.routes.Get(ctx, *in.RouteTemplateID)
	} else {
		route, err = s.routes.FindDefault(ctx)
	}
	if err != nil {
		return nil, err
	}

	handle, err := s.saveDrawing(ctx, drawing)
	if err != nil {
		return nil, err
	}

	part := &entity.Part{
		PartID:             in.PartID,
		ProductDesignation: in.ProductDesignation,
		Name:               in.Name,
		Material:           in.Material,
		Size:               in.Size,
		QuantityTotal:      in.QuantityTotal,
		DrawingHandle:      handle,
		RouteTemplateID:    &route.ID,
		CurrentStatus:      entity.PartStatusInStock,
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Part.Create(ctx, part); err != nil {
			return err
		}
		return tx.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionCreate,
			"Part created manually.", entity.AuditCategoryPart)
	})
	if err != nil {
		s.removeDrawing(ctx, handle)
		if repository.IsDuplicate(err) {
			return nil, ErrPartExists
		}
		return nil, fmt.Errorf("create part: %w", err)
	}

	part.RouteTemplate = route
	s.notifier.Notify(EventPartCreated,
		fmt.Sprintf("User %s created part %s.", actor.Name, part.PartID), part.PartID)
	return part, nil
}

// CreateChildPart 在已有零件下添加子零件，继承产品和路线
func (s *PartService) CreateChildPart(ctx context.Context, parentID string, in PartInput, actor Actor) (*entity.Part, error) {
	if err := normalizeInput(&in); err != nil {
		return nil, err
	}

	var part *entity.Part
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		parent, err := tx.Part.FindByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrParentNotFound
			}
			return err
		}
		if exists, err := tx.Part.Exists(ctx, in.PartID); err != nil {
			return err
		} else if exists {
			return ErrPartExists
		}

		part = &entity.Part{
			PartID:             in.PartID,
			ProductDesignation: parent.ProductDesignation,
			Name:               in.Name,
			Material:           in.Material,
			Size:               in.Size,
			QuantityTotal:      in.QuantityTotal,
			RouteTemplateID:    parent.RouteTemplateID,
			ParentID:           &parent.PartID,
			CurrentStatus:      entity.PartStatusInStock,
		}
		if err := tx.Part.Create(ctx, part); err != nil {
			return err
		}
		return tx.Audit.Record(ctx, parent.PartID, actor.ID, entity.AuditActionCompositionUpdate,
			fmt.Sprintf("Component '%s' added to '%s'.", part.Name, parent.Name), entity.AuditCategoryPart)
	})
	if err != nil {
		if repository.IsDuplicate(err) {
			return nil, ErrPartExists
		}
		return nil, err
	}

	s.notifier.Notify(EventPartUpdated,
		fmt.Sprintf("A new component was added to %s.", parentID), parentID)
	return part, nil
}

// UpdatePart 修改零件字段，审计记录逐项差异；没有变化时不写任何记录
func (s *PartService) UpdatePart(ctx context.Context, partID string, in UpdatePartInput, drawing *Drawing, actor Actor) (*entity.Part, bool, error) {
	part, err := s.Get(ctx, partID)
	if err != nil {
		return nil, false, err
	}

	var changes []string
	diff := func(label string, field *string, value *string) {
		if value == nil {
			return
		}
		v := strings.TrimSpace(*value)
		if *field != v {
			changes = append(changes, fmt.Sprintf("%s: '%s' -> '%s'", label, *field, v))
			*field = v
		}
	}
	diff("Product", &part.ProductDesignation, in.ProductDesignation)
	diff("Name", &part.Name, in.Name)
	diff("Material", &part.Material, in.Material)
	diff("Size", &part.Size, in.Size)

	if part.Name == "" {
		return nil, false, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.QuantityTotal != nil && *in.QuantityTotal != part.QuantityTotal {
		if *in.QuantityTotal < 1 || *in.QuantityTotal < part.QuantityCompleted {
			return nil, false, fmt.Errorf("%w: quantity must cover the completed amount", ErrInvalidInput)
		}
		changes = append(changes, fmt.Sprintf("Quantity: '%d' -> '%d'", part.QuantityTotal, *in.QuantityTotal))
		part.QuantityTotal = *in.QuantityTotal
	}

	oldHandle := part.DrawingHandle
	newHandle, err := s.saveDrawing(ctx, drawing)
	if err != nil {
		return nil, false, err
	}
	if newHandle != nil {
		part.DrawingHandle = newHandle
		changes = append(changes, "Drawing updated.")
	}

	if len(changes) == 0 {
		return part, false, nil
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Part.Update(ctx, part); err != nil {
			return err
		}
		return tx.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionEdit,
			strings.Join(changes, "; "), entity.AuditCategoryPart)
	})
	if err != nil {
		s.removeDrawing(ctx, newHandle)
		return nil, false, fmt.Errorf("update part: %w", err)
	}
	if newHandle != nil {
		s.removeDrawing(ctx, oldHandle)
	}

	s.notifier.Notify(EventPartUpdated,
		fmt.Sprintf("User %s updated part %s.", actor.Name, part.PartID), part.PartID)
	return part, true, nil
}

// deleteIn 删除零件及其历史，子零件解除父引用，随后写入删除记录
func deleteIn(ctx context.Context, tx *repository.Repositories, part *entity.Part, actor Actor, action, details string) error {
	if err := tx.Part.DetachChildren(ctx, part.PartID); err != nil {
		return err
	}
	if err := tx.Part.Delete(ctx, part.PartID); err != nil {
		return err
	}
	return tx.Audit.Record(ctx, part.PartID, actor.ID, action, details, entity.AuditCategoryPart)
}

// DeletePart 删除单个零件
func (s *PartService) DeletePart(ctx context.Context, partID string, actor Actor) error {
	part, err := s.Get(ctx, partID)
	if err != nil {
		return err
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		return deleteIn(ctx, tx, part, actor, entity.AuditActionDelete,
			fmt.Sprintf("Part '%s' and its history were deleted.", part.PartID))
	})
	if err != nil {
		return fmt.Errorf("delete part: %w", err)
	}
	s.removeDrawing(ctx, part.DrawingHandle)

	s.notifier.Notify(EventPartDeleted,
		fmt.Sprintf("User %s deleted part %s.", actor.Name, part.PartID), part.PartID)
	return nil
}

// DeleteParts 批量删除，不存在的编号忽略，返回删除数量
func (s *PartService) DeleteParts(ctx context.Context, partIDs []string, actor Actor) (int, error) {
	parts, err := s.repos.Part.ListByIDs(ctx, partIDs)
	if err != nil {
		return 0, err
	}
	if len(parts) == 0 {
		return 0, nil
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		for i := range parts {
			if err := deleteIn(ctx, tx, &parts[i], actor, entity.AuditActionBulkDelete,
				fmt.Sprintf("Part '%s' deleted.", parts[i].PartID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete parts: %w", err)
	}
	for i := range parts {
		s.removeDrawing(ctx, parts[i].DrawingHandle)
	}

	s.notifier.Notify(EventBulkDelete,
		fmt.Sprintf("User %s deleted %d parts.", actor.Name, len(parts)), "")
	return len(parts), nil
}

// ChangeRoute 更换路线，返回是否有变化
func (s *PartService) ChangeRoute(ctx context.Context, partID string, routeID uint, actor Actor) (bool, error) {
	part, err := s.Get(ctx, partID)
	if err != nil {
		return false, err
	}
	route, err := s.routes.Get(ctx, routeID)
	if err != nil {
		return false, err
	}
	if part.RouteTemplateID != nil && *part.RouteTemplateID == route.ID {
		return false, nil
	}

	oldName := "Not assigned"
	if part.RouteTemplate != nil {
		oldName = part.RouteTemplate.Name
	}
	part.RouteTemplateID = &route.ID

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Part.Update(ctx, part); err != nil {
			return err
		}
		return tx.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionEdit,
			fmt.Sprintf("Route changed from '%s' to '%s'.", oldName, route.Name), entity.AuditCategoryPart)
	})
	if err != nil {
		return false, fmt.Errorf("change route: %w", err)
	}

	s.notifier.Notify(EventPartUpdated, fmt.Sprintf("Route changed for part %s.", part.PartID), part.PartID)
	return true, nil
}

// ChangeResponsible 指派或取消负责人（userID 为 nil），返回是否有变化
func (s *PartService) ChangeResponsible(ctx context.Context, partID string, userID *string, actor Actor) (bool, error) {
	part, err := s.Get(ctx, partID)
	if err != nil {
		return false, err
	}

	var newUser *entity.User
	if userID != nil && *userID != "" {
		newUser, err = s.repos.User.FindByID(ctx, *userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return false, ErrUserNotFound
			}
			return false, err
		}
	}

	oldID, newID := "", ""
	if part.ResponsibleID != nil {
		oldID = *part.ResponsibleID
	}
	if newUser != nil {
		newID = newUser.ID
	}
	if oldID == newID {
		return false, nil
	}

	oldName, newName := "Not assigned", "Not assigned"
	if part.Responsible != nil {
		oldName = part.Responsible.DisplayName()
	}
	var responsible *string
	if newUser != nil {
		newName = newUser.DisplayName()
		responsible = &newUser.ID
	}
	part.ResponsibleID = responsible

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Part.Update(ctx, part); err != nil {
			return err
		}
		if err := tx.History.CreateResponsible(ctx, &entity.ResponsibleHistory{PartID: part.PartID, UserID: responsible}); err != nil {
			return err
		}
		return tx.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionResponsibleChange,
			fmt.Sprintf("Responsible changed from '%s' to '%s'.", oldName, newName), entity.AuditCategoryManagement)
	})
	if err != nil {
		return false, fmt.Errorf("change responsible: %w", err)
	}

	s.notifier.Notify(EventPartUpdated, fmt.Sprintf("Responsible changed for part %s.", part.PartID), part.PartID)
	return true, nil
}

// CompleteStage 记录某工序完成的数量
func (s *PartService) CompleteStage(ctx context.Context, partID, stageName string, quantity int, actor Actor) (*entity.Part, error) {
	stageName = strings.TrimSpace(stageName)
	if stageName == "" || quantity < 1 {
		return nil, fmt.Errorf("%w: stage and a positive quantity are required", ErrInvalidInput)
	}

	var part *entity.Part
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		part, err = tx.Part.FindByID(ctx, partID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPartNotFound
			}
			return err
		}
		if part.RouteTemplateID == nil {
			return ErrStageNotInRoute
		}
		ok, err := tx.Route.HasStage(ctx, *part.RouteTemplateID, stageName)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStageNotInRoute
		}
		if quantity > part.Remaining() {
			return fmt.Errorf("%w: %d left", ErrQuantityExceeded, part.Remaining())
		}

		stage, err := tx.Stage.FindByName(ctx, stageName)
		if err != nil {
			return err
		}
		if err := tx.History.CreateStatus(ctx, &entity.StatusHistory{
			PartID:   part.PartID,
			Status:   stage.Name,
			Quantity: quantity,
			UserID:   actor.ID,
		}); err != nil {
			return err
		}

		part.QuantityCompleted += quantity
		part.CurrentStatus = stage.Name
		if err := tx.Part.Update(ctx, part); err != nil {
			return err
		}
		stageName = stage.Name
		return tx.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionStageComplete,
			fmt.Sprintf("Stage completed: '%s' (%d pcs).", stage.Name, quantity), entity.AuditCategoryPart)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(EventPartUpdated,
		fmt.Sprintf("Stage '%s' completed for part %s.", stageName, part.PartID), part.PartID)
	return part, nil
}

// CancelStage 撤销一条工序完成记录，当前状态回退到上一条记录
func (s *PartService) CancelStage(ctx context.Context, historyID uint, actor Actor) (*entity.Part, string, error) {
	var part *entity.Part
	var stageName string

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		h, err := tx.History.FindStatus(ctx, historyID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrHistoryNotFound
			}
			return err
		}
		part, err = tx.Part.FindByID(ctx, h.PartID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPartNotFound
			}
			return err
		}
		stageName = h.Status

		part.QuantityCompleted -= h.Quantity
		if part.QuantityCompleted < 0 {
			part.QuantityCompleted = 0
		}
		if err := tx.History.DeleteStatus(ctx, h.ID); err != nil {
			return err
		}
		latest, err := tx.History.LatestStatus(ctx, part.PartID)
		if err != nil {
			return err
		}
		part.CurrentStatus = entity.PartStatusInStock
		if latest != nil {
			part.CurrentStatus = latest.Status
		}
		if err := tx.Part.Update(ctx, part); err != nil {
			return err
		}
		return tx.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionStageCancel,
			fmt.Sprintf("Stage cancelled: '%s' (%d pcs).", h.Status, h.Quantity), entity.AuditCategoryPart)
	})
	if err != nil {
		return nil, "", err
	}

	s.notifier.Notify(EventPartUpdated,
		fmt.Sprintf("Stage '%s' cancelled for part %s.", stageName, part.PartID), part.PartID)
	return part, stageName, nil
}

// LogQRGeneration 生成零件二维码并记录审计
func (s *PartService) LogQRGeneration(ctx context.Context, partID string, actor Actor) (*Label, error) {
	part, err := s.Get(ctx, partID)
	if err != nil {
		return nil, err
	}
	qr, err := QRCodeBase64(part.PartID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionQRGeneration,
		fmt.Sprintf("QR code generated for part '%s'.", part.PartID), entity.AuditCategoryPart); err != nil {
		return nil, err
	}
	return &Label{
		PartID:             part.PartID,
		Name:               part.Name,
		ProductDesignation: part.ProductDesignation,
		QRCode:             qr,
	}, nil
}

// PrintLabels 批量生成标签，不存在的编号忽略
func (s *PartService) PrintLabels(ctx context.Context, partIDs []string) ([]Label, error) {
	parts, err := s.repos.Part.ListByIDs(ctx, partIDs)
	if err != nil {
		return nil, err
	}
	labels := make([]Label, 0, len(parts))
	for _, p := range parts {
		qr, err := QRCodeBase64(p.PartID)
		if err != nil {
			return nil, err
		}
		labels = append(labels, Label{
			PartID:             p.PartID,
			Name:               p.Name,
			ProductDesignation: p.ProductDesignation,
			QRCode:             qr,
		})
	}
	return labels, nil
}

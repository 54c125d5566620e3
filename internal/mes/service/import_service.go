package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/tabular"
	"go.uber.org/zap"
)

// ImportResult 导入统计
type ImportResult struct {
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
	Product string `json:"product,omitempty"`
}

// ImportService 表格批量导入零件
type ImportService struct {
	repos    *repository.Repositories
	routes   *RouteService
	notifier Notifier
	vocab    Vocabulary
	logger   *zap.Logger
}

func NewImportService(repos *repository.Repositories, routes *RouteService, notifier Notifier, vocab Vocabulary, logger *zap.Logger) *ImportService {
	if notifier == nil {
		notifier = NopNotifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		repos:    repos,
		routes:   routes,
		notifier: notifier,
		vocab:    vocab,
		logger:   logger,
	}
}

// Vocabulary 当前使用的列名
func (s *ImportService) Vocabulary() Vocabulary {
	return s.vocab
}

type rowKind int

const (
	rowSkip rowKind = iota
	rowAssembly
	rowData
)

// importRow 分类后的数据行
type importRow struct {
	kind        rowKind
	designation string
	name        string
	quantity    int
	size        string
	material    string
	operations  string
}

// columns 表头中各列的位置，-1 为缺失
type columns struct {
	designation, name, quantity, size, operations, material int
}

func (s *ImportService) locateColumns(sheet *tabular.Sheet) columns {
	return columns{
		designation: sheet.Column(s.vocab.Marker),
		name:        sheet.Column(s.vocab.Name),
		quantity:    sheet.Column(s.vocab.Quantity),
		size:        sheet.Column(s.vocab.Size),
		operations:  sheet.Column(s.vocab.Operations),
		material:    sheet.Column(s.vocab.Material),
	}
}

// classify 按编号和名称判断行类型
func (s *ImportService) classify(row tabular.Row, cols columns) importRow {
	r := importRow{
		designation: cleanCell(row.Cell(cols.designation)),
		name:        cleanCell(row.Cell(cols.name)),
	}
	switch {
	case r.designation == "":
		r.kind = rowSkip
	case r.name == "":
		r.kind = rowAssembly
	default:
		r.kind = rowData
		r.quantity = parseQuantity(row.Cell(cols.quantity))
		r.size = cleanCell(row.Cell(cols.size))
		r.operations = cleanCell(row.Cell(cols.operations))
		r.material = cleanCell(row.Cell(cols.material))
		if r.material == "" {
			r.material = s.vocab.Unspecified
		}
	}
	return r
}

// parseQuantity 整数数量，空值或无法解析时为 1；小数截断
func parseQuantity(raw string) int {
	v := cleanCell(raw)
	if v == "" {
		return 1
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 1
	}
	return int(f)
}

// Import 解析表格并按两遍创建零件：第一遍装配体，第二遍叶子零件挂到最近的装配体下。
// 两遍各自提交，第二遍失败时第一遍创建的装配体保留。
func (s *ImportService) Import(ctx context.Context, data []byte, filename string, actor Actor) (*ImportResult, error) {
	log := s.logger.With(zap.String("filename", filename), zap.String("user_id", actor.ID))

	grid, err := tabular.Read(data, filename)
	if err != nil {
		var readErr *tabular.ReadError
		if errors.As(err, &readErr) {
			log.Warn("import file unreadable", zap.Error(readErr.Cause))
		}
		return nil, err
	}

	result := &ImportResult{}
	if len(grid) == 0 {
		return result, nil
	}

	sheet, err := tabular.Locate(grid, s.vocab.Marker)
	if err != nil {
		return nil, err
	}
	result.Product = tabular.ProductTitle(sheet.Preamble, s.vocab.Untitled)

	cols := s.locateColumns(sheet)
	rows := make([]importRow, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, s.classify(row, cols))
	}

	assemblies, err := s.importAssemblies(ctx, rows, result, filename, actor)
	if err != nil {
		return nil, err
	}
	log.Debug("assemblies committed", zap.Int("assemblies", len(assemblies)), zap.Int("added", result.Added))

	if err := s.importParts(ctx, rows, assemblies, result, filename, actor); err != nil {
		log.Error("import aborted after assemblies were committed",
			zap.Int("added", result.Added),
			zap.Error(err),
		)
		return nil, err
	}

	log.Info("import finished",
		zap.String("product", result.Product),
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
	)

	if result.Added > 0 {
		s.notifier.Notify(EventImportFinished,
			fmt.Sprintf("User %s imported %d new records.", actor.Name, result.Added), "")
	}
	return result, nil
}

// importAssemblies 第一遍：创建尚不存在的装配体，返回本文件涉及的全部装配体编号
func (s *ImportService) importAssemblies(ctx context.Context, rows []importRow, result *ImportResult, filename string, actor Actor) (map[string]struct{}, error) {
	assemblies := make(map[string]struct{})
	var defaultRoute *entity.RouteTemplate

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		for _, r := range rows {
			if r.kind != rowAssembly {
				continue
			}
			assemblies[r.designation] = struct{}{}

			exists, err := tx.Part.Exists(ctx, r.designation)
			if err != nil {
				return fmt.Errorf("check part %s: %w", r.designation, err)
			}
			if exists {
				result.Skipped++
				continue
			}

			if defaultRoute == nil {
				if defaultRoute, err = s.routes.FindDefaultIn(ctx, tx); err != nil {
					return err
				}
			}

			part := &entity.Part{
				PartID:             r.designation,
				ProductDesignation: result.Product,
				Name:               s.vocab.AssemblyName(r.designation),
				Material:           s.vocab.Assembly,
				QuantityTotal:      1,
				RouteTemplateID:    &defaultRoute.ID,
				CurrentStatus:      entity.PartStatusInStock,
			}
			if err := tx.Part.Create(ctx, part); err != nil {
				return fmt.Errorf("create assembly %s: %w", r.designation, err)
			}
			if err := tx.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionCreate,
				fmt.Sprintf("Assembly imported from file %s.", filename), entity.AuditCategoryPart); err != nil {
				return fmt.Errorf("audit assembly %s: %w", r.designation, err)
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		result.Added, result.Skipped = 0, 0
		return nil, err
	}
	return assemblies, nil
}

// importParts 第二遍：按行序维护当前装配体，创建叶子零件
func (s *ImportService) importParts(ctx context.Context, rows []importRow, assemblies map[string]struct{}, result *ImportResult, filename string, actor Actor) error {
	added, skipped := 0, 0
	routes := make(map[string]*entity.RouteTemplate)

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var parent *string
		for _, r := range rows {
			switch r.kind {
			case rowAssembly:
				if _, ok := assemblies[r.designation]; ok {
					designation := r.designation
					parent = &designation
				}
				continue
			case rowSkip:
				skipped++
				continue
			}

			exists, err := tx.Part.Exists(ctx, r.designation)
			if err != nil {
				return fmt.Errorf("check part %s: %w", r.designation, err)
			}
			if exists {
				skipped++
				continue
			}

			route, ok := routes[r.operations]
			if !ok {
				if route, err = s.routes.ResolveIn(ctx, tx, r.operations); err != nil {
					return err
				}
				routes[r.operations] = route
			}

			part := &entity.Part{
				PartID:             r.designation,
				ProductDesignation: result.Product,
				Name:               r.name,
				Material:           r.material,
				Size:               r.size,
				QuantityTotal:      r.quantity,
				RouteTemplateID:    &route.ID,
				ParentID:           parent,
				CurrentStatus:      entity.PartStatusInStock,
			}
			if err := tx.Part.Create(ctx, part); err != nil {
				return fmt.Errorf("create part %s: %w", r.designation, err)
			}
			if err := tx.Audit.Record(ctx, part.PartID, actor.ID, entity.AuditActionCreate,
				fmt.Sprintf("Part imported from file %s.", filename), entity.AuditCategoryPart); err != nil {
				return fmt.Errorf("audit part %s: %w", r.designation, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return err
	}
	result.Added += added
	result.Skipped += skipped
	return nil
}

package tabular

import (
	"errors"
	"fmt"
	"strings"
)

var ErrHeaderNotFound = errors.New("header row not found")

// Sheet 按表头拆分后的网格
type Sheet struct {
	// Preamble 表头之前的行（产品名称区域）
	Preamble []Row
	// HeaderIndex 表头在网格中的行号
	HeaderIndex int
	// Columns 列名，空表头为 unnamed_{i}
	Columns []string
	// Rows 表头之后的数据行，从 0 重新编号
	Rows []Row

	index map[string]int
}

// Locate 找到第一行任一单元格包含 marker 的行作为表头（区分大小写）
func Locate(grid Grid, marker string) (*Sheet, error) {
	header := -1
	for i, row := range grid {
		if rowContains(row, marker) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, fmt.Errorf("%w: expected a column named %q", ErrHeaderNotFound, marker)
	}

	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}

	s := &Sheet{
		Preamble:    grid[:header],
		HeaderIndex: header,
		Columns:     make([]string, width),
		Rows:        grid[header+1:],
		index:       make(map[string]int, width),
	}
	for i := 0; i < width; i++ {
		name := strings.TrimSpace(grid[header].Cell(i))
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		s.Columns[i] = name
		if _, dup := s.index[name]; !dup {
			s.index[name] = i
		}
	}
	return s, nil
}

func rowContains(row Row, marker string) bool {
	for _, cell := range row {
		if strings.Contains(cell, marker) {
			return true
		}
	}
	return false
}

// Column 返回列位置：先精确匹配，再取第一个包含 label 的列，找不到返回 -1
func (s *Sheet) Column(label string) int {
	if i, ok := s.index[label]; ok {
		return i
	}
	for i, name := range s.Columns {
		if strings.Contains(name, label) {
			return i
		}
	}
	return -1
}

// ProductTitle 表头之前第一个非空单元格（去空白），没有则返回 fallback
func ProductTitle(preamble []Row, fallback string) string {
	for _, row := range preamble {
		for _, cell := range row {
			if v := strings.TrimSpace(cell); v != "" {
				return v
			}
		}
	}
	return fallback
}

package service

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const templateSheet = "Parts"

// GenerateTemplate 生成导入模板：产品标题行、表头行、装配体和零件示例各一行
func (s *ImportService) GenerateTemplate() (*excelize.File, error) {
	v := s.vocab
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return nil, err
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})

	f.SetCellValue(templateSheet, "A1", v.Untitled)
	f.SetCellStyle(templateSheet, "A1", "A1", titleStyle)

	headers := []string{v.Marker, v.Name, v.Quantity, v.Size, v.Operations, v.Material}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "2"
		f.SetCellValue(templateSheet, cell, h)
		f.SetCellStyle(templateSheet, cell, cell, boldStyle)
	}

	colWidths := []float64{20, 30, 8, 14, 36, 18}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(templateSheet, col, col, w)
	}

	samples := [][]string{
		{"A-100", "", "", "", "", ""},
		{"A-100.01", "Shaft", "2", "20x100", "Turning, Milling", "Steel 45"},
	}
	for i, row := range samples {
		for j, val := range row {
			if val == "" {
				continue
			}
			col, _ := excelize.ColumnNumberToName(j + 1)
			f.SetCellValue(templateSheet, fmt.Sprintf("%s%d", col, i+3), val)
		}
	}

	return f, nil
}

// Package tabular 把上传的 CSV / Excel 文件读成按行排列的文本网格。
// 不做任何语义解释：空字符串即缺失单元格，不做数字转换。
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .csv, .xlsx or .xls")
	ErrUnreadableFile    = errors.New("failed to read the file, file may be corrupted")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadError 文件解析失败。Error() 只返回面向用户的提示，原始错误保存在 Cause 中供日志使用。
type ReadError struct {
	Filename string
	Cause    error
}

func (e *ReadError) Error() string { return ErrUnreadableFile.Error() }

func (e *ReadError) Unwrap() error { return ErrUnreadableFile }

// Row 一行单元格，缺失的尾部单元格不补齐
type Row []string

// Blank 整行是否没有任何单元格
func (r Row) Blank() bool {
	for _, c := range r {
		if c != "" {
			return false
		}
	}
	return true
}

// Cell 按位置取值，越界返回空字符串
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Grid 保持文件顺序的行集合
type Grid []Row

// Format 文件格式
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatSpreadsheet
)

// DetectFormat 按文件扩展名判断格式
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".xlsx", ".xlsm", ".xls":
		return FormatSpreadsheet
	default:
		return FormatUnknown
	}
}

// Read 解析文件内容，丢弃全空行
func Read(data []byte, filename string) (Grid, error) {
	var (
		grid Grid
		err  error
	)
	switch DetectFormat(filename) {
	case FormatCSV:
		grid, err = readCSV(data)
	case FormatSpreadsheet:
		grid, err = readSpreadsheet(data)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, &ReadError{Filename: filename, Cause: err}
	}
	return dropBlank(grid), nil
}

func readCSV(data []byte) (Grid, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		// 旧版 Excel 在俄语系统下导出的 CSV 为 cp1251
		src = transform.NewReader(src, charmap.Windows1251.NewDecoder())
	}

	r := csv.NewReader(src)
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	grid := make(Grid, 0, len(records))
	for _, rec := range records {
		grid = append(grid, Row(rec))
	}
	return grid, nil
}

// sniffDelimiter 比较前若干行中分号和逗号的出现次数，默认逗号
func sniffDelimiter(data []byte) rune {
	semicolons, commas := 0, 0
	for i, line := range bytes.SplitN(data, []byte{'\n'}, sniffLines+1) {
		if i == sniffLines {
			break
		}
		semicolons += bytes.Count(line, []byte{';'})
		commas += bytes.Count(line, []byte{','})
	}
	if semicolons > commas {
		return ';'
	}
	return ','
}

const sniffLines = 20

func readSpreadsheet(data []byte) (Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Grid{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}

	grid := make(Grid, 0, len(rows))
	for _, row := range rows {
		grid = append(grid, Row(row))
	}
	return grid, nil
}

func dropBlank(grid Grid) Grid {
	out := grid[:0]
	for _, row := range grid {
		if !row.Blank() {
			out = append(out, row)
		}
	}
	return out
}

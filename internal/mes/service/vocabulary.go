package service

import (
	"fmt"
	"strings"
)

// Vocabulary 导入表格使用的列名与占位文本
type Vocabulary struct {
	Marker      string // 表头标记，同时是零件编号列
	Name        string
	Quantity    string
	Size        string
	Operations  string
	Material    string
	Untitled    string // 无产品标题时的占位
	AssemblyFmt string // 装配体名称，%s 为编号
	Assembly    string // 装配体材料
	Unspecified string // 未填写材料
}

// EnglishVocabulary 默认列名
var EnglishVocabulary = Vocabulary{
	Marker:      "Designation",
	Name:        "Name",
	Quantity:    "Qty",
	Size:        "Size",
	Operations:  "Operations",
	Material:    "Material",
	Untitled:    "Untitled",
	AssemblyFmt: "Assembly %s",
	Assembly:    "Assembly",
	Unspecified: "Unspecified",
}

// RussianVocabulary 俄文设计文档导出的列名
var RussianVocabulary = Vocabulary{
	Marker:      "Обозначение",
	Name:        "Наименование",
	Quantity:    "Кол-во",
	Size:        "Размер",
	Operations:  "Операции",
	Material:    "Прим.",
	Untitled:    "Без названия",
	AssemblyFmt: "Сборка %s",
	Assembly:    "Сборка",
	Unspecified: "Не указан",
}

// VocabularyFor 按 locale 选择词表，marker 非空时覆盖表头标记
func VocabularyFor(locale, marker string) Vocabulary {
	v := EnglishVocabulary
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case "ru", "ru_ru", "ru-ru":
		v = RussianVocabulary
	}
	if m := strings.TrimSpace(marker); m != "" {
		v.Marker = m
	}
	return v
}

// AssemblyName 装配体零件的名称
func (v Vocabulary) AssemblyName(designation string) string {
	return fmt.Sprintf(v.AssemblyFmt, designation)
}

// nullMarker 表格导出工具写入空单元格的文本
const nullMarker = "nan"

// isNull 空字符串或 nan（大小写无关）
func isNull(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, nullMarker)
}

// cleanCell 去空格，null 标记视为空
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, nullMarker) {
		return ""
	}
	return s
}

package table

import (
	"encoding/json"
	"fmt"
	"hstable-service/record"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// CSV 输出编码
const (
	EncodingUTF8 = "utf-8"
	EncodingGBK  = "gbk"
)

// ToCSV 将记录按 columns 指定的字段名顺序导出为CSV文本。
// data 为 nil 时导出表的缓存记录；不输出表头
func ToCSV(t *Table, columns []string, data []*record.Record) (string, error) {
	if data == nil {
		data = t.Records()
	}

	rows := make([][]interface{}, len(data))
	for i, r := range data {
		row := make([]interface{}, len(columns))
		for j, column := range columns {
			row[j] = r.Get(column)
		}
		rows[i] = row
	}

	return FormatCSV(rows)
}

// FormatCSV 将二维单元格渲染为CSV文本，行之间以 \n 分隔
func FormatCSV(rows [][]interface{}) (string, error) {
	lines := make([]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, value := range row {
			cell, err := FormatCell(value)
			if err != nil {
				return "", fmt.Errorf("第%d行第%d列格式化失败: %w", i+1, j+1, err)
			}
			cells[j] = cell
		}
		lines[i] = strings.Join(cells, ",")
	}
	return strings.Join(lines, "\n"), nil
}

// FormatCell 格式化单个单元格：
// 数值不加引号；布尔值为 "yes"/"no"；对象序列化为JSON后加引号；其余加引号并转义双引号
func FormatCell(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return `""`, nil
	case bool:
		if v {
			return `"yes"`, nil
		}
		return `"no"`, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToString(v), nil
	case json.Number:
		return v.String(), nil
	case string:
		return quote(v), nil
	default:
		return marshalCell(v)
	}
}

// EncodeCSV 按指定编码输出CSV字节
func EncodeCSV(text, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingUTF8, "utf8":
		return []byte(text), nil
	case EncodingGBK:
		result, _, err := transform.Bytes(simplifiedchinese.GBK.NewEncoder(), []byte(text))
		if err != nil {
			return nil, fmt.Errorf("GBK编码失败: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("不支持的编码: %s", encoding)
	}
}

func marshalCell(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return quote(string(b)), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

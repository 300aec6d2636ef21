package processor

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter 千分位和货币格式
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewFormatter code 为 ISO 4217 货币代码, 例如 USD
func NewFormatter(tag language.Tag, code string) (*Formatter, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("无效的货币代码 %q: %w", code, err)
	}
	return &Formatter{printer: message.NewPrinter(tag), unit: unit}, nil
}

// Int 1234567 -> 1,234,567
func (f *Formatter) Int(v int) string {
	return f.printer.Sprintf("%d", v)
}

// Float 按 prec 位小数输出, 带千分位
func (f *Formatter) Float(v float64, prec int) string {
	return f.printer.Sprintf(fmt.Sprintf("%%.%df", prec), v)
}

// Currency 货币符号加两位小数, 例如 $1,234.50
func (f *Formatter) Currency(v float64) string {
	return f.printer.Sprint(currency.Symbol(f.unit)) + f.Float(v, 2)
}

// Tile 页面上的一个指标卡片
type Tile struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// TotalTiles 三个总数卡片
func (f *Formatter) TotalTiles(t Totals) []Tile {
	return []Tile{
		{Label: "Total Casual User", Value: f.Int(t.Casual)},
		{Label: "Total Registered User", Value: f.Int(t.Registered)},
		{Label: "Total User", Value: f.Int(t.Total)},
	}
}

// RFMTiles 三个 RFM 平均值卡片
func (f *Formatter) RFMTiles(s RFMSummary) []Tile {
	return []Tile{
		{Label: "Average Recency (days)", Value: f.Float(s.AvgRecency, 1)},
		{Label: "Average Frequency", Value: f.Float(s.AvgFrequency, 2)},
		{Label: "Average Monetary", Value: f.Currency(s.AvgMonetary)},
	}
}

package utils

import (
	"fmt"
	"io"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Sheet 导出工作簿中的一张表
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]interface{}
}

// SaveToExcel 把 DataFrame 原样写入 Sheet1
func SaveToExcel(df dataframe.DataFrame, filePath string) error {
	if df.Err != nil {
		return df.Err
	}

	sheet := Sheet{Name: "Sheet1", Header: df.Names()}
	for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
		row := make([]interface{}, len(sheet.Header))
		for colIdx, colName := range sheet.Header {
			row[colIdx] = df.Col(colName).Val(rowIdx)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return SaveWorkbook([]Sheet{sheet}, filePath)
}

// SaveWorkbook 写入文件
func SaveWorkbook(sheets []Sheet, filePath string) error {
	f, err := buildWorkbook(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

// WriteWorkbook 写入 w, 用于 HTTP 下载
func WriteWorkbook(sheets []Sheet, w io.Writer) error {
	f, err := buildWorkbook(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("写出Excel失败: %w", err)
	}
	return nil
}

func buildWorkbook(sheets []Sheet) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("没有可导出的数据")
	}

	f := excelize.NewFile()
	for i, s := range sheets {
		if i == 0 {
			// 新建文件自带 Sheet1
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				f.Close()
				return nil, err
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			f.Close()
			return nil, fmt.Errorf("创建工作表 %s 失败: %w", s.Name, err)
		}

		for colIdx, name := range s.Header {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, 1)
			if err := f.SetCellValue(s.Name, cell, name); err != nil {
				f.Close()
				return nil, err
			}
		}
		for rowIdx, row := range s.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
			if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
				f.Close()
				return nil, fmt.Errorf("写入工作表 %s 失败: %w", s.Name, err)
			}
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Package report renders pricing data as Excel workbooks for admins.
package report

import (
	"fmt"
	"io"
	"strings"

	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/quote"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Catalog"
	quotesSheet  = "Quotes"
)

// ExportMatrix writes one sheet per matrix with attribute keys as rows and
// breakpoints as columns, plus a summary sheet.
func ExportMatrix(w io.Writer, cat *catalog.Catalog) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	headers := []any{"Matrix", "Kind", "Numeric type", "Selects", "Breakpoints", "Prices"}
	if err := writeRow(f, summarySheet, 1, headers); err != nil {
		return err
	}
	if err := f.SetRowStyle(summarySheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, m := range cat.Matrices {
		selects := make([]string, len(m.Selects))
		for j, s := range m.Selects {
			selects[j] = s.Label
		}
		bps := make([]string, len(m.Breakpoints))
		for j, bp := range m.Breakpoints {
			bps[j] = catalog.FormatBreakpoint(bp)
		}
		row := []any{m.ID, m.Kind.String(), m.NumericType.String(), strings.Join(selects, ", "), strings.Join(bps, ", "), len(m.PriceKeys())}
		if err := writeRow(f, summarySheet, i+2, row); err != nil {
			return err
		}

		if err := writeMatrixSheet(f, m, bold); err != nil {
			return err
		}
	}

	if len(cat.Skipped) > 0 {
		row := len(cat.Matrices) + 3
		if err := writeRow(f, summarySheet, row, []any{"Skipped rows"}); err != nil {
			return err
		}
		if err := f.SetCellStyle(summarySheet, cell(1, row), cell(1, row), bold); err != nil {
			return fmt.Errorf("failed to style cell: %w", err)
		}
		for i, e := range cat.Skipped {
			if err := writeRow(f, summarySheet, row+i+1, []any{e.Error()}); err != nil {
				return err
			}
		}
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeMatrixSheet(f *excelize.File, m *catalog.Matrix, bold int) error {
	sheet := sheetName(m.ID)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	header := []any{"Options"}
	for _, bp := range m.Breakpoints {
		header = append(header, bp)
	}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	col := make(map[string]int, len(m.Breakpoints))
	for j, bp := range m.Breakpoints {
		col[catalog.FormatBreakpoint(bp)] = j + 2
	}

	rows := make(map[string]int)
	next := 2
	for _, key := range m.PriceKeys() {
		attrKey, bp := splitPriceKey(key)
		c, ok := col[bp]
		if !ok {
			continue
		}
		r, ok := rows[attrKey]
		if !ok {
			r = next
			rows[attrKey] = r
			next++
			label := attrKey
			if label == "" {
				label = "(all)"
			}
			if err := f.SetCellValue(sheet, cell(1, r), label); err != nil {
				return fmt.Errorf("failed to set cell: %w", err)
			}
		}
		p, _ := m.Price(key)
		if err := f.SetCellValue(sheet, cell(c, r), p.InexactFloat64()); err != nil {
			return fmt.Errorf("failed to set cell: %w", err)
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

// ExportQuotes writes frozen quote snapshots, newest first as given.
func ExportQuotes(w io.Writer, snaps []quote.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", quotesSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	headers := []any{"ID", "Product", "Net", "VAT", "Gross", "Currency", "Created At", "Request"}
	if err := writeRow(f, quotesSheet, 1, headers); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetRowStyle(quotesSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	for i, s := range snaps {
		row := i + 2
		data := []any{
			s.ID.String(),
			s.ProductID,
			s.Net.InexactFloat64(),
			s.VAT.InexactFloat64(),
			s.Gross.InexactFloat64(),
			s.Currency,
			s.CreatedAt.Format("2006-01-02 15:04"),
			string(s.Request),
		}
		if err := writeRow(f, quotesSheet, row, data); err != nil {
			return err
		}
		if err := f.SetCellStyle(quotesSheet, cell(3, row), cell(5, row), money); err != nil {
			return fmt.Errorf("failed to style cell: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		if err := f.SetCellValue(sheet, cell(col+1, row), v); err != nil {
			return fmt.Errorf("failed to set cell: %w", err)
		}
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// splitPriceKey separates "<attributeKey>-<breakpoint>". Keys of matrices
// without selects are the breakpoint alone.
func splitPriceKey(key string) (attributeKey, breakpoint string) {
	i := strings.LastIndexByte(key, '-')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

func sheetName(matrixID string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, "Matrix "+matrixID)
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}

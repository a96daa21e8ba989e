// Package export renders a summary and its expenses as CSV or XLSX
// downloads. Both formats share the same layout: a per-category summary
// block followed by one detail row per expense.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"notbroke/internal/core"
)

// Document is a rendered download.
type Document struct {
	Content     []byte
	ContentType string
	Filename    string
}

const (
	csvContentType  = "text/csv"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var detailHeader = []string{"Category", "ID", "Amount", "Currency", "Note", "Date"}

type summaryRow struct {
	Path     string
	Currency core.Currency
	Total    core.Money
}

type detailRow struct {
	Path    string
	Expense core.ExpenseRecord
}

// rows flattens the summary and expense list into stable export order:
// summary rows sorted by currency then path, detail rows in input order.
// Expenses referencing a category missing from the forest are skipped,
// matching the aggregation engine.
func rows(summary *core.Summary, forest []*core.CategoryNode, expenses []core.ExpenseRecord) ([]summaryRow, []detailRow) {
	var sums []summaryRow
	for _, currency := range summary.SortedCurrencies() {
		byPath := summary.CurrencyBreakdown[currency]
		for _, path := range sortedKeys(byPath) {
			sums = append(sums, summaryRow{Path: path, Currency: currency, Total: byPath[path]})
		}
	}

	var details []detailRow
	for _, e := range expenses {
		node := core.FindNode(forest, e.CategoryID)
		if node == nil {
			continue
		}
		details = append(details, detailRow{Path: node.FullPath, Expense: e})
	}
	return sums, details
}

// CSV renders the export as a single comma-separated document.
func CSV(summary *core.Summary, forest []*core.CategoryNode, expenses []core.ExpenseRecord) (Document, error) {
	sums, details := rows(summary, forest, expenses)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"Summary"})
	for _, row := range sums {
		w.Write([]string{row.Path, string(row.Currency), row.Total.String()})
	}
	for _, currency := range summary.SortedCurrencies() {
		w.Write([]string{"Total", string(currency), summary.TotalByCurrency[currency].String()})
	}
	w.Write(nil)

	w.Write(detailHeader)
	for _, row := range details {
		e := row.Expense
		w.Write([]string{
			row.Path,
			fmt.Sprintf("%d", e.ID),
			e.Amount.String(),
			string(e.Currency),
			e.Note,
			e.Date.String(),
		})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return Document{}, fmt.Errorf("write csv: %w", err)
	}

	return Document{
		Content:     buf.Bytes(),
		ContentType: csvContentType,
		Filename:    "expenses.csv",
	}, nil
}

// XLSX renders the export as a workbook with Summary and Details sheets.
func XLSX(summary *core.Summary, forest []*core.CategoryNode, expenses []core.ExpenseRecord) (Document, error) {
	sums, details := rows(summary, forest, expenses)

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return Document{}, fmt.Errorf("rename sheet: %w", err)
	}

	line := 1
	setRow := func(sheet string, values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		line++
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := setRow(summarySheet, []any{"Category", "Currency", "Total"}); err != nil {
		return Document{}, fmt.Errorf("write summary header: %w", err)
	}
	for _, row := range sums {
		if err := setRow(summarySheet, []any{row.Path, string(row.Currency), row.Total.Float64()}); err != nil {
			return Document{}, fmt.Errorf("write summary row: %w", err)
		}
	}
	for _, currency := range summary.SortedCurrencies() {
		total := summary.TotalByCurrency[currency]
		if err := setRow(summarySheet, []any{"Total", string(currency), total.Float64()}); err != nil {
			return Document{}, fmt.Errorf("write summary total: %w", err)
		}
	}

	const detailSheet = "Details"
	if _, err := f.NewSheet(detailSheet); err != nil {
		return Document{}, fmt.Errorf("create details sheet: %w", err)
	}

	line = 1
	header := make([]any, len(detailHeader))
	for i, h := range detailHeader {
		header[i] = h
	}
	if err := setRow(detailSheet, header); err != nil {
		return Document{}, fmt.Errorf("write details header: %w", err)
	}
	for _, row := range details {
		e := row.Expense
		if err := setRow(detailSheet, []any{
			row.Path, e.ID, e.Amount.Float64(), string(e.Currency), e.Note, e.Date.String(),
		}); err != nil {
			return Document{}, fmt.Errorf("write detail row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return Document{}, fmt.Errorf("write workbook: %w", err)
	}

	return Document{
		Content:     buf.Bytes(),
		ContentType: xlsxContentType,
		Filename:    "expenses.xlsx",
	}, nil
}

func sortedKeys(m map[string]core.Money) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

const cellSeparator = " | "

func sheetHeader(name string) string {
	return "=== SHEET: " + name + " ==="
}

// rowLine joins the cells of a row, dropping trailing empty cells.
// It returns false for a row with no content.
func rowLine(cells []string) (string, bool) {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	if end == 0 {
		return "", false
	}
	return strings.Join(cells[:end], cellSeparator), true
}

// sheetWriter accumulates sheet blocks and remembers whether any row had
// content.
type sheetWriter struct {
	b    strings.Builder
	rows int
}

func (w *sheetWriter) sheet(name string) {
	if w.b.Len() > 0 {
		w.b.WriteString("\n")
	}
	w.b.WriteString(sheetHeader(name))
	w.b.WriteString("\n")
}

func (w *sheetWriter) row(cells []string) {
	line, ok := rowLine(cells)
	if !ok {
		return
	}
	w.b.WriteString(line)
	w.b.WriteString("\n")
	w.rows++
}

func (w *sheetWriter) text() string {
	if w.rows == 0 {
		return ""
	}
	return strings.TrimRight(w.b.String(), "\n")
}

func spreadsheetText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var w sheetWriter
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}
		w.sheet(name)
		for _, cells := range rows {
			w.row(cells)
		}
	}
	return w.text(), nil
}

func legacySpreadsheetText(data []byte) (string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return "", fmt.Errorf("open legacy workbook: %w", err)
	}

	var w sheetWriter
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		w.sheet(sheet.Name)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			w.row(cells)
		}
	}
	return w.text(), nil
}

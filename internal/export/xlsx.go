// Package export renders estimates as spreadsheets and reads edited line
// items back from them.
package export

import (
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/estimator/internal/model"
)

// Sheet names written by WriteXLSX.
const (
	EstimateSheet = "Estimate"
	DetailsSheet  = "Details"
)

const moneyFormat = "#,##0.00"

var header = []string{"Category", "Description", "Quantity", "Unit", "Rate", "Total", "Confidence", "Notes"}

// WriteXLSX writes est as a workbook with an itemized Estimate sheet and a
// Details sheet for assumptions, recommendations and disclaimers.
func WriteXLSX(w io.Writer, est *model.Estimate) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(EstimateSheet)
	if err != nil {
		return eris.Wrap(err, "export: add estimate sheet")
	}
	addStrings(sheet, est.ProjectTitle)
	addStrings(sheet, est.Summary)
	addStrings(sheet, "Timeline", est.Timeline)
	sheet.AddRow()
	addStrings(sheet, header...)

	for _, li := range est.LineItems {
		row := sheet.AddRow()
		row.AddCell().SetString(string(li.Category))
		row.AddCell().SetString(li.Description)
		row.AddCell().SetFloat(li.Quantity)
		row.AddCell().SetString(li.Unit)
		row.AddCell().SetFloatWithFormat(li.Rate, moneyFormat)
		row.AddCell().SetFloatWithFormat(li.Total, moneyFormat)
		row.AddCell().SetString(string(li.Confidence))
		row.AddCell().SetString(li.Notes)
	}

	sheet.AddRow()
	addTotal(sheet, "Subtotal", est.Subtotal)
	addTotal(sheet, "Tax", est.Tax)
	addTotal(sheet, "Total", est.Total)

	details, err := f.AddSheet(DetailsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add details sheet")
	}
	addSection(details, "Assumptions", est.Assumptions)
	addSection(details, "Recommendations", est.Recommendations)
	addSection(details, "Disclaimers", est.Disclaimers)
	if est.SiteVisitRequired {
		addStrings(details, "Site visit required", est.SiteVisitReason)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// ReadLineItems parses the line item table of a workbook written by
// WriteXLSX, typically after a contractor has edited it. Totals are
// recomputed from quantity and rate.
func ReadLineItems(data []byte) ([]model.LineItem, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "export: open workbook")
	}
	sheet, ok := f.Sheet[EstimateSheet]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", EstimateSheet)
	}

	start := -1
	for i, row := range sheet.Rows {
		if cells := rowToStrings(row); len(cells) > 0 && cells[0] == header[0] && len(cells) > 1 && cells[1] == header[1] {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, eris.New("export: line item header not found")
	}

	var items []model.LineItem
	for i := start; i < len(sheet.Rows); i++ {
		cells := rowToStrings(sheet.Rows[i])
		if endOfItems(cells) {
			break
		}
		li, err := parseRow(cells)
		if err != nil {
			return nil, eris.Wrapf(err, "export: row %d", i+1)
		}
		items = append(items, li)
	}
	return items, nil
}

func parseRow(cells []string) (model.LineItem, error) {
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	qty, err := parseNumber(get(2))
	if err != nil {
		return model.LineItem{}, eris.Wrap(err, "quantity")
	}
	rate, err := parseNumber(get(4))
	if err != nil {
		return model.LineItem{}, eris.Wrap(err, "rate")
	}
	cat, ok := model.ParseCategory(get(0))
	if !ok {
		cat = model.CategoryOther
	}
	conf, ok := model.ParseConfidence(get(6))
	if !ok {
		conf = model.ConfidenceMedium
	}
	li := model.LineItem{
		Category:    cat,
		Description: get(1),
		Quantity:    qty,
		Unit:        get(3),
		Rate:        rate,
		Confidence:  conf,
		Notes:       get(7),
	}
	li.Recalculate()
	return li, nil
}

func parseNumber(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func addStrings(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addTotal(sheet *xlsx.Sheet, label string, v float64) {
	row := sheet.AddRow()
	for i := 0; i < 4; i++ {
		row.AddCell()
	}
	row.AddCell().SetString(label)
	row.AddCell().SetFloatWithFormat(v, moneyFormat)
}

func addSection(sheet *xlsx.Sheet, title string, items []string) {
	if len(items) == 0 {
		return
	}
	addStrings(sheet, title)
	for _, it := range items {
		addStrings(sheet, "", it)
	}
	sheet.AddRow()
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.Value
	}
	return cells
}

// endOfItems reports whether a row ends the line item table: a blank
// separator or a totals row, both of which leave category and description
// empty.
func endOfItems(cells []string) bool {
	for i := 0; i < 2 && i < len(cells); i++ {
		if strings.TrimSpace(cells[i]) != "" {
			return false
		}
	}
	return true
}

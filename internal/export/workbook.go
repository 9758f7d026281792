// Package export writes campaign results to an XLSX workbook and optionally
// delivers it to an FTP drop.
package export

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/campaign-cli/internal/model"
)

var leadHeader = []string{
	"Place ID", "Name", "Category", "Unit", "Stage",
	"Website", "Email", "Email Confidence", "Phone", "Address",
	"Rating", "Reviews", "Summary", "Outreach Message",
	"Failure", "Discovered At",
}

// WriteWorkbook writes the campaign and its leads to an XLSX file at path.
// The workbook carries two sheets: a one-row campaign overview and the leads.
func WriteWorkbook(path string, c *model.Campaign, leads []model.Lead) error {
	f := xlsx.NewFile()

	if err := addOverviewSheet(f, c); err != nil {
		return err
	}
	if err := addLeadsSheet(f, leads); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}

func addOverviewSheet(f *xlsx.File, c *model.Campaign) error {
	sheet, err := f.AddSheet("Campaign")
	if err != nil {
		return eris.Wrap(err, "export: add campaign sheet")
	}

	rows := [][2]string{
		{"Name", c.Name},
		{"Location", c.Location},
		{"Status", string(c.Status)},
		{"Completion Reason", c.CompletionReason},
		{"Units Planned", fmt.Sprintf("%d", c.UnitsPlanned)},
		{"Units Processed", fmt.Sprintf("%d", c.UnitsProcessed)},
		{"Leads Found", fmt.Sprintf("%d", c.LeadsFound)},
		{"Cost Spent (USD)", fmt.Sprintf("%.2f", c.CostSpentUSD)},
		{"Created", c.CreatedAt.Format("2006-01-02 15:04")},
	}
	for _, kv := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(kv[0])
		row.AddCell().SetString(kv[1])
	}
	return nil
}

func addLeadsSheet(f *xlsx.File, leads []model.Lead) error {
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add leads sheet")
	}

	header := sheet.AddRow()
	for _, h := range leadHeader {
		header.AddCell().SetString(h)
	}

	for _, l := range leads {
		row := sheet.AddRow()
		row.AddCell().SetString(l.PlaceID)
		row.AddCell().SetString(l.Name)
		row.AddCell().SetString(l.Category)
		row.AddCell().SetString(l.UnitID)
		row.AddCell().SetString(string(l.Stage))
		row.AddCell().SetString(l.Website)
		row.AddCell().SetString(l.Email)
		if l.EmailConfidence > 0 {
			row.AddCell().SetFloat(l.EmailConfidence)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(l.Phone)
		row.AddCell().SetString(l.Address)
		if l.Rating > 0 {
			row.AddCell().SetFloat(l.Rating)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetInt(l.ReviewsCount)
		row.AddCell().SetString(l.Summary)
		row.AddCell().SetString(l.OutreachMessage)
		row.AddCell().SetString(failureText(l))
		row.AddCell().SetString(l.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func failureText(l model.Lead) string {
	if l.FailureKind == "" {
		return ""
	}
	if l.FailureDetail == "" {
		return l.FailureKind
	}
	return l.FailureKind + ": " + l.FailureDetail
}

package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/zmsaddi/metalflow_backend/models"
	"gorm.io/gorm"
)

// ExportAgingReportExcel writes the aging report for one account type as
// an xlsx workbook, one row per account plus a totals row.
func ExportAgingReportExcel(db *gorm.DB, accountType models.AccountType, asOf time.Time, w io.Writer) error {
	rows, err := GetAgingReport(db, accountType, asOf)
	if err != nil {
		return err
	}
	summary, err := GetAgingSummary(db, accountType, asOf)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "Account")
	f.SetCellValue(sheet, "B1", "Balance")
	f.SetCellValue(sheet, "C1", "Current")
	f.SetCellValue(sheet, "D1", "1-30")
	f.SetCellValue(sheet, "E1", "31-60")
	f.SetCellValue(sheet, "F1", "61-90")
	f.SetCellValue(sheet, "G1", ">90")
	f.SetCellValue(sheet, "H1", "Charges")

	for i, row := range rows {
		n := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+n, row.AccountName)
		f.SetCellValue(sheet, "B"+n, row.Balance.InexactFloat64())
		f.SetCellValue(sheet, "C"+n, row.Current.InexactFloat64())
		f.SetCellValue(sheet, "D"+n, row.Days1to30.InexactFloat64())
		f.SetCellValue(sheet, "E"+n, row.Days31to60.InexactFloat64())
		f.SetCellValue(sheet, "F"+n, row.Days61to90.InexactFloat64())
		f.SetCellValue(sheet, "G"+n, row.Over90.InexactFloat64())
		f.SetCellValue(sheet, "H"+n, row.ChargeCount)
	}

	n := fmt.Sprint(len(rows) + 2)
	f.SetCellValue(sheet, "A"+n, "Total")
	f.SetCellValue(sheet, "B"+n, summary.Balance.InexactFloat64())
	f.SetCellValue(sheet, "C"+n, summary.Current.InexactFloat64())
	f.SetCellValue(sheet, "D"+n, summary.Days1to30.InexactFloat64())
	f.SetCellValue(sheet, "E"+n, summary.Days31to60.InexactFloat64())
	f.SetCellValue(sheet, "F"+n, summary.Days61to90.InexactFloat64())
	f.SetCellValue(sheet, "G"+n, summary.Over90.InexactFloat64())

	return f.Write(w)
}

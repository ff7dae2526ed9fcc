package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/models/reports"
)

func main() {
	accountType := flag.String("type", "customer", "Account type: customer or supplier")
	asOfStr := flag.String("as-of", "", "Report date (YYYY-MM-DD), defaults to today")
	dbPath := flag.String("db", "", "Optional: SQLite path (defaults to DB_PATH)")
	outFile := flag.String("out", "", "Optional: write an xlsx workbook instead of printing")
	overdueOnly := flag.Bool("overdue-only", false, "Only print accounts with charges past the current bucket")
	flag.Parse()

	godotenv.Load()

	asOf := time.Now().UTC()
	if strings.TrimSpace(*asOfStr) != "" {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(*asOfStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid as-of date: %v\n", err)
			os.Exit(1)
		}
		asOf = d
	}

	db, err := config.OpenDatabase(config.DatabaseOptions{Path: *dbPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}

	atype := models.AccountType(*accountType)
	if !atype.Valid() {
		fmt.Fprintln(os.Stderr, "--type must be customer or supplier")
		os.Exit(1)
	}

	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *outFile, err)
			os.Exit(1)
		}
		defer f.Close()
		if err := reports.ExportAgingReportExcel(db, atype, asOf, f); err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *outFile)
		return
	}

	var rows []*reports.AgingReportRow
	if *overdueOnly {
		rows, err = reports.GetOverdueAccounts(db, atype, asOf)
	} else {
		rows, err = reports.GetAgingReport(db, atype, asOf)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "aging report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-30s %12s %12s %12s %12s %12s %12s\n",
		"Account", "Balance", "Current", "1-30", "31-60", "61-90", ">90")
	for _, row := range rows {
		fmt.Printf("%-30s %12s %12s %12s %12s %12s %12s\n",
			row.AccountName, row.Balance, row.Current,
			row.Days1to30, row.Days31to60, row.Days61to90, row.Over90)
	}

	summary, err := reports.GetAgingSummary(db, atype, asOf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aging summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%-30s %12s %12s %12s %12s %12s %12s\n",
		"Total", summary.Balance, summary.Current,
		summary.Days1to30, summary.Days31to60, summary.Days61to90, summary.Over90)
}

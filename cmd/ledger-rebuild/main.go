package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/workflow"
)

func main() {
	accountID := flag.Int("account-id", 0, "Optional: rebuild a single account (default all)")
	dbPath := flag.String("db", "", "Optional: SQLite path (defaults to DB_PATH)")
	verify := flag.Bool("verify", false, "After rebuilding, check stored trails against recomputed sums")
	flag.Parse()

	godotenv.Load()
	logger := config.NewLogger()

	db, err := config.OpenDatabase(config.DatabaseOptions{Path: *dbPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	if err := models.MigrateTables(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	engine := workflow.NewEngine(db, logger, workflow.EngineOptions{})
	ctx := context.Background()

	if *accountID > 0 {
		res := engine.RecalculateAccount(ctx, *accountID)
		if !res.Success {
			fmt.Fprintf(os.Stderr, "rebuild account %d: %v\n", *accountID, res.Error)
			os.Exit(1)
		}
		fmt.Printf("rebuilt ledger for account %d\n", *accountID)
	} else {
		res := engine.RecalculateAll(ctx)
		if !res.Success {
			fmt.Fprintf(os.Stderr, "rebuild all: %v\n", res.Error)
			os.Exit(1)
		}
		fmt.Printf("rebuilt ledgers for %d accounts\n", res.Data)
	}

	if *verify {
		accounts, err := models.ListAccounts(db, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "list accounts: %v\n", err)
			os.Exit(1)
		}
		failed := 0
		for _, account := range accounts {
			ok, err := engine.Reconciler().BalancesAgree(ctx, account.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "verify account %d: %v\n", account.ID, err)
				failed++
				continue
			}
			if !ok {
				fmt.Fprintf(os.Stderr, "account %d (%s): stored trail disagrees with recomputed sum\n", account.ID, account.Name)
				failed++
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
		fmt.Printf("verified %d accounts\n", len(accounts))
	}
}

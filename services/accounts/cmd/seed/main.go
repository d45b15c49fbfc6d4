// Command seed loads demo accounts into the ledger database for local
// development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/libs/logging"
	"github.com/paynow/paynow/services/accounts/internal/storage"
)

type seedAccount struct {
	customerID string
	balance    float64
	currency   string
}

var demoAccounts = []seedAccount{
	{"c_alice", 1000, "USD"},
	{"c_bob", 250, "USD"},
	{"c_carol", 10000, "USD"},
	{"c_dave", 50, "USD"},
}

func main() {
	dbURL := flag.String("db", os.Getenv("PAYNOW_DATABASE_URL"), "accounts database url")
	flag.Parse()

	logger := logging.NewLogger("info", "seed", "dev")

	if *dbURL == "" {
		logger.Error("database url required, pass -db or set PAYNOW_DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dbURL)
	if err != nil {
		logger.Error("connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.NewStore(pool, logger)
	for _, a := range demoAccounts {
		acct, err := store.CreateAccount(ctx, a.customerID, decimal.NewFromFloat(a.balance), a.currency)
		if err != nil {
			logger.Warn("skipping account",
				slog.String("customer_id", a.customerID),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("seeded account",
			slog.String("customer_id", acct.CustomerID),
			slog.String("balance", fmt.Sprintf("%s %s", acct.Balance.StringFixed(2), acct.Currency)),
		)
	}
}

package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/calebmorris/trendwatch/internal/config"
	"github.com/calebmorris/trendwatch/internal/store"
)

func openStore() *store.Store {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "trendwatch: loading config: %v\n", err)
		os.Exit(1)
	}
	db, err := store.New(cfg.Storage.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trendwatch: opening database: %v\n", err)
		os.Exit(1)
	}
	return db
}

func runShow() {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := fs.String("id", "", "record ID (required)")
	fs.Parse(os.Args[1:])

	if *id == "" {
		fmt.Fprintln(os.Stderr, "show: -id is required")
		fs.Usage()
		os.Exit(2)
	}

	db := openStore()
	defer db.Close()

	record, err := db.GetRecord(*id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "show: no record with ID %s\n", *id)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "show: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(record, "", "  ")
	fmt.Println(string(out))
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	keyword := fs.String("keyword", "", "filter by keyword")
	limit := fs.Int("limit", 20, "maximum records to show")
	fs.Parse(os.Args[1:])

	db := openStore()
	defer db.Close()

	records, err := db.ListRecords(*keyword, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No records.")
		return
	}

	for _, r := range records {
		fmt.Printf("%s  %-20s  sentiment=%3d  heat=%6.2f  items=%d  %s\n",
			r.AnalyzedAt.Format("2006-01-02 15:04"),
			r.Keyword, r.SentimentScore, r.HeatIndex, r.TotalItems, r.ID)
	}
}

func runAlerts() {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum alerts to show")
	fs.Parse(os.Args[1:])

	db := openStore()
	defer db.Close()

	alerts, err := db.ListAlerts(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alerts: %v\n", err)
		os.Exit(1)
	}
	if len(alerts) == 0 {
		fmt.Println("No alerts.")
		return
	}

	for _, a := range alerts {
		fmt.Printf("%s  %-20s  score=%3d  threshold=%3d  %s  record=%s\n",
			a.CreatedAt.Format("2006-01-02 15:04"),
			a.Keyword, a.SentimentScore, a.Threshold, a.AlertType, a.RecordID)
	}
}

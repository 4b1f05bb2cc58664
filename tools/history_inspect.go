package main

import (
	"afterglow/domain"
	"afterglow/repositories"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./history", "Path to the navigation history badger DB")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	entries, err := repositories.NewHistoryRepository(db, logs.GetLoggerFromString("ERROR")).List(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Seq", "URL", "Timestamp", "State"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, entry := range entries {
		state := string(entry.State)
		if nav, err := domain.DecodeNavState(entry.State); err != nil {
			state = "invalid: " + state
		} else {
			state = "path=" + strconv.Quote(nav.Path)
		}
		table.Append([]string{
			strconv.FormatUint(entry.Seq, 10),
			"/" + entry.URL,
			entry.At.Format("15:04:05"),
			state,
		})
	}
	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A crashed writer leaves a log to truncate, which needs one write open
		if strings.Contains(err.Error(), "Log truncate required") {
			repair, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil).WithBypassLockGuard(true))
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = repair.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sky93/pipeflow"

	_ "github.com/go-sql-driver/mysql"
)

// Exit codes: 0 all jobs succeeded or skipped cleanly, 1 pipeline failed,
// 2 pipeline cancelled, 3 definition invalid.
func main() {
	maxConcurrency := flag.Int("max-concurrency", 4, "maximum jobs running at once")
	retryLimit := flag.Uint("retry-limit", 0, "default retry budget for jobs that declare none")
	historyDSN := flag.String("history-dsn", "", "optional MySQL DSN for run history")
	historyDB := flag.String("history-db", "", "database name holding the history tables")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: run [flags] <pipeline-file>")
		os.Exit(3)
	}

	// 1) Create the pipeflow config
	cfg := pipeflow.Config{
		MaxConcurrency:    *maxConcurrency,
		DefaultMaxRetries: *retryLimit,
		BackoffBase:       time.Second,
		JobTimeout:        10 * time.Minute,
	}

	// Optionally persist run history
	if *historyDSN != "" {
		db, err := sql.Open("mysql", *historyDSN)
		if err != nil {
			fmt.Fprintln(os.Stderr, "history database:", err)
			os.Exit(1)
		}
		if err = db.Ping(); err != nil {
			fmt.Fprintln(os.Stderr, "history database:", err)
			os.Exit(1)
		}
		cfg.DB = db
		cfg.DbName = *historyDB
	}

	// 2) Load the pipeline definition
	set, err := pipeflow.LoadPipeline(flag.Arg(0), cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid pipeline:", err)
		os.Exit(3)
	}

	// 3) Start the run
	engine := pipeflow.New(cfg)
	run, err := engine.Start(context.Background(), set)
	if err != nil {
		var cycle *pipeflow.CycleError
		if errors.As(err, &cycle) || errors.Is(err, pipeflow.ErrUnknownDependency) {
			fmt.Fprintln(os.Stderr, "invalid pipeline:", err)
			os.Exit(3)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// 4) Cancel on Ctrl-C, otherwise wait for completion
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		run.Cancel("user requested")
	}()

	result := run.Wait()
	for id, st := range result.Final {
		fmt.Printf("%-20s %s (attempts: %d)\n", id, st.Status, st.Attempts)
	}

	switch {
	case result.OK:
		os.Exit(0)
	case result.Cancelled:
		fmt.Fprintln(os.Stderr, "cancelled:", result.CancelReason)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "failed jobs:", result.Failed)
		os.Exit(1)
	}
}

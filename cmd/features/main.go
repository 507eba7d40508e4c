// cmd/features fetches bar history once, computes the feature table and
// writes it as JSON lines, one row per bar.
//
// Usage:
//
//	go run ./cmd/features --bars=500 --out=features.jsonl
//	go run ./cmd/features --source=sqlite --db=data/trader.db
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breakout-trader/config"
	"breakout-trader/internal/indicator"
	"breakout-trader/internal/logger"
	"breakout-trader/internal/model"
	"breakout-trader/internal/refresh"
	sqlitestore "breakout-trader/internal/store/sqlite"
	"breakout-trader/pkg/bybit"
)

func main() {
	config.LoadDotEnv(os.Getenv("ENV_FILE"))
	cfg := config.Load()
	logger.Init("features", logger.ParseLevel(cfg.LogLevel))

	// Flags
	source := flag.String("source", "bybit", "Bar source: bybit or sqlite")
	nBars := flag.Int("bars", cfg.HistoryBars, "Number of bars to fetch")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database (source=sqlite, or with --save)")
	save := flag.Bool("save", false, "Archive fetched bars into the SQLite database")
	outPath := flag.String("out", "-", "Output file, - for stdout")
	flag.Parse()

	indCfg, err := cfg.Indicators()
	if err != nil {
		log.Fatalf("[features] %v", err)
	}
	if err := indCfg.CheckHistory(*nBars); err != nil {
		log.Fatalf("[features] --bars: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var bars []model.Bar
	switch *source {
	case "bybit":
		client := bybit.NewClient(bybit.Config{
			Symbol:  cfg.Symbol,
			Testnet: cfg.BybitTestnet,
			Timeout: cfg.GatewayTimeout,
		})
		var pages int
		bars, pages, err = refresh.FetchHistory(ctx, client, cfg.BarInterval, *nBars, time.Now())
		if err != nil {
			log.Fatalf("[features] fetch failed: %v", err)
		}
		log.Printf("[features] fetched %d bars in %d pages", len(bars), pages)

		if *save {
			db, err := sqlitestore.Open(*dbPath)
			if err != nil {
				log.Fatalf("[features] sqlite open failed: %v", err)
			}
			if err := db.Bars().Save(ctx, cfg.Symbol, cfg.BarInterval, bars); err != nil {
				log.Printf("[features] archive failed: %v", err)
			}
			db.Close()
		}

	case "sqlite":
		step, err := model.IntervalDuration(cfg.BarInterval)
		if err != nil {
			log.Fatalf("[features] %v", err)
		}
		db, err := sqlitestore.Open(*dbPath)
		if err != nil {
			log.Fatalf("[features] sqlite open failed: %v", err)
		}
		from := time.Now().Add(-time.Duration(*nBars) * step)
		bars, err = db.Bars().Read(ctx, cfg.Symbol, cfg.BarInterval, from, *nBars)
		db.Close()
		if err != nil {
			log.Fatalf("[features] archive read failed: %v", err)
		}
		log.Printf("[features] read %d archived bars", len(bars))

	default:
		log.Fatalf("[features] unknown source %q", *source)
	}

	if err := indCfg.CheckHistory(len(bars)); err != nil {
		log.Fatalf("[features] %v", err)
	}
	snap := indicator.Compute(bars, indCfg)
	snap.CreatedAt = time.Now()

	out := io.Writer(os.Stdout)
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("[features] %v", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeRows(out, &snap); err != nil {
		log.Fatalf("[features] write failed: %v", err)
	}

	last, _ := snap.Last(0)
	fmt.Fprintf(os.Stderr, "%s %s: %d rows, last close %.2f at %s\n",
		cfg.Symbol, cfg.BarInterval, snap.Len(), last.Close, last.OpenTime.Format(time.RFC3339))
}

func writeRows(w io.Writer, snap *model.FeatureSnapshot) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, row := range snap.Rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// importctl drives one import cycle against a running Pengamannen server:
// upload an export, show the preview, confirm, and optionally sync holdings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oggew2/Pengamannen-sub001/src/models"
	"github.com/oggew2/Pengamannen-sub001/src/reconciler"
)

func main() {
	var (
		server = flag.String("server", "http://localhost:8080", "base URL of the Pengamannen server")
		file   = flag.String("file", "", "path to the broker transaction export (CSV)")
		source = flag.String("source", "avanza", "broker source of the export")
		mode   = flag.String("mode", "add_new", "merge mode: add_new or replace")
		sync   = flag.Bool("sync", false, "sync holdings after a successful import")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "importctl: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "importctl: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rec := reconciler.NewReconciler(reconciler.NewClient(*server, nil))

	if err := rec.SubmitFile(ctx, filepath.Base(*file), f, *source); err != nil {
		fmt.Fprintf(os.Stderr, "upload failed: %s\n", rec.ErrMessage())
		os.Exit(1)
	}

	preview := rec.Preview()
	fmt.Printf("parsed %d transactions: %d new, %d duplicates skipped, %d matched to known instruments\n",
		preview.Parsed, preview.New, preview.DuplicatesSkipped, preview.Matched)
	for _, u := range preview.Unmatched {
		fmt.Printf("  unmatched: %s (%s) on %s\n", u.Name, u.ISIN, u.Date)
	}
	for _, p := range preview.Positions {
		fmt.Printf("  position: %-10s %10.2f shares, avg cost %.2f %s (%.2f SEK)\n",
			p.Ticker, p.Shares, p.AvgCost, p.Currency, p.AvgCostSEK)
		if p.Warning != "" {
			fmt.Printf("    warning: %s\n", p.Warning)
		}
	}

	if err := rec.SelectMergeMode(models.MergeMode(*mode)); err != nil {
		fmt.Fprintf(os.Stderr, "importctl: %v\n", err)
		os.Exit(2)
	}

	if rec.AllDuplicates() && rec.MergeMode() == models.MergeAddNew {
		fmt.Println("every transaction in this file is already imported; re-run with -mode replace to re-import")
		os.Exit(0)
	}

	if err := rec.ConfirmImport(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "confirm failed: %s\n", rec.ErrMessage())
		os.Exit(1)
	}
	if rec.ConsumeCelebration() {
		fmt.Printf("imported %d transactions 🎉\n", rec.Imported())
	}

	if *sync {
		if err := rec.SyncToHoldings(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "sync failed: %s\n", rec.ErrMessage())
			os.Exit(1)
		}
		if w := rec.Warning(); w != "" {
			fmt.Printf("warning: %s\n", w)
		}
		fmt.Printf("holdings synced: %d positions\n", len(rec.Holdings()))
	}
}

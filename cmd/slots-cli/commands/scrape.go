package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"padelslots-backend/lib/browser"
	"padelslots-backend/lib/util/serviceutil"
	"padelslots-backend/services/slots"

	"github.com/spf13/cobra"
)

var scrapeBackend *string
var scrapeBin *string
var scrapeTimeout *time.Duration

func init() {
	scrapeBackend = scrapeCmd.Flags().String("backend", "rod", "The browser backend to use, either rod or http.")
	scrapeBin = scrapeCmd.Flags().String("bin", "", "Path to a chrome binary, rod downloads one if empty.")
	scrapeTimeout = scrapeCmd.Flags().Duration("timeout", slots.DefaultFetchTimeout, "How long to wait for the upstream.")
	rootCmd.AddCommand(scrapeCmd)
}

func newLauncher(backend, bin string, timeout time.Duration) (browser.Launcher, error) {
	switch backend {
	case "rod":
		return browser.NewRodLauncher(browser.RodOptions{Bin: bin, Headless: true}), nil
	case "http":
		return browser.HttpLauncher{Timeout: timeout}, nil
	}
	return nil, fmt.Errorf("unknown browser backend '%s'", backend)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--date <yyyy-mm-dd>] [--backend rod|http]",
	Short: "Fetches slots from the upstream once and prints the raw json.",
	Run: func(cmd *cobra.Command, args []string) {
		launcher, err := newLauncher(*scrapeBackend, *scrapeBin, *scrapeTimeout)
		if err != nil {
			serviceutil.Fatal("invalid flags", err)
		}
		coordinator, err := slots.NewCoordinator(slots.Options{
			Launcher:     launcher,
			FetchTimeout: *scrapeTimeout,
		})
		if err != nil {
			serviceutil.Fatal("failed to create coordinator", err)
		}
		defer coordinator.Shutdown(context.Background())

		t1 := time.Now()
		value, err := coordinator.FetchSlots(cmd.Context(), *date)
		if err != nil {
			coordinator.Shutdown(context.Background())
			serviceutil.Fatal("failed to fetch slots", err)
		}
		slog.Info("scraping time", "seconds", time.Since(t1).Seconds())

		var out bytes.Buffer
		err = json.Indent(&out, value, "", "  ")
		if err != nil {
			serviceutil.Fatal("failed to format response", err)
		}
		fmt.Println(out.String())
	},
}

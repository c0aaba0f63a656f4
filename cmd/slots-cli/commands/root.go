package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "slots-cli",
	Short: "slots-cli is a CLI for querying and debugging the padel slots backend.",
}

var date *string

func init() {
	date = rootCmd.PersistentFlags().String("date", time.Now().Format(time.DateOnly), "The start date to fetch slots for.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

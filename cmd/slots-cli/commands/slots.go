package commands

import (
	"fmt"
	"os"
	"padelslots-backend/lib/scrapers/eversports"
	"padelslots-backend/lib/telemetry"
	"padelslots-backend/lib/util/serviceutil"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var serverUrl *string
var freeOnly *bool

func init() {
	serverUrl = slotsCmd.Flags().String("server", "http://localhost:3000", "The base url of a running slots server.")
	freeOnly = slotsCmd.Flags().Bool("free", false, "Only list slots that are not booked.")
	rootCmd.AddCommand(slotsCmd)
}

type serverError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func fetchFromServer(client *resty.Client, startDate string) (eversports.SlotsResponse, error) {
	var out eversports.SlotsResponse
	var failure serverError
	res, err := client.R().
		SetQueryParam("startDate", startDate).
		SetResult(&out).
		SetError(&failure).
		Get("/slots")
	if err != nil {
		return out, err
	}
	if res.IsError() {
		if failure.Details != "" {
			return out, fmt.Errorf("%s: %s: %s", res.Status(), failure.Error, failure.Details)
		}
		return out, fmt.Errorf("%s: %s", res.Status(), failure.Error)
	}
	return out, nil
}

var slotsCmd = &cobra.Command{
	Use:   "slots [--server <url>] [--date <yyyy-mm-dd>] [--free]",
	Short: "Prints the slots a running server returns for a date.",
	Run: func(cmd *cobra.Command, args []string) {
		client := resty.New().SetBaseURL(*serverUrl)
		telemetry.InstrumentResty(client, "cmd/slots-cli")

		res, err := fetchFromServer(client, *date)
		if err != nil {
			serviceutil.Fatal("failed to fetch slots", err)
		}

		t := newSlotsTable(res.Slots, *freeOnly)
		t.SetOutputMirror(os.Stdout)
		t.Render()
	},
}

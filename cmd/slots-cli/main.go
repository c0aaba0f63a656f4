package main

import (
	"context"
	"padelslots-backend/cmd/slots-cli/commands"
	"padelslots-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(telemetry.LogConfig{})
	commands.ExecuteContext(context.Background())
}

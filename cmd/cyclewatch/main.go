package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/lox/cyclewatch/internal/logging"
)

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"1" help:"Run the HTTP server and the daily classification schedule."`
	Run      RunCmd      `cmd:"" help:"Fetch, classify and store today's status once."`
	Status   StatusCmd   `cmd:"" help:"Print the latest stored status."`
	Classify ClassifyCmd `cmd:"" help:"Classify the series and print the summary without storing it."`
	Replay   ReplayCmd   `cmd:"" help:"Classify the payload archived by an earlier run."`
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("load .env")
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cyclewatch"),
		kong.Description("Classifies the credit-spread series into a business-cycle phase."),
		kong.UsageOnError(),
	)

	if err := logging.Setup(cli.LogLevel, cli.LogFormat, os.Stderr); err != nil {
		ctx.FatalIfErrorf(err)
	}

	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

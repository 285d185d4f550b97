package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/cmdutil"
)

const (
	programName = "atapt"
	programDesc = "Issue ATA commands through SCSI ATA PASS-THROUGH"
)

func main() {
	spew.Config.Indent = "  "

	// Parse kong flags and sub-commands
	ctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	level, err := log.ParseLevel(cli.LogLevel)
	ctx.FatalIfErrorf(err)
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	// Run the command
	err = ctx.Run(&runContext{
		reg:     prometheus.NewPedanticRegistry(),
		metrics: cli.Metrics,
		dump:    cli.Dump,
		out:     os.Stdout,
		confirm: cmdutil.Confirm,
	})
	ctx.FatalIfErrorf(err)
}

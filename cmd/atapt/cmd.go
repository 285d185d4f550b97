package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/cmdutil"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/ncq"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/sat"
)

// runContext is the context struct required by kong command line parser
type runContext struct {
	reg     *prometheus.Registry
	drives  driveCollector
	metrics bool
	dump    bool
	out     io.Writer
	confirm func(msg string) (bool, error)
}

// confirmed reports whether a command that writes to the device may run,
// asking the user when the flag was not given.
func (ctx *runContext) confirmed(yes bool, msg string) (bool, error) {
	if yes {
		return true, nil
	}
	if ctx.confirm == nil {
		return false, nil
	}
	return ctx.confirm(msg)
}

// flushMetrics prints the gathered metrics if requested. Executors
// unregister their metrics on Close, so this has to run first.
func (ctx *runContext) flushMetrics() {
	if !ctx.metrics {
		return
	}
	if err := outputMetrics(ctx.reg, &ctx.drives, ctx.out); err != nil {
		log.WithError(err).Error("Failed to output metrics")
	}
}

type identifyCmd struct {
	cmdutil.DeviceEmbed `embed:""`
}

type execCmd struct {
	cmdutil.DeviceEmbed `embed:""`
	cmdutil.CommandSpec `embed:""`

	Size   string `optional:"" default:"auto" enum:"auto,12,16,32" help:"CDB size"`
	CkCond bool   `optional:"" name:"ck-cond" help:"Return the ATA output registers"`
	Yes    bool   `optional:"" short:"y" help:"Allow data-out commands, which may overwrite data on the device"`
	Out    string `optional:"" short:"o" type:"path" help:"Write data-in to a file instead of stdout"`
}

type cdbCmd struct {
	cmdutil.CommandSpec `embed:""`

	Size   string `optional:"" default:"32" enum:"auto,12,16,32" help:"CDB size"`
	CkCond bool   `optional:"" name:"ck-cond" help:"Set CK_COND"`
}

type batchCmd struct {
	cmdutil.DeviceEmbed `embed:""`

	File       string `arg:"" type:"existingfile" help:"YAML file listing the commands"`
	QueueDepth int    `optional:"" short:"q" help:"NCQ queue depth, by default taken from IDENTIFY DEVICE"`
	Size       string `optional:"" default:"auto" enum:"auto,12,16,32" help:"CDB size"`
	CkCond     bool   `optional:"" name:"ck-cond" help:"Return the ATA output registers"`
	Yes        bool   `optional:"" short:"y" help:"Allow data-out commands, which may overwrite data on the device"`
}

// cli is the main command line interface struct required by kong command line parser
var cli struct {
	LogLevel string `optional:"" default:"info" enum:"trace,debug,info,warn,error" env:"ATAPT_LOG_LEVEL" help:"Log level"`
	Metrics  bool   `optional:"" help:"Print metrics in the Prometheus text format on exit"`
	Dump     bool   `optional:"" help:"Dump results as Go structures"`

	Identify identifyCmd `cmd:"" help:"Identify the device behind a SCSI generic node"`
	Exec     execCmd     `cmd:"" help:"Issue a single ATA command"`
	CDB      cdbCmd      `cmd:"" name:"cdb" help:"Print the ATA PASS-THROUGH CDB of a command without issuing it"`
	Batch    batchCmd    `cmd:"" help:"Issue the commands of a batch file, queueing FPDMA commands"`
}

func parseSize(s string) sat.Size {
	if s == "auto" {
		return sat.SizeAuto
	}
	n, _ := strconv.Atoi(s)
	return sat.Size(n)
}

// Run executes when the identify command is invoked
func (t *identifyCmd) Run(ctx *runContext) error {
	d, err := t.Open()
	if err != nil {
		return err
	}
	defer d.Close()

	id, err := d.Identify()
	if err != nil {
		return fmt.Errorf("Identify() failed: %v", err)
	}
	ctx.drives.add(t.Device, id)
	defer ctx.flushMetrics()
	if ctx.dump {
		spew.Fdump(ctx.out, id)
		return nil
	}
	fmt.Fprintf(ctx.out, "%s: %s\n", t.Device, id)
	return nil
}

// Run executes when the exec command is invoked
func (t *execCmd) Run(ctx *runContext) error {
	cmd, err := t.Build()
	if err != nil {
		return err
	}
	if cmd.Protocol().Direction() == ata.DirectionOut {
		ok, err := ctx.confirmed(t.Yes, fmt.Sprintf("Command %#02x writes %d bytes to %s.", cmd.Opcode(), cmd.TransferLength(), t.Device))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("refusing to issue data-out command %#02x without --yes", cmd.Opcode())
		}
	}

	d, err := t.Open()
	if err != nil {
		return err
	}
	defer d.Close()

	e, err := passthrough.New(d,
		passthrough.WithTimeout(t.Timeout),
		passthrough.WithCDBSize(parseSize(t.Size)),
		passthrough.WithCheckCondition(t.CkCond),
		passthrough.WithLogger(log.WithField("device", t.Device)),
		passthrough.WithRegisterer(ctx.reg))
	if err != nil {
		return err
	}
	defer e.Close()
	defer ctx.flushMetrics()

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := e.Submit(sigctx, cmd)
	if err != nil {
		return err
	}
	if ctx.dump {
		spew.Fdump(ctx.out, res)
		return nil
	}
	if res.HasStatus {
		fmt.Fprintf(os.Stderr, "ATA %s\n", res.Status)
	}
	data := transferred(res)
	if len(data) == 0 {
		return nil
	}
	if t.Out != "" {
		return os.WriteFile(t.Out, data, 0o600)
	}
	return writeData(ctx.out, data)
}

// transferred returns the part of the data-in buffer the device filled.
func transferred(res *passthrough.Result) []byte {
	n := len(res.Data) - int(res.DinResid)
	if n < 0 {
		n = 0
	}
	if n < len(res.Data) {
		log.Warnf("Short transfer, %d of %d bytes received", n, len(res.Data))
	}
	return res.Data[:n]
}

// writeData prints data as a hex dump on a terminal and raw otherwise.
func writeData(w io.Writer, data []byte) error {
	if f, ok := w.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		_, err := w.Write(data)
		return err
	}
	_, err := io.WriteString(w, hex.Dump(data))
	return err
}

// Run executes when the cdb command is invoked
func (t *cdbCmd) Run(ctx *runContext) error {
	cmd, err := t.Build()
	if err != nil {
		return err
	}
	cdb, err := sat.EncodeFor(cmd, sat.Options{
		Size:           parseSize(t.Size),
		CheckCondition: t.CkCond,
	})
	if err != nil {
		return err
	}
	if ctx.dump {
		spew.Fdump(ctx.out, cdb.Bytes())
		return nil
	}
	fmt.Fprintln(ctx.out, cdb)
	return nil
}

// Run executes when the batch command is invoked
func (t *batchCmd) Run(ctx *runContext) error {
	f, err := os.Open(t.File)
	if err != nil {
		return err
	}
	cmds, err := cmdutil.LoadBatch(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %v", t.File, err)
	}
	writes := 0
	for _, cmd := range cmds {
		if cmd.Protocol().Direction() == ata.DirectionOut {
			writes++
		}
	}
	if writes > 0 {
		ok, err := ctx.confirmed(t.Yes, fmt.Sprintf("%d commands of the batch write to %s.", writes, t.Device))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%d commands are data-out, refusing to run the batch without --yes", writes)
		}
	}

	d, err := t.Open()
	if err != nil {
		return err
	}
	defer d.Close()

	id, err := d.Identify()
	if err == nil {
		ctx.drives.add(t.Device, id)
	}
	depth := t.QueueDepth
	if depth == 0 {
		depth = queueDepth(id, err)
	}

	logger := log.WithField("device", t.Device)
	e, err := passthrough.New(d,
		passthrough.WithQueueDepth(depth),
		passthrough.WithTimeout(t.Timeout),
		passthrough.WithCDBSize(parseSize(t.Size)),
		passthrough.WithCheckCondition(t.CkCond),
		passthrough.WithLogger(logger),
		passthrough.WithRegisterer(ctx.reg))
	if err != nil {
		return err
	}
	defer e.Close()
	defer ctx.flushMetrics()

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	results := e.SubmitBatch(sigctx, cmds)
	logger.WithField("elapsed", time.Since(start)).Debug("Batch completed")

	if ctx.dump {
		spew.Fdump(ctx.out, results)
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(ctx.out, "%3d  %-40s  error: %v\n", r.Index, cmds[r.Index], r.Err)
			continue
		}
		line := fmt.Sprintf("%3d  %-40s  ok %v", r.Index, r.Result.Command, r.Result.Duration)
		if r.Result.Queued {
			line += fmt.Sprintf(" tag=%d", r.Result.Tag)
		}
		if r.Result.DinResid != 0 || r.Result.DoutResid != 0 {
			line += fmt.Sprintf(" resid=%d/%d", r.Result.DinResid, r.Result.DoutResid)
		}
		if r.Result.HasStatus {
			line += " " + r.Result.Status.String()
		}
		fmt.Fprintln(ctx.out, line)
	}
	if q := e.Tags().Quarantined(); q > 0 {
		logger.Warnf("%d NCQ tags left quarantined, the device may need a reset", q)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d commands failed", failed, len(cmds))
	}
	return nil
}

// queueDepth returns the NCQ depth reported by IDENTIFY DEVICE, or the
// maximum when the device could not be identified as ATA.
func queueDepth(id *drive.Identity, err error) int {
	if err != nil || id.Protocol != "SATA" {
		log.WithError(err).Warnf("Unable to read the queue depth, assuming %d", ncq.MaxDepth)
		return ncq.MaxDepth
	}
	if !id.NCQ {
		return 1
	}
	return id.QueueDepth
}

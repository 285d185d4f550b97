// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Submits ATA commands to a SCSI generic device through ATA PASS-THROUGH,
// coordinating NCQ tags between concurrent FPDMA submissions.

package passthrough

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/ncq"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/sat"
)

var ErrClosed = errors.New("executor is closed")

// execFn issues one SG_IO request. Replaced in tests.
var execFn = sgio.Exec

// Result is a command that completed with good status.
type Result struct {
	// Command as sent, including the NCQ tag for FPDMA commands.
	Command *ata.Command
	CDB     sat.CDB
	Tag     ncq.Tag
	Queued  bool
	// Data is the data-in buffer, nil for non-data and data-out commands.
	// Only the first len(Data)-DinResid bytes were transferred.
	Data     []byte
	Sense    []byte
	Duration time.Duration
	// Residual byte counts reported by the driver.
	DinResid  int32
	DoutResid int32

	DriverStatus    uint32
	TransportStatus uint32
	// DeviceStatus is CHECK CONDITION when the SATL returned the ATA
	// registers in the sense data.
	DeviceStatus uint32
	// Status holds the ATA output registers when the SATL returned them,
	// see WithCheckCondition.
	Status    sat.StatusReturn
	HasStatus bool
}

type Executor struct {
	fd    drive.FdIntf
	iface sgio.Interface
	tags  *ncq.Allocator

	depth      int
	timeout    time.Duration
	senseLen   int
	encode     sat.Options
	backoff    time.Duration
	maxBackoff time.Duration

	log     *log.Entry
	reg     prometheus.Registerer
	metrics *metrics

	// Queued commands hold mu shared, everything else exclusive, so that
	// a non-queued command never overlaps outstanding NCQ commands.
	mu     sync.RWMutex
	closed atomic.Bool
	owner  atomic.Uint64
}

// New returns an Executor submitting on fd. The handle stays owned by the
// caller and is not closed by the Executor.
func New(fd drive.FdIntf, opts ...Option) (*Executor, error) {
	e := &Executor{
		fd:         fd,
		iface:      drive.InterfaceOf(fd),
		depth:      ncq.MaxDepth,
		timeout:    sgio.DEFAULT_TIMEOUT * time.Millisecond,
		senseLen:   sgio.DEFAULT_SENSE_LEN,
		backoff:    time.Millisecond,
		maxBackoff: 100 * time.Millisecond,
		log:        log.NewEntry(log.StandardLogger()),
	}
	for _, o := range opts {
		o(e)
	}
	if e.timeout <= 0 {
		return nil, fmt.Errorf("invalid command timeout %v", e.timeout)
	}
	if e.backoff <= 0 || e.maxBackoff < e.backoff {
		return nil, fmt.Errorf("invalid backoff %v..%v", e.backoff, e.maxBackoff)
	}
	tags, err := ncq.NewAllocator(e.depth)
	if err != nil {
		return nil, err
	}
	e.tags = tags
	e.metrics = newMetrics(tags)
	if e.reg != nil {
		if err := e.metrics.register(e.reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	e.log = e.log.WithField("interface", e.iface.String())
	return e, nil
}

// Tags exposes the NCQ tag allocator, mainly for inspection.
func (e *Executor) Tags() *ncq.Allocator {
	return e.tags
}

// Submit encodes cmd, issues it and decodes the completion.
//
// FPDMA commands run concurrently with other FPDMA commands, each under its
// own NCQ tag; *ncq.TagExhaustionError is returned when none is free. All
// other commands are serialized. A timed out FPDMA command leaves its tag
// quarantined until ResolveTags is called.
//
// The context is checked before the command is issued; the SG_IO call
// itself cannot be interrupted and is bounded by the command timeout.
func (e *Executor) Submit(ctx context.Context, cmd *ata.Command) (*Result, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cmd.Protocol().IsQueued() {
		return e.submitQueued(ctx, cmd)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.issue(ctx, cmd, nil)
}

func (e *Executor) submitQueued(ctx context.Context, cmd *ata.Command) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return nil, ErrClosed
	}

	tag, err := e.tags.Acquire(e.owner.Add(1))
	if err != nil {
		return nil, err
	}
	tagged, err := cmd.WithTag(uint8(tag))
	if err != nil {
		e.release(tag)
		return nil, err
	}

	res, err := e.issue(ctx, tagged, &tag)
	if tagStateUnknown(err) {
		if qerr := e.tags.Quarantine(tag); qerr != nil {
			e.log.WithError(qerr).WithField("tag", tag).Error("Failed to quarantine NCQ tag")
		} else {
			e.log.WithError(err).WithField("tag", tag).Warn("Command outcome unknown, NCQ tag quarantined until the device is reset")
		}
	} else {
		e.release(tag)
	}
	return res, err
}

// tagStateUnknown reports whether a command may still be outstanding on the
// device after err.
func tagStateUnknown(err error) bool {
	var terr *sgio.TimeoutError
	return errors.As(err, &terr) || errors.Is(err, unix.EINTR)
}

func (e *Executor) release(tag ncq.Tag) {
	if err := e.tags.Release(tag); err != nil {
		e.log.WithError(err).WithField("tag", tag).Error("Failed to release NCQ tag")
	}
}

func (e *Executor) issue(ctx context.Context, cmd *ata.Command, tag *ncq.Tag) (*Result, error) {
	protocol := cmd.Protocol().String()
	cdb, err := sat.EncodeFor(cmd, e.encode)
	if err != nil {
		e.metrics.observe(protocol, outcomeInvalid, 0)
		return nil, err
	}

	req := &sgio.Request{
		CDB:      cdb.Bytes(),
		SenseLen: e.senseLen,
		Timeout:  e.timeout,
	}
	switch cmd.Protocol().Direction() {
	case ata.DirectionIn:
		req.Direction = sgio.CDBFromDevice
		req.Data = cmd.Data()
		if req.Data == nil {
			req.Data = make([]byte, cmd.TransferLength())
		}
	case ata.DirectionOut:
		req.Direction = sgio.CDBToDevice
		req.Data = cmd.Data()
	default:
		req.Direction = sgio.CDBNone
	}

	l := e.log.WithFields(log.Fields{
		"command":  fmt.Sprintf("%#02x", cmd.Opcode()),
		"protocol": protocol,
		"cdb":      cdb.String(),
	})
	if tag != nil {
		req.Tag = uint64(*tag)
		l = l.WithField("tag", *tag)
	}

	if err := ctx.Err(); err != nil {
		e.metrics.observe(protocol, outcomeCanceled, 0)
		return nil, err
	}
	l.Debug("Submitting command")
	c, err := execFn(e.fd.Fd(), e.iface, req)
	runtime.KeepAlive(e.fd)

	var dur time.Duration
	if c != nil {
		dur = c.Duration
	}
	e.metrics.observe(protocol, outcome(err), dur)
	if err != nil {
		l.WithError(err).Debug("Command failed")
		return nil, err
	}

	res := &Result{
		Command:  cmd,
		CDB:      cdb,
		Queued:   tag != nil,
		Data:     c.Data,
		Sense:    c.Sense,
		Duration: c.Duration,

		DinResid:        c.DinResid,
		DoutResid:       c.DoutResid,
		DriverStatus:    c.DriverStatus,
		TransportStatus: c.TransportStatus,
		DeviceStatus:    c.DeviceStatus,
	}
	if tag != nil {
		res.Tag = *tag
	}
	res.Status, res.HasStatus = sat.ParseStatusReturn(c.Sense)
	l = l.WithField("duration", c.Duration)
	if c.DinResid != 0 || c.DoutResid != 0 {
		l = l.WithFields(log.Fields{"din_resid": c.DinResid, "dout_resid": c.DoutResid})
	}
	l.Debug("Command completed")
	return res, nil
}

func outcome(err error) string {
	var (
		terr *sgio.TimeoutError
		derr *sgio.DeviceError
		xerr *sgio.TransportError
	)
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &terr):
		return outcomeTimeout
	case errors.As(err, &derr):
		return outcomeDevice
	case errors.As(err, &xerr):
		return outcomeTransport
	}
	return outcomeInvalid
}

// ResolveTags returns quarantined NCQ tags to the pool. Call it only after
// the device has been reset, when no timed out command can still complete.
func (e *Executor) ResolveTags() []ncq.Tag {
	e.mu.Lock()
	defer e.mu.Unlock()
	tags := e.tags.ResolveAll()
	if len(tags) > 0 {
		e.log.WithField("tags", tags).Info("Resolved quarantined NCQ tags")
	}
	return tags
}

// Close waits for outstanding commands and rejects new ones. The device
// handle is left open.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Swap(true) {
		return ErrClosed
	}
	if e.reg != nil {
		e.reg.Unregister(e.metrics.commands)
		e.reg.Unregister(e.metrics.duration)
		e.reg.Unregister(e.metrics.tags)
	}
	return nil
}

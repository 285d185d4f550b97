// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package passthrough

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/sat"
)

type Option func(e *Executor)

// WithTimeout sets the per command SG_IO timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithQueueDepth sets the number of NCQ tags, usually IDENTIFY DEVICE word
// 75 plus one.
func WithQueueDepth(n int) Option {
	return func(e *Executor) {
		e.depth = n
	}
}

func WithSenseLength(n int) Option {
	return func(e *Executor) {
		e.senseLen = n
	}
}

// WithCDBSize forces the ATA PASS-THROUGH form. The default picks the
// smallest form able to carry each command.
func WithCDBSize(s sat.Size) Option {
	return func(e *Executor) {
		e.encode.Size = s
	}
}

// WithCheckCondition sets CK_COND so that the ATA output registers are
// returned in Result.Status.
func WithCheckCondition(ck bool) Option {
	return func(e *Executor) {
		e.encode.CheckCondition = ck
	}
}

func WithLogger(l *log.Entry) Option {
	return func(e *Executor) {
		e.log = l
	}
}

// WithRegisterer registers the executor metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(e *Executor) {
		e.reg = r
	}
}

// WithInterface overrides the SG_IO layout derived from the device handle.
func WithInterface(iface sgio.Interface) Option {
	return func(e *Executor) {
		e.iface = iface
	}
}

// WithBackoff sets the initial and maximum delay between NCQ tag
// acquisition attempts in SubmitBatch.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(e *Executor) {
		e.backoff = initial
		e.maxBackoff = maxDelay
	}
}

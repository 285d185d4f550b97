// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package passthrough

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/ncq"
)

// BatchResult is the outcome of one command of a batch.
type BatchResult struct {
	Index  int
	Result *Result
	Err    error
}

// SubmitBatch submits cmds from a pool of workers sized to the queue depth
// and waits for all of them. Results are returned in input order, although
// the device may complete queued commands in any order.
//
// A worker that finds no free NCQ tag backs off and retries until a tag is
// released or ctx is done. Device and transport failures are reported per
// command and never retried.
func (e *Executor) SubmitBatch(ctx context.Context, cmds []*ata.Command) []BatchResult {
	results := make([]BatchResult, len(cmds))
	workers := e.tags.Depth()
	if workers > len(cmds) {
		workers = len(cmds)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := e.submitWithBackoff(ctx, cmds[i])
				results[i] = BatchResult{Index: i, Result: res, Err: err}
			}
		}()
	}
	for i := range cmds {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (e *Executor) submitWithBackoff(ctx context.Context, cmd *ata.Command) (*Result, error) {
	delay := e.backoff
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		res, err := e.Submit(ctx, cmd)
		var exh *ncq.TagExhaustionError
		if !errors.As(err, &exh) {
			return res, err
		}
		if exh.InUse == 0 {
			// Every tag is quarantined, only ResolveTags can help.
			return nil, err
		}

		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for an NCQ tag: %w", ctx.Err())
		case <-timer.C:
		}
		delay *= 2
		if delay > e.maxBackoff {
			delay = e.maxBackoff
		}
	}
}

// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Native Command Queuing tag bookkeeping

package ncq

import (
	"fmt"
	"sync"
)

// MaxDepth is the number of tags addressable by count bits 7:3.
const MaxDepth = 32

// Tag identifies an outstanding FPDMA command.
type Tag uint8

type State int

const (
	StateFree State = iota
	StateInUse
	StateQuarantined
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateInUse:
		return "in-use"
	case StateQuarantined:
		return "quarantined"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TagExhaustionError is returned by Acquire when no tag is free.
type TagExhaustionError struct {
	Depth       int
	InUse       int
	Quarantined int
}

func (e *TagExhaustionError) Error() string {
	return fmt.Sprintf("all %d NCQ tags busy (%d in use, %d quarantined)", e.Depth, e.InUse, e.Quarantined)
}

type slot struct {
	state State
	owner uint64
}

// Allocator hands out tags 0..depth-1. A tag is owned by exactly one
// submission between Acquire and Release. A tag whose command timed out is
// quarantined until the caller has reset the device and calls Resolve.
type Allocator struct {
	mu          sync.Mutex
	slots       []slot
	inUse       int
	quarantined int
}

func NewAllocator(depth int) (*Allocator, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("queue depth %d out of range 1..%d", depth, MaxDepth)
	}
	return &Allocator{slots: make([]slot, depth)}, nil
}

func (a *Allocator) Depth() int {
	return len(a.slots)
}

// Acquire reserves the lowest free tag for owner.
func (a *Allocator) Acquire(owner uint64) (Tag, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.slots {
		if a.slots[i].state == StateFree {
			a.slots[i] = slot{state: StateInUse, owner: owner}
			a.inUse++
			return Tag(i), nil
		}
	}
	return 0, &TagExhaustionError{Depth: len(a.slots), InUse: a.inUse, Quarantined: a.quarantined}
}

// Release returns an in-use tag to the pool.
func (a *Allocator) Release(tag Tag) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(tag)
	if err != nil {
		return err
	}
	if s.state != StateInUse {
		return fmt.Errorf("release of NCQ tag %d in state %v", tag, s.state)
	}
	*s = slot{}
	a.inUse--
	return nil
}

// Quarantine marks an in-use tag as unusable. The device may still complete
// the command that held it.
func (a *Allocator) Quarantine(tag Tag) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(tag)
	if err != nil {
		return err
	}
	if s.state != StateInUse {
		return fmt.Errorf("quarantine of NCQ tag %d in state %v", tag, s.state)
	}
	s.state = StateQuarantined
	a.inUse--
	a.quarantined++
	return nil
}

// Resolve frees a quarantined tag. Only call it once the command that held
// the tag can no longer complete, i.e. after a device or port reset.
func (a *Allocator) Resolve(tag Tag) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(tag)
	if err != nil {
		return err
	}
	if s.state != StateQuarantined {
		return fmt.Errorf("resolve of NCQ tag %d in state %v", tag, s.state)
	}
	*s = slot{}
	a.quarantined--
	return nil
}

// ResolveAll frees every quarantined tag and returns them.
func (a *Allocator) ResolveAll() []Tag {
	a.mu.Lock()
	defer a.mu.Unlock()
	var tags []Tag
	for i := range a.slots {
		if a.slots[i].state == StateQuarantined {
			a.slots[i] = slot{}
			tags = append(tags, Tag(i))
		}
	}
	a.quarantined = 0
	return tags
}

// State returns the state of tag, or an error for a tag beyond the
// allocator depth.
func (a *Allocator) State(tag Tag) (State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(tag)
	if err != nil {
		return 0, err
	}
	return s.state, nil
}

// Owner returns the owner of an in-use or quarantined tag.
func (a *Allocator) Owner(tag Tag) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(tag) >= len(a.slots) || a.slots[tag].state == StateFree {
		return 0, false
	}
	return a.slots[tag].owner, true
}

func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

func (a *Allocator) Quarantined() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quarantined
}

func (a *Allocator) slot(tag Tag) (*slot, error) {
	if int(tag) >= len(a.slots) {
		return nil, fmt.Errorf("NCQ tag %d out of range for depth %d", tag, len(a.slots))
	}
	return &a.slots[tag], nil
}

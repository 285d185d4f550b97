// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ncq

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllocator(t *testing.T) {
	testCases := []struct {
		name  string
		depth int
		ok    bool
	}{
		{"Zero", 0, false},
		{"One", 1, true},
		{"Full", 32, true},
		{"Too deep", 33, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewAllocator(tc.depth)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.depth, a.Depth())
		})
	}
}

func TestAcquireConcurrent(t *testing.T) {
	a, err := NewAllocator(MaxDepth)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		seen      = map[Tag]uint64{}
		exhausted int
	)
	for i := 0; i < MaxDepth+1; i++ {
		wg.Add(1)
		go func(owner uint64) {
			defer wg.Done()
			tag, err := a.Acquire(owner)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var exh *TagExhaustionError
				if errors.As(err, &exh) {
					exhausted++
				}
				return
			}
			_, dup := seen[tag]
			assert.False(t, dup, "tag %d handed out twice", tag)
			seen[tag] = owner
		}(uint64(i))
	}
	wg.Wait()

	assert.Len(t, seen, MaxDepth)
	assert.Equal(t, 1, exhausted)
	assert.Equal(t, MaxDepth, a.InUse())
	for tag, owner := range seen {
		got, ok := a.Owner(tag)
		assert.True(t, ok)
		assert.Equal(t, owner, got)
	}
}

func TestReleaseReacquire(t *testing.T) {
	a, err := NewAllocator(2)
	require.NoError(t, err)

	t0, err := a.Acquire(10)
	require.NoError(t, err)
	t1, err := a.Acquire(11)
	require.NoError(t, err)
	assert.Equal(t, Tag(0), t0)
	assert.Equal(t, Tag(1), t1)

	_, err = a.Acquire(12)
	var exh *TagExhaustionError
	require.True(t, errors.As(err, &exh))
	assert.Equal(t, 2, exh.Depth)
	assert.Equal(t, 2, exh.InUse)

	require.NoError(t, a.Release(t0))
	assert.Error(t, a.Release(t0), "double release")
	assert.Error(t, a.Release(5), "out of range")

	got, err := a.Acquire(13)
	require.NoError(t, err)
	assert.Equal(t, t0, got)
	owner, _ := a.Owner(got)
	assert.Equal(t, uint64(13), owner)
}

func assertState(t *testing.T, a *Allocator, tag Tag, want State) {
	t.Helper()
	got, err := a.State(tag)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStateOutOfRange(t *testing.T) {
	a, err := NewAllocator(4)
	require.NoError(t, err)

	testCases := []struct {
		name string
		tag  Tag
		ok   bool
	}{
		{"Last tag", 3, true},
		{"Beyond depth", 4, false},
		{"Beyond max depth", MaxDepth, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.State(tc.tag)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestQuarantine(t *testing.T) {
	a, err := NewAllocator(2)
	require.NoError(t, err)

	tag, err := a.Acquire(1)
	require.NoError(t, err)
	require.NoError(t, a.Quarantine(tag))
	assertState(t, a, tag, StateQuarantined)
	assert.Equal(t, 0, a.InUse())
	assert.Equal(t, 1, a.Quarantined())
	assert.Error(t, a.Release(tag), "quarantined tags are not released")
	assert.Error(t, a.Quarantine(tag))

	other, err := a.Acquire(2)
	require.NoError(t, err)
	assert.NotEqual(t, tag, other)

	_, err = a.Acquire(3)
	var exh *TagExhaustionError
	require.True(t, errors.As(err, &exh))
	assert.Equal(t, 1, exh.Quarantined)

	require.NoError(t, a.Resolve(tag))
	assert.Error(t, a.Resolve(tag))
	assertState(t, a, tag, StateFree)

	got, err := a.Acquire(4)
	require.NoError(t, err)
	assert.Equal(t, tag, got)
}

func TestResolveAll(t *testing.T) {
	a, err := NewAllocator(4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := a.Acquire(uint64(i))
		require.NoError(t, err)
	}
	require.NoError(t, a.Quarantine(1))
	require.NoError(t, a.Quarantine(3))

	assert.Equal(t, []Tag{1, 3}, a.ResolveAll())
	assert.Equal(t, 0, a.Quarantined())
	assert.Equal(t, 2, a.InUse())
	assert.Nil(t, a.ResolveAll())
}

// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatusReturn(t *testing.T) {
	testCases := []struct {
		name  string
		sense string
		want  StatusReturn
		ok    bool
	}{
		{"Descriptor",
			"72 01 00 1d 00 00 00 0e 09 0c 01 04 00 01 03 06 02 05 01 04 40 51",
			StatusReturn{Extend: true, Error: 0x04, Count: 0x0001, LBA: 0x0102_0304_0506, Device: 0x40, Status: 0x51},
			true},
		{"Descriptor after other",
			"72 01 00 1d 00 00 00 12 02 02 00 00 09 0c 00 00 00 08 00 00 00 4f 00 c2 00 50",
			StatusReturn{Count: 0x0008, LBA: 0xc24f00, Status: 0x50},
			true},
		{"Fixed",
			"70 00 01 00 50 40 08 00 80 4f c2 00 00 1d",
			StatusReturn{Extend: true, Status: 0x50, Device: 0x40, Count: 0x08, LBA: 0x00c24f},
			true},
		{"Fixed other ASC", "70 00 05 00 00 00 00 00 00 00 00 00 24 00", StatusReturn{}, false},
		{"Descriptor without ATA", "72 05 24 00 00 00 00 00", StatusReturn{}, false},
		{"Short", "72 00", StatusReturn{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseStatusReturn(unhex(tc.sense))
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandRange(t *testing.T) {
	testCases := []struct {
		name  string
		p     Params
		field string
	}{
		{"LBA48 max", Params{Width: Width48, LBA: MaxLBA48}, ""},
		{"LBA48 overflow", Params{Width: Width48, LBA: 0x1_0000_0000_0000}, "lba"},
		{"LBA28 max", Params{Width: Width28, LBA: MaxLBA28}, ""},
		{"LBA28 overflow", Params{Width: Width28, LBA: 0x1000_0000}, "lba"},
		{"Feature28", Params{Width: Width28, Feature: 0x100}, "feature"},
		{"Count28", Params{Width: Width28, Count: 0x100}, "count"},
		{"Feature48", Params{Width: Width48, Feature: 0x10000}, "feature"},
		{"Count48", Params{Width: Width48, Count: 0x10000}, "count"},
		{"ICC28", Params{Width: Width28, ICC: 1}, "icc"},
		{"Aux28", Params{Width: Width28, Auxiliary: 1}, "auxiliary"},
		{"ICC48", Params{Width: Width48, ICC: 0x100}, "icc"},
		{"Aux48 max", Params{Width: Width48, Auxiliary: 0xFFFF_FFFF}, ""},
		{"Aux48", Params{Width: Width48, Auxiliary: 0x1_0000_0000}, "auxiliary"},
		{"Device", Params{Width: Width48, Device: 0x100}, "device"},
		{"Command", Params{Width: Width48, Command: 0x100}, "command"},
		{"Width", Params{Width: 32}, "width"},
		{"Device nibble conflict", Params{Width: Width28, LBA: 0x0200_0000, Device: 0x41}, "device"},
		{"Device nibble match", Params{Width: Width28, LBA: 0x0200_0000, Device: 0x42}, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewCommand(tc.p)
			if tc.field == "" {
				require.NoError(t, err)
				assert.NotNil(t, c)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
			assert.Nil(t, c)
		})
	}
}

func TestNewCommandProtocol(t *testing.T) {
	for _, p := range []Protocol{ProtocolPIO, ProtocolDMA, ProtocolFPDMA} {
		t.Run(p.String(), func(t *testing.T) {
			_, err := NewCommand(Params{Width: Width48, Protocol: p, Feature: 1, Count: 1, TransferLength: 512, Block512: true})
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "protocol", verr.Field)
		})
	}

	_, err := NewCommand(Params{Width: Width28, Protocol: ProtocolFPDMARead, Feature: 8, TransferLength: 4096, Block512: true})
	assert.Error(t, err, "FPDMA in 28-bit mode")
}

func TestNewCommandTransfer(t *testing.T) {
	testCases := []struct {
		name  string
		p     Params
		field string
	}{
		{"Non-data", Params{Width: Width28, Protocol: ProtocolNonData}, ""},
		{"Non-data length", Params{Width: Width28, Protocol: ProtocolNonData, TransferLength: 512}, "transfer_length"},
		{"PIO read one sector", Params{Width: Width28, Protocol: ProtocolPIORead, Count: 1, TransferLength: 512, Block512: true}, ""},
		{"PIO read mismatch", Params{Width: Width28, Protocol: ProtocolPIORead, Count: 2, TransferLength: 512, Block512: true}, "transfer_length"},
		{"28-bit zero count", Params{Width: Width28, Protocol: ProtocolDMARead, Count: 0, TransferLength: 256 * 512, Block512: true}, ""},
		{"FPDMA uses feature", Params{Width: Width48, Protocol: ProtocolFPDMARead, Feature: 8, TransferLength: 4096, Block512: true}, ""},
		{"4K sectors", Params{Width: Width48, Protocol: ProtocolDMARead, Count: 2, TransferLength: 8192, SectorSize: 4096}, ""},
		{"Missing sector size", Params{Width: Width48, Protocol: ProtocolDMARead, Count: 2, TransferLength: 8192}, "sector_size"},
		{"Write without data", Params{Width: Width48, Protocol: ProtocolDMAWrite, Count: 1, TransferLength: 512, Block512: true}, "data"},
		{"Write with data", Params{Width: Width48, Protocol: ProtocolDMAWrite, Count: 1, TransferLength: 512, Block512: true, Data: make([]byte, 512)}, ""},
		{"Read short buffer", Params{Width: Width48, Protocol: ProtocolPIORead, Count: 1, TransferLength: 512, Block512: true, Data: make([]byte, 100)}, "data"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCommand(tc.p)
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestDeviceByte(t *testing.T) {
	c, err := NewCommand(Params{Width: Width28, LBA: 0x0ABC_DEF0, Device: 0xE0})
	require.NoError(t, err)
	assert.Equal(t, uint8(0xEA), c.DeviceByte())

	c, err = NewCommand(Params{Width: Width48, LBA: 0x0ABC_DEF0, Device: 0x40})
	require.NoError(t, err)
	assert.Equal(t, uint8(0x40), c.DeviceByte())
}

func TestWithTag(t *testing.T) {
	c, err := NewCommand(Params{Width: Width48, Protocol: ProtocolFPDMARead, Feature: 8, Count: 0x8001, TransferLength: 4096, Block512: true})
	require.NoError(t, err)

	tagged, err := c.WithTag(31)
	require.NoError(t, err)
	assert.Equal(t, uint8(31), tagged.Tag())
	assert.Equal(t, uint16(0x80F9), tagged.Count())
	assert.Equal(t, uint8(0), c.Tag(), "original is not modified")

	_, err = c.WithTag(32)
	assert.Error(t, err)

	nd, err := NewCommand(Params{Width: Width48})
	require.NoError(t, err)
	_, err = nd.WithTag(1)
	assert.Error(t, err)
}

func TestParseProtocol(t *testing.T) {
	for p, name := range protocolNames {
		got, err := ParseProtocol(name)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParseProtocol("udma")
	assert.Error(t, err)
}

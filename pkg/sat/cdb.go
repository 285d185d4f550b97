// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Implements the ATA PASS-THROUGH CDB formats of SCSI / ATA Translation (SAT-4).

package sat

import (
	"encoding/hex"
	"fmt"
)

const (
	SCSI_ATA_PASSTHRU_12 = 0xa1
	SCSI_ATA_PASSTHRU_16 = 0x85
	SCSI_ATA_PASSTHRU_32 = 0x7f // variable length CDB

	ATA_PASSTHRU_32_ADDITIONAL_LENGTH = 0x18
	ATA_PASSTHRU_32_SERVICE_ACTION    = 0x1ff0
)

// ATA PASS-THROUGH protocol field values
const (
	PROTO_HARD_RESET        = 0x0
	PROTO_SRST              = 0x1
	PROTO_NON_DATA          = 0x3
	PROTO_PIO_DATA_IN       = 0x4
	PROTO_PIO_DATA_OUT      = 0x5
	PROTO_DMA               = 0x6
	PROTO_DMA_QUEUED        = 0x7
	PROTO_DEVICE_DIAGNOSTIC = 0x8
	PROTO_DEVICE_RESET      = 0x9
	PROTO_UDMA_DATA_IN      = 0xa
	PROTO_UDMA_DATA_OUT     = 0xb
	PROTO_FPDMA             = 0xc
	PROTO_RETURN_RESPONSE   = 0xf
)

// T_LENGTH field values
const (
	TLengthNone    = 0x0
	TLengthFeature = 0x1
	TLengthCount   = 0x2
	TLengthTPSIU   = 0x3
)

// Size is the length in bytes of an ATA PASS-THROUGH CDB.
type Size int

const (
	SizeAuto Size = 0
	Size12   Size = 12
	Size16   Size = 16
	Size32   Size = 32
)

// CDB is an encoded ATA PASS-THROUGH command descriptor block.
type CDB struct {
	buf  [32]byte
	size Size
}

// Bytes returns a copy of the CDB.
func (c CDB) Bytes() []byte {
	b := make([]byte, c.size)
	copy(b, c.buf[:c.size])
	return b
}

func (c CDB) Len() int   { return int(c.size) }
func (c CDB) Size() Size { return c.size }

// Opcode returns the SCSI operation code.
func (c CDB) Opcode() byte { return c.buf[0] }

// Protocol returns the ATA PASS-THROUGH protocol field.
func (c CDB) Protocol() uint8 {
	if c.size == Size32 {
		return (c.buf[10] >> 1) & 0x0f
	}
	return (c.buf[1] >> 1) & 0x0f
}

func (c CDB) String() string {
	return hex.EncodeToString(c.buf[:c.size])
}

// EncodingError is returned when a command cannot be represented in the
// requested CDB size.
type EncodingError struct {
	Size   Size
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode ATA PASS-THROUGH(%d): %s", e.Size, e.Reason)
}

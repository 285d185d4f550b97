// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sat

import (
	"fmt"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

// Options controls the parts of the CDB that are not derived from the ATA
// registers.
type Options struct {
	// Size selects the CDB format. SizeAuto picks the smallest format able
	// to carry the command.
	Size Size
	// CheckCondition (CK_COND) asks the SATL to return the ATA output
	// registers in the sense data even on success.
	CheckCondition bool
	// OffLine is the OFF_LINE field, 0..3.
	OffLine uint8
	// MultipleCount is the MULTIPLE_COUNT field of the 12 and 16 byte forms,
	// 0..7.
	MultipleCount uint8
	Control       byte
}

// ProtocolCode maps a logical protocol to the ATA PASS-THROUGH protocol field.
func ProtocolCode(p ata.Protocol) (uint8, error) {
	switch p.Class() {
	case ata.ClassNonData:
		return PROTO_NON_DATA, nil
	case ata.ClassPIO:
		switch p.Direction() {
		case ata.DirectionIn:
			return PROTO_PIO_DATA_IN, nil
		case ata.DirectionOut:
			return PROTO_PIO_DATA_OUT, nil
		}
	case ata.ClassDMA:
		if p.Direction() != ata.DirectionUnspecified {
			return PROTO_DMA, nil
		}
	case ata.ClassFPDMA:
		if p.Direction() != ata.DirectionUnspecified {
			return PROTO_FPDMA, nil
		}
	}
	return 0, fmt.Errorf("protocol %s has no ATA PASS-THROUGH protocol code", p)
}

// Encode returns the 32 byte ATA PASS-THROUGH CDB for cmd.
func Encode(cmd *ata.Command) (CDB, error) {
	return EncodeFor(cmd, Options{Size: Size32})
}

// EncodeFor returns the ATA PASS-THROUGH CDB for cmd in the format selected
// by opts.
func EncodeFor(cmd *ata.Command, opts Options) (CDB, error) {
	size := opts.Size
	if size == SizeAuto {
		size = smallestSize(cmd)
	}
	if opts.OffLine > 3 {
		return CDB{}, &EncodingError{Size: size, Reason: fmt.Sprintf("off_line %d out of range 0-3", opts.OffLine)}
	}
	if opts.MultipleCount > 7 {
		return CDB{}, &EncodingError{Size: size, Reason: fmt.Sprintf("multiple_count %d out of range 0-7", opts.MultipleCount)}
	}
	proto, err := ProtocolCode(cmd.Protocol())
	if err != nil {
		return CDB{}, &EncodingError{Size: size, Reason: err.Error()}
	}

	switch size {
	case Size12:
		if err := fitsLegacy(cmd, size); err != nil {
			return CDB{}, err
		}
		if cmd.Extended() {
			return CDB{}, &EncodingError{Size: size, Reason: "48-bit commands need the 16 or 32 byte form"}
		}
		return encode12(cmd, proto, opts), nil
	case Size16:
		if err := fitsLegacy(cmd, size); err != nil {
			return CDB{}, err
		}
		return encode16(cmd, proto, opts), nil
	case Size32:
		if opts.MultipleCount != 0 {
			return CDB{}, &EncodingError{Size: size, Reason: "multiple_count is not part of the 32 byte form"}
		}
		return encode32(cmd, proto, opts), nil
	}
	return CDB{}, &EncodingError{Size: size, Reason: "unknown CDB size"}
}

func smallestSize(cmd *ata.Command) Size {
	switch {
	case cmd.Protocol().IsQueued() || cmd.ICC() != 0 || cmd.Auxiliary() != 0:
		return Size32
	case cmd.Extended():
		return Size16
	}
	return Size12
}

// fitsLegacy checks the fields that only exist in the 32 byte form.
func fitsLegacy(cmd *ata.Command, size Size) error {
	if cmd.Protocol().IsQueued() {
		return &EncodingError{Size: size, Reason: fmt.Sprintf("%s needs the 32 byte form", cmd.Protocol())}
	}
	if cmd.ICC() != 0 {
		return &EncodingError{Size: size, Reason: "icc needs the 32 byte form"}
	}
	if cmd.Auxiliary() != 0 {
		return &EncodingError{Size: size, Reason: "auxiliary needs the 32 byte form"}
	}
	return nil
}

func flagsByte(cmd *ata.Command, opts Options) byte {
	var tType, tDir, bytBlok, tLength byte

	dir := cmd.Protocol().Direction()
	if dir == ata.DirectionIn {
		tDir = 1
	}
	if dir == ata.DirectionIn || dir == ata.DirectionOut {
		bytBlok = 1
		if !cmd.Block512() {
			tType = 1
		}
		tLength = TLengthCount
		if cmd.Protocol().IsQueued() {
			tLength = TLengthTPSIU
		}
	}
	var ck byte
	if opts.CheckCondition {
		ck = 1
	}
	return opts.OffLine<<6 | ck<<5 | tType<<4 | tDir<<3 | bytBlok<<2 | tLength
}

func extendBit(cmd *ata.Command) byte {
	if cmd.Extended() {
		return 1
	}
	return 0
}

func encode12(cmd *ata.Command, proto uint8, opts Options) CDB {
	c := CDB{size: Size12}
	lba := cmd.LBA()
	c.buf[0] = SCSI_ATA_PASSTHRU_12
	c.buf[1] = opts.MultipleCount<<5 | proto<<1
	c.buf[2] = flagsByte(cmd, opts)
	c.buf[3] = uint8(cmd.Feature())
	c.buf[4] = uint8(cmd.Count())
	c.buf[5] = uint8(lba)
	c.buf[6] = uint8(lba >> 8)
	c.buf[7] = uint8(lba >> 16)
	c.buf[8] = cmd.DeviceByte()
	c.buf[9] = cmd.Opcode()
	c.buf[11] = opts.Control
	return c
}

func encode16(cmd *ata.Command, proto uint8, opts Options) CDB {
	c := CDB{size: Size16}
	lba := cmd.LBA()
	c.buf[0] = SCSI_ATA_PASSTHRU_16
	c.buf[1] = opts.MultipleCount<<5 | proto<<1 | extendBit(cmd)
	c.buf[2] = flagsByte(cmd, opts)
	c.buf[4] = uint8(cmd.Feature())
	c.buf[6] = uint8(cmd.Count())
	c.buf[8] = uint8(lba)
	c.buf[10] = uint8(lba >> 8)
	c.buf[12] = uint8(lba >> 16)
	if cmd.Extended() {
		c.buf[3] = uint8(cmd.Feature() >> 8)
		c.buf[5] = uint8(cmd.Count() >> 8)
		c.buf[7] = uint8(lba >> 24)
		c.buf[9] = uint8(lba >> 32)
		c.buf[11] = uint8(lba >> 40)
	}
	c.buf[13] = cmd.DeviceByte()
	c.buf[14] = cmd.Opcode()
	c.buf[15] = opts.Control
	return c
}

func encode32(cmd *ata.Command, proto uint8, opts Options) CDB {
	c := CDB{size: Size32}
	lba := cmd.LBA()
	c.buf[0] = SCSI_ATA_PASSTHRU_32
	c.buf[1] = opts.Control
	c.buf[7] = ATA_PASSTHRU_32_ADDITIONAL_LENGTH
	c.buf[8] = uint8(ATA_PASSTHRU_32_SERVICE_ACTION >> 8)
	c.buf[9] = uint8(ATA_PASSTHRU_32_SERVICE_ACTION & 0xff)
	c.buf[10] = proto<<1 | extendBit(cmd)
	c.buf[11] = flagsByte(cmd, opts)
	c.buf[17] = uint8(lba >> 16)
	c.buf[18] = uint8(lba >> 8)
	c.buf[19] = uint8(lba)
	c.buf[21] = uint8(cmd.Feature())
	c.buf[23] = uint8(cmd.Count())
	if cmd.Extended() {
		c.buf[14] = uint8(lba >> 40)
		c.buf[15] = uint8(lba >> 32)
		c.buf[16] = uint8(lba >> 24)
		c.buf[20] = uint8(cmd.Feature() >> 8)
		c.buf[22] = uint8(cmd.Count() >> 8)
		c.buf[27] = cmd.ICC()
		aux := cmd.Auxiliary()
		c.buf[28] = uint8(aux >> 24)
		c.buf[29] = uint8(aux >> 16)
		c.buf[30] = uint8(aux >> 8)
		c.buf[31] = uint8(aux)
	}
	c.buf[24] = cmd.DeviceByte()
	c.buf[25] = cmd.Opcode()
	return c
}

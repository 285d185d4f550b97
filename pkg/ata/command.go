// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Implements the ATA register-level command model used for ATA PASS-THROUGH
// as described in ATA8-ACS and SAT-4.

package ata

import "fmt"

const (
	MaxLBA28 = 0x0FFF_FFFF
	MaxLBA48 = 0xFFFF_FFFF_FFFF

	// NCQ tags live in count bits 7:3 of READ/WRITE FPDMA QUEUED.
	MaxTags = 32

	tagShift = 3
	tagMask  = 0x1f << tagShift
)

// Params carries the raw register values of a command. Integer fields are
// wider than the registers so that out-of-range input is reported instead
// of being truncated by a conversion.
type Params struct {
	Feature   uint64
	Count     uint64
	LBA       uint64
	ICC       uint64
	Auxiliary uint64
	Device    uint64
	Command   uint64

	Protocol       Protocol
	TransferLength int
	// Block512 selects 512 byte transfer blocks, otherwise SectorSize is
	// used as the block size.
	Block512   bool
	SectorSize int
	Width      Width

	// Data is the data-out payload, or an optional caller owned data-in
	// buffer. It must be exactly TransferLength bytes.
	Data []byte
}

// Command is a validated ATA command. It cannot be modified after
// construction; WithTag derives a new Command.
type Command struct {
	feature   uint16
	count     uint16
	lba       uint64
	icc       uint8
	auxiliary uint32
	device    uint8
	command   uint8

	protocol       Protocol
	transferLength int
	block512       bool
	sectorSize     int
	width          Width
	data           []byte
}

// NewCommand validates p and returns the command it describes.
func NewCommand(p Params) (*Command, error) {
	w := p.Width
	switch w {
	case Width28:
		if p.Feature > 0xFF {
			return nil, rangeError("feature", p.Feature, 0xFF, w)
		}
		if p.Count > 0xFF {
			return nil, rangeError("count", p.Count, 0xFF, w)
		}
		if p.LBA > MaxLBA28 {
			return nil, rangeError("lba", p.LBA, MaxLBA28, w)
		}
		if p.ICC != 0 {
			return nil, rangeError("icc", p.ICC, 0, w)
		}
		if p.Auxiliary != 0 {
			return nil, rangeError("auxiliary", p.Auxiliary, 0, w)
		}
	case Width48:
		if p.Feature > 0xFFFF {
			return nil, rangeError("feature", p.Feature, 0xFFFF, w)
		}
		if p.Count > 0xFFFF {
			return nil, rangeError("count", p.Count, 0xFFFF, w)
		}
		if p.LBA > MaxLBA48 {
			return nil, rangeError("lba", p.LBA, MaxLBA48, w)
		}
		if p.ICC > 0xFF {
			return nil, rangeError("icc", p.ICC, 0xFF, w)
		}
		if p.Auxiliary > 0xFFFF_FFFF {
			return nil, rangeError("auxiliary", p.Auxiliary, 0xFFFF_FFFF, w)
		}
	default:
		return nil, invalid("width", uint64(w), w, "addressing width must be 28 or 48")
	}
	if p.Device > 0xFF {
		return nil, rangeError("device", p.Device, 0xFF, w)
	}
	if p.Command > 0xFF {
		return nil, rangeError("command", p.Command, 0xFF, w)
	}
	if w == Width28 {
		// LBA 27:24 travels in the device register low nibble.
		if nib := p.Device & 0x0F; nib != 0 && nib != (p.LBA>>24)&0x0F {
			return nil, invalid("device", p.Device, w,
				"low nibble %#x conflicts with lba bits 27:24 (%#x)", nib, (p.LBA>>24)&0x0F)
		}
	}

	dir := p.Protocol.Direction()
	if dir == DirectionUnspecified {
		return nil, invalid("protocol", uint64(p.Protocol), w,
			"%s has no transfer direction, use a read or write variant", p.Protocol)
	}
	if p.Protocol.IsQueued() && w != Width48 {
		return nil, invalid("protocol", uint64(p.Protocol), w, "%s requires 48-bit addressing", p.Protocol)
	}

	c := &Command{
		feature:        uint16(p.Feature),
		count:          uint16(p.Count),
		lba:            p.LBA,
		icc:            uint8(p.ICC),
		auxiliary:      uint32(p.Auxiliary),
		device:         uint8(p.Device),
		command:        uint8(p.Command),
		protocol:       p.Protocol,
		transferLength: p.TransferLength,
		block512:       p.Block512,
		sectorSize:     p.SectorSize,
		width:          w,
		data:           p.Data,
	}
	if err := c.validateTransfer(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Command) validateTransfer() error {
	w := c.width
	if c.transferLength < 0 {
		return invalid("transfer_length", 0, w, "negative length %d", c.transferLength)
	}
	if c.protocol.Direction() == DirectionNone {
		if c.transferLength != 0 {
			return invalid("transfer_length", uint64(c.transferLength), w, "must be 0 for a non-data command")
		}
		if len(c.data) != 0 {
			return invalid("data", uint64(len(c.data)), w, "non-data command cannot carry a buffer")
		}
		return nil
	}

	if !c.block512 && (c.sectorSize <= 0 || c.sectorSize%512 != 0) {
		return invalid("sector_size", uint64(c.sectorSize), w, "must be a positive multiple of 512 when block512 is unset")
	}
	want := c.Blocks() * c.BlockSize()
	if c.transferLength != want {
		return invalid("transfer_length", uint64(c.transferLength), w,
			"%d blocks of %d bytes require %d bytes", c.Blocks(), c.BlockSize(), want)
	}

	switch c.protocol.Direction() {
	case DirectionOut:
		if len(c.data) != c.transferLength {
			return invalid("data", uint64(len(c.data)), w, "data-out buffer must be %d bytes", c.transferLength)
		}
	case DirectionIn:
		if c.data != nil && len(c.data) != c.transferLength {
			return invalid("data", uint64(len(c.data)), w, "data-in buffer must be %d bytes", c.transferLength)
		}
	}
	return nil
}

// WithTag returns a copy of an FPDMA command carrying the NCQ tag in count
// bits 7:3. The remaining count bits (PRIO, RARC) are kept.
func (c *Command) WithTag(tag uint8) (*Command, error) {
	if !c.protocol.IsQueued() {
		return nil, fmt.Errorf("tag on %s command", c.protocol)
	}
	if tag >= MaxTags {
		return nil, rangeError("tag", uint64(tag), MaxTags-1, c.width)
	}
	n := *c
	n.count = c.count&^tagMask | uint16(tag)<<tagShift
	return &n, nil
}

// Tag returns the NCQ tag carried by an FPDMA command.
func (c *Command) Tag() uint8 {
	return uint8((c.count & tagMask) >> tagShift)
}

func (c *Command) Feature() uint16 { return c.feature }
func (c *Command) Count() uint16 { return c.count }
func (c *Command) LBA() uint64 { return c.lba }
func (c *Command) ICC() uint8 { return c.icc }
func (c *Command) Auxiliary() uint32 { return c.auxiliary }
func (c *Command) Device() uint8 { return c.device }
func (c *Command) Opcode() uint8 { return c.command }
func (c *Command) Protocol() Protocol { return c.protocol }
func (c *Command) Width() Width { return c.width }
func (c *Command) Extended() bool { return c.width == Width48 }
func (c *Command) TransferLength() int { return c.transferLength }
func (c *Command) Block512() bool { return c.block512 }

// Data returns the buffer attached at construction, possibly nil for
// data-in commands.
func (c *Command) Data() []byte { return c.data }

// DeviceByte returns the device register as sent to the drive. For 28-bit
// commands LBA 27:24 is packed into bits 3:0.
func (c *Command) DeviceByte() uint8 {
	if c.width == Width28 {
		return c.device&0xF0 | uint8(c.lba>>24)&0x0F
	}
	return c.device
}

// BlockSize is the size in bytes of one transfer block.
func (c *Command) BlockSize() int {
	if c.block512 {
		return 512
	}
	return c.sectorSize
}

// Blocks is the number of blocks transferred. FPDMA commands carry it in
// the feature register; a zero count means the register maximum plus one.
func (c *Command) Blocks() int {
	if c.protocol.Direction() == DirectionNone {
		return 0
	}
	n := int(c.count)
	if c.protocol.IsQueued() {
		n = int(c.feature)
	}
	if n == 0 {
		if c.width == Width28 {
			return 256
		}
		return 65536
	}
	return n
}

func (c *Command) String() string {
	return fmt.Sprintf("cmd=%#02x proto=%s width=%s feature=%#x count=%#x lba=%#x device=%#02x len=%d",
		c.command, c.protocol, c.width, c.feature, c.count, c.lba, c.device, c.transferLength)
}

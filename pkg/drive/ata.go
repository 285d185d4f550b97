// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
)

const IDENTIFY_LEN = 512

// ATA IDENTIFY DEVICE response, little endian words as in ACS-4 table 45.
type IdentifyDeviceResponse struct {
	_                 [20]byte
	Serial            [20]byte // words 10-19
	_                 [6]byte
	Firmware          [8]byte  // words 23-26
	Model             [40]byte // words 27-46
	_                 [26]byte
	LBA28Sectors      uint32 // words 60-61
	_                 [26]byte
	QueueDepthWord    uint16 // word 75
	SATACapabilities  uint16 // word 76
	_                 [12]byte
	CommandSet2       uint16 // word 83
	_                 [32]byte
	LBA48Sectors      uint64 // words 100-103
	_                 [4]byte
	SectorSizeInfo    uint16 // word 106
	_                 [20]byte
	LogicalSectorSize [2]uint16 // words 117-118, in words
	_                 [274]byte
}

func (id IdentifyDeviceResponse) String() string {
	return fmt.Sprintf("Serial=%s, Firmware=%s, Model=%s",
		strings.TrimSpace(sgio.ATAString(id.Serial[:])),
		strings.TrimSpace(sgio.ATAString(id.Firmware[:])),
		strings.TrimSpace(sgio.ATAString(id.Model[:])))
}

// NCQ reports Native Command Queuing support (word 76 bit 8).
func (id IdentifyDeviceResponse) NCQ() bool {
	return id.SATACapabilities != 0xffff && id.SATACapabilities&(1<<8) != 0
}

// QueueDepth is the maximum number of outstanding NCQ commands, or 1 when
// NCQ is not supported.
func (id IdentifyDeviceResponse) QueueDepth() int {
	if !id.NCQ() {
		return 1
	}
	return int(id.QueueDepthWord&0x1f) + 1
}

// LBA48 reports 48-bit Address feature set support (word 83 bit 10).
func (id IdentifyDeviceResponse) LBA48() bool {
	return id.CommandSet2&0xc000 == 0x4000 && id.CommandSet2&(1<<10) != 0
}

// Sectors is the number of user addressable logical sectors.
func (id IdentifyDeviceResponse) Sectors() uint64 {
	if id.LBA48() {
		return id.LBA48Sectors & ata.MaxLBA48
	}
	return uint64(id.LBA28Sectors & ata.MaxLBA28)
}

// SectorSize is the logical sector size in bytes.
func (id IdentifyDeviceResponse) SectorSize() int {
	// Word 106 is valid when bits 15:14 are 01b; bit 12 flags a logical
	// sector longer than 256 words.
	words := uint32(id.LogicalSectorSize[0]) | uint32(id.LogicalSectorSize[1])<<16
	if id.SectorSizeInfo&0xc000 == 0x4000 && id.SectorSizeInfo&(1<<12) != 0 && words != 0 {
		return int(words) * 2
	}
	return 512
}

// ParseIdentify decodes the data-in buffer of IDENTIFY DEVICE.
func ParseIdentify(buf []byte) (*IdentifyDeviceResponse, error) {
	if len(buf) < IDENTIFY_LEN {
		return nil, fmt.Errorf("IDENTIFY DEVICE data too short: %d bytes", len(buf))
	}
	var id IdentifyDeviceResponse
	if err := binary.Read(bytes.NewReader(buf[:IDENTIFY_LEN]), binary.LittleEndian, &id); err != nil {
		return nil, fmt.Errorf("failed to parse IDENTIFY DEVICE data: %v", err)
	}
	return &id, nil
}

// IdentifyCommand is IDENTIFY DEVICE as a PIO data-in command.
func IdentifyCommand() (*ata.Command, error) {
	return ata.NewCommand(ata.Params{
		Command:        ata.ATA_IDENTIFY_DEVICE,
		Count:          1,
		Protocol:       ata.ProtocolPIORead,
		TransferLength: IDENTIFY_LEN,
		Block512:       true,
		Width:          ata.Width28,
	})
}

// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sat

import "fmt"

const (
	senseFixedCurrent      = 0x70
	senseDescriptorCurrent = 0x72

	descATAStatusReturn = 0x09
)

// StatusReturn holds the ATA output registers returned by the SATL in the
// sense data of an ATA PASS-THROUGH command.
type StatusReturn struct {
	Extend bool
	Error  uint8
	Status uint8
	Device uint8
	Count  uint16
	LBA    uint64
	// Set from fixed format sense only: the upper register bytes were
	// non-zero but are not available.
	CountUpperNonZero bool
	LBAUpperNonZero   bool
}

func (s StatusReturn) String() string {
	return fmt.Sprintf("status=%#02x error=%#02x device=%#02x count=%#x lba=%#x",
		s.Status, s.Error, s.Device, s.Count, s.LBA)
}

// ParseStatusReturn extracts the ATA Status Return descriptor from
// descriptor format sense data, or the ATA PASS-THROUGH information from
// fixed format sense data. It reports false when sense carries neither.
func ParseStatusReturn(sense []byte) (StatusReturn, bool) {
	var r StatusReturn
	if len(sense) < 8 {
		return r, false
	}
	switch sense[0] & 0x7f {
	case senseDescriptorCurrent, senseDescriptorCurrent + 1:
		end := 8 + int(sense[7])
		if end > len(sense) {
			end = len(sense)
		}
		for i := 8; i+1 < end; i += 2 + int(sense[i+1]) {
			if sense[i] != descATAStatusReturn || i+14 > end {
				continue
			}
			d := sense[i : i+14]
			r.Extend = d[2]&0x01 != 0
			r.Error = d[3]
			r.Count = uint16(d[4])<<8 | uint16(d[5])
			r.LBA = uint64(d[7]) | uint64(d[9])<<8 | uint64(d[11])<<16 |
				uint64(d[6])<<24 | uint64(d[8])<<32 | uint64(d[10])<<40
			r.Device = d[12]
			r.Status = d[13]
			return r, true
		}
	case senseFixedCurrent, senseFixedCurrent + 1:
		// ASC/ASCQ 00h/1Dh: ATA PASS THROUGH INFORMATION AVAILABLE
		if len(sense) < 14 || sense[12] != 0x00 || sense[13] != 0x1d {
			return r, false
		}
		r.Error = sense[3]
		r.Status = sense[4]
		r.Device = sense[5]
		r.Count = uint16(sense[6])
		r.Extend = sense[8]&0x80 != 0
		r.CountUpperNonZero = sense[8]&0x40 != 0
		r.LBAUpperNonZero = sense[8]&0x20 != 0
		r.LBA = uint64(sense[9]) | uint64(sense[10])<<8 | uint64(sense[11])<<16
		return r, true
	}
	return r, false
}

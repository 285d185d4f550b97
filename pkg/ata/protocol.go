// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import "fmt"

// Direction of the data phase of an ATA command, seen from the host.
type Direction int

const (
	DirectionUnspecified Direction = iota
	DirectionNone
	DirectionIn  // device to host
	DirectionOut // host to device
)

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	}
	return "unspecified"
}

// Class groups protocols by how the data phase is carried.
type Class int

const (
	ClassNonData Class = iota
	ClassPIO
	ClassDMA
	ClassFPDMA
)

func (c Class) String() string {
	switch c {
	case ClassNonData:
		return "non-data"
	case ClassPIO:
		return "pio"
	case ClassDMA:
		return "dma"
	case ClassFPDMA:
		return "fpdma"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Protocol is the logical transfer protocol of an ATA command.
//
// ProtocolPIO, ProtocolDMA and ProtocolFPDMA name a class without a
// direction. They are accepted by ParseProtocol so that callers get a
// precise error, but NewCommand rejects them.
type Protocol int

const (
	ProtocolNonData Protocol = iota
	ProtocolPIORead
	ProtocolPIOWrite
	ProtocolDMARead
	ProtocolDMAWrite
	ProtocolFPDMARead
	ProtocolFPDMAWrite
	ProtocolPIO
	ProtocolDMA
	ProtocolFPDMA
)

var protocolNames = map[Protocol]string{
	ProtocolNonData:    "non-data",
	ProtocolPIORead:    "read-pio",
	ProtocolPIOWrite:   "write-pio",
	ProtocolDMARead:    "read-dma",
	ProtocolDMAWrite:   "write-dma",
	ProtocolFPDMARead:  "read-fpdma",
	ProtocolFPDMAWrite: "write-fpdma",
	ProtocolPIO:        "pio",
	ProtocolDMA:        "dma",
	ProtocolFPDMA:      "fpdma",
}

func (p Protocol) String() string {
	if s, ok := protocolNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// ParseProtocol maps a protocol name as printed by String back to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	for p, name := range protocolNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

// Class returns the transfer class of the protocol.
func (p Protocol) Class() Class {
	switch p {
	case ProtocolPIORead, ProtocolPIOWrite, ProtocolPIO:
		return ClassPIO
	case ProtocolDMARead, ProtocolDMAWrite, ProtocolDMA:
		return ClassDMA
	case ProtocolFPDMARead, ProtocolFPDMAWrite, ProtocolFPDMA:
		return ClassFPDMA
	}
	return ClassNonData
}

// Direction returns the declared data direction. The undirected class
// enumerators return DirectionUnspecified.
func (p Protocol) Direction() Direction {
	switch p {
	case ProtocolNonData:
		return DirectionNone
	case ProtocolPIORead, ProtocolDMARead, ProtocolFPDMARead:
		return DirectionIn
	case ProtocolPIOWrite, ProtocolDMAWrite, ProtocolFPDMAWrite:
		return DirectionOut
	}
	return DirectionUnspecified
}

// IsQueued reports whether the protocol is NCQ (FPDMA) and needs a tag.
func (p Protocol) IsQueued() bool {
	return p.Class() == ClassFPDMA
}

// Width is the addressing width of a command.
type Width int

const (
	Width28 Width = 28
	Width48 Width = 48
)

func (w Width) String() string {
	return fmt.Sprintf("%d-bit", int(w))
}

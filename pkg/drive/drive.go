// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
)

var (
	ErrNotSupported       = errors.New("operation is not supported")
	ErrDeviceNotSupported = errors.New("device is not supported")
)

type Identity struct {
	Protocol     string
	SerialNumber string
	Model        string
	Firmware     string

	// Populated for ATA devices only.
	LBA48      bool
	NCQ        bool
	QueueDepth int
	Sectors    uint64
	SectorSize int
}

func (i *Identity) String() string {
	s := fmt.Sprintf("Protocol=%s, Model=%s, Serial=%s, Firmware=%s",
		i.Protocol, i.Model, i.SerialNumber, i.Firmware)
	if i.Protocol == "SATA" {
		s += fmt.Sprintf(", LBA48=%v, NCQ=%v, QueueDepth=%d, Sectors=%d, SectorSize=%d",
			i.LBA48, i.NCQ, i.QueueDepth, i.Sectors, i.SectorSize)
	}
	return s
}

// DriveIntf is an open SCSI generic device handle.
type DriveIntf interface {
	FdIntf
	Identify
	Interface() sgio.Interface
}

type Identify interface {
	Identify() (*Identity, error)
	IdentifyATA() (*IdentifyDeviceResponse, error)
	Inquiry() (*sgio.InquiryResponse, error)
}

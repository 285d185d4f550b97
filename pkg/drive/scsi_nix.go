// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/sat"
)

var (
	execFn    = sgio.Exec
	inquiryFn = sgio.SCSIInquiry
)

type scsiDrive struct {
	fd    FdIntf
	iface sgio.Interface
}

func (d *scsiDrive) Fd() uintptr {
	return d.fd.Fd()
}

func (d *scsiDrive) Interface() sgio.Interface {
	return d.iface
}

func (d *scsiDrive) Inquiry() (*sgio.InquiryResponse, error) {
	inq, err := inquiryFn(d.fd.Fd(), d.iface)
	runtime.KeepAlive(d.fd)
	if err != nil {
		return nil, err
	}
	return &inq, nil
}

// IdentifyATA issues IDENTIFY DEVICE through ATA PASS-THROUGH.
func (d *scsiDrive) IdentifyATA() (*IdentifyDeviceResponse, error) {
	cmd, err := IdentifyCommand()
	if err != nil {
		return nil, err
	}
	cdb, err := sat.EncodeFor(cmd, sat.Options{})
	if err != nil {
		return nil, err
	}
	buf := make([]byte, cmd.TransferLength())
	_, err = execFn(d.fd.Fd(), d.iface, &sgio.Request{
		CDB:       cdb.Bytes(),
		Direction: sgio.CDBFromDevice,
		Data:      buf,
	})
	runtime.KeepAlive(d.fd)
	if errors.Is(err, sgio.ErrIllegalRequest) {
		return nil, ErrNotSupported
	} else if err != nil {
		return nil, errors.Wrap(err, "IDENTIFY DEVICE")
	}
	return ParseIdentify(buf)
}

func (d *scsiDrive) Identify() (*Identity, error) {
	inq, err := d.Inquiry()
	if err != nil {
		return nil, err
	}

	if !inq.IsSAT() {
		return &Identity{
			Protocol: "SCSI",
			Model: fmt.Sprintf("%s %s",
				strings.TrimSpace(string(inq.VendorIdent[:])),
				strings.TrimSpace(string(inq.ProductIdent[:]))),
			Firmware: strings.TrimSpace(string(inq.ProductRev[:])),
		}, nil
	}

	// SCSI ATA Translation (SAT)
	id, err := d.IdentifyATA()
	if err != nil {
		return nil, err
	}
	return &Identity{
		Protocol:     "SATA",
		Model:        strings.TrimSpace(sgio.ATAString(id.Model[:])),
		SerialNumber: strings.TrimSpace(sgio.ATAString(id.Serial[:])),
		Firmware:     strings.TrimSpace(sgio.ATAString(id.Firmware[:])),
		LBA48:        id.LBA48(),
		NCQ:          id.NCQ(),
		QueueDepth:   id.QueueDepth(),
		Sectors:      id.Sectors(),
		SectorSize:   id.SectorSize(),
	}, nil
}

func (d *scsiDrive) Close() error {
	return d.fd.Close()
}

func SCSIDrive(fd FdIntf, iface sgio.Interface) *scsiDrive {
	// Save the full object reference to avoid the underlying File-like object
	// to be GC'd
	return &scsiDrive{fd: fd, iface: iface}
}

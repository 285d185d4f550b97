// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
)

// FdIntf is the device handle the pass-through layer issues SG_IO on.
type FdIntf interface {
	Fd() uintptr
	Close() error
}

// InterfaceOf returns the SG_IO request layout of fd when it is known,
// falling back to sg_io_hdr which every SCSI generic node accepts.
func InterfaceOf(fd FdIntf) sgio.Interface {
	if d, ok := fd.(interface{ Interface() sgio.Interface }); ok {
		return d.Interface()
	}
	return sgio.InterfaceV3
}

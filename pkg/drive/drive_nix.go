// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
)

// Open opens a SCSI generic capable device node. /dev/bsg/* nodes are driven
// through sg_io_v4, everything else through sg_io_hdr.
func Open(device string) (DriveIntf, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", device)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "stat %s", device)
	}
	iface, err := interfaceFor(device, uint32(st.Mode))
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	d := SCSIDrive(os.NewFile(uintptr(fd), device), iface)
	if _, err := d.Inquiry(); err != nil {
		d.Close()
		return nil, errors.Wrapf(ErrDeviceNotSupported, "%s: INQUIRY failed: %v", device, err)
	}
	return d, nil
}

func interfaceFor(device string, mode uint32) (sgio.Interface, error) {
	switch mode & unix.S_IFMT {
	case unix.S_IFCHR:
		if strings.HasPrefix(filepath.Clean(device), "/dev/bsg/") {
			return sgio.InterfaceV4, nil
		}
		return sgio.InterfaceV3, nil
	case unix.S_IFBLK:
		return sgio.InterfaceV3, nil
	}
	return 0, errors.Wrapf(ErrDeviceNotSupported, "%s is not a device node", device)
}

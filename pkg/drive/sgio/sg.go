// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Copyright 2021 Christian Svensson. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// SCSI generic IO functions.

package sgio

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/dswarbrick/smart/ioctl"
)

type CDBDirection int32

const (
	CDBNone         CDBDirection = -1
	CDBToDevice     CDBDirection = -2
	CDBFromDevice   CDBDirection = -3
	CDBToFromDevice CDBDirection = -4

	SG_INFO_OK_MASK = 0x1
	SG_INFO_OK      = 0x0

	SG_IO = 0x2285

	// Timeout in milliseconds
	DEFAULT_TIMEOUT = 60000

	// Sense buffer length used when a request does not ask for one
	DEFAULT_SENSE_LEN = 32

	BSG_PROTOCOL_SCSI             = 0
	BSG_SUB_PROTOCOL_SCSI_COMMAND = 0

	// SG_MAX_CDB_SIZE of the sg driver; cmd_len is a single byte.
	MAX_CDB_LEN_V3 = 252
	MAX_CDB_LEN_V4 = 32
)

// Interface selects the SG_IO request layout.
type Interface int32

const (
	// InterfaceV3 is sg_io_hdr, used by /dev/sg* and block device nodes.
	InterfaceV3 Interface = 'S'
	// InterfaceV4 is sg_io_v4, used by /dev/bsg/* nodes.
	InterfaceV4 Interface = 'Q'
)

func (i Interface) String() string {
	switch i {
	case InterfaceV3:
		return "sg_io_hdr"
	case InterfaceV4:
		return "sg_io_v4"
	}
	return fmt.Sprintf("Interface(%d)", int32(i))
}

// ioctlFn issues the SG_IO system call. Replaced in tests.
var ioctlFn = ioctl.Ioctl

// SCSI generic ioctl header, defined as sg_io_hdr_t in <scsi/sg.h>
type sgIoHdr struct {
	interface_id    int32        // 'S' for SCSI generic (required)
	dxfer_direction CDBDirection // data transfer direction
	cmd_len         uint8        // SCSI command length (<= 252 bytes)
	mx_sb_len       uint8        // max length to write to sbp
	iovec_count     uint16       //nolint:structcheck,unused // 0 implies no scatter gather
	dxfer_len       uint32       // byte count of data transfer
	dxferp          uintptr      // points to data transfer memory or scatter gather list
	cmdp            uintptr      // points to command to perform
	sbp             uintptr      // points to sense_buffer memory
	timeout         uint32       // MAX_UINT -> no timeout (unit: millisec)
	flags           uint32       // 0 -> default, see SG_FLAG...
	pack_id         int32        // unused internally (normally)
	usr_ptr         uintptr      //nolint:structcheck,unused // unused internally
	status          uint8        // SCSI status
	masked_status   uint8        //nolint:structcheck,unused // shifted, masked scsi status
	msg_status      uint8        //nolint:structcheck,unused // messaging level data (optional)
	sb_len_wr       uint8        // byte count actually written to sbp
	host_status     uint16       // errors from host adapter
	driver_status   uint16       // errors from software driver
	resid           int32        // dxfer_len - actual_transferred
	duration        uint32       // time taken by cmd (unit: millisec)
	info            uint32       // auxiliary information
}

// SCSI generic ioctl v4 header, defined as struct sg_io_v4 in <linux/bsg.h>
type sgIoV4 struct {
	guard       int32  // 'Q' to differentiate from v3
	protocol    uint32 // 0 -> SCSI
	subprotocol uint32 // 0 -> SCSI command

	request_len      uint32 // CDB length
	request          uint64 // points to CDB
	request_tag      uint64 // task tag (only if flagged)
	request_attr     uint32 //nolint:structcheck,unused
	request_priority uint32 //nolint:structcheck,unused
	request_extra    uint32 //nolint:structcheck,unused
	max_response_len uint32 // sense buffer length
	response         uint64 // points to sense buffer

	dout_iovec_count uint32 //nolint:structcheck,unused // 0 -> flat dout transfer
	dout_xfer_len    uint32 // bytes to be transferred to device
	din_iovec_count  uint32 //nolint:structcheck,unused // 0 -> flat din transfer
	din_xfer_len     uint32 // bytes to be transferred from device
	dout_xferp       uint64
	din_xferp        uint64

	timeout  uint32 // unit: millisec
	flags    uint32 // bit mask
	usr_ptr  uint64 //nolint:structcheck,unused
	spare_in uint32 //nolint:structcheck,unused

	driver_status    uint32 // 0 -> ok
	transport_status uint32 // 0 -> ok
	device_status    uint32 // SCSI status
	retry_delay      uint32 //nolint:structcheck,unused
	info             uint32 // additional information
	duration         uint32 // unit: millisec
	response_len     uint32 // bytes of sense actually written
	din_resid        int32
	dout_resid       int32
	generated_tag    uint64 //nolint:structcheck,unused
	spare_out        uint32 //nolint:structcheck,unused

	_ uint32 // padding
}

// Request is one SCSI command submission. The buffers it references are
// owned by the submission until Exec returns.
type Request struct {
	CDB       []byte
	Direction CDBDirection
	// Data is the data-out payload or the data-in destination.
	Data []byte
	// SenseLen defaults to DEFAULT_SENSE_LEN.
	SenseLen int
	// Timeout defaults to DEFAULT_TIMEOUT.
	Timeout time.Duration
	Flags   uint32
	// Tag is passed as request_tag (v4) or pack_id (v3).
	Tag uint64
}

// Completion is the outcome of an SG_IO call that reached the driver.
type Completion struct {
	DriverStatus    uint32
	TransportStatus uint32 // host_status for sg_io_hdr
	DeviceStatus    uint32 // SCSI status
	Info            uint32
	Sense           []byte
	DinResid        int32
	DoutResid       int32
	Duration        time.Duration
	// Data is the data-in buffer. It is nil unless the command succeeded.
	Data []byte
}

func (r *Request) check(iface Interface) error {
	maxLen := MAX_CDB_LEN_V4
	if iface == InterfaceV3 {
		maxLen = MAX_CDB_LEN_V3
	}
	if len(r.CDB) == 0 || len(r.CDB) > maxLen {
		return &RequestError{Interface: iface, Reason: fmt.Sprintf("cannot carry a %d byte CDB", len(r.CDB))}
	}
	switch r.Direction {
	case CDBNone:
		if len(r.Data) != 0 {
			return &RequestError{Interface: iface, Reason: "data buffer on a command without data transfer"}
		}
	case CDBToDevice, CDBFromDevice:
		if len(r.Data) == 0 {
			return &RequestError{Interface: iface, Reason: "empty data buffer for data transfer"}
		}
	default:
		return &RequestError{Interface: iface, Reason: fmt.Sprintf("unsupported transfer direction %d", r.Direction)}
	}
	if r.SenseLen < 0 || (iface == InterfaceV3 && r.SenseLen > 0xff) {
		return &RequestError{Interface: iface, Reason: fmt.Sprintf("sense length %d out of range", r.SenseLen)}
	}
	return nil
}

// Exec submits req on fd with a single blocking SG_IO call.
//
// A failed system call is returned as *TransportError with a nil
// Completion. Otherwise the Completion is returned together with the
// decoded status (nil, *DeviceError or *TimeoutError).
func Exec(fd uintptr, iface Interface, req *Request) (*Completion, error) {
	if err := req.check(iface); err != nil {
		return nil, err
	}

	senseLen := req.SenseLen
	if senseLen == 0 {
		senseLen = DEFAULT_SENSE_LEN
	}
	timeout := uint32(DEFAULT_TIMEOUT)
	if req.Timeout > 0 {
		timeout = uint32(req.Timeout / time.Millisecond)
	}

	// Private copies keep the CDB and sense buffers on the heap and out of
	// the caller's reach for the duration of the call.
	cdb := make([]byte, len(req.CDB))
	copy(cdb, req.CDB)
	sense := make([]byte, senseLen)

	var (
		c   *Completion
		err error
	)
	switch iface {
	case InterfaceV4:
		c, err = execV4(fd, req, cdb, sense, timeout)
	case InterfaceV3:
		c, err = execV3(fd, req, cdb, sense, timeout)
	default:
		return nil, &RequestError{Interface: iface, Reason: "unsupported SG_IO interface"}
	}
	runtime.KeepAlive(cdb)
	runtime.KeepAlive(sense)
	runtime.KeepAlive(req.Data)
	if err != nil {
		return nil, err
	}

	if err := c.Err(); err != nil {
		if terr, ok := err.(*TimeoutError); ok {
			terr.Timeout = time.Duration(timeout) * time.Millisecond
		}
		return c, err
	}
	if req.Direction == CDBFromDevice {
		c.Data = req.Data
	}
	return c, nil
}

func bufAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func execV4(fd uintptr, req *Request, cdb, sense []byte, timeout uint32) (*Completion, error) {
	hdr := sgIoV4{
		guard:            int32(InterfaceV4),
		protocol:         BSG_PROTOCOL_SCSI,
		subprotocol:      BSG_SUB_PROTOCOL_SCSI_COMMAND,
		request_len:      uint32(len(cdb)),
		request:          uint64(bufAddr(cdb)),
		request_tag:      req.Tag,
		max_response_len: uint32(len(sense)),
		response:         uint64(bufAddr(sense)),
		timeout:          timeout,
		flags:            req.Flags,
	}
	switch req.Direction {
	case CDBFromDevice:
		hdr.din_xfer_len = uint32(len(req.Data))
		hdr.din_xferp = uint64(bufAddr(req.Data))
	case CDBToDevice:
		hdr.dout_xfer_len = uint32(len(req.Data))
		hdr.dout_xferp = uint64(bufAddr(req.Data))
	}

	if err := ioctlFn(fd, SG_IO, uintptr(unsafe.Pointer(&hdr))); err != nil {
		return nil, &TransportError{Op: "SG_IO", Err: err}
	}

	n := int(hdr.response_len)
	if n > len(sense) {
		n = len(sense)
	}
	return &Completion{
		DriverStatus:    hdr.driver_status,
		TransportStatus: hdr.transport_status,
		DeviceStatus:    hdr.device_status,
		Info:            hdr.info,
		Sense:           sense[:n],
		DinResid:        hdr.din_resid,
		DoutResid:       hdr.dout_resid,
		Duration:        time.Duration(hdr.duration) * time.Millisecond,
	}, nil
}

func execV3(fd uintptr, req *Request, cdb, sense []byte, timeout uint32) (*Completion, error) {
	hdr := sgIoHdr{
		interface_id:    int32(InterfaceV3),
		dxfer_direction: req.Direction,
		cmd_len:         uint8(len(cdb)),
		mx_sb_len:       uint8(len(sense)),
		dxfer_len:       uint32(len(req.Data)),
		dxferp:          bufAddr(req.Data),
		cmdp:            bufAddr(cdb),
		sbp:             bufAddr(sense),
		timeout:         timeout,
		flags:           req.Flags,
		pack_id:         int32(req.Tag),
	}

	if err := ioctlFn(fd, SG_IO, uintptr(unsafe.Pointer(&hdr))); err != nil {
		return nil, &TransportError{Op: "SG_IO", Err: err}
	}

	n := int(hdr.sb_len_wr)
	if n > len(sense) {
		n = len(sense)
	}
	c := &Completion{
		DriverStatus:    uint32(hdr.driver_status),
		TransportStatus: uint32(hdr.host_status),
		DeviceStatus:    uint32(hdr.status),
		Info:            hdr.info,
		Sense:           sense[:n],
		Duration:        time.Duration(hdr.duration) * time.Millisecond,
	}
	switch req.Direction {
	case CDBFromDevice:
		c.DinResid = hdr.resid
	case CDBToDevice:
		c.DoutResid = hdr.resid
	}
	return c, nil
}

// SendCDB executes cdb and returns an error unless the command completed
// without error.
func SendCDB(fd uintptr, iface Interface, cdb []byte, dir CDBDirection, buf []byte) error {
	_, err := Exec(fd, iface, &Request{CDB: cdb, Direction: dir, Data: buf})
	return err
}

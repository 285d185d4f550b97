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

package sgio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	SCSI_STATUS_GOOD            = 0x00
	SCSI_STATUS_CHECK_CONDITION = 0x02

	SENSE_RECOVERED_ERROR = 0x1
	SENSE_ILLEGAL_REQUEST = 0x5

	DID_TIME_OUT = 0x03

	DRIVER_TIMEOUT = 0x06
	DRIVER_SENSE   = 0x08
)

var ErrIllegalRequest = errors.New("illegal SCSI request")

// RequestError is a request that cannot be expressed in the SG_IO layout.
// It is returned before any system call is made.
type RequestError struct {
	Interface Interface
	Reason    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Interface, e.Reason)
}

// TransportError is a failed SG_IO system call. Nothing is known about the
// state of the command.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DeviceError is a command the device or transport completed with a
// non-good status. Any data-in buffer content is undefined.
type DeviceError struct {
	DriverStatus    uint32
	TransportStatus uint32
	DeviceStatus    uint32
	Sense           []byte
}

func (e *DeviceError) Error() string {
	s := fmt.Sprintf("SCSI status: %#02x, transport status: %#02x, driver status: %#02x",
		e.DeviceStatus, e.TransportStatus, e.DriverStatus)
	if key, ok := e.SenseKey(); ok {
		s += fmt.Sprintf(", sense key: %#02x", key)
	}
	if len(e.Sense) > 0 {
		s += ", sense: " + hex.EncodeToString(e.Sense)
	}
	return s
}

// SenseKey decodes the sense key of fixed or descriptor format sense data.
func (e *DeviceError) SenseKey() (uint8, bool) {
	key, _, _, ok := senseInfo(e.Sense)
	return key, ok
}

func (e *DeviceError) Is(target error) bool {
	if target == ErrIllegalRequest {
		key, ok := e.SenseKey()
		return ok && key == SENSE_ILLEGAL_REQUEST
	}
	return false
}

// TimeoutError is a command that did not complete within its timeout. The
// device may still execute it.
type TimeoutError struct {
	Timeout time.Duration
	Status  DeviceError
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %v (%v)", e.Timeout, &e.Status)
}

// senseInfo returns sense key, ASC and ASCQ.
func senseInfo(sense []byte) (key, asc, ascq uint8, ok bool) {
	if len(sense) < 4 {
		return 0, 0, 0, false
	}
	switch sense[0] & 0x7f {
	case 0x70, 0x71:
		key = sense[2] & 0x0f
		if len(sense) >= 14 {
			asc, ascq = sense[12], sense[13]
		}
		return key, asc, ascq, true
	case 0x72, 0x73:
		return sense[1] & 0x0f, sense[2], sense[3], true
	}
	return 0, 0, 0, false
}

// Err decodes the completion status.
func (c *Completion) Err() error {
	if c.DeviceStatus == SCSI_STATUS_GOOD && c.TransportStatus == 0 && c.DriverStatus&^DRIVER_SENSE == 0 {
		return nil
	}
	status := DeviceError{
		DriverStatus:    c.DriverStatus,
		TransportStatus: c.TransportStatus,
		DeviceStatus:    c.DeviceStatus,
		Sense:           c.Sense,
	}
	if c.TransportStatus == DID_TIME_OUT || c.DriverStatus&0x0f == DRIVER_TIMEOUT {
		return &TimeoutError{Timeout: c.Duration, Status: status}
	}
	// CK_COND=1 completes with CHECK CONDITION, RECOVERED ERROR and
	// ASC/ASCQ 00h/1Dh (ATA PASS THROUGH INFORMATION AVAILABLE).
	if c.DeviceStatus == SCSI_STATUS_CHECK_CONDITION && c.TransportStatus == 0 {
		if key, asc, ascq, ok := senseInfo(c.Sense); ok && key == SENSE_RECOVERED_ERROR && asc == 0x00 && ascq == 0x1d {
			return nil
		}
	}
	return &status
}

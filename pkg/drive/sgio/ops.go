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
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	SCSI_INQUIRY = 0x12

	INQ_REPLY_LEN = 36 // Minimum length of standard INQUIRY response
)

// SCSI CDB types
type CDB6 [6]byte

// SCSI INQUIRY response
type InquiryResponse struct {
	Peripheral   byte // peripheral qualifier, device type
	_            byte
	Version      byte
	_            [5]byte
	VendorIdent  [8]byte
	ProductIdent [16]byte
	ProductRev   [4]byte
}

func (inq InquiryResponse) String() string {
	return fmt.Sprintf("Type=0x%x, Vendor=%s, Product=%s, Revision=%s",
		inq.Peripheral,
		strings.TrimSpace(string(inq.VendorIdent[:])),
		strings.TrimSpace(string(inq.ProductIdent[:])),
		strings.TrimSpace(string(inq.ProductRev[:])))
}

// IsSAT reports whether the device answers as an ATA device behind a SCSI /
// ATA Translation layer.
func (inq InquiryResponse) IsSAT() bool {
	return bytes.Equal(inq.VendorIdent[:], []byte("ATA     "))
}

// ATAString decodes an ATA IDENTIFY string, which stores two characters per
// word with the first character in the high byte.
func ATAString(b []byte) string {
	out := make([]byte, len(b))
	for i := 0; i < len(b)/2; i++ {
		out[i*2] = b[i*2+1]
		out[i*2+1] = b[i*2]
	}
	return string(out)
}

// INQUIRY - Returns parsed inquiry data.
func SCSIInquiry(fd uintptr, iface Interface) (InquiryResponse, error) {
	var resp InquiryResponse

	respBuf := make([]byte, INQ_REPLY_LEN)

	cdb := CDB6{SCSI_INQUIRY}
	binary.BigEndian.PutUint16(cdb[3:], uint16(len(respBuf)))

	if err := SendCDB(fd, iface, cdb[:], CDBFromDevice, respBuf); err != nil {
		return resp, err
	}

	if err := binary.Read(bytes.NewReader(respBuf), binary.BigEndian, &resp); err != nil {
		return resp, err
	}

	return resp, nil
}

// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
)

type fakeFd struct {
	closed bool
}

func (f *fakeFd) Fd() uintptr  { return 42 }
func (f *fakeFd) Close() error { f.closed = true; return nil }

// ataBytes pads s to n bytes and stores it the way IDENTIFY DEVICE does.
func ataBytes(s string, n int) []byte {
	b := []byte(s)
	for len(b) < n {
		b = append(b, ' ')
	}
	for i := 0; i+1 < n; i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	return b[:n]
}

func identifyData() []byte {
	buf := make([]byte, IDENTIFY_LEN)
	word := func(n int, v uint16) { binary.LittleEndian.PutUint16(buf[n*2:], v) }
	copy(buf[10*2:], ataBytes("S3Z9NB0K123456A", 20))
	copy(buf[23*2:], ataBytes("RVT04B6Q", 8))
	copy(buf[27*2:], ataBytes("Samsung SSD 860 EVO 500GB", 40))
	word(60, 0xffff)
	word(61, 0x0fff)
	word(75, 31)
	word(76, 1<<8)
	word(83, 0x4000|1<<10)
	binary.LittleEndian.PutUint64(buf[100*2:], 976773168)
	word(106, 0x4000|1<<12)
	binary.LittleEndian.PutUint32(buf[117*2:], 2048)
	return buf
}

func TestIdentifyLayout(t *testing.T) {
	assert.Equal(t, uintptr(IDENTIFY_LEN), unsafe.Sizeof(IdentifyDeviceResponse{}))
}

func TestParseIdentify(t *testing.T) {
	id, err := ParseIdentify(identifyData())
	require.NoError(t, err)

	assert.Equal(t, "Serial=S3Z9NB0K123456A, Firmware=RVT04B6Q, Model=Samsung SSD 860 EVO 500GB", id.String())
	assert.True(t, id.NCQ())
	assert.Equal(t, 32, id.QueueDepth())
	assert.True(t, id.LBA48())
	assert.Equal(t, uint64(976773168), id.Sectors())
	assert.Equal(t, 4096, id.SectorSize())
}

func TestParseIdentifyLegacy(t *testing.T) {
	buf := make([]byte, IDENTIFY_LEN)
	binary.LittleEndian.PutUint32(buf[60*2:], 0x00ff_ffff)
	binary.LittleEndian.PutUint16(buf[75*2:], 31)

	id, err := ParseIdentify(buf)
	require.NoError(t, err)
	assert.False(t, id.NCQ())
	assert.Equal(t, 1, id.QueueDepth())
	assert.False(t, id.LBA48())
	assert.Equal(t, uint64(0x00ff_ffff), id.Sectors())
	assert.Equal(t, 512, id.SectorSize())

	_, err = ParseIdentify(buf[:100])
	assert.Error(t, err)
}

func TestInterfaceFor(t *testing.T) {
	testCases := []struct {
		name   string
		device string
		mode   uint32
		want   sgio.Interface
		err    bool
	}{
		{"bsg", "/dev/bsg/0:0:0:0", unix.S_IFCHR, sgio.InterfaceV4, false},
		{"bsg unclean", "/dev//bsg/../bsg/1:0:0:0", unix.S_IFCHR, sgio.InterfaceV4, false},
		{"sg", "/dev/sg0", unix.S_IFCHR, sgio.InterfaceV3, false},
		{"Block device", "/dev/sda", unix.S_IFBLK, sgio.InterfaceV3, false},
		{"Regular file", "/tmp/disk.img", unix.S_IFREG, 0, true},
		{"Directory", "/dev/bsg", unix.S_IFDIR, 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := interfaceFor(tc.device, tc.mode|0o660)
			if tc.err {
				assert.True(t, errors.Is(err, ErrDeviceNotSupported), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInterfaceOf(t *testing.T) {
	assert.Equal(t, sgio.InterfaceV3, InterfaceOf(&fakeFd{}))
	assert.Equal(t, sgio.InterfaceV4, InterfaceOf(SCSIDrive(&fakeFd{}, sgio.InterfaceV4)))
}

func fakeTransport(t *testing.T, inq sgio.InquiryResponse, exec func(req *sgio.Request) error) {
	t.Helper()
	origExec, origInq := execFn, inquiryFn
	execFn = func(fd uintptr, iface sgio.Interface, req *sgio.Request) (*sgio.Completion, error) {
		if err := exec(req); err != nil {
			return &sgio.Completion{}, err
		}
		return &sgio.Completion{Data: req.Data}, nil
	}
	inquiryFn = func(fd uintptr, iface sgio.Interface) (sgio.InquiryResponse, error) {
		return inq, nil
	}
	t.Cleanup(func() { execFn, inquiryFn = origExec, origInq })
}

func satInquiry() sgio.InquiryResponse {
	var inq sgio.InquiryResponse
	copy(inq.VendorIdent[:], "ATA     ")
	copy(inq.ProductIdent[:], "Samsung SSD 860 ")
	copy(inq.ProductRev[:], "4B6Q")
	return inq
}

func TestIdentifySATA(t *testing.T) {
	fakeTransport(t, satInquiry(), func(req *sgio.Request) error {
		// IDENTIFY DEVICE in ATA PASS-THROUGH(12)
		assert.Equal(t, []byte{0xa1, 0x08, 0x0e, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xec, 0x00, 0x00}, req.CDB)
		assert.Equal(t, sgio.CDBFromDevice, req.Direction)
		copy(req.Data, identifyData())
		return nil
	})

	fd := &fakeFd{}
	d := SCSIDrive(fd, sgio.InterfaceV3)
	id, err := d.Identify()
	require.NoError(t, err)
	assert.Equal(t, &Identity{
		Protocol:     "SATA",
		SerialNumber: "S3Z9NB0K123456A",
		Model:        "Samsung SSD 860 EVO 500GB",
		Firmware:     "RVT04B6Q",
		LBA48:        true,
		NCQ:          true,
		QueueDepth:   32,
		Sectors:      976773168,
		SectorSize:   4096,
	}, id)

	require.NoError(t, d.Close())
	assert.True(t, fd.closed)
}

func TestIdentifySCSI(t *testing.T) {
	var inq sgio.InquiryResponse
	copy(inq.VendorIdent[:], "SEAGATE ")
	copy(inq.ProductIdent[:], "ST4000NM0023    ")
	copy(inq.ProductRev[:], "0004")
	fakeTransport(t, inq, func(req *sgio.Request) error {
		t.Fatal("no ATA command expected")
		return nil
	})

	id, err := SCSIDrive(&fakeFd{}, sgio.InterfaceV3).Identify()
	require.NoError(t, err)
	assert.Equal(t, "Protocol=SCSI, Model=SEAGATE ST4000NM0023, Serial=, Firmware=0004", id.String())
}

func TestIdentifyATANotSupported(t *testing.T) {
	fakeTransport(t, satInquiry(), func(req *sgio.Request) error {
		return &sgio.DeviceError{
			DeviceStatus: sgio.SCSI_STATUS_CHECK_CONDITION,
			Sense:        []byte{0x72, 0x05, 0x20, 0x00, 0, 0, 0, 0},
		}
	})

	_, err := SCSIDrive(&fakeFd{}, sgio.InterfaceV3).IdentifyATA()
	assert.Equal(t, ErrNotSupported, err)
}

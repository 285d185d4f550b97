package cmdutil

import (
	"time"

	"github.com/pkg/errors"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive"
)

type DeviceEmbed struct {
	Device  string        `required:"" short:"d" env:"ATAPT_DEVICE" help:"Path to SCSI generic device (e.g. /dev/bsg/0:0:0:0, /dev/sg0)"`
	Timeout time.Duration `optional:"" env:"ATAPT_TIMEOUT" default:"60s" help:"Command timeout"`
}

func (t *DeviceEmbed) Open() (drive.DriveIntf, error) {
	d, err := drive.Open(t.Device)
	if err != nil {
		return nil, errors.Wrapf(err, "drive.Open(%s) failed", t.Device)
	}
	return d, nil
}

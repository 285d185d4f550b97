package cmdutil

import (
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

// CommandSpec describes an ATA command on the command line or in a batch
// file.
type CommandSpec struct {
	Protocol   string `required:"" short:"p" enum:"non-data,read-pio,write-pio,read-dma,write-dma,read-fpdma,write-fpdma" yaml:"protocol" help:"Transfer protocol"`
	Command    uint64 `required:"" short:"c" yaml:"command" help:"ATA command opcode"`
	Feature    uint64 `optional:"" yaml:"feature" help:"Feature register (block count for FPDMA)"`
	Count      uint64 `optional:"" yaml:"count" help:"Count register"`
	LBA        uint64 `optional:"" name:"lba" yaml:"lba" help:"Logical block address"`
	Dev        uint64 `optional:"" name:"dev" yaml:"device" help:"Device register"`
	ICC        uint64 `optional:"" name:"icc" yaml:"icc" help:"Isochronous command completion (32 byte CDB only)"`
	Auxiliary  uint64 `optional:"" yaml:"auxiliary" help:"Auxiliary register (32 byte CDB only)"`
	Length     int    `optional:"" short:"l" yaml:"length" help:"Transfer length in bytes"`
	Ext        bool   `optional:"" short:"e" yaml:"ext" help:"Use 48-bit addressing"`
	Block512   bool   `optional:"" default:"true" negatable:"" name:"block512" yaml:"block512" help:"Transfer in 512 byte blocks instead of logical sectors"`
	SectorSize int    `optional:"" default:"512" yaml:"sector_size" help:"Logical sector size when --no-block512 is given"`
	Data       string `optional:"" yaml:"data" help:"Data-out payload as hex"`
}

// UnmarshalYAML applies the command line defaults to omitted fields.
func (c *CommandSpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain CommandSpec
	p := plain{Block512: true, SectorSize: 512}
	if err := unmarshal(&p); err != nil {
		return err
	}
	*c = CommandSpec(p)
	return nil
}

func (c *CommandSpec) Params() (ata.Params, error) {
	proto, err := ata.ParseProtocol(c.Protocol)
	if err != nil {
		return ata.Params{}, err
	}
	p := ata.Params{
		Feature:        c.Feature,
		Count:          c.Count,
		LBA:            c.LBA,
		ICC:            c.ICC,
		Auxiliary:      c.Auxiliary,
		Device:         c.Dev,
		Command:        c.Command,
		Protocol:       proto,
		TransferLength: c.Length,
		Block512:       c.Block512,
		SectorSize:     c.SectorSize,
		Width:          ata.Width28,
	}
	if c.Ext {
		p.Width = ata.Width48
	}
	if c.Data != "" {
		p.Data, err = hex.DecodeString(strings.Join(strings.Fields(c.Data), ""))
		if err != nil {
			return ata.Params{}, errors.Wrap(err, "invalid data")
		}
	}
	return p, nil
}

// Build validates c and returns the command it describes.
func (c *CommandSpec) Build() (*ata.Command, error) {
	p, err := c.Params()
	if err != nil {
		return nil, err
	}
	return ata.NewCommand(p)
}

// BatchFile is the YAML document read by the batch sub-command.
type BatchFile struct {
	Commands []CommandSpec `yaml:"commands"`
}

// LoadBatch parses and validates a batch file.
func LoadBatch(r io.Reader) ([]*ata.Command, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var f BatchFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parsing batch file")
	}
	if len(f.Commands) == 0 {
		return nil, errors.New("batch file has no commands")
	}
	cmds := make([]*ata.Command, 0, len(f.Commands))
	for i := range f.Commands {
		cmd, err := f.Commands[i].Build()
		if err != nil {
			return nil, errors.Wrapf(err, "command %d", i)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

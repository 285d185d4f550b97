package cmdutil

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

const batchYAML = `
commands:
  - protocol: read-fpdma
    command: 0x60
    feature: 8
    lba: 0x100
    device: 0x40
    length: 4096
    ext: true
  - protocol: non-data
    command: 0xe5
  - protocol: write-pio
    command: 0x30
    count: 1
    lba: 0x0abcdef
    device: 0xe0
    length: 512
    data: "` + "00010203" + `"
`

func TestLoadBatch(t *testing.T) {
	yamlDoc := strings.Replace(batchYAML, `"00010203"`, `"`+strings.Repeat("ab", 512)+`"`, 1)
	cmds, err := LoadBatch(strings.NewReader(yamlDoc))
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	assert.Equal(t, ata.ProtocolFPDMARead, cmds[0].Protocol())
	assert.Equal(t, uint8(0x60), cmds[0].Opcode())
	assert.Equal(t, uint64(0x100), cmds[0].LBA())
	assert.Equal(t, ata.Width48, cmds[0].Width())
	assert.True(t, cmds[0].Block512())
	assert.Equal(t, 4096, cmds[0].TransferLength())

	assert.Equal(t, ata.ProtocolNonData, cmds[1].Protocol())
	assert.Equal(t, ata.Width28, cmds[1].Width())

	assert.Equal(t, ata.ProtocolPIOWrite, cmds[2].Protocol())
	assert.Equal(t, uint8(0xe0), cmds[2].DeviceByte())
	assert.Len(t, cmds[2].Data(), 512)
	assert.Equal(t, byte(0xab), cmds[2].Data()[0])
}

func TestLoadBatchErrors(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
		want string
	}{
		{"Empty", "commands: []\n", "no commands"},
		{"Unknown field", "commands:\n  - protocol: non-data\n    command: 0xe5\n    bogus: 1\n", "bogus"},
		{"Unknown protocol", "commands:\n  - protocol: udma\n    command: 0xe5\n", "udma"},
		{"Short write", batchYAML, "command 2"},
		{"Bad hex", "commands:\n  - protocol: write-pio\n    command: 0x30\n    count: 1\n    length: 512\n    data: zz\n", "invalid data"},
		{"Out of range", "commands:\n  - protocol: non-data\n    command: 0xe5\n    lba: 0x10000000\n", "lba"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadBatch(strings.NewReader(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadBatchValidationError(t *testing.T) {
	_, err := LoadBatch(strings.NewReader("commands:\n  - protocol: non-data\n    command: 0xe5\n    icc: 1\n"))
	var verr *ata.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "icc", verr.Field)
}

func TestCommandSpecFlags(t *testing.T) {
	var cli struct {
		Spec CommandSpec `embed:""`
	}
	p, err := kong.New(&cli)
	require.NoError(t, err)
	_, err = p.Parse([]string{"-p", "read-dma", "-c", "0x25", "--lba", "0x1000", "--count", "8", "-l", "4096", "-e", "--dev", "0x40"})
	require.NoError(t, err)

	cmd, err := cli.Spec.Build()
	require.NoError(t, err)
	assert.Equal(t, ata.ProtocolDMARead, cmd.Protocol())
	assert.Equal(t, uint8(0x25), cmd.Opcode())
	assert.Equal(t, uint64(0x1000), cmd.LBA())
	assert.Equal(t, uint16(8), cmd.Count())
	assert.True(t, cmd.Block512())
	assert.True(t, cmd.Extended())
}

func TestConfirm(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  bool
	}{
		{"Yes", "y\n", true},
		{"Long yes", "YES\n", true},
		{"No", "n\n", false},
		{"Empty", "\n", false},
		{"EOF", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := confirm(strings.NewReader(tc.input), &out, "Command 0x30 writes to the device.")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, "Command 0x30 writes to the device.\nContinue? [y/N]: ", out.String())
		})
	}
}

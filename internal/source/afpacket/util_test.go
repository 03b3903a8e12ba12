package afpacket

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vesper/internal/core"
)

func TestRecomputeSize(t *testing.T) {
	tests := []struct {
		name      string
		bufferMB  int
		snapLen   int
		pageSize  int
		frameSize int
		blockSize int
		numBlocks int
	}{
		{"full snaplen", 8, 65535, 4096, 69632, 60 * 69632, 2},
		{"mtu snaplen", 8, 1500, 4096, 4096, 4 << 20, 2},
		{"buffer smaller than block", 1, 65535, 4096, 69632, 60 * 69632, 1},
		{"large pages", 64, 9000, 65536, 65536, 4 << 20, 16},
		{"frame larger than max block", 16, 8 << 20, 4096, (8 << 20) + 4096, (8 << 20) + 4096, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, block, blocks, err := recomputeSize(tt.bufferMB, tt.snapLen, tt.pageSize)
			require.NoError(t, err)
			assert.Equal(t, tt.frameSize, frame)
			assert.Equal(t, tt.blockSize, block)
			assert.Equal(t, tt.numBlocks, blocks)

			assert.Zero(t, frame%tpacketAlignment)
			assert.Zero(t, block%tt.pageSize)
			assert.Zero(t, block%frame)
		})
	}
}

func TestRecomputeSizeInvalid(t *testing.T) {
	_, _, _, err := recomputeSize(0, 1500, 4096)
	assert.Error(t, err)

	_, _, _, err = recomputeSize(8, 0, 4096)
	assert.Error(t, err)

	_, _, _, err = recomputeSize(8, 1500, 1000)
	assert.Error(t, err)
}

func TestCheckEthernetLink(t *testing.T) {
	dir := t.TempDir()
	old := sysClassNet
	sysClassNet = dir
	t.Cleanup(func() { sysClassNet = old })

	for dev, hwType := range map[string]string{"eth0": "1\n", "lo": "772\n", "tun0": "65534\n", "ppp0": "512\n", "bad0": "ether\n"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, dev), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, dev, "type"), []byte(hwType), 0o644))
	}

	assert.NoError(t, checkEthernetLink(""))
	assert.NoError(t, checkEthernetLink("eth0"))
	assert.NoError(t, checkEthernetLink("lo"))
	assert.ErrorIs(t, checkEthernetLink("tun0"), core.ErrConfigInvalid)
	assert.ErrorIs(t, checkEthernetLink("ppp0"), core.ErrConfigInvalid)
	assert.Error(t, checkEthernetLink("bad0"))
	assert.ErrorIs(t, checkEthernetLink("missing0"), os.ErrNotExist)
}

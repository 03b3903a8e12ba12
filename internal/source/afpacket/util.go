package afpacket

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"firestige.xyz/vesper/internal/core"
)

const (
	tpacketAlignment = 16      // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52      // TPACKET3_HDRLEN, rounded up
	maxBlockSize     = 4 << 20 // Upper bound for a single ring block

	arphrdEther    = 1   // ARPHRD_ETHER
	arphrdLoopback = 772 // ARPHRD_LOOPBACK, carries zeroed Ethernet headers
)

var sysClassNet = "/sys/class/net"

// checkEthernetLink rejects a named interface whose frames do not start with an
// Ethernet header. tun and ppp devices hand the raw ring bare IP packets.
func checkEthernetLink(device string) error {
	if device == "" {
		return nil
	}
	raw, err := os.ReadFile(filepath.Join(sysClassNet, device, "type"))
	if err != nil {
		return fmt.Errorf("afpacket: hardware type of %s: %w", device, err)
	}
	hwType, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("afpacket: hardware type of %s: %w", device, err)
	}
	switch hwType {
	case arphrdEther, arphrdLoopback:
		return nil
	default:
		return fmt.Errorf("afpacket: %w: %s has hardware type %d, only Ethernet links are supported (use the pcap source)",
			core.ErrConfigInvalid, device, hwType)
	}
}

// recomputeSize derives a ring layout that satisfies the PACKET_MMAP constraints:
//  1. frameSize is a multiple of TPACKET_ALIGNMENT
//  2. blockSize is a multiple of pageSize
//  3. blockSize is a multiple of frameSize
//  4. blockSize * numBlocks approximates ringBufferSizeMB, with at least one block
//
// Frames are rounded up to whole pages, which satisfies 1 to 3 for any snapLen.
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ringBufferSizeMB must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be positive and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = roundUp(tpacketHdrLen+snapLen, pageSize)

	framesPerBlock := maxBlockSize / frameSize
	if framesPerBlock < 1 {
		framesPerBlock = 1
	}
	blockSize = framesPerBlock * frameSize

	numBlocks = ringBufferSizeMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func roundUp(n, multiple int) int {
	return ((n + multiple - 1) / multiple) * multiple
}

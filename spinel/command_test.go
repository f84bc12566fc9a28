package spinel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCommand(t *testing.T) {
	cmd := buildCommand(0x01, 0x40, []byte{0xAA, 0xBB, 0xCC})
	assert.Equal(t, []byte{
		0x90, 0xEB, 0x01, 0x40,
		0x03, 0x00,
		0xAA, 0xBB, 0xCC,
		0x00, 0x00,
	}, cmd)
}

func TestTestCommand(t *testing.T) {
	cmd := testCommand(0x02)
	assert.Equal(t, []byte{0x90, 0xEB, 0x02, 0x01, 0x02, 0x00, 0x55, 0xAA, 0x00, 0x00}, cmd)
}

func TestReadDataCommand(t *testing.T) {
	cmd := readDataCommand(0x01, 0x12345678, 768)
	assert.Equal(t, byte(cmdReadData), cmd[3])
	// address and size are little-endian
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12, 0x00, 0x03}, cmd[6:12])
}

func TestIsTestReply(t *testing.T) {
	good := []byte{0x90, 0xEB, 0x01, 0x49, 0x03, 0x00, 0x00, 0xAA, 0x55, 0x00, 0x00}
	assert.True(t, isTestReply(good))

	bad := append([]byte{}, good...)
	bad[8] = 0x56
	assert.False(t, isTestReply(bad))

	assert.False(t, isTestReply([]byte{0x90, 0xEB}))
}

func TestReadySize(t *testing.T) {
	pkt := make([]byte, 19)
	pkt[7] = 0x40
	pkt[8] = 0x06
	assert.Equal(t, uint32(1600), readySize(pkt))
}

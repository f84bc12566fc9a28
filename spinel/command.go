package spinel

import "encoding/binary"

const (
	mark0    = 0x90
	mark1    = 0xEB
	respType = 0x49

	cmdTest     = 0x01
	cmdSnapshot = 0x40
	cmdReadData = 0x48

	headerSize  = 6
	trailerSize = 2

	// readyPayloadSize is the payload of the 19-byte frame announcing a
	// finished snapshot.
	readyPayloadSize = 11
	// testPayloadSize covers the three marker bytes checked by
	// CheckConnection.
	testPayloadSize = 3
)

// Default SNAPSHOT parameters.
const (
	snapshotMode    = 0x00
	snapshotQuality = 0x85
	snapshotResW    = 0x07
	snapshotResH    = 0x04
)

// buildCommand wraps a command for the camera:
// 0x90, 0xEB, deviceId, cmdType, lenLo, lenHi, data..., trailer.
// The two trailer bytes are a fixed pair; the camera firmware does not
// validate them as a checksum.
func buildCommand(deviceID, cmdType byte, data []byte) []byte {
	buf := make([]byte, 0, len(data)+headerSize+trailerSize)
	buf = append(buf, mark0, mark1, deviceID, cmdType,
		byte(len(data)), byte(len(data)>>8))
	buf = append(buf, data...)
	buf = append(buf, 0x00, 0x00)
	return buf
}

func testCommand(deviceID byte) []byte {
	return buildCommand(deviceID, cmdTest, []byte{0x55, 0xAA})
}

func snapshotCommand(deviceID byte) []byte {
	return buildCommand(deviceID, cmdSnapshot,
		[]byte{snapshotMode, snapshotQuality, snapshotResW, snapshotResH})
}

func readDataCommand(deviceID byte, addr uint32, size uint16) []byte {
	data := make([]byte, 6)
	binary.LittleEndian.PutUint32(data[0:4], addr)
	binary.LittleEndian.PutUint16(data[4:6], size)
	return buildCommand(deviceID, cmdReadData, data)
}

// isTestReply checks the fixed-offset marker bytes of a TEST response.
func isTestReply(pkt []byte) bool {
	return len(pkt) >= 9 &&
		pkt[6] == 0x00 && pkt[7] == 0xAA && pkt[8] == 0x55
}

// readySize extracts the advertised image size from a ready-frame.
func readySize(pkt []byte) uint32 {
	return binary.LittleEndian.Uint32(pkt[7:11])
}

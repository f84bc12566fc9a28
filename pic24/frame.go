package pic24

import (
	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
)

const (
	stx = 0x02
	etx = 0x03

	// MaxDataLen is the largest data section a single frame can carry.
	MaxDataLen = 64
)

// Inbound commands originated by the PIC24.
const (
	CmdPing          byte = 0x01
	CmdShutdown      byte = 0x02
	CmdGetSensorData byte = 0x03
)

// Outbound commands accepted by the PIC24.
const (
	CmdVout1On  byte = 0x10
	CmdVout1Off byte = 0x11
	CmdVout2On  byte = 0x12
	CmdVout2Off byte = 0x13
	CmdVout3On  byte = 0x14
	CmdVout3Off byte = 0x15
	CmdVout4On  byte = 0x16
	CmdVout4Off byte = 0x17

	CmdReset        byte = 0x20
	CmdPowerSaveOn  byte = 0x21
	CmdPowerSaveOff byte = 0x22
	CmdSatTxStart   byte = 0x23

	CmdSendSyncData     byte = 0x30
	CmdSetOnOffSchedule byte = 0x31
	CmdGetOnOffSchedule byte = 0x32
	CmdSetSatSchedule   byte = 0x33
	CmdGetSatSchedule   byte = 0x34
)

// Reply commands, sent by whichever side is answering.
const (
	CmdDataResponse byte = 0xA0
	CmdAckResponse  byte = 0xA1
	CmdNackResponse byte = 0xA2
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Frame is one PIC24 link message. On the wire it is wrapped as
// STX, lenHi, lenLo, seq, total, cmd, data..., crcHi, crcLo, ETX with the
// CRC computed over lenHi through the last data byte.
type Frame struct {
	Seq   byte
	Total byte
	Cmd   byte
	Data  []byte
}

func (f *Frame) Marshal() ([]byte, error) {
	if len(f.Data) > MaxDataLen {
		return nil, errors.Errorf("frame data too long: %v", len(f.Data))
	}
	buf := make([]byte, 0, len(f.Data)+10)
	buf = append(buf, stx,
		byte(len(f.Data)>>8), byte(len(f.Data)),
		f.Seq, f.Total, f.Cmd)
	buf = append(buf, f.Data...)
	crc := crc16.Checksum(buf[1:], crcTable)
	buf = append(buf, byte(crc>>8), byte(crc), etx)
	return buf, nil
}

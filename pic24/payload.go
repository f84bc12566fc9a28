package pic24

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// SnapshotSize is the wire size of a sensor snapshot payload.
const SnapshotSize = 95

// Snapshot is the fixed little-endian sensor report pushed to the PIC24
// in response to CmdGetSensorData. Field order is the wire order.
type Snapshot struct {
	Name      [16]byte
	Timestamp uint32
	PowerSave uint8

	CS125Visibility float32
	CS125Synop      uint16
	CS125Temp       float32
	CS125Humidity   float32

	SHT45Temp     float32
	SHT45Humidity float32
	RPiTemp       float32

	Chan1Current float32
	Chan2Current float32
	Chan3Current float32
	Chan4Current float32

	PVVoltage       float32
	PVCurrent       float32
	LoadVoltage     float32
	LoadCurrent     float32
	BatteryTemp     float32
	DeviceTemp      float32
	ChargeStatus    float32
	DischargeStatus float32
}

// SetName truncates or pads the station name into the fixed field.
func (s *Snapshot) SetName(name string) {
	s.Name = [16]byte{}
	copy(s.Name[:], name)
}

func (s *Snapshot) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, SnapshotSize))
	if err := binary.Write(buf, binary.LittleEndian, s); err != nil {
		return nil, errors.Wrap(err, "unable to encode snapshot payload")
	}
	if buf.Len() != SnapshotSize {
		return nil, errors.Errorf("snapshot payload is %v bytes, want %v", buf.Len(), SnapshotSize)
	}
	return buf.Bytes(), nil
}

// chunk splits a payload into frame-sized pieces for multi-packet uplink.
func chunk(payload []byte) [][]byte {
	var chunks [][]byte
	for len(payload) > MaxDataLen {
		chunks = append(chunks, payload[:MaxDataLen])
		payload = payload[MaxDataLen:]
	}
	return append(chunks, payload)
}

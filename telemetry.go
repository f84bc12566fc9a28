package ewcs

import "time"

// SensorSnapshot is the station's current sensor readout, gathered from
// the CS125, SHT45, ADC current channels and the solar charger by the
// driver layer behind SnapshotSource.
type SensorSnapshot struct {
	StationName string
	Timestamp   time.Time
	PowerSave   bool

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
	ChargeStatus    uint16
	DischargeStatus uint16
}

package ewcs

import (
	"context"
	"time"

	"github.com/fetmkr/ewcs/pic24"
	"github.com/fetmkr/ewcs/spinel"
)

type PIC24Link interface {
	Close() error
	Start(context.Context, pic24.Callbacks) error
	SetOutput(ch int, on bool) error
	Reset() error
	SetPowerSave(on bool) error
	StartSatTx() error
	SetOnOffSchedule(pic24.OnOffSchedule) error
	GetOnOffSchedule() (*pic24.OnOffSchedule, error)
	SetSatSchedule(pic24.SatSchedule) error
	GetSatSchedule() (*pic24.SatSchedule, error)
	SyncTime() (time.Time, error)
}

type Camera interface {
	Close() error
	Start(context.Context) error
	Capture(context.Context) (*spinel.Result, error)
	CheckConnection(context.Context) (bool, error)
}

// SnapshotSource supplies the current sensor readout. The GPIO/ADC and
// sensor drivers implementing it live outside this module.
type SnapshotSource interface {
	CurrentSnapshot() *SensorSnapshot
}

// SystemControl abstracts the host OS operations the PIC24 link
// triggers as side effects.
type SystemControl interface {
	SetClock(time.Time) error
	Shutdown() error
}

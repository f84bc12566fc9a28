package pic24

import (
	"time"

	"github.com/pkg/errors"
)

// Schedule modes understood by the PIC24 power controller.
const (
	// ScheduleHourly powers on at OnMinute and off at OffMinute of every
	// hour.
	ScheduleHourly byte = 1
	// ScheduleTenMinute powers on/off at single-digit minutes of every
	// ten-minute period.
	ScheduleTenMinute byte = 2
)

type OnOffSchedule struct {
	Mode      byte
	OnMinute  byte
	OffMinute byte
}

type SatSchedule struct {
	Hour   byte
	Minute byte
}

func parseOnOffSchedule(data []byte) (*OnOffSchedule, error) {
	if len(data) != 3 {
		return nil, errors.Errorf("on/off schedule reply is %v bytes, want 3", len(data))
	}
	return &OnOffSchedule{
		Mode:      data[0],
		OnMinute:  data[1],
		OffMinute: data[2],
	}, nil
}

func parseSatSchedule(data []byte) (*SatSchedule, error) {
	if len(data) != 2 {
		return nil, errors.Errorf("satellite schedule reply is %v bytes, want 2", len(data))
	}
	return &SatSchedule{
		Hour:   data[0],
		Minute: data[1],
	}, nil
}

// clockValidAfter guards against zeroed or garbage time replies: dates
// before it are discarded without touching the system clock.
var clockValidAfter = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func parseTimeReply(data []byte) (time.Time, error) {
	if len(data) != 6 {
		return time.Time{}, errors.Errorf("time reply is %v bytes, want 6", len(data))
	}
	t := time.Date(2000+int(data[0]), time.Month(data[1]), int(data[2]),
		int(data[3]), int(data[4]), int(data[5]), 0, time.UTC)
	if t.Before(clockValidAfter) {
		return time.Time{}, errors.Errorf("implausible device time %v", t)
	}
	return t, nil
}

package ewcs

import (
	"sync"
	"time"
)

// SimulatedSource generates slowly oscillating sensor values for
// bench-testing the station without attached hardware.
type SimulatedSource struct {
	stationName string

	mu   sync.Mutex
	snap SensorSnapshot
	down bool
}

func NewSimulatedSource(stationName string) *SimulatedSource {
	s := &SimulatedSource{
		stationName: stationName,
	}
	s.snap.StationName = stationName
	go s.run()
	return s
}

func (s *SimulatedSource) run() {
	for range time.Tick(time.Second) {
		s.mu.Lock()
		if s.down {
			s.snap.SHT45Temp -= 0.5
			s.snap.CS125Visibility -= 100
			s.snap.PVVoltage -= 0.1
		} else {
			s.snap.SHT45Temp += 0.5
			s.snap.CS125Visibility += 100
			s.snap.PVVoltage += 0.1
		}
		if s.snap.SHT45Temp >= 30 {
			s.down = true
		} else if s.snap.SHT45Temp <= -30 {
			s.down = false
		}
		s.mu.Unlock()
	}
}

func (s *SimulatedSource) CurrentSnapshot() *SensorSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Timestamp = time.Now()
	return &snap
}

// NullSource reports only the station identity; sensor values stay
// zero. Used when the driver processes are not running.
type NullSource struct {
	StationName string
}

func (s *NullSource) CurrentSnapshot() *SensorSnapshot {
	return &SensorSnapshot{
		StationName: s.StationName,
		Timestamp:   time.Now(),
	}
}

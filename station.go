package ewcs

import (
	"context"
	"time"

	"github.com/fetmkr/ewcs/pic24"
	"github.com/fetmkr/ewcs/spinel"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// to allow testing
var pic24Connect = func(portName string, baud int) (PIC24Link, error) {
	return pic24.Connect(portName, baud)
}

var cameraConnect = func(cfg spinel.Config) (Camera, error) {
	return spinel.Connect(cfg)
}

type pic24Retryable struct {
	c       PIC24Link
	station *Station
}

func (p *pic24Retryable) Name() string {
	return "pic24"
}

func (p *pic24Retryable) Open() error {
	c, err := pic24Connect(p.station.cfg.PIC24.Port, p.station.cfg.PIC24.Baud)
	p.c = c
	return err
}

func (p *pic24Retryable) Close() error {
	if p.c == nil {
		return nil
	}
	return p.c.Close()
}

func (p *pic24Retryable) Start(ctx context.Context) error {
	return p.c.Start(ctx, pic24.Callbacks{
		Snapshot: p.station.snapshotPayload,
		Shutdown: func() {
			if err := p.station.system.Shutdown(); err != nil {
				log.WithField("err", err).Error("shutdown request failed")
			}
		},
		SetClock: func(t time.Time) {
			if err := p.station.system.SetClock(t); err != nil {
				log.WithField("err", err).Error("unable to apply device time")
			}
		},
	})
}

type cameraRetryable struct {
	c       Camera
	station *Station
}

func (cr *cameraRetryable) Name() string {
	return "camera"
}

func (cr *cameraRetryable) Open() error {
	c, err := cameraConnect(spinel.Config{
		Port:       cr.station.cfg.Camera.Port,
		Baud:       cr.station.cfg.Camera.Baud,
		DeviceID:   byte(cr.station.cfg.Camera.DeviceID),
		PacketSize: cr.station.cfg.Camera.PacketSize,
		ImageDir:   cr.station.cfg.Camera.ImageDir,
	})
	cr.c = c
	return err
}

func (cr *cameraRetryable) Close() error {
	if cr.c == nil {
		return nil
	}
	return cr.c.Close()
}

func (cr *cameraRetryable) Start(ctx context.Context) error {
	return cr.c.Start(ctx)
}

// Station ties the two protocol links to the sensor drivers and the
// host OS. The HTTP layer calls into it; it never calls out.
type Station struct {
	cfg    *Config
	source SnapshotSource
	system SystemControl

	link   *pic24Retryable
	camera *cameraRetryable
}

func NewStation(cfg *Config, source SnapshotSource, system SystemControl) *Station {
	s := &Station{
		cfg:    cfg,
		source: source,
		system: system,
	}
	s.link = &pic24Retryable{station: s}
	s.camera = &cameraRetryable{station: s}
	return s
}

// Start brings up both serial links, reconnecting on failure until ctx
// is cancelled.
func (s *Station) Start(ctx context.Context) {
	go func() {
		if err := retry(ctx, s.link); err != nil {
			log.Errorf("pic24 done: %v", err)
		}
	}()
	go func() {
		if err := retry(ctx, s.camera); err != nil {
			log.Errorf("camera done: %v", err)
		}
	}()
}

// Link exposes the PIC24 command surface, nil until the first connect.
func (s *Station) Link() PIC24Link {
	return s.link.c
}

func (s *Station) snapshotPayload() *pic24.Snapshot {
	snap := s.source.CurrentSnapshot()
	p := &pic24.Snapshot{
		Timestamp: uint32(snap.Timestamp.Unix()),

		CS125Visibility: snap.CS125Visibility,
		CS125Synop:      snap.CS125Synop,
		CS125Temp:       snap.CS125Temp,
		CS125Humidity:   snap.CS125Humidity,

		SHT45Temp:     snap.SHT45Temp,
		SHT45Humidity: snap.SHT45Humidity,
		RPiTemp:       snap.RPiTemp,

		Chan1Current: snap.Chan1Current,
		Chan2Current: snap.Chan2Current,
		Chan3Current: snap.Chan3Current,
		Chan4Current: snap.Chan4Current,

		PVVoltage:       snap.PVVoltage,
		PVCurrent:       snap.PVCurrent,
		LoadVoltage:     snap.LoadVoltage,
		LoadCurrent:     snap.LoadCurrent,
		BatteryTemp:     snap.BatteryTemp,
		DeviceTemp:      snap.DeviceTemp,
		ChargeStatus:    float32(snap.ChargeStatus),
		DischargeStatus: float32(snap.DischargeStatus),
	}
	p.SetName(snap.StationName)
	if snap.PowerSave {
		p.PowerSave = 1
	}
	return p
}

// CaptureImage takes a snapshot on the camera link.
func (s *Station) CaptureImage(ctx context.Context) (*spinel.Result, error) {
	if s.camera.c == nil {
		return nil, errors.New("camera is not connected")
	}
	return s.camera.c.Capture(ctx)
}

// CheckCamera probes the camera link.
func (s *Station) CheckCamera(ctx context.Context) (bool, error) {
	if s.camera.c == nil {
		return false, errors.New("camera is not connected")
	}
	return s.camera.c.CheckConnection(ctx)
}

// SyncClock pulls the PIC24 RTC time onto the host clock.
func (s *Station) SyncClock() (time.Time, error) {
	if s.link.c == nil {
		return time.Time{}, errors.New("pic24 is not connected")
	}
	return s.link.c.SyncTime()
}

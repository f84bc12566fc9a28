package spinel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

var (
	tickInterval   = 100 * time.Millisecond
	captureTimeout = 15 * time.Second
	testTimeout    = 2500 * time.Millisecond

	// SNAPSHOT is re-sent every snapshotRetryTicks ticks while waiting
	// for the ready-frame, up to maxSnapshotTries attempts.
	snapshotRetryTicks = 10
	maxSnapshotTries   = 5
)

var timeNow = time.Now

// Capture failure reasons.
const (
	ReasonNotResponding    = "not_responding"
	ReasonAlreadyCapturing = "already_capturing"
	ReasonSizeMismatch     = "size_mismatch"
	ReasonTimeout          = "timeout"
)

// Result is the structured outcome of a capture. Captures report
// failure through Reason rather than an error so callers can branch
// without unwrapping.
type Result struct {
	Success   bool
	Reason    string
	Filename  string
	SavedPath string
}

type captureState int

const (
	stateIdle captureState = iota
	stateAwaitPacket
	stateWaitResponse
	stateSave
)

// session tracks one in-flight capture. It exists only for the duration
// of a single Capture call.
type session struct {
	state         captureState
	snapshotSize  int
	packetCounter int
	packetCount   int
	remainder     int
	image         []byte
	tryCount      int
	ticks         int
}

func (s *session) requests() int {
	n := s.packetCount
	if s.remainder > 0 {
		n++
	}
	return n
}

type Config struct {
	Port       string
	Baud       int
	DeviceID   byte
	PacketSize int
	ImageDir   string
}

// Camera owns one image-transfer serial link.
type Camera struct {
	cfg  Config
	port io.ReadWriteCloser
	asm  *reassembler

	// completed packets from the read loop; stale ones are drained
	// before each request
	packets chan []byte

	mu   sync.Mutex
	busy bool
}

// to allow testing
var openPort = func(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud})
}

func Connect(cfg Config) (*Camera, error) {
	port, err := openPort(cfg.Port, cfg.Baud)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", cfg.Port)
	}
	return &Camera{
		cfg:     cfg,
		port:    port,
		asm:     newReassembler(cfg.DeviceID),
		packets: make(chan []byte, 4),
	}, nil
}

func (c *Camera) Close() error {
	return c.port.Close()
}

// Start reads the camera link until it fails or ctx is cancelled.
func (c *Camera) Start(ctx context.Context) error {
	log.Info("camera link opened")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := c.port.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close camera port after context")
			}
		case <-done:
		}
	}()

	buf := make([]byte, 1024)
	for {
		n, err := c.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "camera read failed")
		}
		for _, pkt := range c.asm.feed(buf[:n]) {
			select {
			case c.packets <- pkt:
			default:
				log.Debug("dropping camera packet, no consumer")
			}
		}
	}
}

func (c *Camera) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

func (c *Camera) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// send drains stale packets, arms the reassembler for a reply of the
// given payload size and writes the command.
func (c *Camera) send(cmd []byte, replySize int) error {
	for {
		select {
		case <-c.packets:
			continue
		default:
		}
		break
	}
	c.asm.expect(replySize)
	if _, err := c.port.Write(cmd); err != nil {
		return errors.Wrap(err, "camera write failed")
	}
	return nil
}

// CheckConnection probes the camera with a TEST command and reports
// whether the fixed reply marker came back. A silent camera is reported
// as false, not an error.
func (c *Camera) CheckConnection(ctx context.Context) (bool, error) {
	if !c.acquire() {
		return false, errors.New("camera link is busy")
	}
	defer c.release()

	if err := c.send(testCommand(c.cfg.DeviceID), testPayloadSize); err != nil {
		return false, err
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(testTimeout):
		return false, nil
	case pkt := <-c.packets:
		return isTestReply(pkt), nil
	}
}

// Capture runs one full snapshot transfer: trigger a snapshot, read the
// image back packet by packet, persist it under ImageDir. The state
// machine is driven by a 100ms tick with a hard overall deadline.
func (c *Camera) Capture(ctx context.Context) (*Result, error) {
	if !c.acquire() {
		return &Result{Success: false, Reason: ReasonAlreadyCapturing}, nil
	}
	defer c.release()

	s := &session{state: stateIdle}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	deadline := time.After(captureTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			log.WithField("state", s.state).Warn("capture deadline expired")
			return &Result{Success: false, Reason: ReasonTimeout}, nil
		case pkt := <-c.packets:
			res, err := c.handlePacket(s, pkt)
			if res != nil || err != nil {
				return res, err
			}
		case <-ticker.C:
			res, err := c.tick(s)
			if res != nil || err != nil {
				return res, err
			}
		}
	}
}

func (c *Camera) tick(s *session) (*Result, error) {
	switch s.state {
	case stateIdle:
		if s.ticks%snapshotRetryTicks == 0 {
			if s.tryCount >= maxSnapshotTries {
				return &Result{Success: false, Reason: ReasonNotResponding}, nil
			}
			s.tryCount++
			if err := c.send(snapshotCommand(c.cfg.DeviceID), readyPayloadSize); err != nil {
				return nil, err
			}
		}
		s.ticks++
	case stateAwaitPacket:
		addr := uint32(s.packetCounter * c.cfg.PacketSize)
		size := c.cfg.PacketSize
		if s.packetCounter == s.packetCount && s.remainder > 0 {
			size = s.remainder
		}
		if err := c.send(readDataCommand(c.cfg.DeviceID, addr, uint16(size)), size); err != nil {
			return nil, err
		}
		s.state = stateWaitResponse
	case stateWaitResponse:
		// passive, waiting on the reassembler
	}
	return nil, nil
}

func (c *Camera) handlePacket(s *session, pkt []byte) (*Result, error) {
	switch s.state {
	case stateIdle:
		if len(pkt) != readyPayloadSize+headerSize+trailerSize {
			log.WithField("len", len(pkt)).Debug("ignoring unexpected camera packet")
			return nil, nil
		}
		s.snapshotSize = int(readySize(pkt))
		s.packetCount = s.snapshotSize / c.cfg.PacketSize
		s.remainder = s.snapshotSize % c.cfg.PacketSize
		s.packetCounter = 0
		s.image = s.image[:0]
		log.WithField("size", s.snapshotSize).
			WithField("packets", s.requests()).
			Debug("snapshot ready")
		s.state = stateAwaitPacket
	case stateWaitResponse:
		s.image = append(s.image, pkt[headerSize:len(pkt)-trailerSize]...)
		s.packetCounter++
		if s.packetCounter < s.requests() {
			s.state = stateAwaitPacket
			return nil, nil
		}
		s.state = stateSave
		return c.save(s)
	}
	return nil, nil
}

// save persists the assembled image under <ImageDir>/<YYYY-MM>/ and
// always leaves the session back at idle.
func (c *Camera) save(s *session) (*Result, error) {
	defer func() {
		*s = session{state: stateIdle}
	}()

	if len(s.image) != s.snapshotSize {
		log.WithField("got", len(s.image)).
			WithField("want", s.snapshotSize).
			Error("assembled image size mismatch")
		return &Result{Success: false, Reason: ReasonSizeMismatch}, nil
	}

	now := timeNow()
	dir := filepath.Join(c.cfg.ImageDir, now.Format("2006-01"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", dir)
	}
	filename := fmt.Sprintf("%d.jpg", now.Unix())
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, s.image, 0644); err != nil {
		return nil, errors.Wrapf(err, "unable to write %s", path)
	}
	log.WithField("path", path).
		WithField("bytes", len(s.image)).
		Info("image saved")
	return &Result{
		Success:   true,
		Filename:  filename,
		SavedPath: path,
	}, nil
}

package spinel

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type portStub struct {
	readChan  chan []byte
	writeChan chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newPortStub() *portStub {
	return &portStub{
		readChan:  make(chan []byte),
		writeChan: make(chan []byte, 32),
		closed:    make(chan struct{}),
	}
}

func (p *portStub) Read(b []byte) (int, error) {
	select {
	case data := <-p.readChan:
		return copy(b, data), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *portStub) Write(b []byte) (int, error) {
	data := make([]byte, len(b))
	copy(data, b)
	select {
	case p.writeChan <- data:
		return len(b), nil
	case <-p.closed:
		return 0, io.ErrClosedPipe
	}
}

func (p *portStub) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}

func noDelays() func() {
	origTick := tickInterval
	origCapture := captureTimeout
	origTest := testTimeout
	origRetry := snapshotRetryTicks
	tickInterval = time.Millisecond
	captureTimeout = 2 * time.Second
	testTimeout = 50 * time.Millisecond
	snapshotRetryTicks = 5
	return func() {
		tickInterval = origTick
		captureTimeout = origCapture
		testTimeout = origTest
		snapshotRetryTicks = origRetry
	}
}

func newTestCamera(t *testing.T, packetSize int) (*Camera, *portStub) {
	port := newPortStub()
	return &Camera{
		cfg: Config{
			DeviceID:   0x01,
			PacketSize: packetSize,
			ImageDir:   t.TempDir(),
		},
		port:    port,
		asm:     newReassembler(0x01),
		packets: make(chan []byte, 4),
	}, port
}

func startCamera(t *testing.T, packetSize int) (*Camera, *portStub, func()) {
	c, port := newTestCamera(t, packetSize)
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		_ = c.Start(ctx)
		wg.Done()
	}()
	return c, port, func() {
		cancel()
		wg.Wait()
	}
}

func readyPacket(size uint32) []byte {
	payload := make([]byte, readyPayloadSize)
	binary.LittleEndian.PutUint32(payload[1:5], size)
	return packet(0x01, payload)
}

func TestCheckConnection(t *testing.T) {
	defer noDelays()()
	c, port, cleanup := startCamera(t, 768)
	defer cleanup()

	resChan := make(chan bool, 1)
	go func() {
		ok, err := c.CheckConnection(context.Background())
		assert.NoError(t, err)
		resChan <- ok
	}()

	cmd := <-port.writeChan
	assert.Equal(t, testCommand(0x01), cmd)
	port.readChan <- packet(0x01, []byte{0x00, 0xAA, 0x55})

	assert.True(t, <-resChan)
}

func TestCheckConnectionBadReply(t *testing.T) {
	defer noDelays()()
	c, port, cleanup := startCamera(t, 768)
	defer cleanup()

	resChan := make(chan bool, 1)
	go func() {
		ok, err := c.CheckConnection(context.Background())
		assert.NoError(t, err)
		resChan <- ok
	}()

	<-port.writeChan
	port.readChan <- packet(0x01, []byte{0x00, 0xAA, 0x56})

	assert.False(t, <-resChan)
}

func TestCheckConnectionTimeout(t *testing.T) {
	defer noDelays()()
	c, _, cleanup := startCamera(t, 768)
	defer cleanup()

	ok, err := c.CheckConnection(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

// respond plays the camera side of a capture: answer SNAPSHOT with a
// ready-frame and READ_DATA with the matching slice of image.
func respond(t *testing.T, port *portStub, image []byte) {
	for {
		var cmd []byte
		select {
		case cmd = <-port.writeChan:
		case <-port.closed:
			return
		}
		switch cmd[3] {
		case cmdSnapshot:
			port.readChan <- readyPacket(uint32(len(image)))
		case cmdReadData:
			addr := binary.LittleEndian.Uint32(cmd[6:10])
			size := binary.LittleEndian.Uint16(cmd[10:12])
			port.readChan <- packet(0x01, image[addr:int(addr)+int(size)])
		default:
			t.Errorf("unexpected camera command %#x", cmd[3])
			return
		}
	}
}

func TestCaptureFlow(t *testing.T) {
	defer noDelays()()
	c, port, cleanup := startCamera(t, 8)
	defer cleanup()

	// 20 bytes with an 8 byte packet size: requests of 8, 8, 4
	image := make([]byte, 20)
	for i := range image {
		image[i] = byte(i * 3)
	}
	go respond(t, port, image)

	res, err := c.Capture(context.Background())
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Reason)

	saved, err := os.ReadFile(res.SavedPath)
	assert.NoError(t, err)
	assert.Equal(t, image, saved)
	assert.Equal(t, filepath.Base(res.SavedPath), res.Filename)
}

// The advertised 1600 byte image with a 768 byte packet size must be
// requested as 768, 768, 64.
func TestCapturePacketMath(t *testing.T) {
	c, port := newTestCamera(t, 768)

	s := &session{state: stateIdle}
	res, err := c.handlePacket(s, readyPacket(1600))
	assert.Nil(t, res)
	assert.NoError(t, err)
	assert.Equal(t, stateAwaitPacket, s.state)
	assert.Equal(t, 1600, s.snapshotSize)
	assert.Equal(t, 2, s.packetCount)
	assert.Equal(t, 64, s.remainder)
	assert.Equal(t, 3, s.requests())

	wantAddrs := []uint32{0, 768, 1536}
	wantSizes := []uint16{768, 768, 64}
	for i := 0; i < 3; i++ {
		res, err = c.tick(s)
		assert.Nil(t, res)
		assert.NoError(t, err)
		assert.Equal(t, stateWaitResponse, s.state)

		cmd := <-port.writeChan
		assert.Equal(t, byte(cmdReadData), cmd[3])
		assert.Equal(t, wantAddrs[i], binary.LittleEndian.Uint32(cmd[6:10]))
		assert.Equal(t, wantSizes[i], binary.LittleEndian.Uint16(cmd[10:12]))

		if i < 2 {
			res, err = c.handlePacket(s, packet(0x01, make([]byte, wantSizes[i])))
			assert.Nil(t, res)
			assert.NoError(t, err)
			assert.Equal(t, stateAwaitPacket, s.state)
		}
	}

	// final packet completes the transfer
	res, err = c.handlePacket(s, packet(0x01, make([]byte, 64)))
	assert.NoError(t, err)
	assert.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, stateIdle, s.state, "session resets after save")
}

func TestCaptureAlreadyCapturing(t *testing.T) {
	defer noDelays()()
	c, _, cleanup := startCamera(t, 8)
	defer cleanup()

	assert.True(t, c.acquire())
	res, err := c.Capture(context.Background())
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonAlreadyCapturing, res.Reason)
	c.release()
}

func TestCaptureNotResponding(t *testing.T) {
	defer noDelays()()
	c, port, cleanup := startCamera(t, 8)
	defer cleanup()

	res, err := c.Capture(context.Background())
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonNotResponding, res.Reason)

	snapshots := 0
	for done := false; !done; {
		select {
		case cmd := <-port.writeChan:
			if cmd[3] == cmdSnapshot {
				snapshots++
			}
		default:
			done = true
		}
	}
	assert.Equal(t, maxSnapshotTries, snapshots)
}

func TestSaveSizeMismatch(t *testing.T) {
	c, _ := newTestCamera(t, 8)

	s := &session{
		state:        stateSave,
		snapshotSize: 10,
		image:        make([]byte, 5),
	}
	res, err := c.save(s)
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonSizeMismatch, res.Reason)
	assert.Equal(t, stateIdle, s.state)
}

func TestSaveLayout(t *testing.T) {
	origTimeNow := timeNow
	timeNow = func() time.Time {
		return time.Date(2025, time.August, 26, 12, 0, 0, 0, time.UTC)
	}
	defer func() {
		timeNow = origTimeNow
	}()

	c, _ := newTestCamera(t, 8)
	s := &session{
		state:        stateSave,
		snapshotSize: 4,
		image:        []byte{1, 2, 3, 4},
	}
	res, err := c.save(s)
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "1756209600.jpg", res.Filename)
	assert.Equal(t, filepath.Join(c.cfg.ImageDir, "2025-08", res.Filename), res.SavedPath)

	data, err := os.ReadFile(res.SavedPath)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

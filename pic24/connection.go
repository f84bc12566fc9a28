package pic24

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

var (
	ackTimeout       = 200 * time.Millisecond
	dataTimeout      = 2 * time.Second
	uplinkAckTimeout = time.Second
	shutdownDelay    = 2 * time.Second
)

// ErrNack reports that the PIC24 received a command but refused it.
var ErrNack = errors.New("command rejected by device")

// Callbacks receive unsolicited traffic from the PIC24. All fields are
// optional.
type Callbacks struct {
	// Snapshot supplies the current sensor report when the PIC24 asks
	// for one with CmdGetSensorData.
	Snapshot func() *Snapshot
	// Shutdown is invoked after an acknowledged CmdShutdown, once the
	// controlled outputs have been turned off.
	Shutdown func()
	// SetClock is invoked with a validated device time after SyncTime.
	SetClock func(time.Time)
}

// Connection owns one PIC24 serial link. All partial-frame state is
// confined to the Start goroutine; outbound calls serialize through the
// pending-request registry and a write lock.
type Connection struct {
	port io.ReadWriteCloser
	cb   Callbacks
	reg  *registry

	seqMu   sync.Mutex
	seq     byte
	writeMu sync.Mutex
}

// to allow testing
var openPort = func(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud})
}

func Connect(portName string, baud int) (*Connection, error) {
	port, err := openPort(portName, baud)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", portName)
	}
	return &Connection{
		port: port,
		reg:  newRegistry(),
	}, nil
}

func (c *Connection) Close() error {
	return c.port.Close()
}

// Start reads the link until it fails or ctx is cancelled. Any pending
// requests are rejected when the read loop exits.
func (c *Connection) Start(ctx context.Context, cb Callbacks) error {
	c.cb = cb
	p := newParser(c.handleFrame)
	log.Info("PIC24 link opened")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := c.port.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close PIC24 port after context")
			}
		case <-done:
		}
	}()

	buf := make([]byte, 256)
	for {
		n, err := c.port.Read(buf)
		if err != nil {
			c.reg.rejectAll(err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "PIC24 read failed")
		}
		p.Feed(buf[:n])
	}
}

func (c *Connection) nextSeq() byte {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	seq := c.seq
	c.seq++
	return seq
}

func (c *Connection) write(f *Frame) error {
	raw, err := f.Marshal()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.port.Write(raw); err != nil {
		return errors.Wrap(err, "PIC24 write failed")
	}
	return nil
}

// command sends a simple command and awaits its ACK/NACK.
func (c *Connection) command(cmd byte, data []byte) error {
	f := &Frame{
		Seq:   c.nextSeq(),
		Total: 1,
		Cmd:   cmd,
		Data:  data,
	}
	res, err := c.transact(f, pendingKey{cmd: CmdAckResponse, seq: f.Seq}, ackTimeout)
	if err != nil {
		return err
	}
	if res.Cmd == CmdNackResponse {
		return ErrNack
	}
	return nil
}

// dataGet sends a request whose reply comes back as CmdDataResponse.
// Only one data request may be outstanding at a time.
func (c *Connection) dataGet(cmd byte) ([]byte, error) {
	f := &Frame{
		Seq:   c.nextSeq(),
		Total: 1,
		Cmd:   cmd,
	}
	res, err := c.transact(f, dataSlotKey, dataTimeout)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *Connection) transact(f *Frame, key pendingKey, timeout time.Duration) (*Frame, error) {
	ch, err := c.reg.register(key, timeout)
	if err != nil {
		return nil, err
	}
	if err := c.write(f); err != nil {
		c.reg.reject(key, err)
		<-ch
		return nil, err
	}
	res := <-ch
	if res.err != nil {
		return nil, errors.Wrapf(res.err, "command %#x", f.Cmd)
	}
	return res.frame, nil
}

func (c *Connection) handleFrame(f *Frame) {
	log.WithField("cmd", f.Cmd).
		WithField("seq", f.Seq).
		Debug("received PIC24 frame")

	switch f.Cmd {
	case CmdPing:
		c.sendAck(f.Seq)
	case CmdShutdown:
		c.sendAck(f.Seq)
		go c.shutdown()
	case CmdGetSensorData:
		c.sendAck(f.Seq)
		go c.uplinkSnapshot()
	case CmdDataResponse:
		if !c.reg.resolve(dataSlotKey, f) {
			log.WithField("seq", f.Seq).Debug("dropping unmatched data response")
		}
	case CmdAckResponse, CmdNackResponse:
		if !c.reg.resolve(pendingKey{cmd: CmdAckResponse, seq: f.Seq}, f) {
			log.WithField("seq", f.Seq).Debug("dropping unmatched ack")
		}
	default:
		log.WithField("cmd", f.Cmd).Debug("ignoring unknown command")
	}
}

func (c *Connection) sendAck(seq byte) {
	err := c.write(&Frame{
		Seq:   seq,
		Total: 1,
		Cmd:   CmdAckResponse,
	})
	if err != nil {
		log.WithField("err", err).Warn("unable to send ack")
	}
}

func (c *Connection) shutdown() {
	for ch := 1; ch <= 4; ch++ {
		if err := c.SetOutput(ch, false); err != nil {
			log.WithField("err", err).Warnf("unable to turn off VOUT%d before shutdown", ch)
		}
	}
	time.Sleep(shutdownDelay)
	if c.cb.Shutdown != nil {
		c.cb.Shutdown()
	}
}

// uplinkSnapshot pushes the current sensor report as a multi-packet
// transfer: chunk i carries seq=i and total=n, and every chunk but the
// last must be acknowledged before the next is sent.
func (c *Connection) uplinkSnapshot() {
	if c.cb.Snapshot == nil {
		log.Warn("sensor data requested but no snapshot callback set")
		return
	}
	payload, err := c.cb.Snapshot().Marshal()
	if err != nil {
		log.WithField("err", err).Error("unable to build snapshot payload")
		return
	}

	chunks := chunk(payload)
	for i, data := range chunks {
		f := &Frame{
			Seq:   byte(i),
			Total: byte(len(chunks)),
			Cmd:   CmdDataResponse,
			Data:  data,
		}
		if i == len(chunks)-1 {
			if err := c.write(f); err != nil {
				log.WithField("err", err).Error("unable to send final snapshot chunk")
			}
			return
		}
		res, err := c.transact(f, pendingKey{cmd: CmdAckResponse, seq: f.Seq}, uplinkAckTimeout)
		if err != nil {
			log.WithField("err", err).
				WithField("chunk", i).
				Error("aborting snapshot uplink")
			return
		}
		if res.Cmd == CmdNackResponse {
			log.WithField("chunk", i).Error("snapshot chunk refused, aborting uplink")
			return
		}
	}
}

// SetOutput switches one of the four controlled power outputs.
func (c *Connection) SetOutput(ch int, on bool) error {
	if ch < 1 || ch > 4 {
		return errors.Errorf("no such output channel: %v", ch)
	}
	cmd := CmdVout1On + byte(ch-1)*2
	if !on {
		cmd++
	}
	return c.command(cmd, nil)
}

func (c *Connection) Reset() error {
	return c.command(CmdReset, nil)
}

func (c *Connection) SetPowerSave(on bool) error {
	if on {
		return c.command(CmdPowerSaveOn, nil)
	}
	return c.command(CmdPowerSaveOff, nil)
}

// StartSatTx triggers an immediate satellite transmission.
func (c *Connection) StartSatTx() error {
	return c.command(CmdSatTxStart, nil)
}

func (c *Connection) SetOnOffSchedule(s OnOffSchedule) error {
	return c.command(CmdSetOnOffSchedule, []byte{s.Mode, s.OnMinute, s.OffMinute})
}

func (c *Connection) GetOnOffSchedule() (*OnOffSchedule, error) {
	data, err := c.dataGet(CmdGetOnOffSchedule)
	if err != nil {
		return nil, err
	}
	return parseOnOffSchedule(data)
}

func (c *Connection) SetSatSchedule(s SatSchedule) error {
	return c.command(CmdSetSatSchedule, []byte{s.Hour, s.Minute})
}

func (c *Connection) GetSatSchedule() (*SatSchedule, error) {
	data, err := c.dataGet(CmdGetSatSchedule)
	if err != nil {
		return nil, err
	}
	return parseSatSchedule(data)
}

// SyncTime asks the PIC24 for its RTC time and, when the reply passes
// the validity check, applies it through the SetClock callback.
func (c *Connection) SyncTime() (time.Time, error) {
	data, err := c.dataGet(CmdSendSyncData)
	if err != nil {
		return time.Time{}, err
	}
	t, err := parseTimeReply(data)
	if err != nil {
		return time.Time{}, err
	}
	if c.cb.SetClock != nil {
		c.cb.SetClock(t)
	}
	return t, nil
}

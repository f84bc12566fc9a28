package pic24

import (
	"github.com/sigurn/crc16"
	log "github.com/sirupsen/logrus"
)

type parseState int

const (
	waitSTX parseState = iota
	readLenH
	readLenL
	readSeq
	readTotal
	readCmd
	readData
	readCRCH
	readCRCL
	waitETX
)

// parser reassembles complete frames from arbitrarily fragmented serial
// bytes. Frames whose CRC does not match are dropped without notice and
// scanning resumes at the next STX.
type parser struct {
	deliver func(*Frame)

	state   parseState
	frame   Frame
	dataLen int
	crc     uint16
	checked []byte // lenHi through last data byte, CRC input
}

func newParser(deliver func(*Frame)) *parser {
	return &parser{
		deliver: deliver,
	}
}

func (p *parser) Feed(buf []byte) {
	for _, b := range buf {
		p.feedByte(b)
	}
}

func (p *parser) reset() {
	p.state = waitSTX
	p.frame = Frame{}
	p.dataLen = 0
	p.crc = 0
	p.checked = p.checked[:0]
}

func (p *parser) feedByte(b byte) {
	switch p.state {
	case waitSTX:
		if b == stx {
			p.state = readLenH
		}
	case readLenH:
		p.dataLen = int(b) << 8
		p.checked = append(p.checked, b)
		p.state = readLenL
	case readLenL:
		p.dataLen |= int(b)
		p.checked = append(p.checked, b)
		if p.dataLen > MaxDataLen {
			log.WithField("len", p.dataLen).Debug("frame length out of range")
			p.reset()
			return
		}
		p.state = readSeq
	case readSeq:
		p.frame.Seq = b
		p.checked = append(p.checked, b)
		p.state = readTotal
	case readTotal:
		p.frame.Total = b
		p.checked = append(p.checked, b)
		p.state = readCmd
	case readCmd:
		p.frame.Cmd = b
		p.checked = append(p.checked, b)
		if p.dataLen > 0 {
			p.state = readData
		} else {
			p.state = readCRCH
		}
	case readData:
		p.frame.Data = append(p.frame.Data, b)
		p.checked = append(p.checked, b)
		if len(p.frame.Data) == p.dataLen {
			p.state = readCRCH
		}
	case readCRCH:
		p.crc = uint16(b) << 8
		p.state = readCRCL
	case readCRCL:
		p.crc |= uint16(b)
		p.state = waitETX
	case waitETX:
		if b == etx {
			p.finish()
		}
		p.reset()
	}
}

func (p *parser) finish() {
	if crc := crc16.Checksum(p.checked, crcTable); crc != p.crc {
		log.WithField("cmd", p.frame.Cmd).
			WithField("seq", p.frame.Seq).
			Debug("dropping frame with bad crc")
		return
	}
	f := p.frame
	if p.dataLen > 0 {
		f.Data = make([]byte, p.dataLen)
		copy(f.Data, p.frame.Data)
	}
	p.deliver(&f)
}

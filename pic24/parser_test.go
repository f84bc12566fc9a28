package pic24

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestParser(frames *[]*Frame) *parser {
	return newParser(func(f *Frame) {
		*frames = append(*frames, f)
	})
}

func mustMarshal(t *testing.T, f *Frame) []byte {
	raw, err := f.Marshal()
	assert.NoError(t, err)
	return raw
}

func TestParseUnfragmented(t *testing.T) {
	var frames []*Frame
	p := newTestParser(&frames)

	raw := mustMarshal(t, &Frame{
		Seq:   5,
		Total: 1,
		Cmd:   CmdPing,
		Data:  []byte{1, 2, 3},
	})
	p.Feed(raw)

	assert.Len(t, frames, 1)
	assert.Equal(t, byte(5), frames[0].Seq)
	assert.Equal(t, byte(1), frames[0].Total)
	assert.Equal(t, CmdPing, frames[0].Cmd)
	assert.Equal(t, []byte{1, 2, 3}, frames[0].Data)
}

func TestParseEmptyData(t *testing.T) {
	var frames []*Frame
	p := newTestParser(&frames)

	p.Feed(mustMarshal(t, &Frame{Seq: 9, Total: 1, Cmd: CmdReset}))

	assert.Len(t, frames, 1)
	assert.Equal(t, CmdReset, frames[0].Cmd)
	assert.Nil(t, frames[0].Data)
}

// Any byte-boundary fragmentation must yield the same frame as an
// unfragmented parse.
func TestParseFragmented(t *testing.T) {
	want := &Frame{
		Seq:   200,
		Total: 3,
		Cmd:   CmdGetSensorData,
		Data:  []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x42},
	}
	raw := mustMarshal(t, want)

	for split := 1; split < len(raw); split++ {
		var frames []*Frame
		p := newTestParser(&frames)

		p.Feed(raw[:split])
		p.Feed(raw[split:])

		assert.Len(t, frames, 1, "split at %v", split)
		assert.Equal(t, want.Seq, frames[0].Seq)
		assert.Equal(t, want.Total, frames[0].Total)
		assert.Equal(t, want.Cmd, frames[0].Cmd)
		assert.Equal(t, want.Data, frames[0].Data)
	}

	// one byte at a time
	var frames []*Frame
	p := newTestParser(&frames)
	for _, b := range raw {
		p.Feed([]byte{b})
	}
	assert.Len(t, frames, 1)
	assert.Equal(t, want.Data, frames[0].Data)
}

func TestParseBadCRC(t *testing.T) {
	var frames []*Frame
	p := newTestParser(&frames)

	raw := mustMarshal(t, &Frame{Seq: 1, Total: 1, Cmd: CmdPing, Data: []byte{7}})
	raw[6] ^= 0xFF // corrupt the data byte
	p.Feed(raw)
	assert.Len(t, frames, 0)

	// the parser must recover and parse the next good frame
	p.Feed(mustMarshal(t, &Frame{Seq: 2, Total: 1, Cmd: CmdPing}))
	assert.Len(t, frames, 1)
	assert.Equal(t, byte(2), frames[0].Seq)
}

func TestParseMissingETX(t *testing.T) {
	var frames []*Frame
	p := newTestParser(&frames)

	raw := mustMarshal(t, &Frame{Seq: 1, Total: 1, Cmd: CmdPing})
	raw[len(raw)-1] = 0x55
	p.Feed(raw)
	assert.Len(t, frames, 0)

	p.Feed(mustMarshal(t, &Frame{Seq: 3, Total: 1, Cmd: CmdPing}))
	assert.Len(t, frames, 1)
}

func TestParseOversizeLength(t *testing.T) {
	var frames []*Frame
	p := newTestParser(&frames)

	// length of 65 must abort back to STX scanning
	p.Feed([]byte{stx, 0x00, MaxDataLen + 1, 0, 1, CmdPing})
	assert.Len(t, frames, 0)

	p.Feed(mustMarshal(t, &Frame{Seq: 4, Total: 1, Cmd: CmdPing}))
	assert.Len(t, frames, 1)
	assert.Equal(t, byte(4), frames[0].Seq)
}

func TestParseLeadingGarbage(t *testing.T) {
	var frames []*Frame
	p := newTestParser(&frames)

	buf := append([]byte{0xFF, 0x00, 0x10}, mustMarshal(t, &Frame{Seq: 8, Total: 1, Cmd: CmdPing})...)
	p.Feed(buf)
	assert.Len(t, frames, 1)
	assert.Equal(t, byte(8), frames[0].Seq)
}

func TestParseBackToBackFrames(t *testing.T) {
	var frames []*Frame
	p := newTestParser(&frames)

	buf := mustMarshal(t, &Frame{Seq: 1, Total: 1, Cmd: CmdPing})
	buf = append(buf, mustMarshal(t, &Frame{Seq: 2, Total: 1, Cmd: CmdShutdown, Data: []byte{1}})...)
	p.Feed(buf)

	assert.Len(t, frames, 2)
	assert.Equal(t, CmdPing, frames[0].Cmd)
	assert.Equal(t, CmdShutdown, frames[1].Cmd)
}

func TestMarshalTooLong(t *testing.T) {
	f := &Frame{Data: make([]byte, MaxDataLen+1)}
	_, err := f.Marshal()
	assert.Error(t, err)
}

package spinel

import "bytes"

// reassembler assembles camera response packets from a fragmented byte
// stream. The camera carries no frame delimiter beyond the 4-byte
// response marker, so the requester declares how large a payload it is
// waiting for and a packet completes once marker + payload + trailer
// bytes are buffered.
type reassembler struct {
	marker []byte
	buf    []byte
	want   int
}

func newReassembler(deviceID byte) *reassembler {
	return &reassembler{
		marker: []byte{mark0, mark1, deviceID, respType},
	}
}

// expect declares the payload size of the in-flight request and drops
// any leftover bytes from earlier traffic.
func (r *reassembler) expect(size int) {
	r.want = size
	r.buf = r.buf[:0]
}

// feed buffers received bytes and returns any completed packets.
func (r *reassembler) feed(data []byte) [][]byte {
	r.buf = append(r.buf, data...)
	var packets [][]byte
	for {
		i := bytes.Index(r.buf, r.marker)
		if i < 0 {
			// keep a partial marker at the tail
			if len(r.buf) > len(r.marker)-1 {
				r.buf = r.buf[len(r.buf)-(len(r.marker)-1):]
			}
			return packets
		}
		need := r.want + headerSize + trailerSize
		if len(r.buf)-i < need {
			r.buf = r.buf[i:]
			return packets
		}
		pkt := make([]byte, need)
		copy(pkt, r.buf[i:i+need])
		r.buf = r.buf[i+need:]
		packets = append(packets, pkt)
	}
}

package video

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// maxAccessUnit bounds a buffered access unit; larger units are dropped.
const maxAccessUnit = 4 << 20

// assembler joins depacketized H264 NAL units into Annex-B access units.
// A unit is complete at the RTP marker bit or when the timestamp changes.
type assembler struct {
	depack codecs.H264Packet
	buf    []byte
	ts     uint32
	active bool

	dropped uint64
}

// Push adds one RTP packet. It returns a complete access unit, or nil.
// The returned slice is owned by the caller.
func (a *assembler) Push(pkt *rtp.Packet) []byte {
	var out []byte
	if a.active && pkt.Timestamp != a.ts && len(a.buf) > 0 {
		out = a.flush()
	}
	a.ts = pkt.Timestamp
	a.active = true

	nal, err := a.depack.Unmarshal(pkt.Payload)
	if err != nil {
		a.dropped++
		a.buf = a.buf[:0]
		return out
	}
	if len(a.buf)+len(nal) > maxAccessUnit {
		a.dropped++
		a.buf = a.buf[:0]
		return out
	}
	a.buf = append(a.buf, nal...)

	if pkt.Marker && out == nil {
		out = a.flush()
	}
	return out
}

func (a *assembler) flush() []byte {
	if len(a.buf) == 0 {
		return nil
	}
	out := append([]byte(nil), a.buf...)
	a.buf = a.buf[:0]
	return out
}

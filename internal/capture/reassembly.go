package capture

import "sort"

// maxPendingSegments bounds out-of-order segments held per flow. Past it
// the flow gives up on the missing bytes and skips to the oldest held one.
const maxPendingSegments = 512

// seqBefore reports a < b in 32-bit sequence space.
func seqBefore(a, b uint32) bool { return int32(a-b) < 0 }

// tcpFlow rebuilds the in-order byte stream of one TCP direction from
// captured segments.
type tcpFlow struct {
	next    uint32
	started bool
	pending map[uint32][]byte
	gaps    uint64
}

func newTCPFlow() *tcpFlow {
	return &tcpFlow{pending: make(map[uint32][]byte)}
}

// push adds one segment and returns the bytes that became contiguous.
// Retransmitted bytes are trimmed.
func (f *tcpFlow) push(seq uint32, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	if !f.started {
		f.started = true
		f.next = seq
	}

	if seqBefore(seq, f.next) {
		overlap := f.next - seq
		if overlap >= uint32(len(payload)) {
			return nil
		}
		payload = payload[overlap:]
		seq = f.next
	}

	if seq != f.next {
		if _, dup := f.pending[seq]; !dup || len(f.pending[seq]) < len(payload) {
			f.pending[seq] = append([]byte(nil), payload...)
		}
		if len(f.pending) > maxPendingSegments {
			f.skipGap()
			return f.collect(nil)
		}
		return nil
	}

	out := append([]byte(nil), payload...)
	f.next = seq + uint32(len(payload))
	return f.collect(out)
}

// collect appends held segments that continue the stream.
func (f *tcpFlow) collect(out []byte) []byte {
	for {
		progressed := false
		for seq, data := range f.pending {
			if seqBefore(f.next, seq) {
				continue
			}
			delete(f.pending, seq)
			end := seq + uint32(len(data))
			if seqBefore(f.next, end) {
				out = append(out, data[f.next-seq:]...)
				f.next = end
			}
			progressed = true
		}
		if !progressed {
			return out
		}
	}
}

// skipGap abandons the missing bytes before the oldest held segment.
// Every held segment is ahead of next, so forward distance orders them.
func (f *tcpFlow) skipGap() {
	seqs := make([]uint32, 0, len(f.pending))
	for seq := range f.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i]-f.next < seqs[j]-f.next })
	f.next = seqs[0]
	f.gaps++
}

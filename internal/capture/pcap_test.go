package capture

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type sinkRecorder struct {
	data   map[string][]byte
	closed []string
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{data: make(map[string][]byte)}
}

func (s *sinkRecorder) Submit(stream string, data []byte) bool {
	s.data[stream] = append(s.data[stream], data...)
	return true
}

func (s *sinkRecorder) CloseStream(stream string) {
	s.closed = append(s.closed, stream)
}

type segment struct {
	srcPort, dstPort uint16
	seq              uint32
	payload          []byte
}

func tcpPacket(t *testing.T, s segment) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	srcIP, dstIP := net.IP{10, 0, 0, 1}, net.IP{192, 168, 1, 20}
	if s.srcPort != 5003 {
		srcIP, dstIP = dstIP, srcIP
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.srcPort),
		DstPort: layers.TCPPort(s.dstPort),
		Seq:     s.seq,
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(s.payload)); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func writePcap(t *testing.T, segs []segment) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	ts := time.Unix(1_700_000_000, 0)
	for i, s := range segs {
		data := tcpPacket(t, s)
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
	return &out
}

func TestReplayReassemblesServerFlow(t *testing.T) {
	stream := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	const base = 1000

	segs := []segment{
		{5003, 50000, base, stream[0:10]},
		{5003, 50000, base + 20, stream[20:30]}, // out of order
		{50000, 5003, 7, []byte("client request")},
		{5003, 50000, base + 10, stream[10:20]},
		{5003, 50000, base + 5, stream[5:15]}, // retransmission
		{5003, 50000, base + 30, stream[30:]},
	}

	sink := newSinkRecorder()
	replay := NewPcapReplay("", 5003, sink)
	stats, err := replay.Replay(context.Background(), writePcap(t, segs))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if stats.Packets != 6 || stats.Segments != 5 || stats.Flows != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(sink.data) != 1 {
		t.Fatalf("streams = %v", sink.data)
	}
	for key, got := range sink.data {
		if key != "10.0.0.1:5003->192.168.1.20:50000" {
			t.Errorf("flow key = %q", key)
		}
		if !bytes.Equal(got, stream) {
			t.Errorf("stream = %q, want %q", got, stream)
		}
	}
	if len(sink.closed) != 1 {
		t.Errorf("closed = %v", sink.closed)
	}
}

func TestReplayWithoutPortFilterKeepsBothDirections(t *testing.T) {
	segs := []segment{
		{5003, 50000, 1, []byte("down")},
		{50000, 5003, 1, []byte("up")},
	}
	sink := newSinkRecorder()
	stats, err := NewPcapReplay("", 0, sink).Replay(context.Background(), writePcap(t, segs))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Flows != 2 || len(sink.data) != 2 {
		t.Errorf("flows = %d, streams = %d", stats.Flows, len(sink.data))
	}
}

func TestReplayRejectsGarbage(t *testing.T) {
	_, err := NewPcapReplay("", 0, newSinkRecorder()).Replay(context.Background(), bytes.NewReader([]byte("not a capture file")))
	if err == nil {
		t.Fatal("expected an error for a non-pcap stream")
	}
}

func TestFlowSkipsUnrecoverableGap(t *testing.T) {
	f := newTCPFlow()
	if got := f.push(100, []byte("ab")); string(got) != "ab" {
		t.Fatalf("first push = %q", got)
	}

	// Segment 102 is lost; fill the pending set past its bound.
	var seq uint32 = 110
	var out []byte
	for i := 0; i <= maxPendingSegments; i++ {
		out = append(out, f.push(seq, []byte("x"))...)
		seq++
	}
	if f.gaps != 1 {
		t.Fatalf("gaps = %d, want 1", f.gaps)
	}
	if len(out) != maxPendingSegments+1 {
		t.Errorf("recovered %d bytes, want %d", len(out), maxPendingSegments+1)
	}
	if f.next != seq {
		t.Errorf("next = %d, want %d", f.next, seq)
	}
}

func TestFlowHandlesSequenceWrap(t *testing.T) {
	f := newTCPFlow()
	start := uint32(0xfffffffc)
	f.push(start, []byte("abcd"))
	got := f.push(0, []byte("efgh"))
	if string(got) != "efgh" {
		t.Fatalf("after wrap = %q", got)
	}
	if got := f.push(start+2, []byte("cdef")); got != nil {
		t.Errorf("stale retransmission produced %q", got)
	}
}

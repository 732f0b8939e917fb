package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"

	"github.com/energizer-project/combatlens/internal/util"
)

// Sink receives reassembled stream bytes. *Worker implements it.
type Sink interface {
	Submit(stream string, data []byte) bool
	CloseStream(stream string)
}

// ReplayStats summarises one replay.
type ReplayStats struct {
	Packets  uint64 `json:"packets"`
	Segments uint64 `json:"segments"`
	Bytes    uint64 `json:"bytes"`
	Flows    int    `json:"flows"`
	Gaps     uint64 `json:"gaps"`
}

// PcapReplay feeds the server-to-client TCP payloads of a capture file to
// a Sink, one stream per flow.
type PcapReplay struct {
	path       string
	serverPort uint16
	sink       Sink
	logger     zerolog.Logger
}

// NewPcapReplay creates a replay of path. With serverPort set only flows
// whose source port matches are replayed; otherwise every TCP flow is.
func NewPcapReplay(path string, serverPort int, sink Sink) *PcapReplay {
	return &PcapReplay{
		path:       path,
		serverPort: uint16(serverPort),
		sink:       sink,
		logger:     util.ComponentLogger("pcap_replay"),
	}
}

// Run replays the whole file, or stops early when ctx is cancelled.
func (p *PcapReplay) Run(ctx context.Context) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("failed to open capture %s: %w", p.path, err)
	}
	defer f.Close()

	stats, err := p.Replay(ctx, f)
	if err != nil {
		return err
	}
	p.logger.Info().
		Str("path", p.path).
		Uint64("packets", stats.Packets).
		Uint64("bytes", stats.Bytes).
		Int("flows", stats.Flows).
		Uint64("gaps", stats.Gaps).
		Msg("capture replay finished")
	return nil
}

// Replay reads a pcap or pcapng stream from r.
func (p *PcapReplay) Replay(ctx context.Context, r io.Reader) (ReplayStats, error) {
	br := bufio.NewReader(r)
	source, err := openPacketSource(br)
	if err != nil {
		return ReplayStats{}, err
	}

	flows := make(map[string]*tcpFlow)
	var stats ReplayStats
	defer func() {
		for key := range flows {
			p.sink.CloseStream(key)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return stats, nil
		default:
		}

		packet, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Truncated captures are common; keep what was read.
			p.logger.Warn().Err(err).Uint64("packets", stats.Packets).Msg("capture read error, stopping replay")
			break
		}
		stats.Packets++

		key, seq, payload, ok := p.segment(packet)
		if !ok {
			continue
		}
		stats.Segments++

		flow, exists := flows[key]
		if !exists {
			flow = newTCPFlow()
			flows[key] = flow
			p.logger.Debug().Str("flow", key).Msg("replaying flow")
		}
		before := flow.gaps
		if data := flow.push(seq, payload); len(data) > 0 {
			stats.Bytes += uint64(len(data))
			p.sink.Submit(key, data)
		}
		stats.Gaps += flow.gaps - before
	}

	stats.Flows = len(flows)
	return stats, nil
}

// segment extracts the flow key, sequence number and payload of a TCP
// packet travelling from the game server.
func (p *PcapReplay) segment(packet gopacket.Packet) (string, uint32, []byte, bool) {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return "", 0, nil, false
	}
	tcp, ok := tcpLayer.(*layers.TCP)
	if !ok || len(tcp.Payload) == 0 {
		return "", 0, nil, false
	}
	if p.serverPort != 0 && uint16(tcp.SrcPort) != p.serverPort {
		return "", 0, nil, false
	}

	nl := packet.NetworkLayer()
	if nl == nil {
		return "", 0, nil, false
	}
	src, dst := nl.NetworkFlow().Endpoints()
	key := fmt.Sprintf("%s:%d->%s:%d", src, tcp.SrcPort, dst, tcp.DstPort)
	return key, tcp.Seq, tcp.Payload, true
}

// openPacketSource detects pcap versus pcapng by the leading magic.
func openPacketSource(br *bufio.Reader) (*gopacket.PacketSource, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcapng stream: %w", err)
		}
		return gopacket.NewPacketSource(ng, ng.LinkType()), nil
	}

	r, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap stream: %w", err)
	}
	return gopacket.NewPacketSource(r, r.LinkType()), nil
}

package protocol

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdDecompressor decodes zstd payloads with a single reusable decoder.
type ZstdDecompressor struct {
	dec *zstd.Decoder
}

// NewZstdDecompressor creates a decoder limited to maxMemory bytes of
// output per payload.
func NewZstdDecompressor(maxMemory uint64) (*ZstdDecompressor, error) {
	if maxMemory == 0 {
		maxMemory = 64 << 20
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxMemory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZstdDecompressor{dec: dec}, nil
}

// Decompress implements Decompressor.
func (z *ZstdDecompressor) Decompress(src []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode zstd payload: %w", err)
	}
	return out, nil
}

// Close releases the decoder.
func (z *ZstdDecompressor) Close() {
	z.dec.Close()
}

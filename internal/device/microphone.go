package device

import (
	"context"
	"os"
)

const defaultChunkBytes = 4096

// MicrophoneConfig holds the PCM capture device settings.
type MicrophoneConfig struct {
	Device     string `yaml:"device"`
	ChunkBytes int    `yaml:"chunk_bytes"`
}

// PCMMicrophone reads raw PCM chunks from a capture device node.
type PCMMicrophone struct {
	f     *os.File
	chunk int
}

// OpenPCMMicrophone opens the capture device for reading.
func OpenPCMMicrophone(cfg MicrophoneConfig) (*PCMMicrophone, error) {
	f, err := os.Open(cfg.Device)
	if err != nil {
		return nil, err
	}

	chunk := cfg.ChunkBytes
	if chunk <= 0 {
		chunk = defaultChunkBytes
	}

	return &PCMMicrophone{f: f, chunk: chunk}, nil
}

// ReadChunk reads the next PCM chunk. The device blocks until samples are
// available, which paces the audio window loop.
func (m *PCMMicrophone) ReadChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, m.chunk)
	n, err := m.f.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close releases the capture device.
func (m *PCMMicrophone) Close() error {
	return m.f.Close()
}

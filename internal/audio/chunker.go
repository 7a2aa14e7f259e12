package audio

import (
	"bytes"
	"fmt"
	"time"
)

// Chunker splits a PCM16 stream into fixed-duration frames
type Chunker struct {
	format     Format
	chunkMs    int
	chunkBytes int
	buffer     *bytes.Buffer
}

// NewChunker creates a chunker producing chunkMs-long frames
func NewChunker(format Format, chunkMs int) (*Chunker, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if chunkMs <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive: %d ms", chunkMs)
	}

	chunkBytes := format.BytesPerMs() * chunkMs
	// Keep frames sample-aligned
	chunkBytes -= chunkBytes % format.BlockAlign()
	if chunkBytes == 0 {
		return nil, fmt.Errorf("chunk of %d ms holds no complete sample", chunkMs)
	}

	return &Chunker{
		format:     format,
		chunkMs:    chunkMs,
		chunkBytes: chunkBytes,
		buffer:     bytes.NewBuffer(nil),
	}, nil
}

// Write buffers data and returns every complete frame
func (c *Chunker) Write(data []byte) ([][]byte, error) {
	if _, err := c.buffer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	var chunks [][]byte
	for c.buffer.Len() >= c.chunkBytes {
		chunk := make([]byte, c.chunkBytes)
		if _, err := c.buffer.Read(chunk); err != nil {
			return nil, fmt.Errorf("failed to read from buffer: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Flush returns the buffered remainder, trimmed to whole samples
func (c *Chunker) Flush() []byte {
	n := c.buffer.Len() - c.buffer.Len()%c.format.BlockAlign()
	if n == 0 {
		c.buffer.Reset()
		return nil
	}
	rest := make([]byte, n)
	copy(rest, c.buffer.Bytes()[:n])
	c.buffer.Reset()
	return rest
}

// Reset drops buffered audio
func (c *Chunker) Reset() {
	c.buffer.Reset()
}

// ChunkSize is the frame size in bytes
func (c *Chunker) ChunkSize() int {
	return c.chunkBytes
}

// ChunkDuration is the playback length of one frame
func (c *Chunker) ChunkDuration() time.Duration {
	return time.Duration(c.chunkMs) * time.Millisecond
}

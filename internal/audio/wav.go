package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const bitsPerSample = 16

// ErrUnsupportedFormat is returned for anything other than PCM16 WAV
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format describes a PCM16 stream
type Format struct {
	SampleRate int
	Channels   int
}

// Validate checks the format is usable
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("%w: rate=%d channels=%d", ErrUnsupportedFormat, f.SampleRate, f.Channels)
	}
	return nil
}

// BlockAlign is the size of one sample frame across all channels
func (f Format) BlockAlign() int {
	return f.Channels * bitsPerSample / 8
}

// BytesPerMs is the PCM16 byte rate per millisecond
func (f Format) BytesPerMs() int {
	return f.SampleRate * f.BlockAlign() / 1000
}

// EncodeWAVHeader builds a 44-byte canonical PCM16 header.
// A negative dataSize writes the streaming maximum.
func EncodeWAVHeader(f Format, dataSize int64) []byte {
	size := uint32(0xFFFFFFFF - 36)
	if dataSize >= 0 && dataSize < int64(size) {
		size = uint32(dataSize)
	}

	header := make([]byte, 44)

	// RIFF chunk descriptor
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+size)
	copy(header[8:12], "WAVE")

	// "fmt " sub-chunk
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(f.SampleRate*f.BlockAlign()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	// "data" sub-chunk
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], size)

	return header
}

// ReadWAVHeader consumes a RIFF/WAVE header up to the start of the data chunk.
// Chunks other than "fmt " are skipped.
func ReadWAVHeader(r io.Reader) (Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedFormat)
	}

	var (
		format  Format
		haveFmt bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return Format{}, fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, fmt.Errorf("%w: fmt chunk too short", ErrUnsupportedFormat)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if audioFormat != 1 || bits != bitsPerSample {
				return Format{}, fmt.Errorf("%w: format=%d bits=%d, want PCM16", ErrUnsupportedFormat, audioFormat, bits)
			}
			format = Format{
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedFormat)
			}
			return format, format.Validate()
		default:
			// Chunks are word-aligned
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return Format{}, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}

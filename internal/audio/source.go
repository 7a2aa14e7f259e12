package audio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Stream is an open PCM16 input
type Stream interface {
	io.ReadCloser
	Format() Format
}

// Source opens the capture device. Every Open must be paired with Close on the stream.
type Source interface {
	Open() (Stream, error)
}

// FileSource plays a WAV or raw PCM16 file as the microphone
type FileSource struct {
	Path string
	// Raw is the format assumed for files without a WAV header
	Raw Format
}

// NewFileSource creates a file-backed source
func NewFileSource(path string, raw Format) *FileSource {
	return &FileSource{Path: path, Raw: raw}
}

// Open opens the file and validates its header
func (s *FileSource) Open() (Stream, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio source %s: %w", s.Path, err)
	}

	reader := bufio.NewReader(f)
	format := s.Raw

	if strings.EqualFold(filepath.Ext(s.Path), ".wav") {
		format, err = ReadWAVHeader(reader)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("invalid WAV file %s: %w", s.Path, err)
		}
	} else if err := format.Validate(); err != nil {
		f.Close()
		return nil, err
	}

	return &fileStream{Reader: reader, file: f, format: format}, nil
}

type fileStream struct {
	*bufio.Reader
	file   *os.File
	format Format
}

func (s *fileStream) Format() Format { return s.format }

func (s *fileStream) Close() error { return s.file.Close() }

// WAVWriter writes PCM16 audio to a WAV file, fixing the header sizes on Close
type WAVWriter struct {
	file    *os.File
	format  Format
	written int64
}

// CreateWAV creates path and writes a provisional header
func CreateWAV(path string, format Format) (*WAVWriter, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(EncodeWAVHeader(format, -1)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return &WAVWriter{file: f, format: format}, nil
}

func (w *WAVWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Close rewrites the header with the final data size
func (w *WAVWriter) Close() error {
	if _, err := w.file.WriteAt(EncodeWAVHeader(w.format, w.written), 0); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return w.file.Close()
}

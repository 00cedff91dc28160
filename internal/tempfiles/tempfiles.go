package tempfiles

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Create makes a temp file in the provided directory, creating the directory if needed.
func Create(dir string, pattern string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// ErrTooLarge is returned by Spool when the stream is longer than the limit.
type ErrTooLarge struct {
	MaxSize int64
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("file exceeds maximum size of %d bytes", e.MaxSize)
}

// Spooled is an upload buffered to disk, rewound to its start.
type Spooled struct {
	File   *os.File
	Size   int64
	SHA256 string
}

// Remove closes and deletes the spool file.
func (s *Spooled) Remove() {
	_ = s.File.Close()
	_ = os.Remove(s.File.Name())
}

// Spool copies r into a temp file in dir while hashing it. Streams longer
// than maxSize are rejected with ErrTooLarge and leave no file behind.
func Spool(dir, pattern string, r io.Reader, maxSize int64) (*Spooled, error) {
	tmp, err := Create(dir, pattern)
	if err != nil {
		return nil, err
	}
	spooled := &Spooled{File: tmp}
	counting := &countingWriter{h: sha256.New()}
	if _, err := io.Copy(tmp, io.TeeReader(io.LimitReader(r, maxSize+1), counting)); err != nil {
		spooled.Remove()
		return nil, fmt.Errorf("buffer upload stream: %w", err)
	}
	if counting.n > maxSize {
		spooled.Remove()
		return nil, &ErrTooLarge{MaxSize: maxSize}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		spooled.Remove()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	spooled.Size = counting.n
	spooled.SHA256 = hex.EncodeToString(counting.h.Sum(nil))
	return spooled, nil
}

type countingWriter struct {
	h hash.Hash
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return w.h.Write(p)
}

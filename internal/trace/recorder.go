// Package trace is a debug/test collaborator that snappy-compresses
// captured wire frames to a file so a session (or a discovery round) can be
// replayed later — grounded on the teacher's CompStream pattern
// (generic/comp.go, std/comp.go), which wraps a net.Conn in a
// snappy.Writer/snappy.Reader pair; here the same wrapping is applied to a
// plain os.File instead of a live connection, since traces are archives,
// not live streams.
package trace

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Direction marks which side of a session captured a frame.
type Direction byte

const (
	DirOut Direction = 'O' // sent by this process
	DirIn  Direction = 'I' // received by this process
)

// Frame is one captured wire frame.
type Frame struct {
	Direction Direction
	Data      []byte
}

// Recorder appends captured frames to a snappy-compressed file. The zero
// value is not usable; construct with NewRecorder.
type Recorder struct {
	mu sync.Mutex
	f  *os.File
	w  *snappy.Writer
}

// NewRecorder creates (or truncates) the trace file at path.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "trace: create")
	}
	return &Recorder{f: f, w: snappy.NewBufferedWriter(f)}, nil
}

// RecordOut appends a frame captured going out to the peer.
func (r *Recorder) RecordOut(buf []byte) error { return r.record(DirOut, buf) }

// RecordIn appends a frame captured coming in from the peer.
func (r *Recorder) RecordIn(buf []byte) error { return r.record(DirIn, buf) }

func (r *Recorder) record(dir Direction, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var head [5]byte
	head[0] = byte(dir)
	binary.BigEndian.PutUint32(head[1:], uint32(len(buf)))

	if _, err := r.w.Write(head[:]); err != nil {
		return errors.WithStack(err)
	}
	if _, err := r.w.Write(buf); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(r.w.Flush())
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(r.f.Close())
}

// ReadFrames decompresses and parses every frame previously written to path
// by a Recorder, in capture order.
func ReadFrames(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "trace: open")
	}
	defer f.Close()

	r := snappy.NewReader(f)
	var frames []Frame
	for {
		var head [5]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "trace: read frame header")
		}
		n := binary.BigEndian.Uint32(head[1:])
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, errors.Wrap(err, "trace: read frame body")
		}
		frames = append(frames, Frame{Direction: Direction(head[0]), Data: data})
	}
	return frames, nil
}

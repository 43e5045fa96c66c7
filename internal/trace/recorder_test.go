package trace

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.trace")

	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	if err := rec.RecordOut([]byte("CONNECT-frame")); err != nil {
		t.Fatalf("RecordOut: %v", err)
	}
	if err := rec.RecordIn([]byte("SUCCESS-frame")); err != nil {
		t.Fatalf("RecordIn: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	frames, err := ReadFrames(path)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Direction != DirOut || !bytes.Equal(frames[0].Data, []byte("CONNECT-frame")) {
		t.Fatalf("frame[0] = %+v", frames[0])
	}
	if frames[1].Direction != DirIn || !bytes.Equal(frames[1].Data, []byte("SUCCESS-frame")) {
		t.Fatalf("frame[1] = %+v", frames[1])
	}
}

func TestReadFramesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.trace")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	frames, err := ReadFrames(path)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected 0 frames, got %d", len(frames))
	}
}

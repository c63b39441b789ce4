package audio

import "bytes"

import "testing"

func TestFrameBatcherEmitReadyExactChunks(t *testing.T) {
	b := NewFrameBatcher(100) // 100ms * 32 bytes/ms = 3200 bytes

	b.Add(make([]byte, 3200))
	chunk, ok := b.EmitReady()
	if !ok {
		t.Fatalf("expected a ready chunk")
	}
	if len(chunk) != 3200 {
		t.Errorf("expected 3200 bytes, got %d", len(chunk))
	}

	if _, ok := b.EmitReady(); ok {
		t.Errorf("expected no further chunk ready")
	}
}

func TestFrameBatcherFlushReturnsResidue(t *testing.T) {
	b := NewFrameBatcher(100)
	in1 := bytes.Repeat([]byte{1}, 1600)
	in2 := bytes.Repeat([]byte{2}, 1600)
	b.Add(in1)
	b.Add(in2)

	flushed := b.Flush()
	want := append(append([]byte{}, in1...), in2...)
	if !bytes.Equal(flushed, want) {
		t.Errorf("flush did not return exact concatenation of adds")
	}
	if flushed2 := b.Flush(); flushed2 != nil {
		t.Errorf("expected nil after flush drains buffer")
	}
}

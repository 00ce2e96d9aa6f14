package ui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerWithoutTTYPrintsLines(t *testing.T) {
	var out syncBuffer
	s := NewSpinnerTo(&out, false)
	s.Start("Searching")
	s.Update("Resolved 1/2 products")
	s.Update("Resolved 1/2 products")
	s.Stop()

	got := out.String()
	if got != "Searching\nResolved 1/2 products\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestSpinnerWithTTYAnimates(t *testing.T) {
	var out syncBuffer
	s := NewSpinnerTo(&out, true)
	s.Start("Working")
	time.Sleep(200 * time.Millisecond)
	s.Stop()
	s.Stop()

	got := out.String()
	if !strings.Contains(got, "Working") || !strings.HasSuffix(got, "\r\033[K") {
		t.Fatalf("output = %q", got)
	}
}

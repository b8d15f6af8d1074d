package maps

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

type chanSink struct {
	msgs      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanSink() *chanSink {
	return &chanSink{
		msgs:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (s *chanSink) WriteMessage(data []byte) error {
	select {
	case <-s.closed:
		return errors.New("sink closed")
	default:
	}
	s.msgs <- data
	return nil
}

func (s *chanSink) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type failingSink struct {
	writes atomic.Int32
	closed atomic.Bool
}

func (f *failingSink) WriteMessage([]byte) error {
	f.writes.Add(1)
	return errors.New("broken pipe")
}

func (f *failingSink) Close() error {
	f.closed.Store(true)
	return nil
}

func receiveEvent(t *testing.T, sink *chanSink, timeout time.Duration) Event {
	t.Helper()
	select {
	case data := <-sink.msgs:
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return event
	case <-time.After(timeout):
		t.Fatalf("expected event within %s", timeout)
		return Event{}
	}
}

func expectNoEvent(t *testing.T, sink *chanSink, timeout time.Duration) {
	t.Helper()
	select {
	case data := <-sink.msgs:
		t.Fatalf("expected no event, got %s", data)
	case <-time.After(timeout):
	}
}

type mockAssetHost struct {
	mock.Mock
}

func (m *mockAssetHost) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	args := m.Called(ctx, data, mimeType)
	return args.String(0), args.Error(1)
}

// pngBytes is a 1x1 transparent PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func stroke(color string, size float64, points ...Point) DrawnElement {
	return DrawnElement{Color: color, Size: size, Points: points}
}

func strPtr(value string) *string {
	return &value
}

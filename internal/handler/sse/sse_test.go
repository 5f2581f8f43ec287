package sse

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriterFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	w.Start()
	if err := w.WriteEvent(map[string]string{"type": "content", "body": "hi"}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := w.WriteKeepAlive(); err != nil {
		t.Fatalf("WriteKeepAlive: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	want := "data: {\"body\":\"hi\",\"type\":\"content\"}\n\n: keepalive\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if !rec.Flushed {
		t.Error("writer never flushed")
	}
}

func TestWriterRejectsUnencodableEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, _ := NewWriter(rec)
	if err := w.WriteEvent(func() {}); err == nil {
		t.Error("expected an encode error")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want nothing written", rec.Body.String())
	}
}

type nonFlusher struct{ http.ResponseWriter }

func TestNewWriterNeedsFlusher(t *testing.T) {
	if _, err := NewWriter(nonFlusher{httptest.NewRecorder()}); !errors.Is(err, ErrStreamingUnsupported) {
		t.Errorf("error = %v, want %v", err, ErrStreamingUnsupported)
	}
}

type countingWriter struct {
	n      atomic.Int32
	failAt int32
}

func (c *countingWriter) WriteKeepAlive() error {
	if c.n.Add(1) == c.failAt {
		return errors.New("broken pipe")
	}
	return nil
}

func TestKeepAliveStops(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("on Stop", func(t *testing.T) {
		w := &countingWriter{}
		k := NewTickerKeepAlive(time.Millisecond)
		done := k.Start(w, logger)

		deadline := time.Now().Add(time.Second)
		for w.n.Load() < 2 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		k.Stop()
		k.Stop()
		<-done
		if w.n.Load() < 2 {
			t.Errorf("ticks = %d, want at least 2", w.n.Load())
		}
	})

	t.Run("on write failure", func(t *testing.T) {
		w := &countingWriter{failAt: 3}
		k := NewTickerKeepAlive(time.Millisecond)
		select {
		case <-k.Start(w, logger):
		case <-time.After(time.Second):
			t.Fatal("keep-alive kept running after a failed write")
		}
		if got := w.n.Load(); got != 3 {
			t.Errorf("writes = %d, want 3", got)
		}
	})
}

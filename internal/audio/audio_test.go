package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDecodeMP3_RejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":   nil,
		"garbage": []byte("this is definitely not an mp3 stream"),
		"json":    []byte(`{"error":"rate limited"}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMP3(data)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestClip_Duration(t *testing.T) {
	clip := &Clip{SampleRate: 24000, Channels: 2, PCM: make([]byte, 24000*2*2)}
	if d := clip.Duration(); d != time.Second {
		t.Errorf("Expected 1s, got %v", d)
	}
	var nilClip *Clip
	if d := nilClip.Duration(); d != 0 {
		t.Errorf("Expected 0 for nil clip, got %v", d)
	}
}

func TestMockOutput_PlayCompletes(t *testing.T) {
	out := NewMockOutput(5 * time.Millisecond)
	if err := out.Play(context.Background(), &Clip{}); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if n := len(out.Played()); n != 1 {
		t.Errorf("Expected 1 played clip, got %d", n)
	}
}

func TestMockOutput_CancelStopsPlayback(t *testing.T) {
	out := NewMockOutput(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- out.Play(ctx, &Clip{}) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after cancel")
	}
}

func TestMockOutput_SuspendHoldsPlayback(t *testing.T) {
	out := NewMockOutput(10 * time.Millisecond)
	_ = out.Suspend()

	done := make(chan error, 1)
	go func() { done <- out.Play(context.Background(), &Clip{}) }()

	select {
	case <-done:
		t.Fatal("Play finished while suspended")
	case <-time.After(50 * time.Millisecond):
	}

	_ = out.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Play failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not finish after resume")
	}
}

func TestMockOutput_Closed(t *testing.T) {
	out := NewMockOutput(0)
	_ = out.Close()
	if err := out.Play(context.Background(), &Clip{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

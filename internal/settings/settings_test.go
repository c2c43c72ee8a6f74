package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dgnsrekt/narrate/internal/storage"
)

type memKV map[string]string

func (m memKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memKV) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func (m memKV) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func newStore(kv KV) *Store {
	return NewStore(kv, log.New(io.Discard))
}

func TestLoadDefaults(t *testing.T) {
	kv := memKV{}
	cfg, err := newStore(kv).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if len(kv) != 0 {
		t.Errorf("loading defaults wrote %v", kv)
	}
}

func TestLegacyMigration(t *testing.T) {
	kv := memKV{legacyVoiceKey: "Samantha", legacyRateKey: "1.4"}
	s := newStore(kv)

	cfg, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceVoiceID != "Samantha" || cfg.DeviceRate != 1.4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if _, ok := kv[legacyVoiceKey]; ok {
		t.Error("legacy voice key not deleted")
	}
	if _, ok := kv[legacyRateKey]; ok {
		t.Error("legacy rate key not deleted")
	}
	if _, ok := kv[recordKey]; !ok {
		t.Fatal("record not written")
	}

	kv[legacyVoiceKey] = "Ignored"
	again, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.DeviceVoiceID != "Samantha" {
		t.Errorf("existing record must win over legacy keys, got %q", again.DeviceVoiceID)
	}
}

func TestLegacyMigrationBadRate(t *testing.T) {
	kv := memKV{legacyRateKey: "fast"}
	cfg, err := newStore(kv).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceRate != defaultRate {
		t.Errorf("rate = %v, want default", cfg.DeviceRate)
	}
	if _, ok := kv[legacyRateKey]; ok {
		t.Error("legacy rate key not deleted")
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    error
		check      func(EngineConfig) bool
	}{
		{KeyBackend, "remote", nil, func(c EngineConfig) bool { return c.Backend == narration.BackendRemote }},
		{"BACKEND", "on-device", nil, func(c EngineConfig) bool { return c.Backend == narration.BackendDevice }},
		{KeyBackend, "telepathy", ErrInvalidValue, nil},
		{KeyRemoteSpeed, "2.5", nil, func(c EngineConfig) bool { return c.RemoteSpeed == 2.5 }},
		{KeyRemoteSpeed, "0.1", ErrInvalidValue, nil},
		{KeyRemoteSpeed, "4.5", ErrInvalidValue, nil},
		{KeyRemoteSpeed, "quick", ErrInvalidValue, nil},
		{KeyDeviceRate, "0.1", nil, func(c EngineConfig) bool { return c.DeviceRate == 0.1 }},
		{KeyDeviceRate, "10.5", ErrInvalidValue, nil},
		{KeyRemoteVoice, " nova ", nil, func(c EngineConfig) bool { return c.RemoteVoice == "nova" }},
		{KeyDeviceVoiceID, "Alex", nil, func(c EngineConfig) bool { return c.DeviceVoiceID == "Alex" }},
		{"volume", "11", ErrUnknownKey, nil},
	}

	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			s := newStore(memKV{})
			cfg, err := s.Set(context.Background(), tc.key, tc.value)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				stored, _ := s.Load(context.Background())
				if stored != Default() {
					t.Errorf("rejected value was stored: %+v", stored)
				}
				return
			}
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			if !tc.check(cfg) {
				t.Errorf("returned cfg = %+v", cfg)
			}
			stored, _ := s.Load(context.Background())
			if !tc.check(stored) {
				t.Errorf("stored cfg = %+v", stored)
			}
		})
	}
}

func TestValues(t *testing.T) {
	vals := Default().Values()
	if len(vals) != len(Keys()) {
		t.Fatalf("values = %v", vals)
	}
	if vals[0][0] != KeyBackend || vals[0][1] != "device" {
		t.Errorf("first value = %v", vals[0])
	}
}

func TestStoreOverLibrary(t *testing.T) {
	dsn := fmt.Sprintf("file:settings-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := storage.Open(dsn, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close() //nolint:errcheck

	ctx := context.Background()
	if err := db.Set(ctx, legacyVoiceKey, "Daniel"); err != nil {
		t.Fatal(err)
	}

	s := newStore(db)
	if _, err := s.Set(ctx, KeyRemoteSpeed, "1.5"); err != nil {
		t.Fatal(err)
	}
	cfg, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceVoiceID != "Daniel" || cfg.RemoteSpeed != 1.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	raw, _, _ := db.Get(ctx, recordKey)
	if !strings.Contains(raw, "remoteSpeed: 1.5") {
		t.Errorf("record = %q", raw)
	}
}

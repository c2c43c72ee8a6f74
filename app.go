package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/audio"
	"github.com/dgnsrekt/narrate/internal/backend"
	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/internal/config"
	"github.com/dgnsrekt/narrate/internal/engine"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dgnsrekt/narrate/internal/settings"
	"github.com/dgnsrekt/narrate/internal/speech"
	"github.com/dgnsrekt/narrate/internal/storage"
	"github.com/dgnsrekt/narrate/internal/synth"
)

// app holds the long-lived pieces a command needs.
type app struct {
	cfg      config.Config
	db       *storage.DB
	settings *settings.Store
	cache    *cache.Store
	engine   *engine.Engine
	logger   *log.Logger
}

func openLibrary(cfg config.Config, logger *log.Logger) (*storage.DB, *settings.Store, error) {
	db, err := storage.Open(cfg.StoragePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, settings.NewStore(db, logger), nil
}

// newApp opens the library and builds the engine with both backends. With
// dryRun set nothing is spoken aloud: the device backend is silent and
// remote audio is discarded.
func newApp(cfg config.Config, dryRun bool) (*app, error) {
	logger := log.Default()

	db, st, err := openLibrary(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db, settings: st, logger: logger}

	device := backend.NewDevice(deviceSynthesizer(cfg, dryRun, logger), logger)

	remote, err := a.remoteBackend(dryRun)
	if err != nil {
		_ = device.Close()
		_ = a.Close()
		return nil, err
	}

	a.engine = engine.New(engine.Options{
		Device:           device,
		Remote:           remote,
		Config:           st,
		Store:            db,
		Interests:        db,
		Logger:           logger,
		WatchdogInterval: cfg.Watchdog.Interval,
	})
	return a, nil
}

func deviceSynthesizer(cfg config.Config, dryRun bool, logger *log.Logger) speech.Synthesizer {
	if dryRun {
		return speech.NewSilent(cfg.Device.BaseWPM)
	}
	cmd, err := speech.NewCommand(cfg.Device, logger)
	if err != nil {
		logger.Warn("on-device speech unavailable, narrating silently", "err", err)
		return speech.NewSilent(cfg.Device.BaseWPM)
	}
	logger.Debug("on-device speech", "program", cmd.Program())
	return cmd
}

// remoteBackend returns nil, without error, when no credential is
// configured; the engine then narrates on the device only.
func (a *app) remoteBackend(dryRun bool) (narration.Backend, error) {
	var store cache.Cache
	c, err := cache.Open(a.cfg.Cache, a.logger)
	if err != nil {
		a.logger.Warn("audio cache disabled", "err", err)
	} else {
		a.cache = c
		store = c
	}

	s, err := synth.New(a.cfg.Remote, store, a.logger)
	if err != nil {
		if narration.KindOf(err) == narration.KindConfigurationMissing {
			a.logger.Debug("remote narration disabled", "reason", err)
			return nil, nil
		}
		return nil, fmt.Errorf("unable to configure remote narration: %w", err)
	}

	var out audio.Output
	if dryRun {
		out = audio.NewMockOutput(0)
	} else {
		out = audio.NewOtoOutput(a.logger)
	}
	return backend.NewRemote(s, out, backend.RemoteConfig{Model: a.cfg.Remote.Model}, a.logger), nil
}

// Close stops playback and releases everything the app opened.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

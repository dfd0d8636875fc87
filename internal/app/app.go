package app

import (
	"context"
	"fmt"

	"webcammonitor/internal/camera"
	"webcammonitor/internal/config"
	"webcammonitor/internal/database"
	"webcammonitor/internal/detect"
	"webcammonitor/internal/logger"
	"webcammonitor/internal/monitor"
	"webcammonitor/internal/notify"
	"webcammonitor/internal/policy"
	"webcammonitor/internal/store"
	"webcammonitor/internal/web"
)

// App owns the wired components and their lifecycle. Construction performs
// every fatal initialization step (config, model, store); Run only loops.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.Database
	source camera.Source
	det    detect.Detector
	st     *store.Store
	mon    *monitor.Monitor
	hub    *web.Hub
	server *web.Server
}

// New loads the configuration and builds every component. Any error here is a
// fatal initialization failure: the caller should exit non-zero.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.LogDirectory)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	// The model load is the expensive one-time step; no model, no monitor.
	det, err := detect.NewDNNDetector(cfg.ModelPath, cfg.ModelConfigPath, cfg.CameraRotation, cfg.DetectTimeout)
	if err != nil {
		log.Error("Model load failed: %v", err)
		return nil, fmt.Errorf("model: %w", err)
	}

	db, err := database.New(cfg.DatabasePath())
	if err != nil {
		log.Error("Artifact index unavailable: %v", err)
		return nil, fmt.Errorf("database: %w", err)
	}

	st, err := store.New(cfg.ImagesDir(), cfg.RetentionMaxCount, cfg.RetentionMaxBytes, db, log)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	source := camera.NewHTTPSource(cfg.CameraURL, cfg.CameraID, cfg.RequestTimeout)
	pol := policy.New(cfg.ClassThresholds, cfg.DefaultThreshold, cfg.Debounce)
	kuma := notify.NewKuma(cfg.KumaURL, cfg.RequestTimeout, log)
	discord := notify.NewDiscord(cfg.DiscordWebhookURL, cfg.DiscordInterval, cfg.RequestTimeout, log)
	hub := web.NewHub(log)

	mon := monitor.New(monitor.Config{
		CaptureInterval:    cfg.CaptureInterval,
		RetentionInterval:  cfg.RetentionInterval,
		DetectEveryN:       cfg.DetectEveryN,
		FailureThreshold:   cfg.FailureThreshold,
		CaptureRetryLimit:  cfg.CaptureRetryLimit,
		DegradedMultiplier: cfg.DegradedMultiplier,
	}, source, det, pol, st, kuma, discord, hub, log)

	a := &App{
		cfg:    cfg,
		log:    log,
		db:     db,
		source: source,
		det:    det,
		st:     st,
		mon:    mon,
		hub:    hub,
	}
	a.server = web.NewServer(cfg.Port, hub, a.status, log)
	return a, nil
}

// Run blocks until ctx is cancelled or the monitor hits a fatal condition.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("Webcam monitor starting")
	a.log.Info("Camera: %s (%s)", a.cfg.CameraID, a.cfg.CameraURL)
	a.log.Info("Images: %s", a.cfg.ImagesDir())
	a.log.Info("Model: %s", a.cfg.ModelPath)

	go a.hub.Run(ctx)
	go func() {
		if err := a.server.Run(ctx); err != nil {
			a.log.Error("Status server error: %v", err)
		}
	}()

	err := a.mon.Run(ctx)

	a.det.Close()
	if dbErr := a.db.Close(); dbErr != nil {
		a.log.Warning("Error closing artifact index: %v", dbErr)
	}
	a.log.Close()
	return err
}

func (a *App) status() web.Status {
	count, bytes, err := a.db.Totals()
	if err != nil {
		a.log.Warning("Failed to read artifact totals: %v", err)
	}
	return web.Status{
		State:         a.mon.State().String(),
		Camera:        a.cfg.CameraID,
		ArtifactCount: count,
		ArtifactBytes: bytes,
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/config"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/emitter"
	"github.com/ayusman/squatcoach/internal/overlay"
	"github.com/ayusman/squatcoach/internal/plugin"
	"github.com/ayusman/squatcoach/internal/server"
	"github.com/ayusman/squatcoach/internal/store"
	"github.com/ayusman/squatcoach/internal/tray"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the camera loop, web UI and tray (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

// appConfig maps the file configuration onto the application's.
func appConfig(cfg *config.Config) app.Config {
	return app.Config{
		Camera: capture.Config{
			DeviceID: cfg.Camera.Device,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
		},
		Detector: detector.Config{
			ScriptPath:      cfg.Detector.Script,
			PythonPath:      cfg.Detector.Python,
			ModelComplexity: cfg.Detector.ModelComplexity,
			SmoothLandmarks: cfg.Detector.Smooth,
			MinConfidence:   cfg.Detector.MinDetection,
			MinTrackingConf: cfg.Detector.MinTracking,
		},
		Thresholds: cfg.Exercise.Thresholds(),
		Overlay: overlay.Options{
			Mirror:        cfg.Camera.Mirror,
			MinVisibility: cfg.Exercise.MinVisibility,
			Skeleton:      true,
		},
		MotionThreshold: cfg.Camera.MotionThreshold,
		IdleTimeout:     cfg.Camera.IdleTimeout,
		JPEGQuality:     cfg.Camera.Quality,
	}
}

// session keeps the tray toggle in step with pauses made through the API.
type session struct {
	*app.App
	tray *tray.Tray
}

func (s session) SetEnabled(enabled bool) {
	s.App.SetEnabled(enabled)
	if s.tray != nil {
		s.tray.SetEnabled(enabled)
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	appCfg := appConfig(cfg)
	thresholds, err := st.Settings().LoadThresholds(appCfg.Thresholds)
	if err != nil {
		log.Warn("ignoring saved settings", "error", err)
	} else if err := thresholds.Validate(); err != nil {
		log.Warn("saved settings are invalid, using config file", "error", err)
	} else {
		appCfg.Thresholds = thresholds
	}

	application := app.New(appCfg, log)

	manager := plugin.NewManager(cfg.Plugins.Dir, log)
	if err := manager.Discover(); err != nil {
		log.Warn("plugin discovery failed", "dir", cfg.Plugins.Dir, "error", err)
	}
	runner := plugin.NewRunner(manager, plugin.NewExecutor(cfg.Plugins.Timeout), st.Hooks(), log)
	defer runner.Close()
	if created, err := runner.SyncHooks(); err != nil {
		log.Warn("failed to sync plugin hooks", "error", err)
	} else if created > 0 {
		log.Info("registered plugin hooks", "count", created)
	}
	application.AddSink(runner)

	if cfg.MQTT.Enabled {
		mq, err := emitter.Connect(ctx, emitter.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, log)
		if err != nil {
			log.Warn("mqtt disabled", "error", err)
		} else {
			defer mq.Close()
			application.AddSink(mq)
		}
	}

	var tr *tray.Tray
	if cfg.Tray.Enabled {
		tr = tray.New()
		application.AddSink(tr)
	}

	srv := server.New(server.Config{
		StaticDir:   cfg.WebDir,
		App:         session{App: application, tray: tr},
		Settings:    st.Settings(),
		Hooks:       st.Hooks(),
		HUDInterval: cfg.Server.HUDInterval,
		Log:         log,
	})

	if err := application.Start(); err != nil {
		return fmt.Errorf("start camera: %w", err)
	}
	defer application.Stop()

	go func() {
		err := config.Watch(ctx, flags.configPath, log, func(next *config.Config) {
			if err := application.SetThresholds(next.Exercise.Thresholds()); err != nil {
				log.Warn("reloaded thresholds rejected", "error", err)
			}
		})
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, cfg.Server.Addr())
		cancel()
	}()

	url := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	log.Info("squatcoach running", "url", url, "version", version)

	if tr != nil {
		tr.OnToggle(application.SetEnabled)
		tr.OnReset(func() { application.Reset() })
		tr.OnOpen(func() {
			if err := openBrowser(url); err != nil {
				log.Warn("failed to open browser", "error", err)
			}
		})
		tr.OnQuit(cancel)

		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		// Blocks on the main goroutine until the tray quits.
		tr.Run()
		cancel()
	}

	<-ctx.Done()
	if err := <-errCh; err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	return nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	return cmd.Start()
}

var _ server.App = session{}

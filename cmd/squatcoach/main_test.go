package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/squatcoach/internal/config"
	"github.com/ayusman/squatcoach/internal/replay"
	"github.com/ayusman/squatcoach/testdata"
)

func TestAppConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Camera.Device = 3
	cfg.Camera.Mirror = false
	cfg.Exercise.Flexion = 95
	cfg.Detector.ModelComplexity = 2

	got := appConfig(cfg)

	if got.Camera.DeviceID != 3 || got.Camera.Width != 640 || got.Camera.Height != 480 {
		t.Errorf("camera = %+v", got.Camera)
	}
	if got.Overlay.Mirror {
		t.Error("mirror should follow camera.mirror")
	}
	if got.Thresholds.Flexion != 95 || got.Overlay.MinVisibility != cfg.Exercise.MinVisibility {
		t.Errorf("thresholds = %+v", got.Thresholds)
	}
	if got.Detector.ModelComplexity != 2 || !got.Detector.SmoothLandmarks {
		t.Errorf("detector = %+v", got.Detector)
	}
	if got.JPEGQuality != cfg.Camera.Quality {
		t.Errorf("jpeg quality = %d", got.JPEGQuality)
	}
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	flags := &rootFlags{configPath: filepath.Join(t.TempDir(), "none.yaml"), logLevel: "debug"}

	cfg, err := loadConfig(flags)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func writeRecording(t *testing.T) string {
	t.Helper()

	data, err := testdata.LoadRecording(testdata.ThreeReps)
	if err != nil {
		t.Fatalf("LoadRecording() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "three_reps.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runReplay(t *testing.T, args ...string) string {
	t.Helper()

	flags := &rootFlags{configPath: filepath.Join(t.TempDir(), "none.yaml"), logLevel: "error"}
	cmd := newReplayCmd(flags)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("replay %v: %v", args, err)
	}
	return out.String()
}

func TestReplayCmd_JSON(t *testing.T) {
	out := runReplay(t, "--json", writeRecording(t))

	var summary replay.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("output is not a summary: %v\n%s", err, out)
	}
	if summary.Reps != testdata.ThreeRepsReps {
		t.Errorf("reps = %d, want %d", summary.Reps, testdata.ThreeRepsReps)
	}
}

func TestReplayCmd_Text(t *testing.T) {
	out := runReplay(t, "-q", writeRecording(t))

	if !strings.Contains(out, "reps:          3") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "no person 8") {
		t.Errorf("frame breakdown missing:\n%s", out)
	}
}

func TestReplayCmd_MissingFile(t *testing.T) {
	flags := &rootFlags{configPath: filepath.Join(t.TempDir(), "none.yaml")}
	cmd := newReplayCmd(flags)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.json")})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for a missing recording")
	}
}

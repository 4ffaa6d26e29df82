// Package main provides a plugin that announces rep counts with the
// platform's text-to-speech command.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the plugin runner.
type Request struct {
	Event     string          `json:"event"`
	SessionID string          `json:"session_id"`
	Reps      int             `json:"reps"`
	Angle     float64         `json:"angle"`
	Side      string          `json:"side,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Response represents the output to the plugin runner.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the per-hook configuration.
type Config struct {
	Voice  string `json:"voice"`
	Every  int    `json:"every"`
	DryRun bool   `json:"dry_run"`
}

var errNoSpeech = errors.New("no text-to-speech command found")

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg, err := parseConfig(req.Config)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	phrase, ok := phraseFor(req, cfg)
	if !ok {
		writeSuccessResponse("")
		return
	}

	if !cfg.DryRun {
		if err := speak(phrase, cfg.Voice); err != nil {
			writeErrorResponse(fmt.Sprintf("speak: %v", err))
			return
		}
	}

	writeSuccessResponse(phrase)
}

func parseConfig(raw json.RawMessage) (Config, error) {
	cfg := Config{Every: 1}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Every < 1 {
		cfg.Every = 1
	}
	return cfg, nil
}

// phraseFor returns what to say for the event, or false to stay silent.
func phraseFor(req Request, cfg Config) (string, bool) {
	switch req.Event {
	case "rep_completed":
		if req.Reps <= 0 || req.Reps%cfg.Every != 0 {
			return "", false
		}
		if req.Reps == 1 {
			return "1 rep", true
		}
		return fmt.Sprintf("%d reps", req.Reps), true
	case "reset":
		return "Counter reset", true
	default:
		return "", false
	}
}

// speak runs the first available speech command.
func speak(phrase, voice string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		args := []string{phrase}
		if voice != "" {
			args = []string{"-v", voice, phrase}
		}
		cmd = exec.Command("say", args...)
	default:
		for _, name := range []string{"spd-say", "espeak"} {
			if path, err := exec.LookPath(name); err == nil {
				cmd = exec.Command(path, phrase)
				break
			}
		}
	}
	if cmd == nil {
		return errNoSpeech
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response with the spoken phrase.
func writeSuccessResponse(phrase string) {
	data, _ := json.Marshal(map[string]string{"phrase": phrase})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// Package plugin discovers external executables that react to rep events
// and runs them with a JSON request on stdin.
package plugin

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/ayusman/squatcoach/internal/exercise"
)

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Events       []string        `json:"events"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Handles reports whether the manifest subscribes to event.
func (m Manifest) Handles(event string) bool {
	return slices.Contains(m.Events, event)
}

// Request is written to the plugin's stdin for each event.
type Request struct {
	Event     string          `json:"event"`
	SessionID string          `json:"session_id"`
	Reps      int             `json:"reps"`
	Angle     float64         `json:"angle"`
	Side      string          `json:"side,omitempty"`
	At        time.Time       `json:"at"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// NewRequest builds the request for a rep event.
func NewRequest(e exercise.Event, config json.RawMessage) *Request {
	return &Request{
		Event:     string(e.Type),
		SessionID: e.SessionID,
		Reps:      e.Reps,
		Angle:     e.Angle,
		Side:      string(e.Side),
		At:        e.At,
		Config:    config,
	}
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

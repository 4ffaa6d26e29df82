// Package testdata embeds landmark recordings used by replay and end-to-end
// tests.
package testdata

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed recordings/*.json
var recordingsFS embed.FS

// ThreeReps is a side-on set of four squats: three to full depth and one
// stopped short at 120 degrees. It opens and closes with empty frames, has
// ten frames with the right leg occluded and three with both legs below the
// visibility threshold.
const ThreeReps = "three_reps.json"

// Expected outcome of replaying ThreeReps with default thresholds.
const (
	ThreeRepsReps         = 3
	ThreeRepsFormWarnings = 7
	ThreeRepsNoPerson     = 8
	ThreeRepsRejected     = 3
	ThreeRepsFrames       = 218
)

// OpenRecording opens an embedded recording by file name.
func OpenRecording(name string) (fs.File, error) {
	f, err := recordingsFS.Open("recordings/" + name)
	if err != nil {
		return nil, fmt.Errorf("open recording %s: %w", name, err)
	}
	return f, nil
}

// LoadRecording returns the raw bytes of an embedded recording.
func LoadRecording(name string) ([]byte, error) {
	data, err := recordingsFS.ReadFile("recordings/" + name)
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", name, err)
	}
	return data, nil
}

// Package tray provides the system tray controls for squatcoach.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/squatcoach/internal/exercise"
)

// Tray represents the system tray application. It shows the rep count in
// the tray title and implements app.EventSink to keep it current.
type Tray struct {
	onToggle func(enabled bool)
	onReset  func()
	onOpen   func()
	onQuit   func()
	enabled  bool
	reps     int
	last     string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem

	// quit is closed by Quit; the tray only exits once it is ready.
	quit     chan struct{}
	quitOnce sync.Once
	exit     func()
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
		last:    lastLabel(exercise.Event{}),
		quit:    make(chan struct{}),
		exit:    systray.Quit,
	}
}

// OnToggle sets the callback run when counting is paused or resumed.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReset sets the callback run when the reset menu item is clicked.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnOpen sets the callback run when the open UI menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called and must run on the main thread.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return. It is safe to call before Run
// or before the tray is ready; the exit then happens once it is.
func (t *Tray) Quit() {
	t.quitOnce.Do(func() { close(t.quit) })
}

// watchQuit exits the tray loop once Quit has been called. Started from
// onReady so the exit never races the tray's startup.
func (t *Tray) watchQuit() {
	go func() {
		<-t.quit
		t.exit()
	}()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	t.mu.Lock()
	systray.SetTitle(titleFor(t.reps))
	systray.SetTooltip("squatcoach rep counter")

	t.menuToggle = systray.AddMenuItem(toggleLabel(t.enabled), "Pause or resume counting")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(t.last, "Last counter event")
	t.menuLast.Disable()
	t.mu.Unlock()

	menuReset := systray.AddMenuItem("Reset Counter", "Start a new set from zero")
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in Browser...", "Show the camera overlay")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit squatcoach")

	t.watchQuit()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.handleCallback(func() func() { return t.onReset })
			case <-menuOpen.ClickedCh:
				t.handleCallback(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleLabel(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleCallback(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.handleCallback(func() func() { return t.onQuit })
	t.Quit()
}

// SetEnabled syncs the toggle item with a state changed elsewhere, such as
// the HTTP API.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleLabel(enabled))
	}
}

// HandleEvent updates the title and last event line from a counter event.
func (t *Tray) HandleEvent(e exercise.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reps = e.Reps
	t.last = lastLabel(e)

	if t.menuLast != nil {
		systray.SetTitle(titleFor(t.reps))
		t.menuLast.SetTitle(t.last)
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Reps returns the rep count currently shown.
func (t *Tray) Reps() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reps
}

// Last returns the text of the last event line.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func titleFor(reps int) string {
	return fmt.Sprintf("Reps: %d", reps)
}

func toggleLabel(enabled bool) string {
	if enabled {
		return "● Counting"
	}
	return "○ Paused"
}

func lastLabel(e exercise.Event) string {
	switch e.Type {
	case exercise.EventRepCompleted:
		return fmt.Sprintf("Last: rep %d at %.0f°", e.Reps, e.Angle)
	case exercise.EventFormWarning:
		return fmt.Sprintf("Last: go lower (%.0f°)", e.Angle)
	case exercise.EventReset:
		return "Last: counter reset"
	default:
		return "Last: none"
	}
}

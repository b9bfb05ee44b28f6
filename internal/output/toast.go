package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressToastID identifies the single progress toast. Showing a new
// progress toast replaces whatever toast holds this id.
const ProgressToastID = "download-progress-toast"

const (
	SuccessToastTTL = 5 * time.Second
	ErrorToastTTL   = 7 * time.Second
)

type ToastKind string

const (
	ToastProgress ToastKind = "progress"
	ToastSuccess  ToastKind = "success"
	ToastError    ToastKind = "error"
)

type Toast struct {
	ID      string
	Kind    ToastKind
	Message string
	Percent int
	Created time.Time
}

// Toaster shows transient notifications on a terminal stream. Progress
// toasts redraw in place; success and error toasts are printed once and
// dropped from the active set when they expire.
type Toaster struct {
	mu         sync.Mutex
	out        io.Writer
	toasts     []*Toast
	seq        int
	inline     bool // a progress line is drawn without a trailing newline
	successTTL time.Duration
	errorTTL   time.Duration
}

func NewToaster(out io.Writer) *Toaster {
	return &Toaster{
		out:        out,
		successTTL: SuccessToastTTL,
		errorTTL:   ErrorToastTTL,
	}
}

// SetExpiry overrides how long success and error toasts stay active.
func (t *Toaster) SetExpiry(success, failure time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTTL = success
	t.errorTTL = failure
}

func (t *Toaster) Progress(message string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(ProgressToastID)
	toast := &Toast{
		ID:      ProgressToastID,
		Kind:    ToastProgress,
		Message: message,
		Percent: ClampPercent(percent),
		Created: time.Now(),
	}
	t.toasts = append(t.toasts, toast)
	t.breakLineLocked()
	t.drawProgressLocked(toast)
}

// UpdateProgress moves the bar of the current progress toast. It does
// nothing when no progress toast is showing.
func (t *Toaster) UpdateProgress(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	toast := t.findLocked(ProgressToastID)
	if toast == nil {
		return
	}
	percent = ClampPercent(percent)
	if percent == toast.Percent && t.inline {
		return
	}
	toast.Percent = percent
	t.drawProgressLocked(toast)
}

func (t *Toaster) Success(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(ProgressToastID)
	t.breakLineLocked()
	t.addTransientLocked(ToastSuccess, message, t.successTTL)
	fmt.Fprintf(t.out, "  %s %s %s\n", successStyle.Render(StyleSymbols["pass"]), success2Style.Bold(true).Render("Success"), successStyle.Render(message))
}

func (t *Toaster) Error(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breakLineLocked()
	t.addTransientLocked(ToastError, message, t.errorTTL)
	fmt.Fprintf(t.out, "  %s %s %s\n", errorStyle.Render(StyleSymbols["fail"]), errorStyle.Bold(true).Render("Error"), errorStyle.Render(message))
}

// Active returns a snapshot of the toasts currently showing.
func (t *Toaster) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := make([]Toast, 0, len(t.toasts))
	for _, toast := range t.toasts {
		active = append(active, *toast)
	}
	return active
}

// Close ends an inline progress line so later output starts on a fresh line.
func (t *Toaster) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breakLineLocked()
}

func (t *Toaster) addTransientLocked(kind ToastKind, message string, ttl time.Duration) {
	t.seq++
	toast := &Toast{
		ID:      fmt.Sprintf("%s-toast-%d", kind, t.seq),
		Kind:    kind,
		Message: message,
		Created: time.Now(),
	}
	t.toasts = append(t.toasts, toast)
	time.AfterFunc(ttl, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.removeLocked(toast.ID)
	})
}

func (t *Toaster) drawProgressLocked(toast *Toast) {
	width := getTerminalWidth()
	message := truncate(toast.Message, max(10, width-barWidth()-20))
	line := fmt.Sprintf("  %s %s %s", pendingStyle.Render(StyleSymbols["download"]), pendingStyle.Render(message), PrintProgressBar(toast.Percent, barWidth(), ""))
	fmt.Fprintf(t.out, "\r\033[K%s", line)
	t.inline = true
}

func (t *Toaster) breakLineLocked() {
	if t.inline {
		fmt.Fprintln(t.out)
		t.inline = false
	}
}

func (t *Toaster) findLocked(id string) *Toast {
	for _, toast := range t.toasts {
		if toast.ID == id {
			return toast
		}
	}
	return nil
}

func (t *Toaster) removeLocked(id string) {
	kept := t.toasts[:0]
	for _, toast := range t.toasts {
		if toast.ID != id {
			kept = append(kept, toast)
		}
	}
	t.toasts = kept
}


package output

import (
	"fmt"
	"io"
	"sync"
)

// PanelState is what the progress panel currently shows.
type PanelState struct {
	Visible  bool // progress bar shown
	Percent  int
	Width    string
	Label    string
	Failed   bool
	Done     bool // completion links shown
	Href     string
	Filename string
	Alert    string
}

// Panel renders the progress of one server-side job: a single bar that
// redraws in place, replaced by completion links or an error alert once the
// job is finished.
type Panel struct {
	mu     sync.Mutex
	out    io.Writer
	state  PanelState
	inline bool
}

func NewPanel(out io.Writer) *Panel {
	return &Panel{out: out}
}

func (p *Panel) Render(percent int, label string, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	percent = ClampPercent(percent)
	if p.inline && p.state.Percent == percent && p.state.Label == label && p.state.Failed == failed {
		return
	}
	p.state.Visible = true
	p.state.Percent = percent
	p.state.Width = fmt.Sprintf("%d%%", percent)
	p.state.Label = label
	p.state.Failed = failed

	style, labelStyle := "", pendingStyle
	if failed {
		style, labelStyle = "error", errorStyle
	}
	fmt.Fprintf(p.out, "\r\033[K  %s%s", PrintProgressBar(percent, barWidth(), style), labelStyle.Render(label))
	p.inline = true
}

func (p *Panel) Complete(href, filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLineLocked()
	p.state.Visible = false
	p.state.Done = true
	p.state.Href = href
	p.state.Filename = filename
	fmt.Fprintf(p.out, "  %s %s\n", successStyle.Render(StyleSymbols["pass"]), success2Style.Render("Download complete!"))
	fmt.Fprintf(p.out, "    %s %s %s\n", debugStyle.Render("link"), StyleSymbols["arrow"], detailStyle.Render(href))
	fmt.Fprintf(p.out, "    %s %s %s\n", debugStyle.Render("file"), StyleSymbols["arrow"], detailStyle.Render(filename))
}

func (p *Panel) Fail(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLineLocked()
	p.state.Alert = message
	fmt.Fprintf(p.out, "  %s %s\n", errorStyle.Render(StyleSymbols["fail"]), errorStyle.Render(message))
}

func (p *Panel) State() PanelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Panel) endLineLocked() {
	if p.inline {
		fmt.Fprintln(p.out)
		p.inline = false
	}
}

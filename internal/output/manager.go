package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// JobOutput is the display state of one batch entry.
type JobOutput struct {
	ID          int
	Source      string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	Source string
	Error  error
	Time   time.Time
}

// Manager drives a live, multi-line display for a batch of downloads.
// Every entry gets a status line plus an optional progress line below it.
type Manager struct {
	out         io.Writer
	outputs     map[int]*JobOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	jobCount    int
	displayWg   sync.WaitGroup
	live        bool
}

func NewManager(out io.Writer) *Manager {
	return &Manager{
		out:         out,
		outputs:     make(map[int]*JobOutput),
		errors:      []ErrorReport{},
		maxStreams:  4,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(source string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.jobCount++
	m.outputs[m.jobCount] = &JobOutput{
		ID:          m.jobCount,
		Source:      source,
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.jobCount,
	}
	return m.jobCount
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetStatus(id int, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Status = status
		info.LastUpdated = time.Now()
	}
}

// Get returns a copy of an entry's display state.
func (m *Manager) Get(id int) (JobOutput, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	info, exists := m.outputs[id]
	if !exists {
		return JobOutput{}, false
	}
	snapshot := *info
	snapshot.StreamLines = append([]string(nil), info.StreamLines...)
	return snapshot, true
}

func (m *Manager) Complete(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = []string{}
		if message == "" {
			info.Message = fmt.Sprintf("Completed %s", info.Source)
		} else {
			info.Message = message
		}
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.Message = err.Error()
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{
			Source: info.Source,
			Error:  err,
			Time:   time.Now(),
		})
	}
}

func (m *Manager) AddStreamLine(id int, line string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = append(info.StreamLines, line)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
		info.LastUpdated = time.Now()
	}
}

// SetProgress replaces an entry's stream with a single progress bar.
func (m *Manager) SetProgress(id int, percent int, label string, failed bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		style := ""
		if failed {
			style = "error"
		}
		info.StreamLines = []string{PrintProgressBar(percent, 30, style) + debugStyle.Render(label)}
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ClearAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id := range m.outputs {
		m.outputs[id].StreamLines = []string{}
	}
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sortJobs() (active, pending, completed []*JobOutput) {
	var all []*JobOutput
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})
	for _, j := range all {
		if j.Complete {
			completed = append(completed, j)
		} else if j.Status == "pending" && j.Message == "" {
			pending = append(pending, j)
		} else {
			active = append(active, j)
		}
	}
	return active, pending, completed
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	}
	return pendingStyle.Render(message)
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	availableLines := getTerminalHeight() - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}

	lineCount := 0
	active, pending, completed := m.sortJobs()

	totalNeeded := len(completed)
	for _, j := range active {
		totalNeeded += 1 + len(j.StreamLines)
	}
	totalNeeded += len(pending)
	if totalNeeded > availableLines {
		maxCompleted := max(0, availableLines-(totalNeeded-len(completed)))
		if len(completed) > maxCompleted {
			completed = completed[len(completed)-maxCompleted:]
		}
	}

	indent := strings.Repeat(" ", 2+4)
	for _, info := range active {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		fmt.Fprintf(m.out, "  %s %s %s\n", m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))
		lineCount++
		for _, line := range info.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "%s%s\n", indent, streamStyle.Render(line))
			lineCount++
		}
	}

	for _, info := range pending {
		if lineCount >= availableLines {
			break
		}
		fmt.Fprintf(m.out, "  %s %s\n", m.GetStatusIndicator(info.Status), pendingStyle.Render("Waiting..."))
		lineCount++
	}

	if len(completed) > 10 && lineCount < availableLines {
		fmt.Fprintln(m.out, infoStyle.Render(fmt.Sprintf("  %d downloads completed with varying hidden status ...", len(completed)-8)))
		completed = completed[len(completed)-8:]
		lineCount++
	}

	for _, info := range completed {
		if lineCount >= availableLines {
			break
		}
		total := info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		fmt.Fprintf(m.out, "  %s %s %s\n", m.GetStatusIndicator(info.Status), debugStyle.Render(total.String()), styleMessage(info.Status, info.Message))
		lineCount++
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.live = true
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.ClearAll()
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

// StopDisplay draws the final frame and the summary. Without a live
// display it only prints the summary.
func (m *Manager) StopDisplay() {
	if !m.live {
		m.ShowSummary()
		return
	}
	close(m.doneCh)
	m.displayWg.Wait()
}

// Counts reports how many entries succeeded and failed.
func (m *Manager) Counts() (success, failures int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	return success, failures
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Source: %s", err.Source)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	success, failures := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}

// JobView adapts one entry to the job progress view used by the tracker.
type JobView struct {
	m  *Manager
	id int
}

func (m *Manager) View(id int) *JobView {
	return &JobView{m: m, id: id}
}

func (v *JobView) Render(percent int, label string, failed bool) {
	v.m.SetMessage(v.id, label)
	v.m.SetProgress(v.id, percent, "", failed)
}

func (v *JobView) Complete(href, filename string) {
	v.m.AddStreamLine(v.id, fmt.Sprintf("%s %s", StyleSymbols["arrow"], href))
	v.m.SetMessage(v.id, fmt.Sprintf("Ready: %s", filename))
}

func (v *JobView) Fail(message string) {
	v.m.SetStatus(v.id, "warning")
	v.m.SetMessage(v.id, message)
}

// JobNotifier adapts one entry to the toast notifications raised by the
// media fetcher.
type JobNotifier struct {
	m  *Manager
	id int
}

func (m *Manager) Notifier(id int) *JobNotifier {
	return &JobNotifier{m: m, id: id}
}

func (n *JobNotifier) Progress(message string, percent int) {
	n.m.SetMessage(n.id, message)
	n.m.SetProgress(n.id, percent, "", false)
}

func (n *JobNotifier) UpdateProgress(percent int) {
	n.m.SetProgress(n.id, percent, "", false)
}

func (n *JobNotifier) Success(message string) {
	n.m.AddStreamLine(n.id, successStyle.Render(message))
}

func (n *JobNotifier) Error(message string) {
	n.m.AddStreamLine(n.id, errorStyle.Render(message))
}

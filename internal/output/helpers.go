package output

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// PrintProgressBar renders a bar for an integer percentage in [0,100].
func PrintProgressBar(percent int, width int, style string) string {
	if width <= 0 {
		width = 30
	}
	percent = ClampPercent(percent)
	filled := max(0, min(percent*width/100, width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	text := fmt.Sprintf("%s %d%% %s ", bar, percent, StyleSymbols["bullet"])
	switch style {
	case "error":
		return errorStyle.Render(text)
	case "success":
		return successStyle.Render(text)
	}
	return debugStyle.Render(text)
}

func ClampPercent(percent int) int {
	return max(0, min(percent, 100))
}

func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80 // Default fallback width
	}
	return width
}

func getTerminalHeight() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height <= 0 {
		return 24 // Default fallback height
	}
	return height
}

// barWidth sizes a progress bar to leave room for its label.
func barWidth() int {
	return max(10, min(30, getTerminalWidth()-50))
}

func truncate(text string, maxWidth int) string {
	if maxWidth <= 3 || utf8.RuneCountInString(text) <= maxWidth {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxWidth-3]) + "..."
}

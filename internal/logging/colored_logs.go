// Package logging provides the Fyne widgets the desktop UI uses to show
// Witra's activity log: a plain scrolling text box (ColoredLogWidget) and
// the richer per-line colored LogView (log_view.go, the one the desktop
// app shows), both grounded on the teacher's
// internal/logging package of the same name.
package logging

import (
	"fmt"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

// LogLevel is the severity used to color one log line.
type LogLevel int

const (
	LogInfo LogLevel = iota
	LogWarning
	LogError
	LogSuccess
)

// ColoredLogWidget is a simple scrolling, read-only multi-line entry.
type ColoredLogWidget struct {
	*widget.Entry
	content []string
}

// NewColoredLogWidget creates an empty, disabled (read-only) log widget.
func NewColoredLogWidget() *ColoredLogWidget {
	entry := widget.NewMultiLineEntry()
	entry.Wrapping = fyne.TextWrapWord
	entry.Resize(fyne.NewSize(700, 500))

	clw := &ColoredLogWidget{
		Entry:   entry,
		content: make([]string, 0),
	}
	clw.Disable()
	return clw
}

// Append adds one timestamped, leveled line.
func (clw *ColoredLogWidget) Append(level LogLevel, message string) {
	timestamp := time.Now().Format("15:04:05")
	var prefix string

	switch level {
	case LogInfo:
		prefix = "INFO"
	case LogWarning:
		prefix = "WARN"
	case LogError:
		prefix = "ERROR"
	case LogSuccess:
		prefix = "OK"
	default:
		prefix = "LOG"
	}

	formattedMessage := fmt.Sprintf("[%s] %s: %s", timestamp, prefix, message)
	clw.content = append(clw.content, formattedMessage)

	if len(clw.content) > 1000 {
		clw.content = clw.content[len(clw.content)-500:]
	}

	clw.SetText(strings.Join(clw.content, "\n"))
}

// Clear empties the log widget.
func (clw *ColoredLogWidget) Clear() {
	clw.content = make([]string, 0)
	clw.SetText("")
}

package logging

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"

	"github.com/williampepple1/witra/internal/core"
	"github.com/williampepple1/witra/internal/transferregistry"
)

// LogEntry is one formatted, leveled line.
type LogEntry struct {
	Level LogLevel
	Text  string
	Time  time.Time
}

// LogView is a scrollable, color-coded log widget, grounded on the
// teacher's internal/logging.LogView but adapted to render core.Event
// values (SPEC_FULL.md's AMBIENT STACK: Logging) instead of raw transfer
// progress strings.
type LogView struct {
	box      *fyne.Container
	scroll   *container.Scroll
	entries  []LogEntry
	maxLines int
}

// NewLogView creates an empty, scrollable log view.
func NewLogView() *LogView {
	box := container.NewVBox()
	scroll := container.NewVScroll(box)
	scroll.SetMinSize(fyne.NewSize(600, 300))
	return &LogView{box: box, scroll: scroll, maxLines: 1000}
}

// CanvasObject returns the widget to place in a layout.
func (lv *LogView) CanvasObject() fyne.CanvasObject { return lv.scroll }

// Clear removes every line.
func (lv *LogView) Clear() {
	lv.entries = nil
	lv.box.Objects = nil
	lv.box.Refresh()
}

// Append adds one line, trimming old entries and scrolling to the bottom.
func (lv *LogView) Append(level LogLevel, msg string) {
	e := LogEntry{Level: level, Text: msg, Time: time.Now()}
	lv.entries = append(lv.entries, e)
	if len(lv.entries) > lv.maxLines {
		lv.entries = lv.entries[len(lv.entries)-lv.maxLines/2:]
		lv.box.Objects = nil
		for _, ent := range lv.entries {
			lv.box.Add(lv.renderEntry(ent))
		}
	} else {
		lv.box.Add(lv.renderEntry(e))
	}
	lv.box.Refresh()
	if lv.scroll != nil {
		lv.scroll.ScrollToBottom()
	}
}

// AppendEvent renders one core.Event as a colored log line: the level is
// derived from the event kind (and, for transfer updates, from the
// transfer's current status), and the text is the event's own String().
func (lv *LogView) AppendEvent(ev core.Event) {
	lv.Append(levelForEvent(ev), ev.String())
}

func levelForEvent(ev core.Event) LogLevel {
	switch ev.Kind {
	case core.EventError:
		return LogError
	case core.EventConnectionRejected, core.EventPeerRemoved:
		return LogWarning
	case core.EventTransferAdded, core.EventTransferUpdated:
		switch ev.Transfer.Status {
		case transferregistry.Completed:
			return LogSuccess
		case transferregistry.Failed, transferregistry.Cancelled:
			return LogError
		}
		return LogInfo
	default:
		return LogInfo
	}
}

func (lv *LogView) colorFor(level LogLevel) color.Color {
	switch level {
	case LogError:
		return color.RGBA{0xFF, 0x55, 0x55, 0xFF}
	case LogWarning:
		return color.RGBA{0xFF, 0xD7, 0x64, 0xFF}
	case LogSuccess:
		return color.RGBA{0x6A, 0xE3, 0x7A, 0xFF}
	default:
		return color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	}
}

func (lv *LogView) labelFor(level LogLevel) string {
	switch level {
	case LogError:
		return "ERROR"
	case LogWarning:
		return "WARN"
	case LogSuccess:
		return "SUCCESS"
	default:
		return "INFO"
	}
}

func (lv *LogView) renderEntry(e LogEntry) fyne.CanvasObject {
	ts := e.Time.Format("15:04:05")
	c := canvas.NewText(fmt.Sprintf("[%s] %s: %s", ts, lv.labelFor(e.Level), e.Text), lv.colorFor(e.Level))
	c.Alignment = fyne.TextAlignLeading
	c.TextSize = 12
	return c
}

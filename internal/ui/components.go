// Package ui holds the small, reusable Fyne widgets the desktop app
// composes its windows from: a status bar, a connection-state pill, a
// transfer progress indicator, and a couple of sanitizing entry helpers.
// Grounded verbatim on the teacher's internal/ui/components.go, translated
// from the GUI-client vocabulary (connection host/port, file path) to
// Witra's (peer, transfer progress, display name).
package ui

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// StatusBar shows a one-line status message, an optional progress bar, and
// a trailing info label (e.g. the number of known peers).
type StatusBar struct {
	widget.BaseWidget
	statusLabel *widget.Label
	progressBar *widget.ProgressBar
	infoLabel   *widget.Label
}

// NewStatusBar creates a status bar reading "Ready".
func NewStatusBar() *StatusBar {
	sb := &StatusBar{
		statusLabel: widget.NewLabel("Ready"),
		progressBar: widget.NewProgressBar(),
		infoLabel:   widget.NewLabel(""),
	}
	sb.ExtendBaseWidget(sb)
	sb.progressBar.Hide()
	return sb
}

func (sb *StatusBar) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewHBox(
		sb.statusLabel,
		sb.progressBar,
		widget.NewSeparator(),
		sb.infoLabel,
	))
}

// SetStatus changes the status message.
func (sb *StatusBar) SetStatus(status string) {
	sb.statusLabel.SetText(status)
}

// SetProgress shows (progress > 0) or hides (progress <= 0) the bar.
func (sb *StatusBar) SetProgress(progress float64) {
	if progress > 0 {
		sb.progressBar.SetValue(progress)
		sb.progressBar.Show()
	} else {
		sb.progressBar.Hide()
	}
}

// SetInfo changes the trailing info label.
func (sb *StatusBar) SetInfo(info string) {
	sb.infoLabel.SetText(info)
}

// ToolbarButton is a toggle-style button showing a filled or hollow dot.
type ToolbarButton struct {
	widget.BaseWidget
	button   *widget.Button
	icon     fyne.Resource
	tooltip  string
	onTapped func()
}

// NewToolbarButton creates a toolbar button.
func NewToolbarButton(icon fyne.Resource, tooltip string, onTapped func()) *ToolbarButton {
	tb := &ToolbarButton{
		icon:     icon,
		tooltip:  tooltip,
		onTapped: onTapped,
	}
	tb.button = widget.NewButton("", tb.onTapped)
	tb.ExtendBaseWidget(tb)
	return tb
}

func (tb *ToolbarButton) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewButtonRenderer(tb.button)
}

// SetEnabled toggles the button's filled/hollow glyph.
func (tb *ToolbarButton) SetEnabled(enabled bool) {
	tb.button.SetText(tb.getButtonText(enabled))
}

func (tb *ToolbarButton) getButtonText(enabled bool) string {
	if enabled {
		return "●"
	}
	return "○"
}

// FormattedEntry is a widget.Entry that reformats its text on every
// change and runs an optional validator.
type FormattedEntry struct {
	widget.Entry
	formatter func(string) string
	validator func(string) error
}

// NewFormattedEntry creates an entry with the given formatter/validator.
func NewFormattedEntry(formatter func(string) string, validator func(string) error) *FormattedEntry {
	fe := &FormattedEntry{
		formatter: formatter,
		validator: validator,
	}
	fe.ExtendBaseWidget(fe)
	fe.OnChanged = fe.onTextChanged
	return fe
}

func (fe *FormattedEntry) onTextChanged(text string) {
	if fe.formatter != nil {
		formatted := fe.formatter(text)
		if formatted != text {
			fe.SetText(formatted)
			fe.CursorColumn = len(formatted)
		}
	}
	if fe.validator != nil {
		_ = fe.validator(text)
	}
}

// InfoPanel is a titled, appendable text panel.
type InfoPanel struct {
	widget.BaseWidget
	title   *widget.Label
	content *widget.Label
}

// NewInfoPanel creates an info panel with the given title.
func NewInfoPanel(title string) *InfoPanel {
	ip := &InfoPanel{
		title:   widget.NewLabel(title),
		content: widget.NewLabel(""),
	}
	ip.ExtendBaseWidget(ip)
	ip.title.TextStyle.Bold = true
	return ip
}

func (ip *InfoPanel) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewVBox(
		ip.title,
		widget.NewSeparator(),
		ip.content,
	))
}

// SetContent replaces the panel's body.
func (ip *InfoPanel) SetContent(content string) {
	ip.content.SetText(content)
}

// AddContent appends a line to the panel's body.
func (ip *InfoPanel) AddContent(content string) {
	current := ip.content.Text
	if current == "" {
		ip.content.SetText(content)
	} else {
		ip.content.SetText(current + "\n" + content)
	}
}

// Clear empties the panel.
func (ip *InfoPanel) Clear() {
	ip.content.SetText("")
}

// ConnectionStatus is a small colored-dot + label pill showing whether a
// peer's session is currently connected (spec §3's peer connection state,
// collapsed to a boolean for display).
type ConnectionStatus struct {
	widget.BaseWidget
	statusLabel *widget.Label
	statusIcon  *widget.Label
}

// NewConnectionStatus creates a pill starting in the disconnected state.
func NewConnectionStatus() *ConnectionStatus {
	cs := &ConnectionStatus{
		statusLabel: widget.NewLabel("Disconnected"),
		statusIcon:  widget.NewLabel("●"),
	}
	cs.ExtendBaseWidget(cs)
	cs.SetStatus(false)
	return cs
}

func (cs *ConnectionStatus) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewHBox(
		cs.statusIcon,
		cs.statusLabel,
	))
}

// SetStatus updates the pill's label and color.
func (cs *ConnectionStatus) SetStatus(connected bool) {
	if connected {
		cs.statusLabel.SetText("Connected")
		cs.statusIcon.SetText("●")
		cs.statusIcon.Importance = widget.SuccessImportance
	} else {
		cs.statusLabel.SetText("Disconnected")
		cs.statusIcon.SetText("●")
		cs.statusIcon.Importance = widget.DangerImportance
	}
}

// ProgressIndicator shows a transfer's progress bar, current speed, and
// estimated time remaining (spec §3: Transfer.CurrentSpeed).
type ProgressIndicator struct {
	widget.BaseWidget
	progressBar *widget.ProgressBar
	statusLabel *widget.Label
	speedLabel  *widget.Label
	etaLabel    *widget.Label
}

// NewProgressIndicator creates an idle progress indicator.
func NewProgressIndicator() *ProgressIndicator {
	pi := &ProgressIndicator{
		progressBar: widget.NewProgressBar(),
		statusLabel: widget.NewLabel("Waiting..."),
		speedLabel:  widget.NewLabel("0 B/s"),
		etaLabel:    widget.NewLabel("--:--"),
	}
	pi.ExtendBaseWidget(pi)
	return pi
}

func (pi *ProgressIndicator) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewVBox(
		pi.statusLabel,
		pi.progressBar,
		container.NewHBox(
			pi.speedLabel,
			widget.NewSeparator(),
			pi.etaLabel,
		),
	))
}

// SetProgress updates the bar, speed, and ETA from a transfer's current
// byte counters (spec §4.6: CurrentSpeed is sampled once per second).
func (pi *ProgressIndicator) SetProgress(progress float64, speed float64, totalBytes, transferredBytes int64) {
	pi.progressBar.SetValue(progress)

	if speed > 0 {
		pi.speedLabel.SetText(formatBytes(speed) + "/s")
		if totalBytes > transferredBytes {
			remainingBytes := totalBytes - transferredBytes
			etaSeconds := float64(remainingBytes) / speed
			pi.etaLabel.SetText(formatDuration(etaSeconds))
		} else {
			pi.etaLabel.SetText("--:--")
		}
	} else {
		pi.speedLabel.SetText("0 B/s")
		pi.etaLabel.SetText("--:--")
	}
}

// SetStatus changes the indicator's status line.
func (pi *ProgressIndicator) SetStatus(status string) {
	pi.statusLabel.SetText(status)
}

func formatBytes(bytes float64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	unit := 0
	for bytes >= 1024 && unit < len(units)-1 {
		bytes /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%.0f %s", bytes, units[unit])
	}
	return fmt.Sprintf("%.1f %s", bytes, units[unit])
}

func formatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.0fs", seconds)
	} else if seconds < 3600 {
		minutes := int(seconds / 60)
		secs := int(seconds) % 60
		return fmt.Sprintf("%02d:%02d", minutes, secs)
	}
	hours := int(seconds / 3600)
	minutes := int((seconds - float64(hours*3600)) / 60)
	return fmt.Sprintf("%02d:%02d:00", hours, minutes)
}

// ValidationIndicator is a check/cross + message pill for inline form
// validation.
type ValidationIndicator struct {
	widget.BaseWidget
	icon  *widget.Label
	label *widget.Label
	valid bool
}

// NewValidationIndicator creates an indicator starting in the invalid
// state with no message.
func NewValidationIndicator() *ValidationIndicator {
	vi := &ValidationIndicator{
		icon:  widget.NewLabel("●"),
		label: widget.NewLabel(""),
		valid: false,
	}
	vi.ExtendBaseWidget(vi)
	vi.SetValid(false, "")
	return vi
}

func (vi *ValidationIndicator) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewHBox(
		vi.icon,
		vi.label,
	))
}

// SetValid updates the indicator's glyph, color, and message.
func (vi *ValidationIndicator) SetValid(valid bool, message string) {
	vi.valid = valid
	vi.label.SetText(message)
	if valid {
		vi.icon.SetText("✓")
		vi.icon.Importance = widget.SuccessImportance
	} else {
		vi.icon.SetText("✗")
		vi.icon.Importance = widget.DangerImportance
	}
}

// IsValid reports the indicator's last-set validity.
func (vi *ValidationIndicator) IsValid() bool {
	return vi.valid
}

// FormatIP strips whitespace from a manually entered address.
func FormatIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	return strings.ReplaceAll(ip, " ", "")
}

// FormatPort keeps only digits from a manually entered port.
func FormatPort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	var result strings.Builder
	for _, char := range port {
		if char >= '0' && char <= '9' {
			result.WriteRune(char)
		}
	}
	return result.String()
}

// FormatFilePath strips characters that have no business in a Witra
// destination path (the same small blocklist the teacher applies to
// manually typed file paths).
func FormatFilePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	dangerous := []string{"..", "~", "$", "`", "|", "&", ";"}
	for _, char := range dangerous {
		path = strings.ReplaceAll(path, char, "")
	}
	return path
}

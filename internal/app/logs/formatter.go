package logs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"

	"logview/internal/app/logstream"
	"logview/internal/app/viewer"
	"logview/internal/config"
	"logview/internal/config/logger"
)

// Banner describes what a tail session is showing
type Banner struct {
	Owner       string
	Application string
	Range       string
	Showing     []string
	Version     string
}

// Formatter renders streamed entries and session state for a terminal or as JSON lines
type Formatter struct {
	mu             sync.Mutex
	format         string
	location       *time.Location
	maxLabelLen    int
	separatorStyle lipgloss.Style
	messageStyle   lipgloss.Style
	labelStyles    map[string]lipgloss.Style
}

// NewFormatter creates a new Formatter
func NewFormatter(cfg *config.Config) *Formatter {
	return &Formatter{
		format:         cfg.Logging.Format,
		location:       time.Local,
		maxLabelLen:    DefaultMaxLabelLen,
		separatorStyle: lipgloss.NewStyle().Foreground(SeparatorColor),
		messageStyle:   lipgloss.NewStyle(),
		labelStyles:    make(map[string]lipgloss.Style),
	}
}

// jsonEntry is the JSON line written per entry
type jsonEntry struct {
	ID         string `json:"id,omitempty"`
	Date       string `json:"date"`
	Instance   string `json:"instance,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
	Message    string `json:"message"`
}

// FormatEntry formats a single annotated entry, newline included
func (f *Formatter) FormatEntry(e logstream.Entry) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	label, ok := e.Meta(viewer.MetaInstance)
	if !ok {
		label = e.InstanceID
	}

	if f.format == logger.JSONFormat {
		data, err := json.Marshal(jsonEntry{
			ID:         e.ID,
			Date:       e.Date.UTC().Format(time.RFC3339Nano),
			Instance:   label,
			InstanceID: e.InstanceID,
			Message:    e.Message,
		})
		if err != nil {
			return fmt.Sprintf(`{"date":%q,"message":%q}`+"\n", e.Date.UTC().Format(time.RFC3339Nano), e.Message)
		}

		return string(data) + "\n"
	}

	return f.formatLine(e.Date, label, e.Message)
}

// WriteBatch writes every entry of a flushed batch
func (f *Formatter) WriteBatch(w io.Writer, batch []logstream.Entry) error {
	var sb strings.Builder

	for _, e := range batch {
		sb.WriteString(f.FormatEntry(e))
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

// FormatStatus formats a state line such as "receivingLogs" with an optional detail
func (f *Formatter) FormatStatus(state, detail string) string {
	if f.format == logger.JSONFormat {
		data, err := json.Marshal(map[string]string{"state": state, "detail": detail})
		if err != nil {
			return fmt.Sprintf(`{"state":%q}`+"\n", state)
		}

		return string(data) + "\n"
	}

	line := statusStyle(stateColor(state)).Render("● " + state)
	if detail != "" {
		line += " " + mutedStyle.Render(detail)
	}

	return line + "\n"
}

// RenderBanner writes the session banner; JSON output gets none
func (f *Formatter) RenderBanner(w io.Writer, b Banner) {
	if f.format == logger.JSONFormat {
		return
	}

	showing := "all"

	if len(b.Showing) > 0 {
		if len(b.Showing) <= BannerMaxShown {
			showing = strings.Join(b.Showing, ", ")
		} else {
			showing = strings.Join(b.Showing[:BannerMaxShown], ", ") + fmt.Sprintf(" and %d more", len(b.Showing)-BannerMaxShown)
		}
	}

	termWidth, _, err := term.GetSize(os.Stdout.Fd())
	if err != nil || termWidth < MinTermWidth {
		termWidth = DefaultTermWidth
	}

	field := func(label, value string) string {
		return mutedStyle.Render(label) + " " + boldStyle.Render(value)
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("logs")+" "+mutedStyle.Render("v"+b.Version),
		field("owner:", b.Owner),
		field("application:", b.Application),
		field("range:", b.Range),
		field("showing:", showing),
	)

	// leave room for the border
	panel := panelStyle.Width(termWidth - 2).Render(content)
	footer := " " + helpKeyStyle.Render("ctrl+c") + " " + helpDescStyle.Render("exit")

	fmt.Fprintln(w, panel)
	fmt.Fprintln(w, footer)
	fmt.Fprintln(w)
}

// formatLine formats a single console line with colors
func (f *Formatter) formatLine(date time.Time, label, message string) string {
	line := timestampStyle.Render(date.In(f.location).Format(TimestampFormat)) + " "

	if label != "" {
		if len(label) > f.maxLabelLen {
			f.maxLabelLen = len(label)
		}

		padded := label + strings.Repeat(" ", f.maxLabelLen-len(label))
		line += f.labelStyle(label).Render(padded) + " " + f.separatorStyle.Render("|") + " "
	}

	return line + f.messageStyle.Render(message) + "\n"
}

// labelStyle returns a consistent style for an instance label
func (f *Formatter) labelStyle(label string) lipgloss.Style {
	if style, exists := f.labelStyles[label]; exists {
		return style
	}

	color := LabelPalette[hashString(label)%len(LabelPalette)]
	style := lipgloss.NewStyle().Foreground(color).Bold(true)
	f.labelStyles[label] = style

	return style
}

func stateColor(state string) lipgloss.Color {
	switch state {
	case viewer.ReceivingLogs:
		return FgStatusRunning
	case viewer.LoadingInstances, viewer.ConnectingLogs, viewer.LogStreamPaused:
		return FgStatusWarning
	case viewer.ErrorInstances, viewer.ErrorLogs:
		return FgStatusError
	default:
		return FgStatusStopped
	}
}

// hashString returns a simple hash of a string
func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}

	if h < 0 {
		h = -h
	}

	return h
}

// Package ui renders terminal status lines for the peercall client.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dkeye/peercall/internal/domain"
)

var (
	Primary = lipgloss.Color("#22d3ee")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)

	badgeStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 2)
)

// Out is where the Print helpers write.
var Out io.Writer = os.Stdout

func PrintError(msg string) {
	fmt.Fprintf(Out, "%s %s\n", ErrorStyle.Render("✗"), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	fmt.Fprintf(Out, "%s %s\n", WarningStyle.Render("!"), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Fprintf(Out, "%s %s\n", SuccessStyle.Render("✓"), msg)
}

func PrintInfo(msg string) {
	fmt.Fprintf(Out, "%s %s\n", MutedStyle.Render("·"), msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}

// StateBadge renders a call state as a colored tag.
func StateBadge(s domain.CallState) string {
	color := Muted
	switch s {
	case domain.StateNegotiating:
		color = Warning
	case domain.StateStable:
		color = Success
	case domain.StateClosed:
		color = Error
	}
	return badgeStyle.Foreground(color).Render(s.String())
}

func OnOff(on bool) string {
	if on {
		return SuccessStyle.Render("on")
	}
	return MutedStyle.Render("off")
}

// RoomBox frames the room id and how to share it.
func RoomBox(room domain.RoomID, url string) string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render("room "+string(room)),
		MutedStyle.Render(url),
	)
	return BoxStyle.Render(body)
}

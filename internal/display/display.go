// Package display renders a single-session progress line, adapted from the
// teacher's internal/output package (vars.go's lipgloss styles and
// helpers.go's PrintProgressBar), collapsed from a multi-job dashboard down
// to the one-session-at-a-time surface this engine exposes.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
)

// Bar renders a fixed-width progress bar, generalizing
// output.PrintProgressBar for an unknown-total download (percent omitted
// when total < 0).
func Bar(downloaded, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		return barStyle.Render(fmt.Sprintf("• %s • %s", strings.Repeat("━", width), FormatBytes(downloaded)))
	}
	if downloaded > total {
		downloaded = total
	}
	frac := float64(downloaded) / float64(total)
	filled := int(frac * float64(width))
	if filled > width {
		filled = width
	}
	bar := "•" + strings.Repeat("━", filled) + strings.Repeat(" ", width-filled) + "•"
	return barStyle.Render(fmt.Sprintf("%s %.1f%% •", bar, frac*100))
}

// Line renders one status line: bar, byte counts, speed and ETA.
func Line(downloaded, total int64, bytesPerSecond float64) string {
	bar := Bar(downloaded, total, 30)
	speed := infoStyle.Render(FormatSpeed(bytesPerSecond))
	eta := "?"
	if total > 0 && bytesPerSecond > 0 {
		remaining := float64(total-downloaded) / bytesPerSecond
		eta = time.Duration(remaining * float64(time.Second)).Round(time.Second).String()
	}
	return fmt.Sprintf("%s %s/%s %s ETA %s", bar, FormatBytes(downloaded), formatTotal(total), speed, eta)
}

func formatTotal(total int64) string {
	if total < 0 {
		return "?"
	}
	return FormatBytes(total)
}

// Success renders a completion line.
func Success(path string) string {
	return successStyle.Render(fmt.Sprintf("✓ %s", path))
}

// Failure renders an error line.
func Failure(path string, err error) string {
	return errorStyle.Render(fmt.Sprintf("✗ %s: %v", path, err))
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed renders a bytes/sec rate.
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

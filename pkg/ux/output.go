// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the InnerShift CLI.
//
// Output has two modes: styled (the default on a terminal) and plain.
// Plain mode drops color and decoration so piped output and scripts get
// stable, parseable text. InitTerminal picks the mode from the
// environment; SetPlain overrides it.
package ux

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// InnerShift color palette - quiet greens with warm accents
var (
	// Primary palette (brightest to darkest)
	ColorMint       = lipgloss.Color("#6FE3B2") // Bright mint - highlights, success
	ColorSage       = lipgloss.Color("#4BBF8F") // Primary sage - main brand color
	ColorSeaGreen   = lipgloss.Color("#2FA57E") // Sea green - interactive elements
	ColorMoss       = lipgloss.Color("#1F7D61") // Deep moss - borders, accents
	ColorForest     = lipgloss.Color("#16604C") // Forest - subtle accents
	ColorPineShadow = lipgloss.Color("#12372E") // Pine shadow - dark backgrounds

	// Semantic colors
	ColorSuccess = lipgloss.Color("#6FE3B2") // Mint for success
	ColorWarning = lipgloss.Color("#E8C064") // Warm amber for warnings
	ColorError   = lipgloss.Color("#DE6B5E") // Clay red for errors
	ColorMuted   = lipgloss.Color("#55695F") // Gray-green for muted text
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	// Text styles
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	// Box styles
	Box        lipgloss.Style
	PromptBox  lipgloss.Style
	WarningBox lipgloss.Style

	// Status indicators
	StatusOK      lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
	StatusPending lipgloss.Style
}{
	// Text styles
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorMint),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorSage),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorMint).Bold(true),

	// Box styles
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMoss).
		Padding(0, 1),
	PromptBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSage).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),

	// Status indicators
	StatusOK:      lipgloss.NewStyle().SetString("✓").Foreground(ColorSuccess),
	StatusWarning: lipgloss.NewStyle().SetString("⚠").Foreground(ColorWarning),
	StatusError:   lipgloss.NewStyle().SetString("✗").Foreground(ColorError),
	StatusPending: lipgloss.NewStyle().SetString("○").Foreground(ColorMuted),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	if Plain() {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Output Mode
// =============================================================================

var plainMode atomic.Bool

// SetPlain switches between styled and plain output.
func SetPlain(v bool) { plainMode.Store(v) }

// Plain reports whether output is in plain mode.
func Plain() bool { return plainMode.Load() }

// InitTerminal selects the output mode: plain when stdout is not a
// terminal (piped, CI) or when NO_COLOR is set, styled otherwise.
func InitTerminal() {
	if os.Getenv("NO_COLOR") != "" {
		SetPlain(true)
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		SetPlain(true)
	}
}

// =============================================================================
// Print Helpers
// =============================================================================

// Title prints a styled title
func Title(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	if Plain() {
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func Warning(text string) {
	if Plain() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func Error(text string) {
	if Plain() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message
func Info(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints muted/secondary text
func Muted(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box prints text in a rounded box
func Box(title, content string) {
	if Plain() {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(64)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// WarningBox prints text in a warning-styled box
func WarningBox(title, content string) {
	if Plain() {
		fmt.Fprintf(os.Stderr, "WARN %s: %s\n", title, content)
		return
	}
	boxStyle := Styles.WarningBox.Width(64)
	titleLine := Styles.Warning.Bold(true).Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// =============================================================================
// Turn Rendering
// =============================================================================

// Prompt prints one protocol prompt, the guide's side of the exchange.
// Styled mode frames it so it reads apart from the user's own typing.
func Prompt(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.PromptBox.Width(64).Render(text))
}

// Options prints a numbered button menu. Labels may be shorter than
// buttons; unlabeled buttons print bare.
func Options(buttons, labels []string) {
	for i, b := range buttons {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		if Plain() {
			if label != "" {
				fmt.Printf("  %s) %s\n", b, label)
			} else {
				fmt.Printf("  %s)\n", b)
			}
			continue
		}
		if label != "" {
			fmt.Printf("  %s %s\n", Styles.Highlight.Render(b+")"), label)
		} else {
			fmt.Printf("  %s\n", Styles.Highlight.Render(b+")"))
		}
	}
}

// KV prints an aligned key/value line, for resource detail views.
func KV(key, value string) {
	if Plain() {
		fmt.Printf("%s\t%s\n", key, value)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render(pad(key+":", 18)), value)
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

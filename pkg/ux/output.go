// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the ghostctl CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Ghost palette - phosphor greens over cold grays.
var (
	ColorPhosphor  = lipgloss.Color("#39FF88") // Bright phosphor - success, highlights
	ColorFern      = lipgloss.Color("#2BBF6A") // Primary green
	ColorMoss      = lipgloss.Color("#1E8C50") // Borders, accents
	ColorFog       = lipgloss.Color("#8A9BA8") // Muted text
	ColorGraphite  = lipgloss.Color("#3C4550") // Deep muted
	ColorAmber     = lipgloss.Color("#F4D03F") // Warnings
	ColorVermilion = lipgloss.Color("#E74C3C") // Errors
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorPhosphor),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorFog),
	Success:   lipgloss.NewStyle().Foreground(ColorPhosphor),
	Warning:   lipgloss.NewStyle().Foreground(ColorAmber),
	Error:     lipgloss.NewStyle().Foreground(ColorVermilion),
	Highlight: lipgloss.NewStyle().Foreground(ColorPhosphor).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMoss).
		Padding(0, 1),
}

// plain disables icons and color when stdout is not a terminal (or when
// forced via NO_COLOR / --plain).
var plain = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())

func init() {
	if os.Getenv("NO_COLOR") != "" {
		plain = true
	}
}

// SetPlain forces machine-readable output (no color, no icons).
func SetPlain(v bool) { plain = v }

// Plain reports whether machine-readable output is active.
func Plain() bool { return plain }

// Title prints a styled section title.
func Title(text string) {
	if plain {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success line.
func Success(text string) {
	if plain {
		fmt.Printf("OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Success.Render("✓"), Styles.Success.Render(text))
}

// Warning prints a warning line.
func Warning(text string) {
	if plain {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Warning.Render("⚠"), Styles.Warning.Render(text))
}

// Error prints an error line.
func Error(text string) {
	if plain {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Error.Render("✗"), Styles.Error.Render(text))
}

// Info prints an informational line.
func Info(text string) {
	if plain {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text.
func Muted(text string) {
	if plain {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// KV prints an aligned key/value detail line.
func KV(key, value string) {
	if plain {
		fmt.Printf("%s=%s\n", key, value)
		return
	}
	fmt.Printf("  %s %s\n", Styles.Muted.Render(key+":"), value)
}

// Box prints text inside a rounded border.
func Box(text string) {
	if plain {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Box.Render(text))
}

// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides colored terminal output for the CLI front-ends.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	magenta = color.New(color.FgMagenta)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed)
	green   = color.New(color.FgGreen)
)

// InitColors configures color output. Colors are disabled when requested,
// when NO_COLOR is set, or when stderr is not a terminal.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		return
	}
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		color.NoColor = true
	}
}

// Infof prints a progress message to stderr.
func Infof(format string, args ...any) {
	_, _ = magenta.Fprintf(os.Stderr, format+"\n", args...)
}

// Warnf prints a warning to stderr.
func Warnf(format string, args ...any) {
	_, _ = yellow.Fprintf(os.Stderr, "WARNING: "+format+"\n", args...)
}

// Errorf prints an error to stderr.
func Errorf(format string, args ...any) {
	_, _ = red.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
}

// Successf prints a completion message to stderr.
func Successf(format string, args ...any) {
	_, _ = green.Fprintf(os.Stderr, format+"\n", args...)
}

// Fatalf prints an error and exits non-zero.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	os.Exit(1)
}

// Printf prints to stdout without coloring, for machine-readable output.
func Printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

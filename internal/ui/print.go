package ui

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

var (
	mu    sync.Mutex
	diag  io.Writer = os.Stderr
	quiet bool
	debug = os.Getenv("ENVOLUNTARY_DEBUG") == "1"
)

// SetOutput redirects diagnostics. Colour is only used when w is a
// terminal and NO_COLOR is unset.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	diag = w
	renderer = lipgloss.NewRenderer(w)
	if !isTerminal(w) || os.Getenv("NO_COLOR") != "" {
		renderer.SetColorProfile(termenv.Ascii)
	}
	buildStyles()
}

// SetQuiet suppresses warnings and info lines. Errors are always shown.
func SetQuiet(v bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = v
}

// SetDebug toggles Debugf output.
func SetDebug(v bool) {
	mu.Lock()
	defer mu.Unlock()
	debug = v
}

// DebugEnabled reports whether debug output is on.
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debug
}

// IsStderrTTY returns true when stderr is connected to a terminal.
func IsStderrTTY() bool {
	return isTerminal(os.Stderr)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func emit(s string) {
	mu.Lock()
	w := diag
	mu.Unlock()
	fmt.Fprintln(w, s)
}

// Puts prints a line to stdout. Never use it from `shell export`.
func Puts(s string) {
	fmt.Println(s)
}

// Putsf prints a formatted line to stdout.
func Putsf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// Warn prints a warning to the diagnostic stream.
func Warn(msg string) {
	if isQuiet() {
		return
	}
	emit(Warning.Render(IconWarn + msg))
}

// Err prints an error message to the diagnostic stream.
func Err(msg string) {
	emit(Error.Bold(true).Render(IconError + msg))
}

// Ok prints a success message to the diagnostic stream.
func Ok(msg string) {
	if isQuiet() {
		return
	}
	emit(Success.Render(IconOk + msg))
}

// Inf prints an info message to the diagnostic stream.
func Inf(msg string) {
	if isQuiet() {
		return
	}
	emit(Info.Render("  " + msg))
}

// Debugf logs through the standard logger when debug output is enabled.
func Debugf(format string, args ...any) {
	if !DebugEnabled() {
		return
	}
	log.Printf("debug: "+format, args...)
}

// Header prints a section header to stdout.
func Header(s string) {
	fmt.Println()
	fmt.Println(Title.Render(s))
	fmt.Println(Muted.Render(strings.Repeat("─", len(s)+2)))
}

// Kv prints a key-value pair, padded, to stdout.
func Kv(key string, value string) {
	k := KeyStyle.Render(fmt.Sprintf("  %-12s", key))
	v := ValueStyle.Render(value)
	fmt.Printf("%s %s\n", k, v)
}

func isQuiet() bool {
	mu.Lock()
	defer mu.Unlock()
	return quiet
}

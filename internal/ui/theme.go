package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Gold    = lipgloss.Color("#FFD700")
	Amber   = lipgloss.Color("#FFBF00")
	Emerald = lipgloss.Color("#50C878")
	Ruby    = lipgloss.Color("#E0115F")
	Azure   = lipgloss.Color("#0F52BA")
	Dim     = lipgloss.Color("#666666")
	Bright  = lipgloss.Color("#FFFFFF")
)

// renderer is bound to stderr: stdout of `shell export` is evaluated by
// the shell, so colour detection must follow the diagnostic stream.
var renderer = lipgloss.NewRenderer(os.Stderr)

// Semantic styles.
var (
	Title      lipgloss.Style
	Success    lipgloss.Style
	Error      lipgloss.Style
	Warning    lipgloss.Style
	Info       lipgloss.Style
	Muted      lipgloss.Style
	Accent     lipgloss.Style
	KeyStyle   lipgloss.Style
	ValueStyle lipgloss.Style
)

func init() {
	buildStyles()
}

func buildStyles() {
	Title = renderer.NewStyle().Bold(true).Foreground(Gold)
	Success = renderer.NewStyle().Foreground(Emerald)
	Error = renderer.NewStyle().Foreground(Ruby)
	Warning = renderer.NewStyle().Foreground(Amber)
	Info = renderer.NewStyle().Foreground(Azure)
	Muted = renderer.NewStyle().Foreground(Dim)
	Accent = renderer.NewStyle().Foreground(Gold).Bold(true)
	KeyStyle = renderer.NewStyle().Foreground(Amber).Bold(true)
	ValueStyle = renderer.NewStyle().Foreground(Bright)
}

// Icon constants.
const (
	IconWarn  = "⚠️ "
	IconError = "✗ "
	IconOk    = "✓ "
	IconArrow = "→"
	IconDot   = "·"
	IconNix   = "❄ "
)

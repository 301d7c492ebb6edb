package render

import "github.com/charmbracelet/lipgloss"

var (
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue
)

// Status values shown for an upgrade.
const (
	StatusPublished     = "published"
	StatusAnalyzed      = "analyzed"
	StatusPlanOnly      = "plan_only"
	StatusPublishFailed = "publish_failed"
	StatusFailed        = "failed"
)

// StatusColor returns the color for an upgrade status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case StatusPublished:
		return SecondaryColor
	case StatusAnalyzed:
		return BlueColor
	case StatusPlanOnly:
		return PrimaryColor
	case StatusPublishFailed:
		return WarningColor
	case StatusFailed:
		return ErrorColor
	default:
		return MutedColor
	}
}

// StatusIcon returns the icon for an upgrade status.
func StatusIcon(status string) string {
	switch status {
	case StatusPublished:
		return "↗"
	case StatusAnalyzed:
		return "✓"
	case StatusPlanOnly:
		return "○"
	case StatusPublishFailed:
		return "!"
	case StatusFailed:
		return "✗"
	default:
		return "●"
	}
}

// styles holds the styles a Renderer uses. Unstyled renderers get zero
// styles so output stays free of escape codes.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	header  lipgloss.Style
	border  lipgloss.Style
	status  func(string) lipgloss.Style
}

func newStyles(styled bool) styles {
	if !styled {
		plain := lipgloss.NewStyle()
		return styles{
			title: plain, label: plain, muted: plain, warning: plain, err: plain,
			header: plain, border: plain,
			status: func(string) lipgloss.Style { return plain },
		}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor),
		label:   lipgloss.NewStyle().Bold(true),
		muted:   lipgloss.NewStyle().Foreground(MutedColor),
		warning: lipgloss.NewStyle().Foreground(WarningColor),
		err:     lipgloss.NewStyle().Foreground(ErrorColor),
		header:  lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).Padding(0, 1),
		border:  lipgloss.NewStyle().Foreground(BorderColor),
		status: func(status string) lipgloss.Style {
			return lipgloss.NewStyle().Foreground(StatusColor(status))
		},
	}
}

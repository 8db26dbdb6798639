package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	colorText    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}
	colorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	colorPinned  = lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#6699FF"}
)

type theme struct {
	plain    bool
	header   lipgloss.Style
	rule     lipgloss.Style
	branch   lipgloss.Style
	group    lipgloss.Style
	leaf     lipgloss.Style
	footer   lipgloss.Style
	pinned   lipgloss.Style
	selected lipgloss.Style
	value    lipgloss.Style
}

// newTheme builds styles on r. A nil renderer prints plain text.
func newTheme(r *lipgloss.Renderer) theme {
	if r == nil {
		return theme{plain: true}
	}
	return theme{
		header:   r.NewStyle().Bold(true).Foreground(colorText),
		rule:     r.NewStyle().Foreground(colorMuted),
		branch:   r.NewStyle().Foreground(colorMuted),
		group:    r.NewStyle().Bold(true).Foreground(colorPrimary),
		leaf:     r.NewStyle().Foreground(colorText),
		footer:   r.NewStyle().Bold(true).Foreground(colorInfo),
		pinned:   r.NewStyle().Foreground(colorPinned),
		selected: r.NewStyle().Reverse(true),
		value:    r.NewStyle().Foreground(colorText),
	}
}

func (th theme) format(l line, labelW int, colW []int) string {
	label := runewidth.Truncate(l.label, max(labelW-runewidth.StringWidth(l.prefix), 1), "…")
	pad := labelW - runewidth.StringWidth(l.prefix) - runewidth.StringWidth(label)
	if pad < 0 {
		pad = 0
	}

	style := th.leaf
	switch n := l.node; {
	case n.Footer:
		style = th.footer
	case l.pinned:
		style = th.pinned
	case n.Group:
		style = th.group
	}
	if l.node.Selected {
		style = style.Inherit(th.selected)
	}

	var sb strings.Builder
	sb.WriteString(th.paint(th.branch, l.prefix))
	sb.WriteString(th.paint(style, label))
	sb.WriteString(strings.Repeat(" ", pad))
	for i, v := range l.values {
		sb.WriteString(strings.Repeat(" ", colGap))
		sb.WriteString(th.paint(th.value, runewidth.FillLeft(runewidth.Truncate(v, colW[i], "…"), colW[i])))
	}
	return strings.TrimRight(sb.String(), " ")
}

func (th theme) paint(st lipgloss.Style, s string) string {
	if th.plain || s == "" {
		return s
	}
	return st.Render(s)
}

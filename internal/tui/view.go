package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/save-the-trash/internal/imagefile"
	"github.com/kingrea/save-the-trash/internal/workflow"
)

var stepOrder = []string{"Choose photo", "Upload", "Analyze", "Results"}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4CAF50")).
			MarginBottom(1)
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// View renders the whole screen.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	sub := a.workflow.Snapshot()

	top := lipgloss.JoinVertical(lipgloss.Left,
		a.renderStepPanel(sub),
		"",
		renderImagePanel(sub.Image),
	)
	sections := []string{
		headerStyle.Render("♻ SAVE THE TRASH"),
		boxStyle.Width(max(20, width-2)).Render(top),
	}
	if a.focus == focusInput {
		sections = append(sections, a.input.View())
	}
	if sub.LastError != nil {
		sections = append(sections, errorStyle.Render("⚠ "+workflow.UserMessage(sub.LastError)))
	}
	if sub.Analysis != nil {
		sections = append(sections, boxStyle.Width(max(20, width-2)).Render(a.results.View()))
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg + "\n" + a.keyHelp(sub))
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderStepPanel(sub workflow.Submission) string {
	pos := stepPosition(sub)
	stepLine := fmt.Sprintf("Step: %s (%d/%d)", stepOrder[pos], pos+1, len(stepOrder))
	statusLine := fmt.Sprintf("Status: %s", sub.Status.Label())
	if sub.Status.InFlight() {
		statusLine = fmt.Sprintf("Status: %s %s", a.spinner.View(), sub.Status.Label())
	}
	lines := []string{labelStyle.Render(stepLine), statusLine}
	if pos+1 < len(stepOrder) {
		lines = append(lines, mutedStyle.Render("Next: "+strings.Join(stepOrder[pos+1:], " → ")))
	}
	return strings.Join(lines, "\n")
}

// stepPosition maps a status onto the four steps the user sees.
func stepPosition(sub workflow.Submission) int {
	switch sub.Status {
	case workflow.StatusSelected, workflow.StatusUploading:
		return 1
	case workflow.StatusUploaded, workflow.StatusAnalyzing:
		return 2
	case workflow.StatusAnalyzed:
		return 3
	case workflow.StatusFailed:
		if sub.FailedStep == workflow.StepAnalyze {
			return 2
		}
		return 1
	default:
		return 0
	}
}

func renderImagePanel(img *workflow.LocalImage) string {
	if img == nil {
		return mutedStyle.Render("No photo selected.")
	}
	details := []string{img.ContentType, humanBytes(img.Size())}
	if img.Width > 0 && img.Height > 0 {
		details = append(details, fmt.Sprintf("%dx%d", img.Width, img.Height))
	}
	return strings.Join([]string{
		fmt.Sprintf("%s %s", labelStyle.Render("Photo:"), img.Name),
		mutedStyle.Render(strings.Join(details, " · ")),
		imagefile.DescribeLocation(img.Location),
	}, "\n")
}

// renderAnalysis formats the advice the way the web client lists it.
func renderAnalysis(res *workflow.AnalysisResult) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Products that can be made:\n")
	if len(res.Products) == 0 {
		b.WriteString("  (none suggested)\n")
	}
	for _, p := range res.Products {
		fmt.Fprintf(&b, "\n%s\n", p.Name)
		if len(p.Items) > 0 {
			b.WriteString("  Required Items:\n")
			for _, item := range p.Items {
				fmt.Fprintf(&b, "    • %s\n", item)
			}
		}
		if len(p.Steps) > 0 {
			b.WriteString("  Steps:\n")
			for i, step := range p.Steps {
				fmt.Fprintf(&b, "    %d. %s\n", i+1, step)
			}
		}
	}
	if len(res.Locations) > 0 {
		b.WriteString("\nNearby recycling locations:\n")
		for _, loc := range res.Locations {
			if loc.MapLink != "" {
				fmt.Fprintf(&b, "  • %s · %s\n", loc.Name, loc.MapLink)
			} else {
				fmt.Fprintf(&b, "  • %s\n", loc.Name)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(5)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := labelStyle.Render(fmt.Sprintf("HISTORY · %s (%d)", fileName, total))
	body := mutedStyle.Render(strings.Join(lines, "\n"))
	return boxStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}

func (a *App) keyHelp(sub workflow.Submission) string {
	if a.focus == focusInput {
		return "enter select · tab actions · ctrl+c quit"
	}
	keys := []string{}
	switch {
	case sub.Status == workflow.StatusSelected,
		sub.Status == workflow.StatusFailed && sub.FailedStep == workflow.StepUpload:
		keys = append(keys, "u upload")
	case sub.Status == workflow.StatusUploaded,
		sub.Status == workflow.StatusFailed && sub.FailedStep == workflow.StepAnalyze:
		keys = append(keys, "a analyze")
	}
	if sub.Analysis != nil {
		keys = append(keys, "↑/↓ scroll")
	}
	keys = append(keys, "r start over", "tab choose photo", "q quit")
	return strings.Join(keys, " · ")
}

func humanBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := int64(n) / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

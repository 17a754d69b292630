package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/quietreach/reach-cli/internal/application"
)

const budgetBarWidth = 24

type RenderOptions struct {
	Now time.Time
	// ExpiryWarning marks sessions that expire within this duration of Now.
	ExpiryWarning time.Duration
}

func renderView(statuses []application.SessionStatus, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("LinkedIn Session Budgets"),
		s.header.Render(fmt.Sprintf("sessions: %d", len(statuses))),
	}

	if len(statuses) == 0 {
		lines = append(lines, s.empty.Render("No sessions stored. Run `reach login` first."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, status := range statuses {
		lines = append(lines, s.section.Render(renderSession(status, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSession(status application.SessionStatus, opts RenderOptions, s styles) string {
	session := status.Session

	title := s.account.Render(fmt.Sprintf("Account: %s (session %s)", session.AccountID, session.ID))

	expiry := s.detail.Render("expires: " + formatExpiry(session.ExpiresAt, opts.Now))
	if warnExpiry(session.ExpiresAt, opts) {
		expiry += " " + s.warning.Render("[expiring soon]")
	}

	parts := []string{title, expiry}
	for _, budget := range status.Budgets {
		parts = append(parts, budgetLine(budget, opts, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func budgetLine(budget application.RateBudget, opts RenderOptions, s styles) string {
	label := s.budgetKey.Render(fmt.Sprintf("%-12s", budget.Kind))
	bar := renderBudgetBar(budget.Used, budget.Capacity, budgetBarWidth, s)
	meta := s.detail.Render(fmt.Sprintf("%d/%d used", budget.Used, budget.Capacity))

	line := lipgloss.JoinHorizontal(lipgloss.Top, label, " ", bar, " ", meta)

	if !budget.ResetsAt.IsZero() {
		line += " " + s.header.Render(fmt.Sprintf("(resets %s)", formatReset(budget.ResetsAt, opts.Now)))
	}
	if budget.Capacity > 0 && budget.Used >= budget.Capacity {
		line += " " + s.warning.Render("[exhausted]")
	}

	return line
}

func renderBudgetBar(used, capacity, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	remainingFraction := 1.0
	if capacity > 0 {
		remainingFraction = float64(capacity-used) / float64(capacity)
	}
	if remainingFraction < 0 {
		remainingFraction = 0
	}

	filled := int(math.Round(float64(width) * remainingFraction))
	if filled > width {
		filled = width
	}
	empty := width - filled

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func warnExpiry(expiresAt time.Time, opts RenderOptions) bool {
	if expiresAt.IsZero() || opts.Now.IsZero() || opts.ExpiryWarning <= 0 {
		return false
	}

	return expiresAt.Before(opts.Now.Add(opts.ExpiryWarning))
}

func formatExpiry(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return "unknown"
	}
	if now.IsZero() {
		return expiresAt.Format(time.RFC3339)
	}
	if expiresAt.Before(now) {
		return "expired"
	}

	remaining := expiresAt.Sub(now)
	if remaining < 24*time.Hour {
		hours := int(math.Ceil(remaining.Hours()))
		if hours < 1 {
			hours = 1
		}
		unit := "hours"
		if hours == 1 {
			unit = "hour"
		}
		return fmt.Sprintf("in %d %s (%s)", hours, unit, expiresAt.Format("15:04"))
	}

	days := int(math.Ceil(remaining.Hours() / 24))
	unit := "days"
	if days == 1 {
		unit = "day"
	}

	return fmt.Sprintf("in %d %s (%s)", days, unit, expiresAt.Format("15:04 on 02 Jan"))
}

func formatReset(resetsAt, now time.Time) string {
	if now.IsZero() {
		return resetsAt.Format(time.RFC3339)
	}
	if resetsAt.Before(now) {
		return "now"
	}

	remaining := resetsAt.Sub(now)
	if remaining < time.Hour {
		minutes := int(math.Ceil(remaining.Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("in %dm", minutes)
	}

	hours := int(math.Ceil(remaining.Hours()))
	return fmt.Sprintf("in %dh", hours)
}

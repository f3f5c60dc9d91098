package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// row renders a left column padded to a fixed width followed by its description
func row(style lipgloss.Style, left, desc string) string {
	return bodyMedium.Render(fmt.Sprintf("  %s %s", style.Render(fmt.Sprintf("%-38s", left)), desc))
}

// RenderUsage renders the full help screen
func RenderUsage() string {
	usage := lipgloss.JoinVertical(
		lipgloss.Left,
		row(commandName, "logview tail --owner=<ID> --app=<ID>", "Stream logs of an application"),
		row(commandName, "logview config", "Print the effective configuration"),
		row(commandName, "logview version", "Show version"),
		row(commandName, "logview help", "Show help"),
	)

	flags := lipgloss.JoinVertical(
		lipgloss.Left,
		row(flagName, "--since=<DATE> [--until=<DATE>]", "Date range, live when --until is omitted"),
		row(flagName, "--deployment=<ID>", "Logs of one deployment"),
		row(flagName, "--last-deployment", "Logs of the last deployment"),
		row(flagName, "--instance=<ID>", "Only this instance (repeatable)"),
		row(flagName, "--instance-name=<GLOB>", "Only matching instances, ! excludes"),
		row(flagName, "--limit=<N>", "Entries loaded before pausing"),
		row(flagName, "--stop-on-overflow", "Stop at the limit instead of continuing"),
	)

	examples := lipgloss.JoinVertical(
		lipgloss.Left,
		row(exampleCode, "logview tail --owner=o --app=a", "Follow live logs"),
		row(exampleCode, "... --since=2h", "Follow logs of the last two hours"),
		row(exampleCode, "... --since=2024-01-01 --until=2024-01-02", "Logs of one day"),
		row(exampleCode, "... --last-deployment --instance-name='web*'", "Web instances of the last deployment"),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		RenderTitle(),
		sectionHeader.Render("Usage:"),
		usage,
		sectionHeader.Render("Tail options:"),
		flags,
		sectionHeader.Render("Examples:"),
		examples,
	) + "\n"
}

// Package report renders the change ledger of a run for human and
// machine consumers. It is a pure consumer of the ledger; nothing in
// here feeds back into reconciliation.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/orgwarden/orgwarden/pkg/ledger"
)

// Format selects the report rendering.
type Format string

// Supported report formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Report wraps one run's ledger with its context.
type Report struct {
	Org         string         `json:"org"`
	DryRun      bool           `json:"dry_run"`
	GeneratedAt time.Time      `json:"generated_at"`
	Changes     *ledger.Ledger `json:"changes"`
}

// New builds a report over the given ledger.
func New(org string, dry bool, led *ledger.Ledger) *Report {
	return &Report{
		Org:         org,
		DryRun:      dry,
		GeneratedAt: time.Now().UTC(),
		Changes:     led,
	}
}

// Render produces the report in the requested format.
func (r *Report) Render(format Format) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling report: %w", err)
		}

		return string(data) + "\n", nil
	case FormatText:
		return r.renderText(), nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

func (r *Report) renderText() string {
	var b strings.Builder

	title := fmt.Sprintf("Changes for organization %s", r.Org)
	if r.DryRun {
		title += " (dry-run)"
	}

	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n")

	if r.Changes.Empty() && len(r.Changes.MembersWithoutTeam) == 0 &&
		!hasUnconfigured(r.Changes) {
		b.WriteString("Everything is in sync, no changes needed.\n")

		return b.String()
	}

	writeList(&b, "Added owners", r.Changes.AddedOwners)
	writeList(&b, "Demoted owners", r.Changes.DemotedOwners)

	for _, name := range sortedKeys(r.Changes.Teams) {
		tc := r.Changes.Teams[name]
		b.WriteString(fmt.Sprintf("Team %s:\n", name))

		if tc.Created {
			b.WriteString("  newly created\n")
		}

		if tc.Unconfigured {
			if tc.Deleted {
				b.WriteString("  not configured locally, deleted\n")
			} else {
				b.WriteString("  not configured locally, left untouched\n")
			}
		}

		writeIndentedList(&b, "settings changed", tc.ChangedSettings)
		writeIndentedList(&b, "members added", tc.AddedMembers)
		writeIndentedList(&b, "member roles changed", tc.ChangedRoles)
		writeIndentedList(&b, "members removed", tc.RemovedMembers)
		writeIndentedList(&b, "invitations pending", tc.PendingMembers)
	}

	for _, name := range sortedKeys(r.Changes.Repos) {
		rc := r.Changes.Repos[name]
		b.WriteString(fmt.Sprintf("Repository %s:\n", name))

		writeIndentedList(&b, "team permissions changed", rc.ChangedTeamPermissions)
		writeIndentedList(&b, "teams removed", rc.RemovedTeams)
		writeIndentedList(&b, "unconfigured team grants", rc.UnconfiguredTeamGrants)
		writeIndentedList(&b, "collaborators removed", rc.RemovedCollaborators)
	}

	writeList(&b, "Members without team", r.Changes.MembersWithoutTeam)
	writeList(&b, "Members removed from organization", r.Changes.RemovedMembers)

	return b.String()
}

// WriteFiles writes both renderings into a timestamped subdirectory of
// dir and returns that subdirectory, ready for upload.
func (r *Report) WriteFiles(dir string) (string, error) {
	out := filepath.Join(dir, r.GeneratedAt.Format("20060102-150405"))
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	for _, format := range []Format{FormatText, FormatJSON} {
		content, err := r.Render(format)
		if err != nil {
			return "", err
		}

		name := "report.txt"
		if format == FormatJSON {
			name = "report.json"
		}

		path := filepath.Join(out, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", path, err)
		}
	}

	return out, nil
}

func hasUnconfigured(led *ledger.Ledger) bool {
	for _, tc := range led.Teams {
		if tc.Unconfigured {
			return true
		}
	}

	for _, rc := range led.Repos {
		if len(rc.UnconfiguredTeamGrants) > 0 {
			return true
		}
	}

	return false
}

func writeList(b *strings.Builder, label string, entries []string) {
	if len(entries) == 0 {
		return
	}

	b.WriteString(label + ":\n")

	for _, entry := range entries {
		b.WriteString("  " + entry + "\n")
	}
}

func writeIndentedList(b *strings.Builder, label string, entries []string) {
	if len(entries) == 0 {
		return
	}

	b.WriteString("  " + label + ": " + strings.Join(entries, ", ") + "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

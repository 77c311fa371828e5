package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"contractlens/llm"
	"contractlens/storage"
)

const descriptionWidth = 72

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))).
		Headers(headers...)
}

func printFindings(cmd *cobra.Command, findings []llm.Finding, asJSON bool) error {
	if asJSON {
		if findings == nil {
			findings = []llm.Finding{}
		}
		return printJSON(cmd, findings)
	}

	out := cmd.OutOrStdout()
	if len(findings) == 0 {
		fmt.Fprintln(out, "No findings.")
		return nil
	}

	t := newTable("ID", "Type", "Severity", "Status", "Description")
	for _, f := range findings {
		t.Row(
			strconv.FormatInt(f.ID, 10),
			string(f.Type),
			string(f.Severity),
			string(f.Status),
			truncate(firstLine(f.Description), descriptionWidth),
		)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "Total: %d findings\n", len(findings))
	return nil
}

func printDocuments(cmd *cobra.Command, docs []storage.Document) {
	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents.")
		return
	}

	t := newTable("ID", "Filename", "Type", "Status", "Created")
	for _, d := range docs {
		docType := "-"
		if d.Extraction != nil {
			docType = string(d.Extraction.DocType)
		}
		t.Row(d.ID, d.Filename, docType, string(d.Status), d.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "Total: %d documents\n", len(docs))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/leads"
)

func newSessionsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent conversations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(repo, a.logger)

			sessions, err := repo.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum sessions to show")
	return cmd
}

func printSessions(out io.Writer, sessions []domain.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, warnStyle.Render("No sessions found."))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d session(s)", len(sessions))))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tMESSAGES\tLEAD\tUPDATED")
	for _, s := range sessions {
		lead := "-"
		switch {
		case s.LeadSynced:
			lead = okStyle.Render("synced")
		case s.InfoCollected:
			lead = warnStyle.Render("pending")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			idStyle.Render(s.SessionID),
			orDash(s.Name),
			orDash(s.Email),
			strconv.Itoa(s.MessageCount),
			lead,
			dateStyle.Render(s.UpdatedAt.Local().Format("2006-01-02 15:04")),
		)
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sessionExport is the document written by export.
type sessionExport struct {
	Session *domain.ChatSession `json:"session" yaml:"session"`
	Lead    *leads.Row          `json:"lead,omitempty" yaml:"lead,omitempty"`
}

func newExportCmd(a *app) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export one conversation as YAML or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "json" {
				return fmt.Errorf("unsupported format %q (want yaml or json)", format)
			}
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(repo, a.logger)

			session, err := repo.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get session %s: %w", args[0], err)
			}
			doc := sessionExport{Session: session}
			if session.Contact.IsLead() {
				row := leads.NewBuilder(a.tx).Build(session, time.Now())
				doc.Lead = &row
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			return writeExport(out, format, doc)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func writeExport(w io.Writer, format string, doc sessionExport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

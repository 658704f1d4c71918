package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zentiam/leadbot/internal/leads"
)

func newSyncCmd(a *app) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Write pending leads to the lead workbook",
		Long: `Write every lead whose contact details changed since the last write to
LEADS_WORKBOOK. With --prune, sessions idle longer than SESSION_RETENTION
are deleted afterwards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.Leads.Enabled {
				return errors.New("lead sink disabled (LEADS_ENABLED=false)")
			}
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(repo, a.logger)

			workbook := leads.NewWorkbook(a.cfg.Leads.Workbook, leads.NewBuilder(a.tx))
			syncer := leads.NewSyncer(repo, workbook, a.cfg.Store.Retention, nil, a.logger)

			out := cmd.OutOrStdout()
			synced, syncErr := syncer.SyncOnce(cmd.Context())
			fmt.Fprintf(out, "%s %d lead(s) written to %s\n", okStyle.Render("ok"), synced, workbook.Path())

			if prune {
				deleted, err := syncer.Prune(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %d idle session(s) pruned\n", okStyle.Render("ok"), deleted)
			}
			return syncErr
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete sessions older than SESSION_RETENTION")
	return cmd
}

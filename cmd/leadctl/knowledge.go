package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zentiam/leadbot/internal/knowledge"
)

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Add PDF, PPTX or text documents to the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(repo, a.logger)

			kb := a.knowledgeService(repo)
			if _, err := kb.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load knowledge base: %w", err)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				doc, chunks, err := kb.IngestFile(cmd.Context(), filepath.Base(path), data)
				switch {
				case errors.Is(err, knowledge.ErrUnsupportedType):
					fmt.Fprintf(out, "%s %s: unsupported file type\n", warnStyle.Render("skip"), path)
					failed++
				case err != nil:
					return fmt.Errorf("ingest %s: %w", path, err)
				default:
					fmt.Fprintf(out, "%s %s %s (%d chunks)\n", okStyle.Render("ok"), path, idStyle.Render(doc.ID), chunks)
				}
			}

			total, _ := kb.Stats()
			fmt.Fprintf(out, "%s %d chunks in knowledge base\n", headerStyle.Render("Total:"), total)
			if failed > 0 {
				return fmt.Errorf("%d file(s) skipped", failed)
			}
			return nil
		},
	}
}

func newCrawlCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl the marketing site into the knowledge base",
		Long:  "Crawl the given URL, or SITE_URL when omitted, and index every same-host page.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteURL := a.cfg.Knowledge.SiteURL
			if len(args) == 1 {
				siteURL = args[0]
			}
			if siteURL == "" {
				return errors.New("no URL given and SITE_URL is not set")
			}

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(repo, a.logger)

			kb := a.knowledgeService(repo)
			if _, err := kb.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load knowledge base: %w", err)
			}
			pages, chunks, err := kb.CrawlSite(cmd.Context(), siteURL)
			if err != nil {
				return fmt.Errorf("crawl %s: %w", siteURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s crawled %d pages, %d chunks from %s\n", okStyle.Render("ok"), pages, chunks, siteURL)
			return nil
		},
	}
}

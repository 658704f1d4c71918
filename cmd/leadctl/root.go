package main

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zentiam/leadbot/internal/config"
	"github.com/zentiam/leadbot/internal/knowledge"
	"github.com/zentiam/leadbot/internal/store"
	"github.com/zentiam/leadbot/internal/taxonomy"
)

var (
	version = "dev"

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	envFile string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
	tx     *taxonomy.Taxonomy
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "leadctl",
		Short: "Manage the leadbot knowledge base, sessions and leads",
		Long: `leadctl manages a leadbot deployment from the command line.

It reads the same environment (or .env file) as the server, so it
operates on the same session store and lead workbook.

Quick Start:
  leadctl ingest brochure.pdf deck.pptx   # Add documents to the knowledge base
  leadctl crawl https://zentiam.com       # Crawl the marketing site
  leadctl sessions                        # List recent conversations
  leadctl export <session-id> -f yaml     # Dump one conversation
  leadctl sync                            # Push pending leads to the workbook`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newIngestCmd(a),
		newCrawlCmd(a),
		newSessionsCmd(a),
		newExportCmd(a),
		newSyncCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if a.envFile != "" {
		// A missing file is fine; the environment may already be set.
		_ = godotenv.Load(a.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	} else if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	cfg.LogFormat = "text"
	a.cfg = cfg
	a.logger = cfg.NewLogger(cmd.ErrOrStderr())

	a.tx = taxonomy.Default()
	if cfg.Taxonomy != "" {
		tx, err := taxonomy.Load(cfg.Taxonomy)
		if err != nil {
			return fmt.Errorf("load taxonomy: %w", err)
		}
		a.tx = tx
	}
	return nil
}

func (a *app) openStore() (store.Repository, error) {
	repo, err := store.Open(a.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return repo, nil
}

func (a *app) knowledgeService(repo store.Repository) *knowledge.Service {
	index := knowledge.NewIndex(a.tx, a.cfg.Knowledge.ChunkSize)
	crawler := knowledge.NewCrawler(knowledge.CrawlerConfig{
		MaxPages: a.cfg.Knowledge.CrawlMaxPages,
		Rate:     a.cfg.Knowledge.CrawlRate,
	}, a.logger)
	return knowledge.NewService(index, repo, crawler, a.logger)
}

func closeStore(repo store.Repository, logger *slog.Logger) {
	if err := repo.Close(); err != nil {
		logger.Warn("failed to close store", "error", err)
	}
}

package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"salesrep/llm/agent"
	"salesrep/logging"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Build the knowledge snapshot and print the asset catalog and document states",
	RunE:  runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	log := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	rt, err := agent.SetupRuntime(cmd.Context(), cfg, log, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	snap := rt.Warm(cmd.Context())
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "PAGES (%d):\n", len(snap.Pages))
	for _, p := range snap.Pages {
		fmt.Fprintf(out, "- %s (%d chars)\n", p.URL, len([]rune(p.Text)))
	}

	fmt.Fprintf(out, "\nPRIORITY IMAGES (%s):\n", snap.Facts.Label())
	fmt.Fprintln(out, snap.Catalog.PriorityText())
	fmt.Fprintln(out)
	fmt.Fprintln(out, snap.Catalog.Text())

	fmt.Fprintf(out, "\nDOCUMENTS (%d, %d active):\n", len(snap.Documents), len(snap.ActiveDocuments()))
	docs := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "STATE", "ATTEMPTS", "SOURCE")
	for _, d := range snap.Documents {
		docs.Row(d.Name, string(d.State), strconv.Itoa(d.Attempts), d.SourceURL)
	}
	_, err = fmt.Fprintln(out, docs.String())
	return err
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ocd-calaccess/internal/importer"
	"github.com/ocd-calaccess/internal/scrape"
)

// createLoadCmd creates the load subcommand
func createLoadCmd() *cobra.Command {
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load raw input files",
		Long:  `Replace a raw input table with the contents of a CSV, TSV or JSON extract`,
	}

	loadCmd.AddCommand(createLoadKindCmd("form501", "Load Form 501 filings (CSV or TSV)"))
	loadCmd.AddCommand(createLoadKindCmd("filer-types", "Load the filer to filer-type history (CSV or TSV)"))
	loadCmd.AddCommand(createLoadKindCmd("scraped", "Load a scraped-record dump (JSON)"))

	return loadCmd
}

func createLoadKindCmd(kind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   kind + " [filename]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			res, err := importer.New(s, log).ImportFile(cmd.Context(), kind, args[0])
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", kind, err)
			}
			fmt.Printf("Loaded %d %s records (%d rejected)\n", res.Imported, kind, res.Errors)
			return nil
		},
	}
}

func createScrapeCmd() *cobra.Command {
	var (
		sessions []int
		out      string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the candidate, incumbent and measure lists",
		Long:  `Scrape the Secretary of State lists and replace the scraped tables, or write them to a JSON dump with --out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := scrape.NewClient(cfg.ScrapeBaseURL, cfg.ScrapeTimeout, log)
			set, err := client.ScrapeAll(cmd.Context(), sessions)
			if err != nil {
				return err
			}

			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				enc := json.NewEncoder(f)
				enc.SetIndent("", "  ")
				if err := enc.Encode(set); err != nil {
					f.Close()
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				return f.Close()
			}

			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			return s.ReplaceScraped(cmd.Context(), set)
		},
	}
	cmd.Flags().IntSliceVar(&sessions, "session", []int{2015, 2017}, "legislative session start years to scrape incumbents and measures for")
	cmd.Flags().StringVar(&out, "out", "", "write a JSON dump instead of loading the database")
	return cmd
}

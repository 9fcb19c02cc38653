package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/spf13/cobra"

	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
	"github.com/Guillaume-Lombardo/extractforms/internal/store"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the cached schema store",
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached schemas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := store.NewFSCache(settings.Cache.Dir, logger)
		if err != nil {
			return err
		}
		specs, err := cache.List()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, s := range specs {
			fmt.Fprintf(w, "%s\t%s\tv%d\t%d fields\t%s\n", s.ID, s.Name, s.Version, len(s.Fields), s.Fingerprint)
		}
		if len(specs) == 0 {
			fmt.Fprintln(w, "no cached schemas")
		}
		return nil
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print one cached schema as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := store.NewFSCache(settings.Cache.Dir, logger)
		if err != nil {
			return err
		}
		specs, err := cache.List()
		if err != nil {
			return err
		}
		for _, s := range specs {
			if s.ID == args[0] {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
		}
		return fmt.Errorf("schema id %s not found in %s", args[0], settings.Cache.Dir)
	},
}

var schemaMatchCmd = &cobra.Command{
	Use:   "match INPUT.pdf",
	Short: "Report which cached schema (if any) matches a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		if _, err := os.Stat(input); err != nil {
			return err
		}
		fingerprint, err := schema.FingerprintFile(input)
		if err != nil {
			return err
		}
		pageCount, err := api.PageCountFile(input)
		if err != nil {
			return fmt.Errorf("count pages of %s: %w", input, err)
		}

		cache, err := store.NewFSCache(settings.Cache.Dir, logger)
		if err != nil {
			return err
		}
		matcher := store.NewMatcher(cache, settings.Match.Threshold, logger)
		result, err := matcher.Match(store.DocumentMeta{
			Fingerprint: fingerprint,
			PageCount:   pageCount,
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if !result.Matched {
			fmt.Fprintln(w, "no match")
			return nil
		}
		fmt.Fprintf(w, "%s\t%s\tscore=%.2f\n", result.SchemaID, string(result.Strategy), result.Score)
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaListCmd, schemaShowCmd, schemaMatchCmd)
	rootCmd.AddCommand(schemaCmd)
}

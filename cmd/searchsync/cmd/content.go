package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/content"
)

// importRecord is one line of an import file.
type importRecord struct {
	Table   string      `json:"table"`
	Row     content.Row `json:"row"`
	Deleted bool        `json:"remove,omitempty"`
}

func newContentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Maintain the content snapshot",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file|->",
		Short: "Load records from a JSON lines export",
		Long: `Import records into the content snapshot. Each JSON value in the input is
{"table": "...", "row": {...}}; "remove": true deletes the record instead.
Imports do not emit change events; use 'queue init' or 'emit' afterwards.`,
		Example: `  searchsync content import export.jsonl
  cms-export | searchsync content import -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				in = f
			}
			return opts.withApp(func(a *app) error {
				upserted, removed, err := importRecords(cmd, a.content, in)
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d records, removed %d\n", upserted, removed)
				return err
			})
		},
	})

	return cmd
}

func importRecords(cmd *cobra.Command, repo *content.SQLiteRepository, in io.Reader) (int, int, error) {
	dec := json.NewDecoder(in)
	dec.UseNumber()

	var upserted, removed int
	for line := 1; ; line++ {
		var rec importRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return upserted, removed, nil
			}
			return upserted, removed, fmt.Errorf("record %d: %w", line, err)
		}
		if rec.Table == "" {
			return upserted, removed, fmt.Errorf("record %d: missing table", line)
		}
		if rec.Deleted {
			if err := repo.Remove(cmd.Context(), rec.Table, rec.Row.UID()); err != nil {
				return upserted, removed, fmt.Errorf("record %d: %w", line, err)
			}
			removed++
			continue
		}
		if err := repo.Upsert(cmd.Context(), rec.Table, rec.Row); err != nil {
			return upserted, removed, fmt.Errorf("record %d: %w", line, err)
		}
		upserted++
	}
}

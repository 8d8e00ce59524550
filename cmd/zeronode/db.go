package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"zeronode/pkg/znstore"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Maintain a site's queryable content index"}
	cmd.AddCommand(dbRebuildCmd())
	return cmd
}

// dbRows is the on-disk shape the control channel's dbQuery handler reads
// from (see the queryFn closure in serve.go): every data.json object or array entry
// found under the site, flattened into one list. This is a deliberately
// thin stand-in for ZeroNet's own SQLite-backed content database — a full
// SQL engine is out of scope, so dbQuery answers any authorized SELECT
// with this flattened row set rather than evaluating the statement.
type dbRows struct {
	Rows []map[string]any `json:"rows"`
}

// dbRebuild walks a site's data directory for files named data.json
// (ZeroNet's conventional per-directory content-database payload) and
// flattens every object/array entry it finds into a single index file,
// the way a SQLite rebuild would re-derive its tables from the same
// source files after a site update.
func dbRebuild(siteDir string) (int, error) {
	var rows []map[string]any
	err := filepath.WalkDir(siteDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "data.json" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var asArray []map[string]any
		if err := json.Unmarshal(raw, &asArray); err == nil {
			rows = append(rows, asArray...)
			return nil
		}
		var asObject map[string]any
		if err := json.Unmarshal(raw, &asObject); err == nil {
			rows = append(rows, asObject)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	store := znstore.NewDocumentStore(filepath.Join(siteDir, "db", "rows.json"))
	if err := os.MkdirAll(filepath.Join(siteDir, "db"), 0o755); err != nil {
		return 0, err
	}
	if err := store.Save(&dbRows{Rows: rows}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func dbRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild <address>",
		Short: "Rebuild a site's content index from its data.json files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := openSite(args[0])
			if err != nil {
				return err
			}
			count, err := dbRebuild(theApp.cfg.DataDir + "/sites/" + site.Address.String())
			if err != nil {
				return ioFailure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d row(s)\n", count)
			return nil
		},
	}
	return cmd
}

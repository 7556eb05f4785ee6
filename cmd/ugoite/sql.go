package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ugoite/ieapp/internal/matview"
	"github.com/ugoite/ieapp/internal/queryindex"
	"github.com/ugoite/ieapp/internal/savedsql"
	"github.com/ugoite/ieapp/internal/sqlengine"
	"github.com/ugoite/ieapp/internal/sqlsession"
)

var sqlCmd = &cobra.Command{
	Use:   "sql",
	Short: "run ad-hoc SQL and manage saved-SQL sessions",
}

var sqlQueryCmd = &cobra.Command{
	Use:   "query SQL",
	Short: "parse and evaluate a SELECT statement against the space's tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		provider := sqlengine.NewProvider(h.Entries, h.Registry, h.SpaceID)
		stmt, err := sqlengine.Parse(args[0])
		if err != nil {
			return err
		}
		rows, err := sqlengine.Execute(cmdContext(), stmt, provider)
		if err != nil {
			return err
		}
		return printResult(rows)
	},
}

var sqlSessionTTL int

var sqlSessionCreateCmd = &cobra.Command{
	Use:   "session-create SQL",
	Short: "execute SQL synchronously and cache the paginable result set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		provider := sqlengine.NewProvider(h.Entries, h.Registry, h.SpaceID)
		mgr := sqlsession.NewManager(h.Store, fmt.Sprintf("spaces/%s", h.SpaceID), provider)
		meta, err := mgr.CreateSession(cmdContext(), args[0], time.Duration(sqlSessionTTL)*time.Second)
		if err != nil {
			return err
		}
		return printResult(meta)
	},
}

var sqlSessionRowsCmd = &cobra.Command{
	Use:   "session-rows SESSION_ID",
	Short: "page a SQL session's cached rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		provider := sqlengine.NewProvider(h.Entries, h.Registry, h.SpaceID)
		mgr := sqlsession.NewManager(h.Store, fmt.Sprintf("spaces/%s", h.SpaceID), provider)
		rows, err := mgr.GetRows(cmdContext(), args[0], sessionOffset, sessionLimit)
		if err != nil {
			return err
		}
		return printResult(rows)
	},
}

var (
	sessionOffset int
	sessionLimit  int
)

var sqlIndexCmd = &cobra.Command{
	Use:   "index PAYLOAD",
	Short: "dispatch a query_index payload: empty, filter object, or SQL",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		payload := ""
		if len(args) == 1 {
			payload = args[0]
		}
		provider := sqlengine.NewProvider(h.Entries, h.Registry, h.SpaceID)
		rows, err := queryindex.RunJSON(cmdContext(), h.Entries, provider, []byte(payload))
		if err != nil {
			return err
		}
		return printResult(rows)
	},
}

var (
	savedSQLText string
	savedSQLVars string
)

var sqlSaveCmd = &cobra.Command{
	Use:   "save ID",
	Short: "create a saved-SQL entry (validates placeholders against --variables)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		var vars []savedsql.Variable
		if savedSQLVars != "" {
			if err := json.Unmarshal([]byte(savedSQLVars), &vars); err != nil {
				return err
			}
		}
		entry, err := savedsql.Create(cmdContext(), h.Entries, args[0], savedSQLText, vars, entryAuthor)
		if err != nil {
			return err
		}
		return printResult(entry)
	},
}

var savedRunVars string

var sqlSavedRunCmd = &cobra.Command{
	Use:   "saved-run SQL_ID",
	Short: "execute a saved SQL as a session, refreshing its materialized view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext()
		h, err := openSpace(ctx)
		if err != nil {
			return err
		}
		entry, err := h.Entries.GetEntry(ctx, args[0])
		if err != nil {
			return err
		}
		sqlText, _ := entry.Fields["sql"].(string)

		vars := map[string]string{}
		if savedRunVars != "" {
			if err := json.Unmarshal([]byte(savedRunVars), &vars); err != nil {
				return err
			}
		}
		sqlText = savedsql.Substitute(sqlText, vars)

		spacePath := fmt.Sprintf("spaces/%s", h.SpaceID)
		if _, err := matview.NewStore(h.Store, spacePath).Refresh(ctx, args[0], sqlText, time.Now().UTC()); err != nil {
			return err
		}
		provider := sqlengine.NewProvider(h.Entries, h.Registry, h.SpaceID)
		mgr := sqlsession.NewManager(h.Store, spacePath, provider)
		meta, err := mgr.CreateSession(ctx, sqlText, time.Duration(sqlSessionTTL)*time.Second)
		if err != nil {
			return err
		}
		return printResult(meta)
	},
}

func init() {
	sqlSessionCreateCmd.Flags().IntVar(&sqlSessionTTL, "ttl-seconds", 900, "session time-to-live in seconds")
	sqlSessionRowsCmd.Flags().IntVar(&sessionOffset, "offset", 0, "row offset")
	sqlSessionRowsCmd.Flags().IntVar(&sessionLimit, "limit", 100, "max rows to return")
	sqlSaveCmd.Flags().StringVar(&entryAuthor, "author", "", "revision author")
	sqlSaveCmd.Flags().StringVar(&savedSQLText, "sql", "", "the SELECT text, with optional {{name}} placeholders")
	sqlSaveCmd.Flags().StringVar(&savedSQLVars, "variables", "", `declared variables JSON, e.g. [{"type":"string","name":"since"}]`)
	_ = sqlSaveCmd.MarkFlagRequired("sql")
	sqlSavedRunCmd.Flags().StringVar(&savedRunVars, "vars", "", `placeholder bindings JSON, e.g. {"since":"2025-01-01"}`)
	sqlSavedRunCmd.Flags().IntVar(&sqlSessionTTL, "ttl-seconds", 900, "session time-to-live in seconds")

	sqlCmd.AddCommand(sqlQueryCmd, sqlSessionCreateCmd, sqlSessionRowsCmd,
		sqlIndexCmd, sqlSaveCmd, sqlSavedRunCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/maloquacious/stockroom/internal/logger"
	"github.com/maloquacious/stockroom/internal/store"
	"github.com/maloquacious/stockroom/internal/store/sqlite"
)

func newDBCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	dbCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and initialize the datastore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBCreate(cmd.Context(), store.ResolveDBPath(g.dbPath), stdout, g.logger(stderr))
		},
	}
	dbUpgradeCmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Bring an existing datastore up to the current items schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBUpgrade(cmd.Context(), store.ResolveDBPath(g.dbPath), stdout, g.logger(stderr))
		},
	}
	dbVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the items schema without modifying the datastore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBVerify(cmd.Context(), store.ResolveDBPath(g.dbPath), stdout, g.logger(stderr))
		},
	}

	dbCmd.AddCommand(dbCreateCmd, dbUpgradeCmd, dbVerifyCmd)
	return dbCmd
}

func runDBCreate(ctx context.Context, dbPath string, stdout io.Writer, log logger.Logger) error {
	exists, err := store.CheckFileExists(dbPath)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("datastore already exists: %s", dbPath)
	}

	s, _, err := sqlite.Init(ctx, dbPath, log)
	if err != nil {
		return fmt.Errorf("database initialization error: %w", err)
	}
	defer s.Close()

	fmt.Fprintf(stdout, "created %s\n", dbPath)
	return nil
}

func runDBUpgrade(ctx context.Context, dbPath string, stdout io.Writer, log logger.Logger) error {
	exists, err := store.CheckFileExists(dbPath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("datastore does not exist: %s (run 'app db create')", dbPath)
	}

	s, report, err := sqlite.Init(ctx, dbPath, log)
	if err != nil {
		return fmt.Errorf("database initialization error: %w", err)
	}
	defer s.Close()

	if report.CostAdded {
		fmt.Fprintf(stdout, "%s: added cost column\n", dbPath)
	} else {
		fmt.Fprintf(stdout, "%s: schema up to date\n", dbPath)
	}
	return nil
}

type verifyResult struct {
	Path    string           `json:"path"`
	State   store.StoreState `json:"state"`
	Columns []store.Column   `json:"columns,omitempty"`
}

// runDBVerify prints the datastore state as JSON and fails unless it is ready.
func runDBVerify(ctx context.Context, dbPath string, stdout io.Writer, log logger.Logger) error {
	result := verifyResult{Path: dbPath, State: store.StateMissing}

	exists, err := store.CheckFileExists(dbPath)
	if err != nil {
		return err
	}
	if exists {
		s := sqlite.NewReadOnly(dbPath, log)
		if err := s.Open(ctx); err != nil {
			return err
		}
		defer s.Close()

		cols, err := s.Columns(ctx)
		if err != nil {
			return err
		}
		result.State = store.StateOf(cols)
		result.Columns = cols
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.State != store.StateReady {
		log.Error("%s: datastore is %s", dbPath, result.State)
		return errExit
	}
	return nil
}

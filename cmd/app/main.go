// app hosts the stockroom inventory store: it initializes the items schema
// at startup and offers operator commands for the database file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"

	"github.com/maloquacious/stockroom/internal/logger"
)

var (
	version   = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit signals a non-zero exit after the command has already reported
// its own failure.
var errExit = errors.New("exit")

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintf(stderr, "app: %v\n", err)
		}
		return 1
	}
	return 0
}

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	dbPath string
	debug  bool
}

func (g *globalFlags) logger(w io.Writer) logger.Logger {
	l := logger.New(w)
	l.SetDebug(g.debug)
	return l
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "app",
		Short:         "Stockroom inventory store server and admin CLI",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "log debug messages")
	rootCmd.PersistentFlags().StringVar(&g.dbPath, "db", "", "path to the SQLite database file (default $STOCKROOM_DB or ./inventory.db)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, version.String())
		},
	}

	rootCmd.AddCommand(
		newServeCmd(&g, stderr),
		newDBCmd(&g, stdout, stderr),
		versionCmd,
	)
	return rootCmd
}

// envInt returns the integer value of key, or fallback when unset or invalid.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

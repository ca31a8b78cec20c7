package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ggoodman/passwordgrant-go/passwordgrant"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

// exitError carries a process exit status out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(streams{in: stdin, out: stdout, err: stderr})
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "pgrant:", ee.err)
		}
		return ee.code
	}
	var ue *passwordgrant.UsageError
	if errors.As(err, &ue) {
		fmt.Fprintln(stderr, "pgrant:", err)
		return exitUsage
	}
	// Anything else comes from cobra's flag and argument parsing.
	fmt.Fprintln(stderr, "pgrant:", err)
	return exitUsage
}

func newRootCmd(s streams) *cobra.Command {
	root := &cobra.Command{
		Use:   "pgrant",
		Short: "Authenticate with the OAuth 2.0 resource owner password grant",
		Long: `pgrant exchanges a username and password for tokens at the token endpoint
named by PASSWORDGRANT_TOKEN_URL, optionally loads the user's profile, and
prints the authentication outcome as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newLoginCmd(s), newConfigCmd(s))
	return root
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

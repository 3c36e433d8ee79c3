// Package cli implements the operator subcommands of the stockroom binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// Runner dispatches operator subcommands. The factories are called lazily
// so that, for example, inspecting a token never opens a database pool.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Tokens builds the token helper; the returned func releases its resources.
	Tokens func(ctx context.Context) (*TokenCLI, func(), error)
	Jobs   func() (*JobsCLI, error)
}

// IsCommand reports whether args name an operator subcommand.
func IsCommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "token", "jobs":
		return true
	}
	return false
}

// Run executes args and returns the process exit code.
func (r Runner) Run(ctx context.Context, args []string) int {
	stdout, stderr := writers(r.Stdout, r.Stderr)
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}
	switch args[0] + " " + args[1] {
	case "token inspect":
		return r.tokenInspect(ctx, args[2:], stdout, stderr)
	case "token issue":
		return r.tokenIssue(ctx, args[2:], stdout, stderr)
	case "jobs trigger":
		return r.jobsTrigger(ctx, args[2:], stdout, stderr)
	case "jobs stats":
		return r.jobsStats(ctx, args[2:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[0]+" "+args[1])
		printUsage(stderr)
		return 2
	}
}

func (r Runner) tokenInspect(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token inspect", stderr)
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "usage: stockroom token inspect <token>")
		return 2
	}
	tokens, release, ok := r.tokens(ctx, stderr)
	if !ok {
		return 1
	}
	defer release()
	return tokens.InspectCommand(ctx, TokenInspectOptions{Token: fs.Arg(0), Stdout: stdout, Stderr: stderr})
}

func (r Runner) tokenIssue(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token issue", stderr)
	user := fs.StringP("user", "u", "", "id of the user the token is issued for")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *user == "" {
		_, _ = fmt.Fprintln(stderr, "token issue: --user is required")
		return 2
	}
	tokens, release, ok := r.tokens(ctx, stderr)
	if !ok {
		return 1
	}
	defer release()
	return tokens.IssueCommand(ctx, TokenIssueOptions{UserID: *user, Stdout: stdout, Stderr: stderr})
}

func (r Runner) jobsTrigger(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("jobs trigger", stderr)
	retention := fs.Duration("retention", 0, "override the purge retention window")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "usage: stockroom jobs trigger <task> [--retention 720h]")
		return 2
	}
	jobsCLI, ok := r.jobs(stderr)
	if !ok {
		return 1
	}
	defer jobsCLI.Close()
	info, err := jobsCLI.Trigger(ctx, fs.Arg(0), *retention)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return 0
}

func (r Runner) jobsStats(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("jobs stats", stderr)
	if code, ok := parse(fs, args); !ok {
		return code
	}
	jobsCLI, ok := r.jobs(stderr)
	if !ok {
		return 1
	}
	defer jobsCLI.Close()
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
		return 1
	}
	if err := json.NewEncoder(stdout).Encode(stats); err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs stats: encode json: %v\n", err)
		return 1
	}
	return 0
}

func (r Runner) tokens(ctx context.Context, stderr io.Writer) (*TokenCLI, func(), bool) {
	if r.Tokens == nil {
		_, _ = fmt.Fprintln(stderr, "token: not configured")
		return nil, nil, false
	}
	tokens, release, err := r.Tokens(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "token: %v\n", err)
		return nil, nil, false
	}
	if release == nil {
		release = func() {}
	}
	return tokens, release, true
}

func (r Runner) jobs(stderr io.Writer) (*JobsCLI, bool) {
	if r.Jobs == nil {
		_, _ = fmt.Fprintln(stderr, "jobs: not configured")
		return nil, false
	}
	jobsCLI, err := r.Jobs()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
		return nil, false
	}
	return jobsCLI, true
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parse returns ok=false with the exit code to use when parsing stops the command.
func parse(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `usage:
  stockroom                                start the HTTP server
  stockroom token inspect <token>          print the snapshot carried by a token
  stockroom token issue --user <uuid>      issue a token for a stored user
  stockroom jobs trigger <task>            enqueue a background task
  stockroom jobs stats                     print default queue statistics
`)
}


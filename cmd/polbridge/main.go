package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := runMain(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration problems to status 2 and everything else to 1.
func exitCode(err error) int {
	if errors.Is(err, config.ErrInvalidConfig) {
		return 2
	}
	return 1
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := newApp(stdout, stderr)
	return app.RunContext(ctx, args)
}

func newApp(stdout, stderr io.Writer) *cli.App {
	r := &runner{stdout: stdout, stderr: stderr}

	app := cli.NewApp()
	app.Name = "polbridge"
	app.Usage = "Move POL between the root chain and the Polygon child chain"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.HideHelpCommand = true
	// Errors are reported by main so tests can inspect them.
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "dotenv file loaded before the environment (default .env)",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "deposit",
			Usage:     "Approve the deposit manager and deposit POL for the signer on the child chain",
			ArgsUsage: "[amount]",
			Action:    r.deposit,
		},
		{
			Name:      "withdraw",
			Usage:     "Burn POL on the child chain, then exit on the root chain when AUTO_EXIT is set",
			ArgsUsage: "[amount]",
			Action:    r.withdraw,
		},
		{
			Name:      "check",
			Usage:     "Wait until a burn is checkpointed and print its exit payload",
			ArgsUsage: "<txHash>",
			Action:    r.check,
		},
		{
			Name:      "exit",
			Usage:     "Start and process the exit for a checkpointed burn",
			ArgsUsage: "<txHash>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "proof",
					Usage: "exit payload printed by check; the proof service is skipped",
				},
			},
			Action: r.exit,
		},
		{
			Name:   "finalize",
			Usage:  "Process pending exits for the root token",
			Action: r.finalize,
		},
		{
			Name:   "balance",
			Usage:  "Print token and native balances of the signer on both chains",
			Action: r.balance,
		},
		{
			Name:      "history",
			Usage:     "List ledger transactions, newest first, or show one by hash",
			ArgsUsage: "[txHash]",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Value: 20,
					Usage: "maximum number of records to list",
				},
			},
			Action: r.history,
		},
	}
	app.Action = func(c *cli.Context) error {
		return cli.ShowAppHelp(c)
	}
	return app
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"

	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/amount"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/deposit"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/proofservice"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/withdraw"
)

type runner struct {
	stdout io.Writer
	stderr io.Writer
}

// usage prints the command synopsis. Missing or malformed positional arguments are not fatal.
func (r *runner) usage(c *cli.Context) error {
	synopsis := "polbridge " + c.Command.Name
	if c.Command.ArgsUsage != "" {
		synopsis += " " + c.Command.ArgsUsage
	}
	fmt.Fprintf(r.stdout, "usage: %s\n", synopsis)
	if c.Command.Usage != "" {
		fmt.Fprintf(r.stdout, "  %s\n", c.Command.Usage)
	}
	return nil
}

func (r *runner) open(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return openSession(c.Context, cfg, r.stderr)
}

// txHashArg parses the single positional transaction hash.
func txHashArg(c *cli.Context) (common.Hash, bool) {
	if c.Args().Len() != 1 {
		return common.Hash{}, false
	}
	b, err := hexutil.Decode(strings.TrimSpace(c.Args().First()))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func (r *runner) deposit(c *cli.Context) error {
	if c.Args().Len() > 1 {
		return r.usage(c)
	}
	s, err := r.open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.cfg.RequireDeposit(); err != nil {
		return err
	}
	amt, err := s.amountArg(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	root, err := s.root(ctx)
	if err != nil {
		return err
	}
	s.warnMissingCode(ctx, root,
		contractRef{"ROOT_TOKEN_ADDRESS", s.cfg.RootToken.Addr()},
		contractRef{"DEPOSIT_MANAGER_ADDRESS", s.cfg.DepositManager.Addr()},
	)
	flow, err := deposit.New(root, deposit.Config{
		RootToken:      s.cfg.RootToken.Addr(),
		DepositManager: s.cfg.DepositManager.Addr(),
		CheckBalance:   s.cfg.DepositCheckBalance,
		Events:         s.events,
		Log:            s.log.With("component", "deposit"),
	})
	if err != nil {
		return err
	}
	res, err := flow.Deposit(ctx, amt)
	printRecord(r.stdout, "approve_tx", res.Approve)
	printRecord(r.stdout, "deposit_tx", res.Deposit)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.stdout, "deposited: %s\n", amt)
	return nil
}

func (r *runner) withdraw(c *cli.Context) error {
	if c.Args().Len() > 1 {
		return r.usage(c)
	}
	s, err := r.open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.cfg.RequireWithdraw(); err != nil {
		return err
	}
	amt, err := s.amountArg(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	child, err := s.child(ctx)
	if err != nil {
		return err
	}
	s.warnMissingCode(ctx, child, contractRef{"CHILD_TOKEN_ADDRESS", s.cfg.ChildToken.Addr()})

	var (
		poller withdraw.ProofPoller
		exits  withdraw.ExitProcessor
	)
	if s.cfg.AutoExit {
		p, err := s.poller()
		if err != nil {
			return err
		}
		e, err := s.exitProcessor(ctx)
		if err != nil {
			return err
		}
		poller, exits = p, e
	}
	orch, err := s.orchestrator(child, poller, exits)
	if err != nil {
		return err
	}
	res, err := orch.Withdraw(ctx, amt)
	return report(r.stdout, res, err)
}

func (r *runner) check(c *cli.Context) error {
	burnTx, ok := txHashArg(c)
	if !ok {
		return r.usage(c)
	}
	s, err := r.open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	poller, err := s.poller()
	if err != nil {
		return err
	}
	orch, err := s.orchestrator(nil, poller, nil)
	if err != nil {
		return err
	}
	res, err := orch.Check(c.Context, burnTx)
	return report(r.stdout, res, err)
}

func (r *runner) exit(c *cli.Context) error {
	burnTx, ok := txHashArg(c)
	if !ok {
		return r.usage(c)
	}
	var proof proofservice.Proof
	if v := strings.TrimSpace(c.String("proof")); v != "" {
		p, err := proofservice.ParseProof(v)
		if err != nil {
			return fmt.Errorf("--proof: %w", err)
		}
		if p.Empty() {
			return errors.New("--proof: empty exit payload")
		}
		proof = p
	}
	s, err := r.open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.cfg.RequireExit(); err != nil {
		return err
	}

	exits, err := s.exitProcessor(c.Context)
	if err != nil {
		return err
	}
	if !proof.Empty() {
		orch, err := s.orchestrator(nil, nil, exits)
		if err != nil {
			return err
		}
		res, err := orch.ExitWithProof(c.Context, burnTx, proof)
		return report(r.stdout, res, err)
	}

	poller, err := s.poller()
	if err != nil {
		return err
	}
	orch, err := s.orchestrator(nil, poller, exits)
	if err != nil {
		return err
	}
	res, err := orch.Exit(c.Context, burnTx)
	return report(r.stdout, res, err)
}

func (r *runner) finalize(c *cli.Context) error {
	s, err := r.open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.cfg.RequireExit(); err != nil {
		return err
	}

	exits, err := s.exitProcessor(c.Context)
	if err != nil {
		return err
	}
	orch, err := s.orchestrator(nil, nil, exits)
	if err != nil {
		return err
	}
	res, err := orch.Finalize(c.Context)
	return report(r.stdout, res, err)
}

func (r *runner) balance(c *cli.Context) error {
	s, err := r.open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := c.Context
	root, err := s.root(ctx)
	if err != nil {
		return err
	}
	child, err := s.child(ctx)
	if err != nil {
		return err
	}
	owner := root.Address()
	dec := s.cfg.TokenDecimals

	rootToken, err := root.TokenBalance(ctx, s.cfg.RootToken.Addr(), owner)
	if err != nil {
		return err
	}
	rootNative, err := root.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}
	childToken, err := child.TokenBalance(ctx, s.cfg.ChildToken.Addr(), owner)
	if err != nil {
		return err
	}
	childNative, err := child.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.stdout, "address: %s\n", owner.Hex())
	fmt.Fprintf(r.stdout, "root_chain_id: %s\n", root.ChainID())
	fmt.Fprintf(r.stdout, "child_chain_id: %s\n", child.ChainID())
	fmt.Fprintf(r.stdout, "root_token: %s\n", amount.Format(rootToken, dec))
	fmt.Fprintf(r.stdout, "root_native: %s\n", amount.Format(rootNative, 18))
	fmt.Fprintf(r.stdout, "child_token: %s\n", amount.Format(childToken, dec))
	fmt.Fprintf(r.stdout, "child_native: %s\n", amount.Format(childNative, 18))
	return nil
}

// history prints ledger records, newest first, or the one record for the given hash.
func (r *runner) history(c *cli.Context) error {
	var hash common.Hash
	if c.Args().Len() > 0 {
		h, ok := txHashArg(c)
		if !ok {
			return r.usage(c)
		}
		hash = h
	}
	s, err := r.open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if strings.TrimSpace(s.cfg.DatabaseURL) == "" {
		s.log.Warn("DATABASE_URL is not set, only this process's transactions are visible")
	}
	return printHistory(c.Context, r.stdout, s.ledger, hash, c.Int("limit"))
}

func printHistory(ctx context.Context, w io.Writer, ledger txlog.Store, hash common.Hash, limit int) error {
	if (hash != common.Hash{}) {
		rec, err := ledger.Get(ctx, hash)
		if err != nil {
			return fmt.Errorf("ledger %s: %w", hash.Hex(), err)
		}
		printLedgerRow(w, rec)
		return nil
	}
	recs, err := ledger.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no recorded transactions")
		return nil
	}
	for _, rec := range recs {
		printLedgerRow(w, rec)
	}
	return nil
}

func printLedgerRow(w io.Writer, rec txlog.TransactionRecord) {
	fmt.Fprintf(w, "%s %s %s %s block=%d submitted=%s\n",
		rec.Hash.Hex(), rec.Chain, rec.Method, rec.Status, rec.BlockNumber, rec.SubmittedAt.UTC().Format(time.RFC3339))
}

func printRecord(w io.Writer, label string, rec txlog.TransactionRecord) {
	if (rec.Hash == common.Hash{}) {
		return
	}
	fmt.Fprintf(w, "%s: %s (%s, %s)\n", label, rec.Hash.Hex(), rec.Chain, rec.Status)
}

// report prints the handles a withdrawal reached. On failure it adds the command that picks the
// withdrawal up again and returns err unchanged.
func report(w io.Writer, res withdraw.Result, err error) error {
	fmt.Fprintf(w, "state: %s\n", res.State)
	if (res.BurnTx != common.Hash{}) {
		fmt.Fprintf(w, "burn_tx: %s\n", res.BurnTx.Hex())
	}
	if !res.Proof.Empty() {
		fmt.Fprintf(w, "proof: %s\n", res.Proof.Hex())
	}
	if res.Exit != nil {
		fmt.Fprintf(w, "exit: %s\n", res.Exit.State)
		if res.Exit.Start != nil {
			printRecord(w, "exit_start_tx", *res.Exit.Start)
		}
		if res.Exit.Process != nil {
			printRecord(w, "process_exits_tx", *res.Exit.Process)
		}
	}
	if res.Finalize != nil {
		printRecord(w, "process_exits_tx", *res.Finalize)
	}

	if err != nil {
		var rerr *withdraw.ResumeError
		if errors.As(err, &rerr) {
			if cmd := rerr.ResumeCommand(); cmd != "" {
				fmt.Fprintf(w, "resume: polbridge %s\n", cmd)
			}
		}
		return err
	}
	if res.State == withdraw.StateManualHandoff {
		fmt.Fprintf(w, "next: polbridge exit %s (once checkpointed)\n", res.BurnTx.Hex())
	}
	return nil
}

package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"

	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/amount"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/blobstore"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/chainclient"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/config"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/eth"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/exit"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/proofservice"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/queue"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/secrets"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog"
	txlogpg "github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog/postgres"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/withdraw"
)

// session holds what one command invocation wires together. Chain clients are dialed on first use
// so commands that never submit a transaction do not need a reachable RPC endpoint.
type session struct {
	cfg config.Config
	log *slog.Logger

	ledger    txlog.Store
	artifacts blobstore.Store
	events    withdraw.EventEmitter

	key     *ecdsa.PrivateKey
	roots   *chainclient.Client
	childs  *chainclient.Client
	closers []func()
}

type contractRef struct {
	name string
	addr common.Address
}

func loadConfig(c *cli.Context) (config.Config, error) {
	if f := strings.TrimSpace(c.String("env-file")); f != "" {
		return config.Load(f)
	}
	return config.Load()
}

func openSession(ctx context.Context, cfg config.Config, stderr io.Writer) (*session, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	s := &session{
		cfg: cfg,
		log: slog.New(tint.NewHandler(stderr, &tint.Options{Level: lvl, TimeFormat: time.Kitchen})),
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open ledger database: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		store, err := txlogpg.New(pool)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.ledger = store
	} else {
		s.ledger = txlog.NewMemoryStore()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.ArtifactDriver)) {
	case "":
	case blobstore.DriverS3:
		client, err := blobstore.NewS3Client(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.artifacts, err = blobstore.New(blobstore.Config{
			Driver:   blobstore.DriverS3,
			Bucket:   cfg.ArtifactBucket,
			Prefix:   cfg.ArtifactPrefix,
			S3Client: client,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	default:
		s.artifacts, err = blobstore.New(blobstore.Config{Driver: cfg.ArtifactDriver, Prefix: cfg.ArtifactPrefix})
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	if strings.TrimSpace(cfg.EventsDriver) != "" {
		producer, err := queue.NewProducer(queue.ProducerConfig{
			Driver:  cfg.EventsDriver,
			Brokers: queue.SplitCommaList(strings.Join(cfg.EventsBrokers, ",")),
			TLS:     cfg.EventsTLS,
			Writer:  stderr,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = producer.Close() })
		emitter, err := queue.NewEmitter(producer, cfg.EventsTopic)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.events = emitter
	}
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (s *session) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// amountArg returns the first positional argument as a transfer amount, or DEFAULT_AMOUNT.
func (s *session) amountArg(c *cli.Context) (amount.Amount, error) {
	if c.Args().Len() == 0 {
		return s.cfg.DefaultTransferAmount()
	}
	amt, err := amount.Parse(c.Args().First(), s.cfg.TokenDecimals)
	if err != nil {
		return amount.Amount{}, fmt.Errorf("amount %q: %w", c.Args().First(), err)
	}
	return amt, nil
}

func (s *session) signingKey(ctx context.Context) (*ecdsa.PrivateKey, error) {
	if s.key != nil {
		return s.key, nil
	}
	var (
		p   secrets.Provider
		ref string
	)
	if strings.TrimSpace(s.cfg.PrivateKey) != "" {
		value := s.cfg.PrivateKey
		p = &secrets.EnvProvider{Lookup: func(string) (string, bool) { return value, true }}
		ref = "PRIVATE_KEY"
	} else {
		aws, err := secrets.NewAWS(ctx)
		if err != nil {
			return nil, err
		}
		p = aws
		ref = s.cfg.PrivateKeySecretID
	}
	key, err := secrets.LoadSigningKey(ctx, p, ref)
	if err != nil {
		return nil, err
	}
	s.key = key
	return key, nil
}

func (s *session) root(ctx context.Context) (*chainclient.Client, error) {
	if s.roots != nil {
		return s.roots, nil
	}
	client, err := s.dial(ctx, txlog.ChainRoot, s.cfg.RootRPCURL)
	if err != nil {
		return nil, err
	}
	s.roots = client
	return client, nil
}

func (s *session) child(ctx context.Context) (*chainclient.Client, error) {
	if s.childs != nil {
		return s.childs, nil
	}
	client, err := s.dial(ctx, txlog.ChainChild, s.cfg.ChildRPCURL)
	if err != nil {
		return nil, err
	}
	s.childs = client
	return client, nil
}

func (s *session) dial(ctx context.Context, chain txlog.Chain, url string) (*chainclient.Client, error) {
	key, err := s.signingKey(ctx)
	if err != nil {
		return nil, err
	}
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", chain, err)
	}
	s.closers = append(s.closers, ec.Close)
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s chain id: %w", chain, err)
	}
	client, err := chainclient.New(chainclient.Config{
		Chain:               chain,
		ChainID:             chainID,
		Backend:             ec,
		Signer:              eth.NewKeySigner(key),
		GasLimitMultiplier:  s.cfg.GasLimitMultiplier,
		ReceiptPollInterval: s.cfg.ReceiptPollInterval,
		Ledger:              s.ledger,
		Log:                 s.log,
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("connected", "chain", string(chain), "chain_id", chainID.String(), "signer", client.Address().Hex())
	return client, nil
}

// warnMissingCode logs configured addresses that hold no contract code. A typo in an address
// otherwise surfaces as an opaque revert or, for approve, a silent no-op.
func (s *session) warnMissingCode(ctx context.Context, client *chainclient.Client, refs ...contractRef) {
	for _, ref := range refs {
		ok, err := client.HasCode(ctx, ref.addr)
		if err != nil {
			s.log.Warn("contract code lookup failed", "name", ref.name, "address", ref.addr.Hex(), "err", err)
			continue
		}
		if !ok {
			s.log.Warn("no contract code at configured address", "chain", string(client.Chain()), "name", ref.name, "address", ref.addr.Hex())
		}
	}
}

func (s *session) poller() (*proofservice.Poller, error) {
	client, err := proofservice.NewClient(s.cfg.ProofAPIURL, s.cfg.ProofNetwork)
	if err != nil {
		return nil, err
	}
	return proofservice.NewPoller(client, proofservice.PollerConfig{
		Interval:    s.cfg.ProofPollInterval,
		MaxAttempts: s.cfg.ProofMaxAttempts,
		Log:         s.log.With("component", "proofservice"),
	})
}

func (s *session) exitProcessor(ctx context.Context) (*exit.Processor, error) {
	root, err := s.root(ctx)
	if err != nil {
		return nil, err
	}
	s.warnMissingCode(ctx, root,
		contractRef{"ERC20_PREDICATE_ADDRESS", s.cfg.ERC20Predicate.Addr()},
		contractRef{"WITHDRAW_MANAGER_ADDRESS", s.cfg.WithdrawManager.Addr()},
	)
	return exit.NewProcessor(root, exit.Config{
		ERC20Predicate:  s.cfg.ERC20Predicate.Addr(),
		WithdrawManager: s.cfg.WithdrawManager.Addr(),
		Log:             s.log.With("component", "exit"),
	})
}

// orchestrator builds a withdraw.Orchestrator. Nil collaborators must be passed as untyped nils.
func (s *session) orchestrator(child withdraw.ChildChain, poller withdraw.ProofPoller, exits withdraw.ExitProcessor) (*withdraw.Orchestrator, error) {
	return withdraw.New(child, poller, exits, withdraw.Config{
		ChildToken: s.cfg.ChildToken.Addr(),
		RootToken:  s.cfg.RootToken.Addr(),
		AutoExit:   s.cfg.AutoExit,
		Network:    s.cfg.ProofNetwork,
		Artifacts:  s.artifacts,
		Events:     s.events,
		Log:        s.log.With("component", "withdraw"),
	})
}

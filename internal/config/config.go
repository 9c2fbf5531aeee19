// Package config loads bridge settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/amount"
)

var ErrInvalidConfig = errors.New("config: invalid config")

// Address decodes a hex account address from an environment variable.
type Address common.Address

func (a *Address) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*a = Address{}
		return nil
	}
	if !common.IsHexAddress(value) {
		return fmt.Errorf("not a hex address: %q", value)
	}
	*a = Address(common.HexToAddress(value))
	return nil
}

func (a Address) Addr() common.Address { return common.Address(a) }

func (a Address) IsZero() bool { return a == Address{} }

type Config struct {
	PrivateKey         string `envconfig:"PRIVATE_KEY"`
	PrivateKeySecretID string `envconfig:"PRIVATE_KEY_SECRET_ID"`

	RootRPCURL  string `envconfig:"ROOT_RPC_URL" default:"https://ethereum-sepolia-rpc.publicnode.com"`
	ChildRPCURL string `envconfig:"CHILD_RPC_URL" default:"https://rpc-amoy.polygon.technology"`

	RootToken       Address `envconfig:"ROOT_TOKEN_ADDRESS"`
	ChildToken      Address `envconfig:"CHILD_TOKEN_ADDRESS" default:"0x0000000000000000000000000000000000001010"`
	DepositManager  Address `envconfig:"DEPOSIT_MANAGER_ADDRESS"`
	ERC20Predicate  Address `envconfig:"ERC20_PREDICATE_ADDRESS"`
	WithdrawManager Address `envconfig:"WITHDRAW_MANAGER_ADDRESS"`

	AutoExit bool `envconfig:"AUTO_EXIT" default:"false"`

	ProofAPIURL       string        `envconfig:"PROOF_API_URL" default:"https://proof-generator.polygon.technology/api/v1"`
	ProofNetwork      string        `envconfig:"PROOF_NETWORK" default:"amoy"`
	ProofPollInterval time.Duration `envconfig:"PROOF_POLL_INTERVAL" default:"30s"`
	ProofMaxAttempts  int           `envconfig:"PROOF_MAX_ATTEMPTS" default:"360"`

	TokenDecimals       int     `envconfig:"TOKEN_DECIMALS" default:"18"`
	DefaultAmount       string  `envconfig:"DEFAULT_AMOUNT" default:"1"`
	DepositCheckBalance bool    `envconfig:"DEPOSIT_CHECK_BALANCE" default:"true"`
	GasLimitMultiplier  float64 `envconfig:"GAS_LIMIT_MULTIPLIER" default:"1.2"`

	ReceiptPollInterval time.Duration `envconfig:"RECEIPT_POLL_INTERVAL" default:"3s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	ArtifactDriver string `envconfig:"ARTIFACT_DRIVER"`
	ArtifactBucket string `envconfig:"ARTIFACT_BUCKET"`
	ArtifactPrefix string `envconfig:"ARTIFACT_PREFIX" default:"polbridge"`

	EventsDriver  string   `envconfig:"EVENTS_DRIVER"`
	EventsBrokers []string `envconfig:"EVENTS_BROKERS"`
	EventsTopic   string   `envconfig:"EVENTS_TOPIC" default:"polbridge.events.v1"`
	EventsTLS     bool     `envconfig:"EVENTS_TLS" default:"false"`
}

// Load reads the given .env files, then the process environment, and validates the result.
// Variables already set in the environment win over file values. With no files named it reads
// ".env" if present; a named file must exist.
func Load(files ...string) (Config, error) {
	err := godotenv.Load(files...)
	if len(files) == 0 && errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: load env file: %v", ErrInvalidConfig, err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings every command depends on.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.PrivateKey) == "" && strings.TrimSpace(c.PrivateKeySecretID) == "" {
		problems = append(problems, "PRIVATE_KEY or PRIVATE_KEY_SECRET_ID is required")
	}
	if c.RootToken.IsZero() {
		problems = append(problems, "ROOT_TOKEN_ADDRESS is required")
	}
	if strings.TrimSpace(c.RootRPCURL) == "" || strings.TrimSpace(c.ChildRPCURL) == "" {
		problems = append(problems, "ROOT_RPC_URL and CHILD_RPC_URL must be set")
	}
	if _, err := amount.Parse(c.DefaultAmount, c.TokenDecimals); err != nil {
		problems = append(problems, fmt.Sprintf("DEFAULT_AMOUNT/TOKEN_DECIMALS: %v", err))
	}
	if c.ProofPollInterval <= 0 {
		problems = append(problems, "PROOF_POLL_INTERVAL must be > 0")
	}
	if c.ProofMaxAttempts <= 0 {
		problems = append(problems, "PROOF_MAX_ATTEMPTS must be > 0")
	}
	if c.ReceiptPollInterval <= 0 {
		problems = append(problems, "RECEIPT_POLL_INTERVAL must be > 0")
	}
	if c.GasLimitMultiplier < 1 {
		problems = append(problems, "GAS_LIMIT_MULTIPLIER must be >= 1")
	}
	if _, err := c.SlogLevel(); err != nil {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL: %v", err))
	}
	switch strings.ToLower(strings.TrimSpace(c.ArtifactDriver)) {
	case "", "memory":
	case "s3":
		if strings.TrimSpace(c.ArtifactBucket) == "" {
			problems = append(problems, "ARTIFACT_BUCKET is required with ARTIFACT_DRIVER=s3")
		}
	default:
		problems = append(problems, fmt.Sprintf("ARTIFACT_DRIVER %q is not supported", c.ArtifactDriver))
	}
	switch strings.ToLower(strings.TrimSpace(c.EventsDriver)) {
	case "", "stdio":
	case "kafka":
		if len(c.EventsBrokers) == 0 {
			problems = append(problems, "EVENTS_BROKERS is required with EVENTS_DRIVER=kafka")
		}
	default:
		problems = append(problems, fmt.Sprintf("EVENTS_DRIVER %q is not supported", c.EventsDriver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RequireDeposit checks the addresses the deposit command calls.
func (c Config) RequireDeposit() error {
	return require(map[string]Address{"DEPOSIT_MANAGER_ADDRESS": c.DepositManager})
}

// RequireWithdraw checks the addresses a withdrawal touches. Exit contracts are only needed when
// the withdrawal continues past the burn.
func (c Config) RequireWithdraw() error {
	m := map[string]Address{"CHILD_TOKEN_ADDRESS": c.ChildToken}
	if c.AutoExit {
		m["ERC20_PREDICATE_ADDRESS"] = c.ERC20Predicate
		m["WITHDRAW_MANAGER_ADDRESS"] = c.WithdrawManager
	}
	return require(m)
}

// RequireExit checks the addresses exit and finalize call.
func (c Config) RequireExit() error {
	return require(map[string]Address{
		"ERC20_PREDICATE_ADDRESS":  c.ERC20Predicate,
		"WITHDRAW_MANAGER_ADDRESS": c.WithdrawManager,
	})
}

func require(fields map[string]Address) error {
	var missing []string
	for name, addr := range fields {
		if addr.IsZero() {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
}

func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}

// DefaultTransferAmount parses DefaultAmount with TokenDecimals.
func (c Config) DefaultTransferAmount() (amount.Amount, error) {
	return amount.Parse(c.DefaultAmount, c.TokenDecimals)
}

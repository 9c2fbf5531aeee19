// Package contracts holds the ABI fragments of the Polygon PoS bridge contracts this tool calls.
package contracts

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var ErrInvalidInput = errors.New("contracts: invalid input")

// WithdrawEventSignature is emitted by the child token when tokens are burnt for a plasma exit.
// The proof service locates the burn log in the checkpointed receipt by its topic.
const WithdrawEventSignature = "Withdraw(address,address,uint256,uint256,uint256)"

var (
	initOnce sync.Once
	initErr  error

	rootTokenABI       abi.ABI
	childTokenABI      abi.ABI
	depositManagerABI  abi.ABI
	erc20PredicateABI  abi.ABI
	withdrawManagerABI abi.ABI
)

func initABI() error {
	initOnce.Do(func() {
		for _, p := range []struct {
			name string
			dst  *abi.ABI
			json string
		}{
			{"root token", &rootTokenABI, rootTokenABIJSON},
			{"child token", &childTokenABI, childTokenABIJSON},
			{"DepositManager", &depositManagerABI, depositManagerABIJSON},
			{"ERC20Predicate", &erc20PredicateABI, erc20PredicateABIJSON},
			{"WithdrawManager", &withdrawManagerABI, withdrawManagerABIJSON},
		} {
			parsed, err := abi.JSON(strings.NewReader(p.json))
			if err != nil {
				initErr = fmt.Errorf("contracts: parse %s ABI: %w", p.name, err)
				return
			}
			*p.dst = parsed
		}
	})
	return initErr
}

// WithdrawEventTopic returns keccak256(WithdrawEventSignature).
func WithdrawEventTopic() common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(WithdrawEventSignature))
	return common.BytesToHash(h.Sum(nil))
}

// PackApprove encodes root token approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if (spender == common.Address{}) {
		return nil, fmt.Errorf("%w: zero spender", ErrInvalidInput)
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	return pack(rootTokenABI, "approve", spender, amount)
}

// PackBalanceOf encodes balanceOf(owner); both token ABIs share the selector.
func PackBalanceOf(owner common.Address) ([]byte, error) {
	return pack(rootTokenABI, "balanceOf", owner)
}

func UnpackBalanceOf(out []byte) (*big.Int, error) {
	if err := initABI(); err != nil {
		return nil, err
	}
	vals, err := rootTokenABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("contracts: unpack balanceOf: %w", err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("contracts: unpack balanceOf: got %d values", len(vals))
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contracts: unpack balanceOf: unexpected type %T", vals[0])
	}
	return v, nil
}

// PackDepositERC20ForUser encodes DepositManager.depositERC20ForUser(token, user, amount).
func PackDepositERC20ForUser(token, user common.Address, amount *big.Int) ([]byte, error) {
	if (token == common.Address{}) || (user == common.Address{}) {
		return nil, fmt.Errorf("%w: zero token or user", ErrInvalidInput)
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	return pack(depositManagerABI, "depositERC20ForUser", token, user, amount)
}

// PackWithdraw encodes child token withdraw(amount). The call is payable and the transaction
// value must equal amount.
func PackWithdraw(amount *big.Int) ([]byte, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	return pack(childTokenABI, "withdraw", amount)
}

// PackStartExitWithBurntTokens encodes ERC20Predicate.startExitWithBurntTokens(data).
func PackStartExitWithBurntTokens(exitPayload []byte) ([]byte, error) {
	if len(exitPayload) == 0 {
		return nil, fmt.Errorf("%w: empty exit payload", ErrInvalidInput)
	}
	return pack(erc20PredicateABI, "startExitWithBurntTokens", exitPayload)
}

// PackProcessExits encodes WithdrawManager.processExits(token).
func PackProcessExits(token common.Address) ([]byte, error) {
	if (token == common.Address{}) {
		return nil, fmt.Errorf("%w: zero token", ErrInvalidInput)
	}
	return pack(withdrawManagerABI, "processExits", token)
}

func pack(a abi.ABI, method string, args ...any) ([]byte, error) {
	if err := initABI(); err != nil {
		return nil, err
	}
	b, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contracts: pack %s: %w", method, err)
	}
	return b, nil
}

func positive(v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidInput)
	}
	return nil
}

const rootTokenABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "spender", "type": "address"},
      {"internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "approve",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "account", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const childTokenABIJSON = `[
  {
    "inputs": [{"internalType": "uint256", "name": "amount", "type": "uint256"}],
    "name": "withdraw",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "account", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "input1", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "output1", "type": "uint256"}
    ],
    "name": "Withdraw",
    "type": "event"
  }
]`

const depositManagerABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "_token", "type": "address"},
      {"internalType": "address", "name": "_user", "type": "address"},
      {"internalType": "uint256", "name": "_amount", "type": "uint256"}
    ],
    "name": "depositERC20ForUser",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const erc20PredicateABIJSON = `[
  {
    "inputs": [{"internalType": "bytes", "name": "data", "type": "bytes"}],
    "name": "startExitWithBurntTokens",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const withdrawManagerABIJSON = `[
  {
    "inputs": [{"internalType": "address", "name": "_token", "type": "address"}],
    "name": "processExits",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

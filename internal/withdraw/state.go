package withdraw

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/chainclient"
)

// State is the furthest point a withdrawal reached in one invocation.
type State int

const (
	StateIdle State = iota
	StateBurning
	StateBurned
	StatePollingCheckpoint
	StateCheckpointed
	StateExitingStarted
	StateExitingProcessed
	StateDone
	StateManualHandoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBurning:
		return "burning"
	case StateBurned:
		return "burned"
	case StatePollingCheckpoint:
		return "polling_checkpoint"
	case StateCheckpointed:
		return "checkpointed"
	case StateExitingStarted:
		return "exiting_started"
	case StateExitingProcessed:
		return "exiting_processed"
	case StateDone:
		return "done"
	case StateManualHandoff:
		return "manual_handoff"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ResumeError is returned by every Orchestrator entry point. It carries the handles a later
// invocation needs to continue: the burn hash once known and the exit payload once fetched.
type ResumeError struct {
	State  State
	BurnTx common.Hash
	Proof  string
	Err    error
}

func (e *ResumeError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("withdraw: %s", e.State)
	if (e.BurnTx != common.Hash{}) {
		msg += " burn_tx=" + e.BurnTx.Hex()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResumeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ResumeCommand names the CLI invocation that continues from this failure, or "" when the
// withdrawal has to start over.
func (e *ResumeError) ResumeCommand() string {
	if e == nil {
		return ""
	}
	switch {
	case e.State == StateBurning && errors.Is(e.Err, chainclient.ErrTxFailed):
		return ""
	case e.State == StateExitingStarted || e.State == StateExitingProcessed:
		return "finalize"
	case (e.BurnTx != common.Hash{}) && e.State == StateCheckpointed && e.Proof != "":
		return "exit --proof " + e.Proof + " " + e.BurnTx.Hex()
	case (e.BurnTx != common.Hash{}) && (e.State == StateBurned || e.State == StatePollingCheckpoint || e.State == StateCheckpointed):
		return "exit " + e.BurnTx.Hex()
	case (e.BurnTx != common.Hash{}):
		return "check " + e.BurnTx.Hex()
	default:
		return ""
	}
}

package chainclient

import (
	"fmt"
	"strings"

	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/eth"
)

// knownReverts maps contract revert reasons to sentinel errors. KNOWN_EXIT is raised by older
// WithdrawManager deployments for the same condition.
var knownReverts = []struct {
	reason string
	err    error
}{
	{reason: "EXIT_ALREADY_EXISTS", err: ErrExitAlreadyStarted},
	{reason: "KNOWN_EXIT", err: ErrExitAlreadyStarted},
}

// classifyRevert wraps err with the sentinel matching its revert reason. Nodes that omit revert
// data are matched on the error text instead.
func classifyRevert(err error) error {
	if err == nil {
		return nil
	}
	reason, ok := eth.RevertReason(err)
	if !ok {
		reason = err.Error()
	}
	for _, k := range knownReverts {
		if strings.Contains(reason, k.reason) {
			return fmt.Errorf("%w: %w", k.err, err)
		}
	}
	return err
}

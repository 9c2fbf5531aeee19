package eth

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertReason extracts the Solidity revert string from a node error.
//
// Nodes attach the raw revert payload as JSON-RPC error data; when it decodes as Error(string)
// the reason is returned with ok=true. Errors without structured data yield ok=false.
func RevertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	data, decErr := hexutil.Decode(strings.TrimSpace(raw))
	if decErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}

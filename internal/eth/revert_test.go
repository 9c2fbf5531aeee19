package eth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type fakeDataError struct {
	msg  string
	data any
}

func (e *fakeDataError) Error() string  { return e.msg }
func (e *fakeDataError) ErrorData() any { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()

	strType, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("NewType: %v", err)
	}
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	// Error(string) selector.
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

func TestRevertReason_DecodesWrappedDataError(t *testing.T) {
	base := &fakeDataError{msg: "execution reverted: EXIT_ALREADY_EXISTS", data: encodeRevert(t, "EXIT_ALREADY_EXISTS")}
	err := fmt.Errorf("eth: estimate gas: %w", base)

	reason, ok := RevertReason(err)
	if !ok {
		t.Fatalf("expected revert reason")
	}
	if reason != "EXIT_ALREADY_EXISTS" {
		t.Fatalf("reason: got %q", reason)
	}
}

func TestRevertReason_NoStructuredData(t *testing.T) {
	if _, ok := RevertReason(errors.New("execution reverted")); ok {
		t.Fatalf("expected no reason for plain error")
	}
	if _, ok := RevertReason(&fakeDataError{msg: "x", data: 42}); ok {
		t.Fatalf("expected no reason for non-string data")
	}
	if _, ok := RevertReason(&fakeDataError{msg: "x", data: "0xdeadbeef"}); ok {
		t.Fatalf("expected no reason for non Error(string) payload")
	}
}

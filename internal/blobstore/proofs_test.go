package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSaveAndLoadProof(t *testing.T) {
	t.Parallel()

	store, err := New(Config{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	burn := common.HexToHash("0xAB")

	if _, ok, err := LoadProof(ctx, store, burn); err != nil || ok {
		t.Fatalf("LoadProof before save: ok=%v err=%v", ok, err)
	}
	if err := SaveProof(ctx, store, burn, "amoy", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("SaveProof: %v", err)
	}
	got, ok, err := LoadProof(ctx, store, burn)
	if err != nil || !ok {
		t.Fatalf("LoadProof: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[1] != 0x02 {
		t.Fatalf("payload: %x", got)
	}

	obj, err := store.Get(ctx, ProofKey(burn))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj.Metadata["network"] != "amoy" || obj.Metadata["burn-tx"] != burn.Hex() {
		t.Fatalf("metadata: %v", obj.Metadata)
	}
}

func TestSaveProof_Rejects(t *testing.T) {
	t.Parallel()

	store, _ := New(Config{Driver: DriverMemory})
	if err := SaveProof(context.Background(), store, common.Hash{1}, "amoy", nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("empty payload: %v", err)
	}
	if err := SaveProof(context.Background(), nil, common.Hash{1}, "amoy", []byte{1}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil store: %v", err)
	}
}

func TestProofKey_IsLowercaseHex(t *testing.T) {
	t.Parallel()

	want := "exits/0x00000000000000000000000000000000000000000000000000000000000000ab/exit-payload.bin"
	if got := ProofKey(common.HexToHash("0xAB")); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSaveProof_KeepsFirstPayload(t *testing.T) {
	t.Parallel()

	store, _ := New(Config{Driver: DriverMemory})
	ctx := context.Background()
	burn := common.HexToHash("0xCD")

	if err := SaveProof(ctx, store, burn, "amoy", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("SaveProof: %v", err)
	}
	if err := SaveProof(ctx, store, burn, "mainnet", []byte{0x09}); err != nil {
		t.Fatalf("second SaveProof: %v", err)
	}
	obj, err := store.Get(ctx, ProofKey(burn))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(obj.Data) != 2 || obj.Data[0] != 0x01 {
		t.Fatalf("payload overwritten: %x", obj.Data)
	}
	if obj.Metadata["network"] != "amoy" {
		t.Fatalf("metadata overwritten: %v", obj.Metadata)
	}
}

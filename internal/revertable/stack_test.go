package revertable

import (
	"testing"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
)

func newTestStack(fakeDB map[string][]byte) *Stack {
	return NewStack(func(key []byte) ([]byte, bool) {
		v, ok := fakeDB[string(key)]
		return v, ok
	}, nil, nil)
}

func processStack(t *testing.T, s *Stack, fakeDB map[string][]byte) {
	t.Helper()
	for _, op := range s.All() {
		if op.IsPut {
			fakeDB[string(op.Key)] = op.Value
		} else {
			delete(fakeDB, string(op.Key))
		}
	}
	s.Clear()
}

func claimKey(b byte) []byte {
	var h codec.ClaimHash
	for i := range h {
		h[i] = b
	}
	return codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: h})
}

func claimVal(name string) []byte {
	return codec.PackClaimToTXOValue(codec.ClaimToTXOValue{TxNum: 1, Nout: 0, RootTxNum: 1, RootPosition: 0, Amount: 1, Name: name})
}

func TestStackSimplify(t *testing.T) {
	fakeDB := make(map[string][]byte)
	s := newTestStack(fakeDB)

	key1, key2 := claimKey(1), claimKey(2)
	val1, val3 := claimVal("derp"), claimVal("other")

	if err := s.AppendOp(Delete(key1, val1)); err == nil {
		t.Fatal("expected integrity error deleting nonexistent key")
	}

	if err := s.AppendOp(Put(key1, val1)); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("want 1 staged op, got %d", s.Len())
	}
	if err := s.AppendOp(Delete(key1, val1)); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatalf("want 0 staged ops after cancel, got %d", s.Len())
	}

	if err := s.AppendOp(Put(key1, val1)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendOp(Delete(key2, claimVal("oops"))); err == nil {
		t.Fatal("expected integrity error deleting wrong key/value pair")
	}

	if err := s.AppendOp(Delete(key1, val1)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendOp(Put(key2, val3)); err != nil {
		t.Fatal(err)
	}

	processStack(t, s, fakeDB)
	if string(fakeDB[string(key2)]) != string(val3) {
		t.Fatalf("expected fakeDB[key2] == val3")
	}

	if err := s.AppendOp(Put(key2, val1)); err == nil {
		t.Fatal("expected integrity error overwriting without delete")
	}
}

func TestStackUndoRoundTrip(t *testing.T) {
	fakeDB := make(map[string][]byte)
	s := newTestStack(fakeDB)

	key1 := claimKey(1)
	val1 := claimVal("derp")

	if err := s.AppendOp(Put(key1, val1)); err != nil {
		t.Fatal(err)
	}
	undo := s.UndoOps()
	processStack(t, s, fakeDB)

	if _, ok := fakeDB[string(key1)]; !ok {
		t.Fatal("expected key1 present after commit")
	}

	s2 := newTestStack(fakeDB)
	if err := s2.ApplyPackedUndoOps(undo); err != nil {
		t.Fatal(err)
	}
	processStack(t, s2, fakeDB)

	if _, ok := fakeDB[string(key1)]; ok {
		t.Fatal("expected key1 absent after undo round-trip")
	}
}

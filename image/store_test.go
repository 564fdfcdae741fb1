package image

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "methods.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePutGet(t *testing.T) {
	reg := compileFixture(t)
	s := openTestStore(t)

	var put int
	for _, m := range reg.Methods() {
		if m.Host != nil {
			continue
		}
		hash, err := s.Put(m)
		if err != nil {
			t.Fatalf("Put(%s): %v", m.Signature(), err)
		}
		put++

		ok, err := s.Has(hash)
		if err != nil {
			t.Fatalf("Has: %v", err)
		}
		if !ok {
			t.Errorf("Has(%x) = false after Put", hash)
		}

		wm, err := s.Get(hash)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if wm.Name != m.Name || wm.Declaring != m.Declaring.Name {
			t.Errorf("Get returned %s.%s, want %s.%s", wm.Declaring, wm.Name, m.Declaring.Name, m.Name)
		}
		if len(wm.Instrs) != len(m.Body.Instrs) {
			t.Errorf("Get(%s) has %d instructions, want %d", m.Signature(), len(wm.Instrs), len(m.Body.Instrs))
		}
	}
	if put == 0 {
		t.Fatal("fixture registry has no lowered methods")
	}
}

func TestStorePutIsIdempotent(t *testing.T) {
	reg := compileFixture(t)
	s := openTestStore(t)

	if _, err := s.PutRegistry(reg); err != nil {
		t.Fatalf("PutRegistry: %v", err)
	}
	first, err := s.Signatures()
	if err != nil {
		t.Fatalf("Signatures: %v", err)
	}
	if _, err := s.PutRegistry(reg); err != nil {
		t.Fatalf("second PutRegistry: %v", err)
	}
	second, err := s.Signatures()
	if err != nil {
		t.Fatalf("Signatures: %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("store grew from %d to %d on a duplicate put", len(first), len(second))
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := openTestStore(t)
	var hash [32]byte
	hash[0] = 0xAB

	if _, err := s.Get(hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get of a missing hash = %v, want ErrNotFound", err)
	}
	ok, err := s.Has(hash)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if ok {
		t.Error("Has reported a missing hash as present")
	}
}

func TestStoreSignaturesSorted(t *testing.T) {
	reg := compileFixture(t)
	s := openTestStore(t)

	n, err := s.PutRegistry(reg)
	if err != nil {
		t.Fatalf("PutRegistry: %v", err)
	}
	sigs, err := s.Signatures()
	if err != nil {
		t.Fatalf("Signatures: %v", err)
	}
	if len(sigs) != n {
		t.Fatalf("Signatures returned %d rows, want %d", len(sigs), n)
	}
	for i := 1; i < len(sigs); i++ {
		if sigs[i-1] > sigs[i] {
			t.Errorf("signatures out of order: %q before %q", sigs[i-1], sigs[i])
		}
	}
	found := false
	for _, sig := range sigs {
		if strings.HasPrefix(sig, "Main.Run(") {
			found = true
		}
	}
	if !found {
		t.Errorf("Main.Run not listed in %v", sigs)
	}
}

package adapters

import (
	"errors"
	"reflect"
	"testing"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

func TestNewRegistryRejectsBadAdapters(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected error for nil adapter")
	}
	if _, err := NewRegistry(&stubAdapter{program: ""}); err == nil {
		t.Fatal("expected error for empty program name")
	}
	if _, err := NewRegistry(&stubAdapter{program: "a"}, &stubAdapter{program: "a"}); err == nil {
		t.Fatal("expected error for duplicate program")
	}
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	a := &stubAdapter{program: "terachem"}
	r, err := NewRegistry(a, &stubAdapter{program: "xtb"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	got, err := r.Lookup("terachem")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != a {
		t.Fatal("wrong adapter returned")
	}

	_, err = r.Lookup("orca")
	if !errors.Is(err, calc.ErrAdapterNotFound) {
		t.Fatalf("expected ErrAdapterNotFound, got %v", err)
	}
}

func TestRegistryProgramsSorted(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(&stubAdapter{program: "xtb"}, &stubAdapter{program: "crest"}, &stubAdapter{program: "terachem"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	want := []string{"crest", "terachem", "xtb"}
	if !reflect.DeepEqual(r.Programs(), want) {
		t.Fatalf("programs: %v, want %v", r.Programs(), want)
	}
}

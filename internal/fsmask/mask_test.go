package fsmask_test

import (
	"testing"

	"scorch/internal/fsmask"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want fsmask.Mask
	}{
		{"iso9660", fsmask.ISO9660},
		{"joliet", fsmask.Joliet},
		{"udf", fsmask.UDF},
		{"iso9660+joliet", fsmask.ISO9660 | fsmask.Joliet},
		{"ISO9660+Joliet+UDF", fsmask.ISO9660 | fsmask.Joliet | fsmask.UDF},
		{"", fsmask.Default},
	}
	for _, tc := range cases {
		got, err := fsmask.Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsUnknownComponent(t *testing.T) {
	if _, err := fsmask.Parse("iso9660+fat32"); err == nil {
		t.Fatal("expected error for unknown component")
	}
}

func TestStringCanonicalOrder(t *testing.T) {
	mask := fsmask.UDF | fsmask.ISO9660
	if got := mask.String(); got != "iso9660+udf" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}

func TestHasAndHasAny(t *testing.T) {
	mask := fsmask.ISO9660 | fsmask.Joliet
	if !mask.Has(fsmask.ISO9660) || !mask.Has(fsmask.Joliet) {
		t.Fatal("expected both bits present")
	}
	if mask.Has(fsmask.UDF) {
		t.Fatal("did not expect UDF bit")
	}
	if !mask.HasAny(fsmask.Joliet | fsmask.UDF) {
		t.Fatal("expected HasAny to match on joliet")
	}
	if mask.HasAny(fsmask.UDF) {
		t.Fatal("expected HasAny false for udf only")
	}
}

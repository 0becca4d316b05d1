package volume_test

import (
	"testing"

	"scorch/internal/fsmask"
	"scorch/internal/volume"
)

func TestSanitizeStrictISO9660(t *testing.T) {
	got := volume.SanitizeFor("my backup disc 2026!", fsmask.ISO9660)
	if got != "MY_BACKUP_DISC_2" {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestSanitizeJolietKeepsCaseAndSpaces(t *testing.T) {
	got := volume.SanitizeFor("Photos 2026", fsmask.ISO9660|fsmask.Joliet)
	if got != "Photos 2026" {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestSanitizeUDFAllowsLongerLabels(t *testing.T) {
	in := "Family Archive January-February"
	got := volume.SanitizeFor(in, fsmask.UDF)
	if got != in {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestSanitizeEmptyFallsBackToDefault(t *testing.T) {
	if got := volume.SanitizeFor("   ", fsmask.ISO9660); got != volume.DefaultLabel {
		t.Fatalf("expected default label, got %q", got)
	}
	if got := volume.SanitizeFor("!!!", fsmask.ISO9660); got != volume.DefaultLabel {
		t.Fatalf("expected default label for all-invalid input, got %q", got)
	}
	if got := volume.SanitizeFor("___", fsmask.ISO9660); got != volume.DefaultLabel {
		t.Fatalf("expected default label for underscore-only input, got %q", got)
	}
}

func TestSanitizeCollapsesRepeatedUnderscores(t *testing.T) {
	got := volume.SanitizeFor("a!!!b", fsmask.ISO9660)
	if got != "A_B" {
		t.Fatalf("unexpected label: %q", got)
	}
}

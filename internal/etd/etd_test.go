package etd_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cu-library/etddepositor/internal/etd"
)

func TestMappedOrFlag(t *testing.T) {
	if got := etd.MappedValue("Master of Arts").OrFlag(); got != "Master of Arts" {
		t.Fatalf("OrFlag on known value: got %q", got)
	}
	var missing etd.Mapped
	if got := missing.OrFlag(); got != etd.FlagText {
		t.Fatalf("OrFlag on zero value: got %q want %q", got, etd.FlagText)
	}
}

func TestWithFilesCopiesList(t *testing.T) {
	original := []string{"thesis.pdf", "thesis-supplemental.zip"}
	data := etd.PackageData{Name: "100000000_1"}.WithFiles(original)

	original[0] = "mutated"
	if data.PackageFiles[0] != "thesis.pdf" {
		t.Fatalf("WithFiles shared the caller's slice: %v", data.PackageFiles)
	}
}

func TestIsPackageError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{etd.Metadataf("title tag is missing"), true},
		{etd.MissingFilef("no PDF in %s", "100000000_1"), true},
		{fmt.Errorf("resolve: %w", etd.ErrGetURLFailed), true},
		{errors.New("disk full"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := etd.IsPackageError(tc.err); got != tc.want {
			t.Fatalf("IsPackageError(%v) = %t, want %t", tc.err, got, tc.want)
		}
	}
}

func TestMetadatafWrapsSentinel(t *testing.T) {
	err := etd.Metadataf("the degree level %s is invalid", "9")
	if !errors.Is(err, etd.ErrMetadata) {
		t.Fatalf("expected ErrMetadata, got %v", err)
	}
	if want := "metadata error: the degree level 9 is invalid"; err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

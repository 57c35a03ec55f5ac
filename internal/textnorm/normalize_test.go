package textnorm

import "testing"

func TestNormalize_CollapsesWhitespaceRuns(t *testing.T) {
	out := Normalize("a   b\t\tc\n\nd", Options{CollapseWhitespace: true})
	if out != "a b c d" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestNormalize_NFKCFoldsCompatibilityForms(t *testing.T) {
	// U+FB01 LATIN SMALL LIGATURE FI decomposes to "fi" under NFKC.
	out := Normalize("ﬁle", Options{NormalizeUnicode: true})
	if out != "file" {
		t.Fatalf("expected ligature folded to 'file', got %q", out)
	}
}

func TestNormalize_Disabled(t *testing.T) {
	input := "a   b"
	out := Normalize(input, Options{})
	if out != input {
		t.Fatalf("expected passthrough when both options disabled, got %q", out)
	}
}

func TestNormalize_NeverTrims(t *testing.T) {
	out := Normalize("  leading and trailing  ", Options{CollapseWhitespace: true})
	if out != " leading and trailing " {
		t.Fatalf("expected leading/trailing single spaces preserved, got %q", out)
	}
}

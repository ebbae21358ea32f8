package fingerprint

import "testing"

func TestOf_CasePermutationsEqual(t *testing.T) {
	a := Of("Ethereum", "USDC", "WETH", "1000", ExactIn)
	b := Of("ethereum", "usdc", "weth", "1000", ExactIn)
	c := Of("ETHEREUM", "Usdc", "wEth", "1000", ExactIn)

	if a != b || b != c {
		t.Fatalf("expected equal fingerprints, got %q, %q, %q", a, b, c)
	}
}

func TestOf_DistinctTuplesDiffer(t *testing.T) {
	cases := []string{
		Of("ethereum", "usdc", "weth", "1000", ExactIn),
		Of("ethereum", "usdc", "weth", "2000", ExactIn),
		Of("ethereum", "usdc", "weth", "1000", ExactOut),
		Of("polygon", "usdc", "weth", "1000", ExactIn),
		Of("ethereum", "weth", "usdc", "1000", ExactIn),
	}

	seen := make(map[string]bool, len(cases))
	for _, fp := range cases {
		if seen[fp] {
			t.Fatalf("unexpected collision for fingerprint %q", fp)
		}
		seen[fp] = true
	}
}

func TestOf_Namespaced(t *testing.T) {
	fp := Of("ethereum", "usdc", "weth", "1000", ExactIn)
	want := "price:ethereum:usdc:weth:1000:exactin"
	if fp != want {
		t.Fatalf("got %q, want %q", fp, want)
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"", ExactIn, false},
		{"exactIn", ExactIn, false},
		{"exactOut", ExactOut, false},
		{"sideways", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDirection(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDirection(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDirection(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package whitelist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		want   string
		wantOk bool
	}{
		{"six-prefix is Shanghai", "600519", "600519.SH", true},
		{"zero-prefix is Shenzhen", "000001", "000001.SZ", true},
		{"three-prefix is Shenzhen", "300750", "300750.SZ", true},
		{"too short", "60051", "", false},
		{"too long", "6005190", "", false},
		{"non-digit", "60051A", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Classify(tc.in)
			if ok != tc.wantOk || got != tc.want {
				t.Fatalf("Classify(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOk)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		want   string
		wantOk bool
	}{
		{"bare code delegates to Classify", "600519", "600519.SH", true},
		{"uppercase suffix", "600519.SH", "600519.SH", true},
		{"lowercase suffix", "600519.sh", "600519.SH", true},
		{"mixed-case suffix", "000001.Sz", "000001.SZ", true},
		{"invalid suffix", "600519.XX", "", false},
		{"wrong code length with suffix", "60051.SH", "", false},
		{"bare code invalid", "abc", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Normalize(tc.in)
			if ok != tc.wantOk || got != tc.want {
				t.Fatalf("Normalize(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOk)
			}
		})
	}
}

func TestSetContainsDisabledMeansMonitorAll(t *testing.T) {
	s := Empty()
	if !s.Contains("600519.SH") {
		t.Fatal("empty set must match everything (monitor-all)")
	}
	if s.Enabled() {
		t.Fatal("empty set must report disabled")
	}
}

func TestLoadNormalizesMixedCaseKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "white_list.json")
	if err := os.WriteFile(path, []byte(`{"600519.sh": 1, "000001.Sz": 1, "300750": 1}`), 0o644); err != nil {
		t.Fatalf("write whitelist: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !set.Enabled() {
		t.Fatal("non-empty whitelist file must enable filtering")
	}
	for _, want := range []string{"600519.SH", "000001.SZ", "300750.SZ"} {
		if !set.Contains(want) {
			t.Fatalf("expected %s in loaded whitelist", want)
		}
	}
}

func TestLoadMissingFileDisablesFiltering(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "does_not_exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.Enabled() {
		t.Fatal("missing whitelist file must disable filtering, not error")
	}
}

package rating

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	artifact := `{"prefixes":["1","1212","44"],"rates":[10000,90000,50000]}`
	if err := os.WriteFile(path, []byte(artifact), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("loading table: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", table.Len())
	}
	if match, ok := table.LongestPrefixRate("442079460958"); !ok || match.RateMicroUSDPerMinute != 50_000 {
		t.Fatalf("expected UK rate, got %+v ok=%v", match, ok)
	}
}

func TestLoadTableErrors(t *testing.T) {
	if _, err := LoadTable(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadTable(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

package rating

import (
	"testing"

	"github.com/faxpilot/faxpilot-backend/pkg/config"
)

func mustTable(t *testing.T, prefixes []string, rates []int64) *Table {
	t.Helper()
	table, err := NewTable(prefixes, rates)
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	return table
}

func testEngine(t *testing.T, table *Table) *Engine {
	t.Helper()
	engine, err := NewEngine(table, config.RatingConfig{
		CreditValueMicroUSD:   70_000,
		DefaultCreditsPerPage: 1,
	})
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	return engine
}

func TestNormalizeDigits(t *testing.T) {
	cases := map[string]string{
		"+1 (212) 555-1234": "12125551234",
		"0044 20 7946 0958": "442079460958",
		"001212":            "1212",
		"abc":               "",
		"":                  "",
		"100":               "100",
	}
	for raw, want := range cases {
		if got := NormalizeDigits(raw); got != want {
			t.Errorf("NormalizeDigits(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNewTableRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		prefixes []string
		rates    []int64
	}{
		{"misaligned", []string{"1"}, []int64{10, 20}},
		{"unsorted", []string{"44", "1"}, []int64{10, 20}},
		{"duplicate", []string{"1", "1"}, []int64{10, 20}},
		{"empty prefix", []string{""}, []int64{10}},
		{"non-numeric", []string{"1a"}, []int64{10}},
		{"negative rate", []string{"1"}, []int64{-5}},
		{"too long", []string{"1234567890123456"}, []int64{10}},
	}
	for _, tc := range cases {
		if _, err := NewTable(tc.prefixes, tc.rates); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestLongestPrefixWins(t *testing.T) {
	table := mustTable(t,
		[]string{"1", "1212", "44"},
		[]int64{10_000, 90_000, 50_000},
	)

	match, ok := table.LongestPrefixRate("12125551234")
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Prefix != "1212" {
		t.Fatalf("expected longest prefix 1212, got %q", match.Prefix)
	}
	if match.RateMicroUSDPerMinute != 90_000 {
		t.Fatalf("expected rate 90000, got %d", match.RateMicroUSDPerMinute)
	}

	match, ok = table.LongestPrefixRate("13105551234")
	if !ok || match.Prefix != "1" {
		t.Fatalf("expected fallback to prefix 1, got %+v ok=%v", match, ok)
	}

	if _, ok := table.LongestPrefixRate("99912345"); ok {
		t.Fatal("expected no match for unknown destination")
	}
}

func TestLongestPrefixRateNilTable(t *testing.T) {
	var table *Table
	if _, ok := table.LongestPrefixRate("12125551234"); ok {
		t.Fatal("nil table must never match")
	}
	if table.Len() != 0 {
		t.Fatal("nil table has zero length")
	}
}

func TestDeriveNANPLRNPrefix(t *testing.T) {
	cases := []struct {
		name string
		info *PortabilityInfo
		want string
		ok   bool
	}{
		{"us ported", &PortabilityInfo{CountryCode: "US", LRN: "9195550100"}, "1919555", true},
		{"ca ported", &PortabilityInfo{CountryCode: "ca", LRN: "6045550100"}, "1604555", true},
		{"uk ignored", &PortabilityInfo{CountryCode: "GB", LRN: "2079460958"}, "", false},
		{"short lrn", &PortabilityInfo{CountryCode: "US", LRN: "919"}, "", false},
		{"formatted lrn", &PortabilityInfo{CountryCode: "US", LRN: "(919) 555-0100"}, "1919555", true},
		{"nil info", nil, "", false},
	}
	for _, tc := range cases {
		got, ok := DeriveNANPLRNPrefix(tc.info)
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCalculateRatePrefersLRNEvenWhenPricier(t *testing.T) {
	// Dialed NPANXX rates cheap, the ported carrier's rates expensive. The
	// LRN match must still be billed.
	table := mustTable(t,
		[]string{"1212555", "1919555"},
		[]int64{35_000, 210_000},
	)
	engine := testEngine(t, table)

	quote := engine.CalculateRate(&PortabilityInfo{CountryCode: "US", LRN: "9195550100"}, "12125551234")
	if quote.FailOpen {
		t.Fatal("unexpected fail-open")
	}
	if quote.LRNMatch == nil || quote.Billed != quote.LRNMatch {
		t.Fatalf("expected LRN match to be billed, got %+v", quote)
	}
	if quote.Billed.Prefix != "1919555" {
		t.Fatalf("expected billed prefix 1919555, got %q", quote.Billed.Prefix)
	}
	if quote.CreditsPerPage != 3 { // ceil(210000/70000)
		t.Fatalf("expected 3 credits/page, got %d", quote.CreditsPerPage)
	}
}

func TestCalculateRateFallsBackToDialed(t *testing.T) {
	table := mustTable(t, []string{"1212555"}, []int64{35_000})
	engine := testEngine(t, table)

	// LRN prefix is absent from the table; the dialed match funds the charge.
	quote := engine.CalculateRate(&PortabilityInfo{CountryCode: "US", LRN: "9195550100"}, "12125551234")
	if quote.LRNMatch != nil {
		t.Fatalf("expected no LRN match, got %+v", quote.LRNMatch)
	}
	if quote.Billed == nil || quote.Billed.Prefix != "1212555" {
		t.Fatalf("expected dialed match billed, got %+v", quote.Billed)
	}
	if quote.LRNPrefixUsed != "1919555" {
		t.Fatalf("expected derived LRN prefix recorded, got %q", quote.LRNPrefixUsed)
	}
	if quote.CreditsPerPage != 1 { // ceil(35000/70000) floors at one credit
		t.Fatalf("expected 1 credit/page, got %d", quote.CreditsPerPage)
	}
}

func TestCalculateRateFailsOpen(t *testing.T) {
	table := mustTable(t, []string{"44"}, []int64{140_000})
	engine := testEngine(t, table)

	quote := engine.CalculateRate(nil, "99912345678")
	if !quote.FailOpen {
		t.Fatal("expected fail-open quote")
	}
	if quote.CreditsPerPage != 1 {
		t.Fatalf("expected default credits/page, got %d", quote.CreditsPerPage)
	}
	if quote.CreditsForPages(3) != 3 {
		t.Fatalf("expected 3 credits for 3 pages, got %d", quote.CreditsForPages(3))
	}
}

func TestCalculateRateNilTableFailsOpen(t *testing.T) {
	engine := testEngine(t, nil)
	quote := engine.CalculateRate(&PortabilityInfo{CountryCode: "US", LRN: "9195550100"}, "12125551234")
	if !quote.FailOpen || quote.CreditsPerPage != 1 {
		t.Fatalf("expected fail-open default, got %+v", quote)
	}
}

func TestCreditsPerPageCeiling(t *testing.T) {
	engine := testEngine(t, nil)
	cases := map[int64]int{
		0:       1,
		1:       1,
		70_000:  1,
		70_001:  2,
		140_000: 2,
		350_000: 5,
	}
	for rate, want := range cases {
		if got := engine.creditsPerPage(rate); got != want {
			t.Errorf("creditsPerPage(%d) = %d, want %d", rate, got, want)
		}
	}
}

func TestCreditsForPagesClampsPageCount(t *testing.T) {
	quote := Quote{CreditsPerPage: 2}
	if got := quote.CreditsForPages(0); got != 2 {
		t.Fatalf("expected zero pages to bill as one, got %d", got)
	}
}

func TestRateUSDPerMinute(t *testing.T) {
	m := Match{RateMicroUSDPerMinute: 70_000}
	if got := m.RateUSDPerMinute().String(); got != "0.07" {
		t.Fatalf("expected 0.07, got %s", got)
	}
}

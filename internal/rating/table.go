package rating

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

const maxPrefixLen = 15

// Table is the immutable prefix-to-rate index. Prefixes are sorted
// lexicographically with rates aligned by index, matching the artifact
// produced by the rate pipeline. Rates are micro-USD per minute.
type Table struct {
	prefixes []string
	rates    []int64
}

type tableArtifact struct {
	Prefixes []string `json:"prefixes"`
	Rates    []int64  `json:"rates"`
}

// LoadTable reads and validates a rate-table artifact from disk.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rate table: %w", err)
	}
	var artifact tableArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("decoding rate table: %w", err)
	}
	return NewTable(artifact.Prefixes, artifact.Rates)
}

// NewTable validates the parallel arrays and returns an immutable table.
func NewTable(prefixes []string, rates []int64) (*Table, error) {
	if len(prefixes) != len(rates) {
		return nil, fmt.Errorf("rate table misaligned: %d prefixes, %d rates", len(prefixes), len(rates))
	}
	for i, prefix := range prefixes {
		if prefix == "" || len(prefix) > maxPrefixLen {
			return nil, fmt.Errorf("rate table prefix %q at index %d out of range", prefix, i)
		}
		for _, r := range prefix {
			if r < '0' || r > '9' {
				return nil, fmt.Errorf("rate table prefix %q at index %d is not numeric", prefix, i)
			}
		}
		if i > 0 {
			switch strings.Compare(prefixes[i-1], prefix) {
			case 0:
				return nil, fmt.Errorf("rate table prefix %q duplicated", prefix)
			case 1:
				return nil, fmt.Errorf("rate table not sorted at index %d (%q > %q)", i, prefixes[i-1], prefix)
			}
		}
		if rates[i] < 0 {
			return nil, fmt.Errorf("rate table rate for %q is negative", prefix)
		}
	}

	table := &Table{
		prefixes: make([]string, len(prefixes)),
		rates:    make([]int64, len(rates)),
	}
	copy(table.prefixes, prefixes)
	copy(table.rates, rates)
	return table, nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.prefixes)
}

// LongestPrefixRate finds the longest prefix of digits present in the table
// and returns its rate in micro-USD per minute. The scan tries each candidate
// length from longest to shortest with an exact binary search, so a longer
// match always wins over a shorter one.
func (t *Table) LongestPrefixRate(digits string) (Match, bool) {
	if t == nil || len(t.prefixes) == 0 || digits == "" {
		return Match{}, false
	}
	max := len(digits)
	if max > maxPrefixLen {
		max = maxPrefixLen
	}
	for length := max; length >= 1; length-- {
		candidate := digits[:length]
		idx := sort.SearchStrings(t.prefixes, candidate)
		if idx < len(t.prefixes) && t.prefixes[idx] == candidate {
			return Match{Prefix: candidate, RateMicroUSDPerMinute: t.rates[idx]}, true
		}
	}
	return Match{}, false
}

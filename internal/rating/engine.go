package rating

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/faxpilot/faxpilot-backend/pkg/config"
)

const (
	nanpPrefix    = "1"
	lrnDigitsUsed = 6
)

var microUSDPerUSD = decimal.NewFromInt(1_000_000)

// Match is one resolved rate-table entry.
type Match struct {
	Prefix                string
	RateMicroUSDPerMinute int64
}

// RateUSDPerMinute converts the stored micro-USD rate to decimal USD.
func (m Match) RateUSDPerMinute() decimal.Decimal {
	return decimal.NewFromInt(m.RateMicroUSDPerMinute).Div(microUSDPerUSD)
}

// PortabilityInfo carries the carrier-lookup fields rating cares about.
type PortabilityInfo struct {
	CountryCode string
	LRN         string
}

// Quote is the per-call rating outcome. Billed points at whichever match
// funds the charge; CreditsPerPage is always usable, falling back to the
// configured default when no match exists (fail open).
type Quote struct {
	LRNPrefixUsed  string
	LRNMatch       *Match
	DialedMatch    *Match
	Billed         *Match
	CreditsPerPage int
	FailOpen       bool
}

// CreditsForPages returns the total quote for a page count.
func (q Quote) CreditsForPages(pages int) int {
	if pages < 1 {
		pages = 1
	}
	return q.CreditsPerPage * pages
}

// Engine rates destinations against the loaded table and converts USD rates
// into integer per-page credit costs.
type Engine struct {
	table                 *Table
	creditValueMicroUSD   int64
	defaultCreditsPerPage int
}

// NewEngine wires a rating engine. The table may be nil, in which case every
// quote fails open to the default per-page cost.
func NewEngine(table *Table, cfg config.RatingConfig) (*Engine, error) {
	if cfg.CreditValueMicroUSD <= 0 {
		return nil, fmt.Errorf("credit value must be positive")
	}
	if cfg.DefaultCreditsPerPage <= 0 {
		return nil, fmt.Errorf("default credits per page must be positive")
	}
	return &Engine{
		table:                 table,
		creditValueMicroUSD:   cfg.CreditValueMicroUSD,
		defaultCreditsPerPage: cfg.DefaultCreditsPerPage,
	}, nil
}

// DefaultCreditsPerPage exposes the fail-open cost.
func (e *Engine) DefaultCreditsPerPage() int {
	return e.defaultCreditsPerPage
}

// DeriveNANPLRNPrefix builds the "1"+NPANXX rating key for a ported North
// American number. It returns false when the lookup is not US/CA or the LRN
// has fewer than six digits.
func DeriveNANPLRNPrefix(info *PortabilityInfo) (string, bool) {
	if info == nil {
		return "", false
	}
	switch strings.ToUpper(strings.TrimSpace(info.CountryCode)) {
	case "US", "CA":
	default:
		return "", false
	}
	lrn := NormalizeDigits(info.LRN)
	if len(lrn) < lrnDigitsUsed {
		return "", false
	}
	return nanpPrefix + lrn[:lrnDigitsUsed], true
}

// CalculateRate computes the billable match for a dialed number. The
// LRN-derived match is preferred whenever it exists, regardless of which rate
// is cheaper: portability determines the carrier actually billing us. The
// dialed-digits match is the fallback; when neither resolves, the quote fails
// open to the default per-page cost.
func (e *Engine) CalculateRate(info *PortabilityInfo, dialedDigits string) Quote {
	quote := Quote{}

	if prefix, ok := DeriveNANPLRNPrefix(info); ok {
		quote.LRNPrefixUsed = prefix
		if match, found := e.table.LongestPrefixRate(prefix); found {
			quote.LRNMatch = &match
		}
	}

	if match, found := e.table.LongestPrefixRate(dialedDigits); found {
		quote.DialedMatch = &match
	}

	switch {
	case quote.LRNMatch != nil:
		quote.Billed = quote.LRNMatch
	case quote.DialedMatch != nil:
		quote.Billed = quote.DialedMatch
	}

	if quote.Billed == nil {
		quote.FailOpen = true
		quote.CreditsPerPage = e.defaultCreditsPerPage
		return quote
	}

	quote.CreditsPerPage = e.creditsPerPage(quote.Billed.RateMicroUSDPerMinute)
	return quote
}

// creditsPerPage converts a micro-USD/minute rate to an integer credit cost:
// ceil(rate / creditValue), floored at one credit so no billable page is free.
func (e *Engine) creditsPerPage(rateMicroUSD int64) int {
	if rateMicroUSD <= 0 {
		return 1
	}
	credits := (rateMicroUSD + e.creditValueMicroUSD - 1) / e.creditValueMicroUSD
	if credits < 1 {
		credits = 1
	}
	return int(credits)
}

package lookup

import "time"

// Result is the cached carrier/portability record for a destination number.
// It is serialized as JSON into the shared cache, so field tags are part of
// the cache format.
type Result struct {
	PhoneNumber string    `json:"phone_number"`
	CountryCode string    `json:"country_code"`
	CarrierName string    `json:"carrier_name"`
	LineType    string    `json:"line_type"`
	Ported      bool      `json:"ported"`
	LRN         string    `json:"lrn"`
	SPID        string    `json:"spid,omitempty"`
	OCN         string    `json:"ocn,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

package enums

// UsageType classifies usage records. Fax delivery is the only producer today.
type UsageType string

const UsageTypeFax UsageType = "fax"

// IsValid reports whether the value is known.
func (t UsageType) IsValid() bool {
	return t == UsageTypeFax
}

// UsageUnitType names the unit a usage amount is measured in.
type UsageUnitType string

const UsageUnitTypePage UsageUnitType = "page"

// IsValid reports whether the value is known.
func (t UsageUnitType) IsValid() bool {
	return t == UsageUnitTypePage
}

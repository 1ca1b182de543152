// Package units provides canonical billable unit names and pluralization.
package units

import "strings"

// Unit represents a billable measure declared by item data or presets.
type Unit string

const (
	UnitHour    Unit = "hour"
	UnitDay     Unit = "day"
	UnitSession Unit = "session"
	UnitWord    Unit = "word"
	UnitArticle Unit = "article"
	UnitItem    Unit = "unit"
)

// DefaultUnit is used when neither the item nor the preset names one.
const DefaultUnit = UnitItem

// Singular normalizes a configured unit name to its singular form.
// Configuration may carry either form ("hours" or "hour").
func Singular(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return string(DefaultUnit)
	}
	return strings.TrimSuffix(s, "s")
}

// Plural returns the plural form of a singular unit name.
func Plural(name string) string {
	s := Singular(name)
	return s + "s"
}

// ForCount picks the unit form for a formatted count: a count rendering
// exactly "1" takes the singular form, every other count (including "0")
// takes the plural.
func ForCount(name, formattedCount string) string {
	if formattedCount == "1" {
		return Singular(name)
	}
	return Plural(name)
}

// QuantityAlias maps legacy item keys to their implied unit. Items written
// as "hours: 3" normalize to quantity 3 with unit "hour".
var QuantityAlias = map[string]Unit{
	"hours":    UnitHour,
	"sessions": UnitSession,
	"words":    UnitWord,
	"articles": UnitArticle,
}

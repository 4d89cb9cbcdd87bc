package entities

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ClientID identifies a client. Integer client codes are carried in their decimal string form.
type ClientID string

// ProductID identifies a product, normalized to upper case
type ProductID string

// BatchID identifies an inventory batch (lot), normalized to upper case
type BatchID string

// Location names a mill, port or client site
type Location string

var titleCaser = cases.Title(language.Und)

// NormalizeClientID trims the code and collapses integral numeric codes such as "18368.0"
// (a common spreadsheet export artifact) to "18368".
func NormalizeClientID(raw string) ClientID {
	s := strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) && strings.ContainsAny(s, ".eE") {
		return ClientID(strconv.FormatInt(int64(f), 10))
	}
	return ClientID(s)
}

// NormalizeProductID trims and upper-cases a product code
func NormalizeProductID(raw string) ProductID {
	return ProductID(strings.ToUpper(strings.TrimSpace(raw)))
}

// NormalizeBatchID trims and upper-cases a batch code
func NormalizeBatchID(raw string) BatchID {
	return BatchID(strings.ToUpper(strings.TrimSpace(raw)))
}

// NormalizeLocation trims and title-cases a location name
func NormalizeLocation(raw string) Location {
	return Location(NormalizeName(raw))
}

// NormalizeName trims and title-cases a descriptive name
func NormalizeName(raw string) string {
	return titleCaser.String(strings.TrimSpace(raw))
}

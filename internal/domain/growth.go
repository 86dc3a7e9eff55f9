package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// GrowthBase is the tier a growth rate was resolved from
type GrowthBase string

const (
	GrowthManual        GrowthBase = "manual_override"
	GrowthSKUTrend      GrowthBase = "sku_trend"
	GrowthNewSKU        GrowthBase = "new_sku"
	GrowthCategoryTrend GrowthBase = "category_trend"
	GrowthStatusFlag    GrowthBase = "growth_status"
	GrowthDefault       GrowthBase = "default"
)

// taggable bases accept the XYZ and seasonal suffixes
var taggableBases = map[GrowthBase]bool{
	GrowthSKUTrend:      true,
	GrowthNewSKU:        true,
	GrowthCategoryTrend: true,
	GrowthStatusFlag:    true,
}

const seasonalSuffix = "_seasonal"

// GrowthSource is the provenance of a resolved growth rate: a base tier,
// an optional XYZ volatility class and whether seasonality was folded in.
type GrowthSource struct {
	Base     GrowthBase
	XYZClass string
	Seasonal bool
}

// NewGrowthSource builds a source, dropping tags the base does not carry
func NewGrowthSource(base GrowthBase, xyzClass string, seasonal bool) GrowthSource {
	src := GrowthSource{Base: base}
	if !taggableBases[base] {
		return src
	}
	switch c := strings.ToUpper(strings.TrimSpace(xyzClass)); c {
	case "X", "Y", "Z":
		src.XYZClass = c
	}
	src.Seasonal = seasonal
	return src
}

func (s GrowthSource) String() string {
	var b strings.Builder
	b.WriteString(string(s.Base))
	if s.XYZClass != "" {
		b.WriteString("_")
		b.WriteString(s.XYZClass)
	}
	if s.Seasonal {
		b.WriteString(seasonalSuffix)
	}
	return b.String()
}

// ParseGrowthSource parses the string form produced by GrowthSource.String
func ParseGrowthSource(raw string) (GrowthSource, error) {
	raw = strings.TrimSpace(raw)
	switch GrowthBase(raw) {
	case GrowthManual, GrowthDefault:
		return GrowthSource{Base: GrowthBase(raw)}, nil
	}

	seasonal := strings.HasSuffix(raw, seasonalSuffix)
	rest := strings.TrimSuffix(raw, seasonalSuffix)

	for base := range taggableBases {
		prefix := string(base)
		if rest == prefix {
			return GrowthSource{Base: base, Seasonal: seasonal}, nil
		}
		if strings.HasPrefix(rest, prefix+"_") {
			class := strings.TrimPrefix(rest, prefix+"_")
			switch class {
			case "X", "Y", "Z":
				return GrowthSource{Base: base, XYZClass: class, Seasonal: seasonal}, nil
			}
		}
	}

	return GrowthSource{}, fmt.Errorf("unknown growth source %q", raw)
}

// AllGrowthSources enumerates every representable provenance value
func AllGrowthSources() []GrowthSource {
	out := []GrowthSource{{Base: GrowthManual}, {Base: GrowthDefault}}
	for _, base := range []GrowthBase{GrowthSKUTrend, GrowthNewSKU, GrowthCategoryTrend, GrowthStatusFlag} {
		for _, class := range []string{"", "X", "Y", "Z"} {
			for _, seasonal := range []bool{false, true} {
				out = append(out, GrowthSource{Base: base, XYZClass: class, Seasonal: seasonal})
			}
		}
	}
	return out
}

// MarshalText lets the source travel as a plain string in JSON
func (s GrowthSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *GrowthSource) UnmarshalText(text []byte) error {
	parsed, err := ParseGrowthSource(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value stores the source as its string form
func (s GrowthSource) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan reads the string form back from the database
func (s *GrowthSource) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		*s = GrowthSource{Base: GrowthDefault}
		return nil
	}
	return fmt.Errorf("cannot scan %T into GrowthSource", src)
}

// GrowthRate is the result of growth rate resolution
type GrowthRate struct {
	Rate         float64      `json:"rate"`
	Source       GrowthSource `json:"source"`
	ProvenDemand bool         `json:"proven_demand,omitempty"`
}

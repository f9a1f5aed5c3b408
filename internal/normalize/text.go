package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

var dashes = strings.NewReplacer(
	"\u2010", "-", "\u2011", "-", "\u2012", "-", "\u2013", "-",
	"\u2014", "-", "\u2015", "-", "\u2212", "-",
)

// Text folds s to NFKC, unifies dash variants to '-', collapses internal
// whitespace and trims.
func Text(s string) string {
	s = norm.NFKC.String(s)
	s = dashes.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

var numberNoise = strings.NewReplacer("$", "", ",", "")

// Number parses a scraped numeric cell such as "$1,234.50". Currency signs,
// thousands separators and whitespace are ignored.
func Number(s string) (float64, error) {
	s = strings.Join(strings.Fields(numberNoise.Replace(Text(s))), "")
	if s == "" {
		return 0, eris.New("empty")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("%q is not a number", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("%q is not finite", s)
	}
	return v, nil
}

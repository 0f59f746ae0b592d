// Package water maps free-text parameter names onto canonical water
// parameters and holds the ideal-range table.
package water

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/HerbHall/aquabot/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// synonyms is the single source of parameter names accepted by Normalize.
// Keys are folded (lower-case, no accents).
var synonyms = map[string]models.WaterParameter{
	"ph":            models.ParameterPH,
	"temperature":   models.ParameterTemperature,
	"temperatura":   models.ParameterTemperature,
	"turbidity":     models.ParameterTurbidity,
	"turbidez":      models.ParameterTurbidity,
	"tds":           models.ParameterTDS,
	"condutividade": models.ParameterTDS,
	"conductivity":  models.ParameterTDS,
}

// keyword is one entry of the looser free-text table. Word keywords must
// appear as a whole token; the rest match as substrings.
type keyword struct {
	text  string
	param models.WaterParameter
	word  bool
}

var keywords = []keyword{
	{text: "ph", param: models.ParameterPH, word: true},
	{text: "acidez", param: models.ParameterPH},
	{text: "alcalin", param: models.ParameterPH},
	{text: "temperatur", param: models.ParameterTemperature},
	{text: "°c", param: models.ParameterTemperature},
	{text: "graus", param: models.ParameterTemperature},
	{text: "celsius", param: models.ParameterTemperature},
	{text: "turbid", param: models.ParameterTurbidity},
	{text: "turvacao", param: models.ParameterTurbidity},
	{text: "turva", param: models.ParameterTurbidity},
	{text: "ntu", param: models.ParameterTurbidity, word: true},
	{text: "tds", param: models.ParameterTDS, word: true},
	{text: "ppm", param: models.ParameterTDS, word: true},
	{text: "condutividade", param: models.ParameterTDS},
	{text: "conductivity", param: models.ParameterTDS},
	{text: "solidos dissolvidos", param: models.ParameterTDS},
	{text: "dissolved solids", param: models.ParameterTDS},
}

var wordPatterns = compileWordPatterns()

func compileWordPatterns() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp)
	for _, k := range keywords {
		if k.word {
			out[k.text] = regexp.MustCompile(`(?:^|[^\pL\pN])(` + regexp.QuoteMeta(k.text) + `)(?:[^\pL\pN]|$)`)
		}
	}
	return out
}

// Fold lower-cases s, strips diacritics and trims surrounding space.
func Fold(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
		cases.Lower(language.Und),
	)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.TrimSpace(folded)
}

// Normalize maps a parameter name to its canonical value. Unknown names
// report false, meaning "unspecified".
func Normalize(name string) (models.WaterParameter, bool) {
	p, ok := synonyms[Fold(name)]
	return p, ok
}

// InferFromFreeText guesses the parameter a question talks about. When
// several keywords appear the earliest one in the text wins.
func InferFromFreeText(text string) (models.WaterParameter, bool) {
	folded := Fold(text)
	best := -1
	var found models.WaterParameter
	for _, k := range keywords {
		idx := indexOf(folded, k)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best {
			best = idx
			found = k.param
		}
	}
	return found, best >= 0
}

func indexOf(s string, k keyword) int {
	if !k.word {
		return strings.Index(s, k.text)
	}
	loc := wordPatterns[k.text].FindStringSubmatchIndex(s)
	if loc == nil {
		return -1
	}
	return loc[2]
}

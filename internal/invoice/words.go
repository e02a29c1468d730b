package invoice

import (
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

var (
	lvUnits    = []string{"", "viens", "divi", "trīs", "četri", "pieci", "seši", "septiņi", "astoņi", "deviņi"}
	lvTeens    = []string{"desmit", "vienpadsmit", "divpadsmit", "trīspadsmit", "četrpadsmit", "piecpadsmit", "sešpadsmit", "septiņpadsmit", "astoņpadsmit", "deviņpadsmit"}
	lvTens     = []string{"", "desmit", "divdesmit", "trīsdesmit", "četrdesmit", "piecdesmit", "sešdesmit", "septiņdesmit", "astoņdesmit", "deviņdesmit"}
	lvHundreds = []string{"", "simts", "divi simti", "trīs simti", "četri simti", "pieci simti", "seši simti", "septiņi simti", "astoņi simti", "deviņi simti"}
)

// lvScales run from the largest group down; one and many forms.
var lvScales = []struct {
	size      int64
	one, many string
}{
	{1_000_000_000, "miljards", "miljardi"},
	{1_000_000, "miljons", "miljoni"},
	{1_000, "tūkstotis", "tūkstoši"},
}

// LatvianWords spells a non-negative integer in Latvian, as printed on the
// legal invoice total line.
func LatvianWords(n int64) string {
	if n <= 0 {
		return "nulle"
	}
	var words []string
	for _, sc := range lvScales {
		if n < sc.size {
			continue
		}
		group := n / sc.size
		n %= sc.size
		if group != 1 {
			words = append(words, LatvianWords(group))
		}
		if group%10 == 1 && group%100 != 11 {
			words = append(words, sc.one)
		} else {
			words = append(words, sc.many)
		}
	}
	words = append(words, lvBelowThousand(n)...)
	return strings.Join(words, " ")
}

func lvBelowThousand(n int64) []string {
	var words []string
	if n >= 100 {
		words = append(words, lvHundreds[n/100])
		n %= 100
	}
	if n >= 20 {
		words = append(words, lvTens[n/10])
		n %= 10
	}
	switch {
	case n >= 10:
		words = append(words, lvTeens[n-10])
	case n > 0:
		words = append(words, lvUnits[n])
	}
	return words
}

// AmountInWords renders an amount as "<euros> eiro un <cents> centi".
func AmountInWords(c model.Cents) string {
	return LatvianWords(c.Euros()) + " eiro un " + LatvianWords(c.Fraction()) + " centi"
}

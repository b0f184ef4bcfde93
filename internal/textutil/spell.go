// Package textutil spells numbers and dates as English words for
// display surfaces that read transcripts aloud or render them without
// digits.
package textutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/divan/num2words"
)

// SpellNumber converts an integer to its English words form.
func SpellNumber(n int) string {
	return num2words.Convert(n)
}

var dayOrdinals = map[int]string{
	1: "first", 2: "second", 3: "third", 5: "fifth",
	8: "eighth", 9: "ninth", 12: "twelfth",
}

// SpellOrdinal converts a day-of-month style integer to an English
// ordinal ("21" -> "twenty-first").
func SpellOrdinal(n int) string {
	if s, ok := dayOrdinals[n]; ok {
		return s
	}
	words := num2words.Convert(n)
	if i := strings.LastIndexAny(words, " -"); i >= 0 {
		last := words[i+1:]
		if s, ok := ordinalFromCardinal(last); ok {
			return words[:i+1] + s
		}
	}
	if s, ok := ordinalFromCardinal(words); ok {
		return s
	}
	return words + "th"
}

func ordinalFromCardinal(word string) (string, bool) {
	switch word {
	case "one":
		return "first", true
	case "two":
		return "second", true
	case "three":
		return "third", true
	case "five":
		return "fifth", true
	case "eight":
		return "eighth", true
	case "nine":
		return "ninth", true
	case "twelve":
		return "twelfth", true
	}
	if strings.HasSuffix(word, "y") {
		return word[:len(word)-1] + "ieth", true
	}
	return "", false
}

// SpellDate renders a date as spoken English, e.g.
// "August twenty-eighth, twenty twenty-six".
func SpellDate(t time.Time) string {
	month := t.Month().String()
	day := SpellOrdinal(t.Day())
	return fmt.Sprintf("%s %s, %s", month, day, spellYear(t.Year()))
}

func spellYear(year int) string {
	if year >= 2000 && year < 2010 {
		return num2words.Convert(year)
	}
	if year >= 1000 && year < 10000 {
		high := year / 100
		low := year % 100
		if low == 0 {
			return num2words.Convert(high) + " hundred"
		}
		if low < 10 {
			return fmt.Sprintf("%s oh %s", num2words.Convert(high), num2words.Convert(low))
		}
		return fmt.Sprintf("%s %s", num2words.Convert(high), num2words.Convert(low))
	}
	return num2words.Convert(year)
}

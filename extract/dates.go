/*
 * CertWatch - Copyright (C) 2022 Zane van Iperen.
 *    Contact: zane@zanevaniperen.com
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package extract

import (
	"regexp"
	"time"
)

// Range is a certificate validity period.
type Range struct {
	Start time.Time
	End   time.Time
}

const datePattern = `(\d{1,2}\.\d{2}\.\d{4}(?:[^\S\n]+\d{1,2}:\d{2}:\d{2})?)`

var (
	reValidityStrict = regexp.MustCompile(`(?i)срок\s+действия\s+сертификата[^\n]*?(?:^|[^\p{L}])с\s+` + datePattern + `\s*(?:г\.?)?\s*по\s+` + datePattern)
	reValidityLoose  = regexp.MustCompile(`(?i)(?:^|[^\p{L}])с\s*` + datePattern + `[^0-9]{0,80}?(?:^|[^\p{L}])по\s*` + datePattern)
	reDateTime       = regexp.MustCompile(`\d{1,2}\.\d{2}\.\d{4}[^\S\n]+\d{1,2}:\d{2}:\d{2}`)
	reInnerSpace     = regexp.MustCompile(`[^\S\n]+`)
)

var dateLayouts = []string{
	"02.01.2006 15:04:05",
	"2.01.2006 15:04:05",
	"02.01.2006",
	"2.01.2006",
}

// ParseDate accepts dd.mm.yyyy with an optional HH:mm:ss time.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	s = reInnerSpace.ReplaceAllString(s, " ")
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func rangeFrom(start, end string, loc *time.Location) (Range, bool) {
	s, ok := ParseDate(start, loc)
	if !ok {
		return Range{}, false
	}

	e, ok := ParseDate(end, loc)
	if !ok {
		return Range{}, false
	}

	return Range{Start: s, End: e}, true
}

func rangeRegexp(re *regexp.Regexp, loc *time.Location) func(string) (Range, bool) {
	return func(text string) (Range, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return Range{}, false
		}
		return rangeFrom(m[1], m[2], loc)
	}
}

func rangeFirstTwo(loc *time.Location) func(string) (Range, bool) {
	return func(text string) (Range, bool) {
		m := reDateTime.FindAllString(text, 2)
		if len(m) < 2 {
			return Range{}, false
		}
		return rangeFrom(m[0], m[1], loc)
	}
}

// ValidityStrategies returns the date-range strategies for dates written
// in loc.
func ValidityStrategies(loc *time.Location) []Strategy[Range] {
	return []Strategy[Range]{
		{Name: "validity_sentence", Fn: rangeRegexp(reValidityStrict, loc)},
		{Name: "from_to", Fn: rangeRegexp(reValidityLoose, loc)},
		{Name: "first_two_timestamps", Fn: rangeFirstTwo(loc)},
	}
}

// Validity finds the validity period. Dates are interpreted in loc, or the
// local zone if loc is nil.
func Validity(body string, loc *time.Location) (Range, bool) {
	r, _, ok := First(normalizeText(body), ValidityStrategies(loc))
	return r, ok
}

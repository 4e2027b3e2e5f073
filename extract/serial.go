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
	"strings"
	"unicode"
)

var (
	reSerialFile    = regexp.MustCompile(`(?i)Файл\s+сертификата\s*№\s*([0-9A-F]+)`)
	reSerialCert    = regexp.MustCompile(`(?i)Сертификат\s*№\s*([0-9A-F]+)`)
	reSerialLongHex = regexp.MustCompile(`(?:^|[^0-9\p{L}])([0-9A-Fa-f]{20,})(?:$|[^0-9\p{L}])`)
)

// NormalizeSerial trims, drops inner whitespace and upper-cases a serial.
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

func serialFrom(re *regexp.Regexp) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return NormalizeSerial(m[1]), true
	}
}

var SerialStrategies = []Strategy[string]{
	{Name: "certificate_file", Fn: serialFrom(reSerialFile)},
	{Name: "certificate_number", Fn: serialFrom(reSerialCert)},
	{Name: "long_hex", Fn: serialFrom(reSerialLongHex)},
}

// subjectPattern builds the strict "<prefix> <hex>" subject template.
func subjectPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(normalizeText(prefix)) + `\s*([0-9A-Fa-f]+)\s*$`)
}

// MatchSubject reports whether subject is exactly the prefix followed by a
// hex serial, returning the normalized serial.
func MatchSubject(subject, prefix string) (string, bool) {
	return matchSubject(subjectPattern(prefix), subject)
}

func matchSubject(re *regexp.Regexp, subject string) (string, bool) {
	m := re.FindStringSubmatch(strings.TrimSpace(normalizeText(subject)))
	if m == nil {
		return "", false
	}
	return NormalizeSerial(m[1]), true
}

// Serial finds the certificate serial. A subject matching the template
// takes precedence over anything in the body.
func Serial(subject, prefix, body string) (string, bool) {
	if serial, ok := MatchSubject(subject, prefix); ok {
		return serial, true
	}

	serial, _, ok := First(normalizeText(body), SerialStrategies)
	return serial, ok
}

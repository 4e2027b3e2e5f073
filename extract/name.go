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
)

const maxNameWords = 3

var (
	// "ФИО: Иванов Иван Иванович." and the rest of the line after it.
	reNameLine = regexp.MustCompile(`(?m)ФИО[^\S\n]*(?::|-|–)?[^\S\n]*([^=:\-–\s][^\n]*)$`)
	// "ФИО:" alone at the end of a line, value on the next one.
	reNameEOL = regexp.MustCompile(`(?m)ФИО[^\S\n]*:?[^\S\n]*\n[^\S\n]*([^\n]+)$`)
	// "ФИО = Иванов Иван Иванович"
	reNameAssign = regexp.MustCompile(`ФИО[^\S\n]*=[^\S\n]*([^\n;]+)`)

	reNameWord = regexp.MustCompile(`\p{L}+(?:-\p{L}+)*`)
)

// nameStopMarkers end a name that runs into the next sentence of a
// single-line body.
var nameStopMarkers = []string{
	"Срок действия",
	"срок действия",
	"Серийный номер",
	"Сертификат",
	"сертификат",
	"Действителен",
	"Организация",
}

func truncateName(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	for _, m := range nameStopMarkers {
		if i := strings.Index(s, m); i >= 0 {
			s = s[:i]
		}
	}

	return strings.TrimSpace(s)
}

// reduceName keeps at most three word tokens. Trailing garbage after the
// patronymic is common and never part of the name.
func reduceName(s string) (string, bool) {
	words := reNameWord.FindAllString(s, maxNameWords)
	if len(words) == 0 {
		return "", false
	}
	return strings.Join(words, " "), true
}

func nameFrom(re *regexp.Regexp, truncate bool) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}

		v := m[1]
		if truncate {
			v = truncateName(v)
		}

		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	}
}

var NameStrategies = []Strategy[string]{
	{Name: "labelled_line", Fn: nameFrom(reNameLine, true)},
	{Name: "label_eol", Fn: nameFrom(reNameEOL, true)},
	{Name: "label_assign", Fn: nameFrom(reNameAssign, false)},
}

// Name finds the holder's full name. The first matching strategy wins;
// if what it found reduces to no words at all, there is no name.
func Name(body string) (string, bool) {
	raw, _, ok := First(normalizeText(body), NameStrategies)
	if !ok {
		return "", false
	}
	return reduceName(raw)
}

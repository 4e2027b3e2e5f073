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

package store

import (
	"strings"
	"unicode"
)

// homoglyphs maps Latin letters that render like Cyrillic ones, and ё,
// onto their Cyrillic canonical form.
var homoglyphs = strings.NewReplacer(
	"A", "А", "a", "а",
	"B", "В",
	"C", "С", "c", "с",
	"E", "Е", "e", "е",
	"H", "Н",
	"K", "К", "k", "к",
	"M", "М",
	"O", "О", "o", "о",
	"P", "Р", "p", "р",
	"T", "Т",
	"X", "Х", "x", "х",
	"Y", "У", "y", "у",
	"Ё", "Е", "ё", "е",
)

// NormalizeName produces the matching key for a holder's name: trimmed,
// single-spaced, homoglyph-folded and lower-cased.
func NormalizeName(name string) string {
	fields := strings.FieldsFunc(name, unicode.IsSpace)
	return strings.ToLower(homoglyphs.Replace(strings.Join(fields, " ")))
}

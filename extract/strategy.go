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

// Package extract pulls certificate facts out of notification mail.
//
// Every field is found by an ordered list of strategies. The first
// strategy that yields a value wins and the rest are not tried. All
// functions here are pure and safe for concurrent use.
package extract

import "strings"

// Strategy is one named way of finding a value in a text.
type Strategy[T any] struct {
	Name string
	Fn   func(text string) (T, bool)
}

// First runs the strategies in order and returns the first hit along with
// the name of the strategy that produced it.
func First[T any](text string, strategies []Strategy[T]) (T, string, bool) {
	for _, s := range strategies {
		if v, ok := s.Fn(text); ok {
			return v, s.Name, true
		}
	}

	var zero T
	return zero, "", false
}

var spaceReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u00a0", " ", // no-break space
	"\u2007", " ", // figure space
	"\u202f", " ", // narrow no-break space
	"\u2009", " ", // thin space
	"\t", " ",
)

// normalizeText folds the whitespace variants mail clients like to
// produce into plain spaces and newlines.
func normalizeText(s string) string {
	return spaceReplacer.Replace(s)
}

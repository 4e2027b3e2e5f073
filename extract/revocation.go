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

import "regexp"

var (
	// "сертификат № AB12 ... прекратил действие". The label makes short
	// serials safe to accept.
	reRevokeLabelled = regexp.MustCompile(`(?i)сертификат\p{L}*\s*№\s*([0-9A-F]+)(?:$|[^0-9\p{L}])`)
	// Label optional, at least 20 hex digits.
	reRevokeHex = regexp.MustCompile(`(?i)(?:^|[^0-9\p{L}])([0-9A-F]{20,})(?:$|[^0-9\p{L}])`)
)

var RevocationStrategies = []Strategy[string]{
	{Name: "labelled_number", Fn: serialFrom(reRevokeLabelled)},
	{Name: "long_hex", Fn: serialFrom(reRevokeHex)},
}

// RevocationSerial finds the serial of a revoked certificate. It is looser
// than Serial since revocation notices do not follow a subject template.
func RevocationSerial(body string) (string, bool) {
	serial, _, ok := First(normalizeText(body), RevocationStrategies)
	return serial, ok
}

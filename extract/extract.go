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

const DefaultSubjectPrefix = "Сертификат №"

// Fact is a certificate observation found in one message.
type Fact struct {
	Name   string
	Serial string
	Start  time.Time
	End    time.Time
}

// Usable reports whether every field required for reconciliation is set.
func (f Fact) Usable() bool {
	return f.Name != "" && f.Serial != "" && !f.Start.IsZero() && !f.End.IsZero()
}

type Extractor struct {
	SubjectPrefix string
	Location      *time.Location
	Archive       ArchiveMatcher

	subject *regexp.Regexp
}

func NewExtractor(prefix string, loc *time.Location, archive ArchiveMatcher) *Extractor {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	if loc == nil {
		loc = time.Local
	}

	return &Extractor{
		SubjectPrefix: prefix,
		Location:      loc,
		Archive:       archive,
		subject:       subjectPattern(prefix),
	}
}

// MatchSubject decides whether a message is a new-certificate candidate
// before its body is downloaded.
func (e *Extractor) MatchSubject(subject string) (string, bool) {
	return matchSubject(e.subject, subject)
}

// Extract builds a fact from a subject and a plain-text body. It returns
// false unless name, serial and both validity bounds were all found.
func (e *Extractor) Extract(subject, body string) (Fact, bool) {
	var f Fact

	serial, ok := e.MatchSubject(subject)
	if !ok {
		serial, _, ok = First(normalizeText(body), SerialStrategies)
	}
	if !ok {
		return f, false
	}
	f.Serial = serial

	if f.Name, ok = Name(body); !ok {
		return f, false
	}

	r, ok := Validity(body, e.Location)
	if !ok {
		return f, false
	}
	f.Start, f.End = r.Start, r.End

	return f, f.Usable()
}

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

package mailstore

import (
	"mime"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"
)

// Part is a leaf of a message's MIME tree, as described by BODYSTRUCTURE.
type Part struct {
	Path        []int
	MIMEType    string
	MIMESubType string
	Params      map[string]string
	Encoding    string
	Disposition string
	Filename    string
	Size        uint32
}

func (p Part) MediaType() string {
	return strings.ToLower(p.MIMEType + "/" + p.MIMESubType)
}

func (p Part) IsAttachment() bool {
	return strings.EqualFold(p.Disposition, "attachment")
}

func (p Part) IsText() bool {
	mt := p.MediaType()
	return mt == "text/plain" || mt == "text/html"
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

func partFilename(bs *imap.BodyStructure) string {
	raw, ok := bs.DispositionParams["filename"]
	if !ok {
		raw = bs.Params["name"]
	}

	name, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return name
}

// Parts flattens a body structure into its leaves without downloading
// anything. Nested multiparts are walked with an explicit stack, depth
// first, in document order. Encapsulated messages are not descended into.
func Parts(bs *imap.BodyStructure) []Part {
	if bs == nil {
		return nil
	}

	type item struct {
		bs   *imap.BodyStructure
		path []int
	}

	var parts []Part
	stack := []item{{bs: bs}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if strings.EqualFold(it.bs.MIMEType, "multipart") {
			for i := len(it.bs.Parts) - 1; i >= 0; i-- {
				path := make([]int, len(it.path), len(it.path)+1)
				copy(path, it.path)
				stack = append(stack, item{bs: it.bs.Parts[i], path: append(path, i+1)})
			}
			continue
		}

		path := it.path
		if len(path) == 0 {
			// A single-part message's body is part 1.
			path = []int{1}
		}

		parts = append(parts, Part{
			Path:        path,
			MIMEType:    it.bs.MIMEType,
			MIMESubType: it.bs.MIMESubType,
			Params:      it.bs.Params,
			Encoding:    it.bs.Encoding,
			Disposition: it.bs.Disposition,
			Filename:    partFilename(it.bs),
			Size:        it.bs.Size,
		})
	}

	return parts
}

// ArchiveParts returns the leaves of bs accepted by match, judged from the
// structure alone.
func ArchiveParts(bs *imap.BodyStructure, match func(Part) bool) []Part {
	var out []Part
	for _, p := range Parts(bs) {
		if p.IsText() && !p.IsAttachment() {
			continue
		}

		if match(p) {
			out = append(out, p)
		}
	}
	return out
}

func HasArchive(bs *imap.BodyStructure, match func(Part) bool) bool {
	return len(ArchiveParts(bs, match)) > 0
}

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
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	log "github.com/sirupsen/logrus"
)

// Search returns the sequence numbers in f matching filter, ascending.
func (s *Session) Search(f Folder, filter Filter) ([]uint32, error) {
	status, err := s.open(f)
	if err != nil {
		return nil, err
	}

	if status.Messages == 0 {
		return nil, nil
	}

	if filter.Kind == FilterSequenceGreaterThan && status.Messages <= filter.Seq {
		return nil, nil
	}

	seqs, err := s.c.Search(filter.criteria())
	if err != nil {
		return nil, s.wrap(fmt.Errorf("searching %q: %w", f.Name, err))
	}

	out := seqs[:0]
	for _, seq := range seqs {
		if filter.accept(seq) {
			out = append(out, seq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	s.log.WithFields(log.Fields{
		"folder": f.Name,
		"filter": filter.String(),
		"count":  len(out),
	}).Debug("mailstore_search")
	return out, nil
}

// readMessages collects a fetch, dropping duplicate responses for the
// same message. Results are in sequence order.
func readMessages(ch chan *imap.Message) []*imap.Message {
	unique := map[uint32]*imap.Message{}
	for msg := range ch {
		unique[msg.SeqNum] = msg
	}

	msgs := make([]*imap.Message, 0, len(unique))
	for _, msg := range unique {
		msgs = append(msgs, msg)
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SeqNum < msgs[j].SeqNum })
	return msgs
}

func (s *Session) fetch(f Folder, seqset *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, uint32, error) {
	status, err := s.open(f)
	if err != nil {
		return nil, 0, err
	}

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- s.c.Fetch(seqset, items, ch) }()

	msgs := readMessages(ch)
	if err := <-done; err != nil {
		return nil, 0, s.wrap(fmt.Errorf("fetching %v from %q: %w", seqset, f.Name, err))
	}

	return msgs, status.UidValidity, nil
}

func (s *Session) fetchOne(f Folder, seq uint32, items []imap.FetchItem) (*imap.Message, uint32, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seq)

	msgs, uidValidity, err := s.fetch(f, seqset, items)
	if err != nil {
		return nil, 0, err
	}

	for _, msg := range msgs {
		if msg.SeqNum == seq {
			return msg, uidValidity, nil
		}
	}

	return nil, 0, fmt.Errorf("%q seq %v: %w", f.Name, seq, ErrNoSuchMessage)
}

// FetchSummaries returns subject, dates and structure for each message.
func (s *Session) FetchSummaries(f Folder, seqs []uint32) ([]Summary, error) {
	if len(seqs) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqs...)

	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchBodyStructure}
	msgs, uidValidity, err := s.fetch(f, seqset, items)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(msgs))
	for _, msg := range msgs {
		summaries = append(summaries, summaryFromMessage(msg, uidValidity))
	}
	return summaries, nil
}

// FetchFull downloads and parses the entire message.
func (s *Session) FetchFull(f Folder, seq uint32) (*FullMessage, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid, imap.FetchEnvelope}

	msg, _, err := s.fetchOne(f, seq, items)
	if err != nil {
		return nil, err
	}

	lit := msg.GetBody(section)
	if lit == nil {
		return nil, fmt.Errorf("%q seq %v: server returned no body", f.Name, seq)
	}

	full, err := parseMessage(lit)
	if err != nil {
		return nil, fmt.Errorf("parsing %q seq %v: %w", f.Name, seq, err)
	}

	full.SeqNum = seq
	if full.MessageID == "" && msg.Envelope != nil {
		full.MessageID = msg.Envelope.MessageId
	}

	return full, nil
}

// FetchText downloads only the inline text parts named by the summary's
// structure. Attachments are left on the server.
func (s *Session) FetchText(f Folder, sum Summary) (*FullMessage, error) {
	if sum.Structure == nil {
		return s.FetchFull(f, sum.SeqNum)
	}

	full := &FullMessage{
		SeqNum:    sum.SeqNum,
		MessageID: sum.MessageID,
		Subject:   sum.Subject,
		From:      sum.From,
		Date:      sum.Date,
	}

	var texts []Part
	var sections []*imap.BodySectionName
	var items []imap.FetchItem
	for _, p := range Parts(sum.Structure) {
		if !p.IsText() || p.IsAttachment() {
			continue
		}

		section := &imap.BodySectionName{BodyPartName: imap.BodyPartName{Path: p.Path}, Peek: true}
		texts = append(texts, p)
		sections = append(sections, section)
		items = append(items, section.FetchItem())
	}

	if len(items) == 0 {
		return full, nil
	}

	msg, _, err := s.fetchOne(f, sum.SeqNum, items)
	if err != nil {
		return nil, err
	}

	for i, p := range texts {
		lit := msg.GetBody(sections[i])
		if lit == nil {
			continue
		}

		b, err := decodePart(p, lit)
		if err != nil {
			s.log.WithError(err).WithFields(log.Fields{
				"folder": f.Name,
				"seq":    sum.SeqNum,
				"part":   p.Path,
			}).Warn("mailstore_part_decode_failed")
			continue
		}

		if p.MediaType() == "text/html" {
			full.HTMLBody += string(b)
		} else {
			full.TextBody += string(b)
		}
	}

	return full, nil
}

// FetchPart downloads and decodes a single leaf part.
func (s *Session) FetchPart(f Folder, seq uint32, p Part) ([]byte, error) {
	section := &imap.BodySectionName{BodyPartName: imap.BodyPartName{Path: p.Path}, Peek: true}

	msg, _, err := s.fetchOne(f, seq, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return nil, err
	}

	lit := msg.GetBody(section)
	if lit == nil {
		return nil, fmt.Errorf("%q seq %v part %v: server returned no body", f.Name, seq, p.Path)
	}

	return decodePart(p, lit)
}

// decodePart undoes the transfer encoding and, for text, converts the
// charset to UTF-8.
func decodePart(p Part, r io.Reader) ([]byte, error) {
	var h message.Header
	h.SetContentType(p.MediaType(), p.Params)
	if p.Encoding != "" {
		h.Set("Content-Transfer-Encoding", p.Encoding)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	e, err := message.New(h, bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, err
	}

	return io.ReadAll(e.Body)
}

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
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
)

// Summary is what can be learned about a message without downloading it.
type Summary struct {
	SeqNum       uint32
	UID          uint32
	UIDValidity  uint32
	MessageID    string
	Subject      string
	From         string
	Date         time.Time
	InternalDate time.Time
	Structure    *imap.BodyStructure
}

// Key identifies the message across sessions: the Message-ID header when
// present, otherwise the UID qualified by the folder's UIDVALIDITY.
func (s Summary) Key() string {
	if id := strings.TrimSpace(s.MessageID); id != "" {
		return id
	}
	return fmt.Sprintf("uid:%d:%d", s.UIDValidity, s.UID)
}

type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
}

type FullMessage struct {
	SeqNum      uint32
	MessageID   string
	Subject     string
	From        string
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Body is the plain-text body, or the text of the HTML body if the
// message has no usable plain-text part.
func (m *FullMessage) Body() string {
	if strings.TrimSpace(m.TextBody) != "" {
		return m.TextBody
	}

	if m.HTMLBody == "" {
		return ""
	}
	return htmlToText(m.HTMLBody)
}

func summaryFromMessage(msg *imap.Message, uidValidity uint32) Summary {
	s := Summary{
		SeqNum:       msg.SeqNum,
		UID:          msg.Uid,
		UIDValidity:  uidValidity,
		InternalDate: msg.InternalDate,
		Structure:    msg.BodyStructure,
	}

	if env := msg.Envelope; env != nil {
		s.MessageID = env.MessageId
		s.Subject = env.Subject
		s.Date = env.Date
		if len(env.From) > 0 && env.From[0] != nil {
			s.From = env.From[0].Address()
		}
	}

	return s
}

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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
)

func parseMessage(r io.Reader) (*FullMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("creating mail reader: %w", err)
	}

	full := &FullMessage{}
	full.Subject, _ = mr.Header.Subject()
	if id, _ := mr.Header.MessageID(); id != "" {
		// Same form as the envelope, which keeps the angle brackets.
		full.MessageID = "<" + id + ">"
	}
	full.Date, _ = mr.Header.Date()

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		full.From = from[0].Address
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("reading part: %w", err)
		}

		if p == nil {
			continue
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("reading inline part: %w", err)
			}

			switch strings.ToLower(ct) {
			case "text/plain":
				full.TextBody += string(body)
			case "text/html":
				full.HTMLBody += string(body)
			default:
				// Inline non-text parts with a name are attachments in practice.
				_, params, _ := h.ContentType()
				if name := params["name"]; name != "" {
					full.Attachments = append(full.Attachments, Attachment{
						Filename:  name,
						MediaType: strings.ToLower(ct),
						Data:      body,
					})
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("reading attachment %q: %w", filename, err)
			}

			full.Attachments = append(full.Attachments, Attachment{
				Filename:  filename,
				MediaType: strings.ToLower(ct),
				Data:      body,
			})
		}
	}

	return full, nil
}

// htmlToText keeps the text nodes of an HTML document, breaking lines at
// block elements. Script and style content is dropped.
func htmlToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))

	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if tt == html.StartTagToken {
					skip++
				}
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "table":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "table":
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

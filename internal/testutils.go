package internal

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
)

func BuildTestIMAPServer(t *testing.T) (*server.Server, string, *memory.Mailbox) {
	s, address, mailboxes := BuildTestIMAPFolders(t)
	return s, address, mailboxes["INBOX"]
}

// BuildTestIMAPFolders starts an in-memory IMAP server whose user
// "username"/"password" owns an empty INBOX plus the named folders.
// Parents are not created implicitly.
func BuildTestIMAPFolders(t *testing.T, names ...string) (*server.Server, string, map[string]*memory.Mailbox) {
	be := memory.New()
	u, err := be.Login(nil, "username", "password")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	user := u.(*memory.User)
	for _, name := range names {
		if err := user.CreateMailbox(name); !assert.NoError(t, err) {
			t.FailNow()
		}
	}

	mailboxes := map[string]*memory.Mailbox{}
	for _, name := range append([]string{"INBOX"}, names...) {
		mb, err := user.GetMailbox(name)
		assert.NoError(t, err)
		if err != nil {
			t.FailNow()
		}

		mailbox := mb.(*memory.Mailbox)
		mailbox.Messages = nil
		mailboxes[name] = mailbox
	}

	s := server.New(be)
	t.Cleanup(func() { _ = s.Close() })

	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	go func() { _ = s.Serve(l) }()

	return s, l.Addr().String(), mailboxes
}

// AddTestMessage appends a raw message. Call it before any client connects.
func AddTestMessage(mbox *memory.Mailbox, date time.Time, raw []byte) *memory.Message {
	var uid uint32 = 1
	if n := len(mbox.Messages); n > 0 {
		uid = mbox.Messages[n-1].Uid + 1
	}

	msg := &memory.Message{
		Uid:   uid,
		Date:  date,
		Size:  uint32(len(raw)),
		Flags: []string{},
		Body:  raw,
	}
	mbox.Messages = append(mbox.Messages, msg)
	return msg
}

type TestAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type TestMessage struct {
	Subject     string
	From        string
	MessageID   string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []TestAttachment
}

func BuildTestMessage(t *testing.T, m TestMessage) []byte {
	var h mail.Header
	h.SetDate(m.Date)
	h.SetAddressList("From", []*mail.Address{{Address: m.From}})
	h.SetSubject(m.Subject)
	if m.MessageID != "" {
		h.SetMessageID(strings.Trim(m.MessageID, "<>"))
	}

	var buf bytes.Buffer

	if len(m.Attachments) == 0 && m.HTML == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		_, _ = io.WriteString(w, m.Text)
		assert.NoError(t, w.Close())
		return buf.Bytes()
	}

	mw, err := mail.CreateWriter(&buf, h)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	tw, err := mw.CreateInline()
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	writePart := func(contentType string, body string) {
		var ih mail.InlineHeader
		ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ih)
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		_, _ = io.WriteString(w, body)
		assert.NoError(t, w.Close())
	}

	if m.Text != "" {
		writePart("text/plain", m.Text)
	}

	if m.HTML != "" {
		writePart("text/html", m.HTML)
	}

	assert.NoError(t, tw.Close())

	for _, a := range m.Attachments {
		var ah mail.AttachmentHeader
		ah.Set("Content-Type", a.ContentType)
		ah.Set("Content-Transfer-Encoding", "base64")
		ah.SetFilename(a.Filename)

		w, err := mw.CreateAttachment(ah)
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		_, _ = w.Write(a.Data)
		assert.NoError(t, w.Close())
	}

	assert.NoError(t, mw.Close())
	return buf.Bytes()
}

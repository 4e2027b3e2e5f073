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
	"context"
	"errors"
	"fmt"
	"strings"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"
	log "github.com/sirupsen/logrus"

	"github.com/vs49688/certwatch/imap"
)

func init() {
	goimap.CharsetReader = charset.Reader
}

// Folder is a mailbox on the server.
type Folder struct {
	Name       string
	Delimiter  string
	Attributes []string
}

// Leaf is the last path component of the folder name.
func (f Folder) Leaf() string {
	return leafOf(f.Name, f.Delimiter)
}

const (
	attrNoSelect      = "\\Noselect"
	attrNoInferiors   = "\\Noinferiors"
	attrHasNoChildren = "\\HasNoChildren"
)

func (f Folder) hasAttr(attr string) bool {
	for _, a := range f.Attributes {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}

func (f Folder) Selectable() bool {
	return !f.hasAttr(attrNoSelect)
}

func (f Folder) mayHaveChildren() bool {
	return f.Delimiter != "" && !f.hasAttr(attrNoInferiors) && !f.hasAttr(attrHasNoChildren)
}

// Session is one authenticated connection to the mail server.
type Session struct {
	c        imap.Client
	ctx      context.Context
	hostPort string
	log      *log.Entry
}

// Dial connects and authenticates. Any failure is a *ConnectError. The
// session's connection is torn down once ctx is done.
func Dial(ctx context.Context, cfg *imap.ConnectionConfig, factory imap.ClientFactory, logger *log.Entry) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	ourCfg := *cfg
	ourCfg.Mailbox = ""

	c, err := factory.NewClient(&imap.ClientConfig{ConnectionConfig: ourCfg, Context: ctx})
	if err != nil {
		return nil, &ConnectError{HostPort: cfg.HostPort, Err: err}
	}

	logger.WithField("host", cfg.HostPort).Debug("mailstore_connected")
	s := NewSession(c, cfg.HostPort, logger)
	s.ctx = ctx
	return s, nil
}

func NewSession(c imap.Client, hostPort string, logger *log.Entry) *Session {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &Session{c: c, ctx: context.Background(), hostPort: hostPort, log: logger}
}

func (s *Session) Close() error {
	return s.c.Logout()
}

// alive fails once the session's context is done.
func (s *Session) alive() error {
	if err := s.ctx.Err(); err != nil {
		return &ConnectError{HostPort: s.hostPort, Err: err}
	}
	return nil
}

// wrap turns errors caused by a dead connection into a *ConnectError.
func (s *Session) wrap(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, imap.ErrNotConnected) || s.ctx.Err() != nil {
		return &ConnectError{HostPort: s.hostPort, Err: err}
	}

	select {
	case <-s.c.LoggedOut():
		return &ConnectError{HostPort: s.hostPort, Err: err}
	default:
		return err
	}
}

func (s *Session) list(ref string, pattern string) ([]Folder, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	ch := make(chan *goimap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() { done <- s.c.List(ref, pattern, ch) }()

	var folders []Folder
	for mi := range ch {
		folders = append(folders, Folder{
			Name:       mi.Name,
			Delimiter:  mi.Delimiter,
			Attributes: mi.Attributes,
		})
	}

	if err := <-done; err != nil {
		return nil, s.wrap(fmt.Errorf("listing %q: %w", pattern, err))
	}

	return folders, nil
}

func leafOf(name string, delimiter string) string {
	if delimiter == "" {
		return name
	}

	if i := strings.LastIndex(name, delimiter); i >= 0 {
		return name[i+len(delimiter):]
	}
	return name
}

// ResolveFolder looks the name up directly and, failing that, walks the
// whole folder tree for a folder whose full path or leaf name matches.
// Servers move and rename folders, so the configured name is a hint.
func (s *Session) ResolveFolder(name string) (Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, ErrFolderNotFound
	}

	direct, err := s.list("", name)
	if err != nil {
		return Folder{}, err
	}

	for _, f := range direct {
		if f.Name == name || strings.EqualFold(f.Name, name) {
			return f, nil
		}
	}

	stack, err := s.list("", "%")
	if err != nil {
		return Folder{}, err
	}
	reverseFolders(stack)

	seen := map[string]struct{}{}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}

		// The configured name is split with the server's own delimiter.
		if strings.EqualFold(f.Name, name) || strings.EqualFold(f.Leaf(), leafOf(name, f.Delimiter)) {
			s.log.WithFields(log.Fields{
				"wanted": name,
				"found":  f.Name,
			}).Info("mailstore_folder_resolved_by_search")
			return f, nil
		}

		if !f.mayHaveChildren() {
			continue
		}

		children, err := s.ListSubfolders(f)
		if err != nil {
			if IsConnectError(err) {
				return Folder{}, err
			}

			s.log.WithError(err).WithField("folder", f.Name).Warn("mailstore_list_children_failed")
			continue
		}

		reverseFolders(children)
		stack = append(stack, children...)
	}

	return Folder{}, fmt.Errorf("%q: %w", name, ErrFolderNotFound)
}

// ListSubfolders returns the direct children of f.
func (s *Session) ListSubfolders(f Folder) ([]Folder, error) {
	if f.Delimiter == "" {
		return nil, nil
	}

	children, err := s.list("", f.Name+f.Delimiter+"%")
	if err != nil {
		return nil, err
	}

	out := children[:0]
	for _, c := range children {
		if c.Name != f.Name {
			out = append(out, c)
		}
	}
	return out, nil
}

func reverseFolders(f []Folder) {
	for i, j := 0, len(f)-1; i < j; i, j = i+1, j-1 {
		f[i], f[j] = f[j], f[i]
	}
}

// open selects f read-only unless it is already selected.
func (s *Session) open(f Folder) (*goimap.MailboxStatus, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	if mb := s.c.Mailbox(); mb != nil && mb.Name == f.Name {
		return mb, nil
	}

	status, err := s.c.Select(f.Name, true)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("selecting %q: %w", f.Name, err))
	}

	s.log.WithFields(log.Fields{
		"folder":       f.Name,
		"num_messages": status.Messages,
		"uid_validity": status.UidValidity,
	}).Trace("mailstore_folder_selected")
	return status, nil
}

// MessageCount is the number of messages currently in f.
func (s *Session) MessageCount(f Folder) (uint32, error) {
	status, err := s.open(f)
	if err != nil {
		return 0, err
	}
	return status.Messages, nil
}

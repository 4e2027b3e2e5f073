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

// Package watcher reconciles certificate mail into the record store.
//
// NewCertWatcher handles issuance notices and RevocationWatcher handles
// revocation notices. Each run dials its own mail session, so the two may
// run at the same time.
package watcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vs49688/certwatch/imap"
	"github.com/vs49688/certwatch/mailstore"
	"github.com/vs49688/certwatch/store"
)

type Mode int

const (
	ModeIncremental Mode = iota
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeIncremental:
		return "incremental"
	case ModeFull:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "incremental":
		return ModeIncremental, nil
	case "full":
		return ModeFull, nil
	default:
		return 0, fmt.Errorf("invalid mode %q", s)
	}
}

// Mailbox is the part of a mail session the watchers need.
type Mailbox interface {
	ResolveFolder(name string) (mailstore.Folder, error)
	ListSubfolders(f mailstore.Folder) ([]mailstore.Folder, error)
	MessageCount(f mailstore.Folder) (uint32, error)
	Search(f mailstore.Folder, filter mailstore.Filter) ([]uint32, error)
	FetchSummaries(f mailstore.Folder, seqs []uint32) ([]mailstore.Summary, error)
	FetchText(f mailstore.Folder, sum mailstore.Summary) (*mailstore.FullMessage, error)
	FetchFull(f mailstore.Folder, seq uint32) (*mailstore.FullMessage, error)
	FetchPart(f mailstore.Folder, seq uint32, p mailstore.Part) ([]byte, error)
	Close() error
}

// Dialer opens a new mail session.
type Dialer func(ctx context.Context) (Mailbox, error)

// NewDialer dials cfg with factory for every run.
func NewDialer(cfg imap.ConnectionConfig, factory imap.ClientFactory, logger *log.Entry) Dialer {
	return func(ctx context.Context) (Mailbox, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := mailstore.Dial(ctx, &cfg, factory, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type Ledger interface {
	IsProcessed(ctx context.Context, folder, messageID string, kind store.Kind) (bool, error)
	MarkProcessed(ctx context.Context, folder, messageID string, kind store.Kind) error
}

// Report counts what one run did.
type Report struct {
	Pipeline      string
	Mode          Mode
	Folders       int
	FoldersFailed int
	Scanned       int
	Skipped       int
	NoFact        int
	Added         int
	Updated       int
	Unchanged     int
	Revoked       int
	Archives      int
	Errors        int
	Cancelled     bool
	Started       time.Time
	Finished      time.Time
}

func (r *Report) Fields() log.Fields {
	return log.Fields{
		"pipeline":       r.Pipeline,
		"mode":           r.Mode.String(),
		"folders":        r.Folders,
		"folders_failed": r.FoldersFailed,
		"scanned":        r.Scanned,
		"skipped":        r.Skipped,
		"no_fact":        r.NoFact,
		"added":          r.Added,
		"updated":        r.Updated,
		"unchanged":      r.Unchanged,
		"revoked":        r.Revoked,
		"archives":       r.Archives,
		"errors":         r.Errors,
		"cancelled":      r.Cancelled,
		"duration":       r.Finished.Sub(r.Started).String(),
	}
}

// abort marks the run cancelled when err came with a done context.
func (r *Report) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		r.Cancelled = true
	}
	return err
}

// walk visits root and every folder below it, depth first, using an
// explicit worklist. A folder whose children cannot be listed is still
// visited; only connection failures and cancellation stop the walk.
func walk(ctx context.Context, mb Mailbox, root mailstore.Folder, logger *log.Entry, visit func(mailstore.Folder) error) error {
	stack := []mailstore.Folder{root}
	seen := map[string]struct{}{}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}

		children, err := mb.ListSubfolders(f)
		if err != nil {
			if mailstore.IsConnectError(err) {
				return err
			}
			logger.WithError(err).WithField("folder", f.Name).Warn("watcher_list_subfolders_failed")
		}

		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}

		if !f.Selectable() {
			continue
		}

		if err := visit(f); err != nil {
			return err
		}
	}

	return nil
}

func messageDate(sum mailstore.Summary) time.Time {
	if !sum.Date.IsZero() {
		return sum.Date
	}
	return sum.InternalDate
}

const summaryBatch = 200

// summaries fetches summaries in batches so a huge folder does not become
// one enormous FETCH.
func summaries(mb Mailbox, f mailstore.Folder, seqs []uint32) ([]mailstore.Summary, error) {
	var out []mailstore.Summary
	for len(seqs) > 0 {
		n := len(seqs)
		if n > summaryBatch {
			n = summaryBatch
		}

		sums, err := mb.FetchSummaries(f, seqs[:n])
		if err != nil {
			return nil, err
		}

		out = append(out, sums...)
		seqs = seqs[n:]
	}
	return out, nil
}

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

package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vs49688/certwatch/extract"
	"github.com/vs49688/certwatch/mailstore"
	"github.com/vs49688/certwatch/store"
)

const DefaultWindow = 10 * 24 * time.Hour

type NewCertStore interface {
	Ledger
	Upsert(ctx context.Context, fact store.Fact) (store.UpsertResult, error)
	SaveArchive(ctx context.Context, recordID int64, data []byte, filename string) error
}

type NewCertConfig struct {
	// Folder is the root folder of issuance mail. Every folder below it is
	// scanned too.
	Folder string

	// Window is how far back an incremental run looks.
	Window time.Duration

	Extractor *extract.Extractor

	// Sites maps a folder, by full name or leaf name, to the site tag
	// given to records first seen there.
	Sites map[string]string

	Logger *log.Entry
}

type NewCertWatcher struct {
	cfg   NewCertConfig
	dial  Dialer
	store NewCertStore
	log   *log.Entry
	now   func() time.Time
}

func NewNewCertWatcher(cfg NewCertConfig, dial Dialer, st NewCertStore) *NewCertWatcher {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	if cfg.Extractor == nil {
		cfg.Extractor = extract.NewExtractor("", nil, extract.DefaultArchiveMatcher())
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &NewCertWatcher{
		cfg:   cfg,
		dial:  dial,
		store: st,
		log:   logger.WithField("pipeline", "newcert"),
		now:   time.Now,
	}
}

// pendingArchive is a message whose fact was reconciled and whose
// structure shows an archive, to be downloaded in the second pass.
type pendingArchive struct {
	sum      mailstore.Summary
	recordID int64
	part     *mailstore.Part
	data     []byte
	filename string
}

// Run scans the configured folder tree once. Connection failures and an
// unresolvable root folder abort the run; anything narrower is logged and
// skipped. A cancelled run returns its partial report and ctx's error.
func (w *NewCertWatcher) Run(ctx context.Context, mode Mode) (*Report, error) {
	report := &Report{Pipeline: "newcert", Mode: mode, Started: w.now()}
	defer func() {
		report.Finished = w.now()
		w.log.WithFields(report.Fields()).Info("newcert_run_finished")
	}()

	mb, err := w.dial(ctx)
	if err != nil {
		return report, report.abort(ctx, err)
	}
	defer func() { _ = mb.Close() }()

	root, err := mb.ResolveFolder(w.cfg.Folder)
	if err != nil {
		w.log.WithError(err).WithField("folder", w.cfg.Folder).Error("newcert_root_unresolved")
		return report, report.abort(ctx, err)
	}

	err = walk(ctx, mb, root, w.log, func(f mailstore.Folder) error {
		report.Folders++

		err := w.scanFolder(ctx, mb, f, mode, report)
		if err == nil || mailstore.IsConnectError(err) || ctx.Err() != nil {
			return err
		}

		report.FoldersFailed++
		w.log.WithError(err).WithField("folder", f.Name).Warn("newcert_folder_failed")
		return nil
	})

	if ctx.Err() != nil {
		report.Cancelled = true
		return report, ctx.Err()
	}
	return report, err
}

func (w *NewCertWatcher) filter(mode Mode) mailstore.Filter {
	if mode == ModeFull {
		return mailstore.All()
	}
	return mailstore.DeliveredAfter(w.now().Add(-w.cfg.Window))
}

func (w *NewCertWatcher) siteFor(f mailstore.Folder) string {
	if site, ok := w.cfg.Sites[f.Name]; ok {
		return site
	}

	for name, site := range w.cfg.Sites {
		if strings.EqualFold(name, f.Name) || strings.EqualFold(name, f.Leaf()) {
			return site
		}
	}
	return ""
}

func (w *NewCertWatcher) scanFolder(ctx context.Context, mb Mailbox, f mailstore.Folder, mode Mode, report *Report) error {
	logger := w.log.WithField("folder", f.Name)

	seqs, err := mb.Search(f, w.filter(mode))
	if err != nil {
		return err
	}

	if len(seqs) == 0 {
		return nil
	}

	sums, err := summaries(mb, f, seqs)
	if err != nil {
		return err
	}

	var pending []pendingArchive
	for _, sum := range sums {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := w.processMessage(ctx, mb, f, sum, mode, report, logger)
		if err != nil {
			if mailstore.IsConnectError(err) {
				return err
			}

			report.Errors++
			logger.WithError(err).WithFields(log.Fields{
				"seq":        sum.SeqNum,
				"message_id": sum.Key(),
			}).Warn("newcert_message_failed")
			continue
		}

		if p != nil {
			pending = append(pending, *p)
		}
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.saveArchive(ctx, mb, f, p); err != nil {
			if mailstore.IsConnectError(err) {
				return err
			}

			report.Errors++
			logger.WithError(err).WithFields(log.Fields{
				"seq": p.sum.SeqNum,
				"id":  p.recordID,
			}).Warn("newcert_archive_failed")
			continue
		}

		report.Archives++
	}

	return nil
}

// processMessage is the first pass for one message. Errors leave the
// message unmarked so the next scan retries it.
func (w *NewCertWatcher) processMessage(ctx context.Context, mb Mailbox, f mailstore.Folder, sum mailstore.Summary, mode Mode, report *Report, logger *log.Entry) (*pendingArchive, error) {
	if _, ok := w.cfg.Extractor.MatchSubject(sum.Subject); !ok {
		return nil, nil
	}

	report.Scanned++
	key := sum.Key()

	if mode == ModeIncremental {
		done, err := w.store.IsProcessed(ctx, f.Name, key, store.KindNew)
		if err != nil {
			return nil, err
		}

		if done {
			report.Skipped++
			return nil, nil
		}
	}

	msg, err := mb.FetchText(f, sum)
	if err != nil {
		return nil, err
	}

	fact, ok := w.cfg.Extractor.Extract(sum.Subject, msg.Body())
	if !ok {
		report.NoFact++
		logger.WithFields(log.Fields{
			"seq":        sum.SeqNum,
			"message_id": key,
			"subject":    sum.Subject,
		}).Info("newcert_no_fact")
		return nil, w.store.MarkProcessed(ctx, f.Name, key, store.KindNew)
	}

	res, err := w.store.Upsert(ctx, store.Fact{
		Name:        fact.Name,
		Serial:      fact.Serial,
		Start:       fact.Start,
		End:         fact.End,
		Site:        w.siteFor(f),
		Folder:      f.Name,
		MessageID:   key,
		MessageDate: messageDate(sum),
		Sender:      sum.From,
		Subject:     sum.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciling %q: %w", fact.Serial, err)
	}

	switch {
	case res.Added:
		report.Added++
	case res.Updated:
		report.Updated++
	default:
		report.Unchanged++
		logger.WithFields(log.Fields{
			"serial": fact.Serial,
			"id":     res.ID,
		}).Info("newcert_fact_not_newer")
	}

	if err := w.store.MarkProcessed(ctx, f.Name, key, store.KindNew); err != nil {
		return nil, err
	}

	if !res.Added && !res.Updated {
		return nil, nil
	}

	return w.findArchive(sum, msg, res.ID, fact.Serial), nil
}

func (w *NewCertWatcher) findArchive(sum mailstore.Summary, msg *mailstore.FullMessage, recordID int64, serial string) *pendingArchive {
	match := w.cfg.Extractor.Archive.Match

	if sum.Structure != nil {
		parts := mailstore.ArchiveParts(sum.Structure, func(p mailstore.Part) bool {
			return match(p.Filename, p.MediaType())
		})
		if len(parts) == 0 {
			return nil
		}

		return &pendingArchive{
			sum:      sum,
			recordID: recordID,
			part:     &parts[0],
			filename: archiveName(parts[0].Filename, serial, w.cfg.Extractor.Archive.Extension),
		}
	}

	// No structure: the message was downloaded whole already.
	for _, a := range msg.Attachments {
		if match(a.Filename, a.MediaType) {
			return &pendingArchive{
				sum:      sum,
				recordID: recordID,
				data:     a.Data,
				filename: archiveName(a.Filename, serial, w.cfg.Extractor.Archive.Extension),
			}
		}
	}
	return nil
}

func archiveName(filename, serial, ext string) string {
	if filename != "" {
		return filename
	}

	if ext == "" {
		ext = ".zip"
	}
	return serial + ext
}

func (w *NewCertWatcher) saveArchive(ctx context.Context, mb Mailbox, f mailstore.Folder, p pendingArchive) error {
	data := p.data
	if p.part != nil {
		var err error
		if data, err = mb.FetchPart(f, p.sum.SeqNum, *p.part); err != nil {
			return err
		}
	}

	if len(data) == 0 {
		return errors.New("empty archive")
	}

	return w.store.SaveArchive(ctx, p.recordID, data, p.filename)
}

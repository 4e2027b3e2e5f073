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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vs49688/certwatch/extract"
	"github.com/vs49688/certwatch/mailstore"
	"github.com/vs49688/certwatch/store"
)

type RevocationStore interface {
	Ledger
	Revoke(ctx context.Context, serial, folder string, at time.Time) (bool, error)
	Watermark(ctx context.Context, folder string) (uint32, error)
	SetWatermark(ctx context.Context, folder string, n uint32) error
	ResetWatermark(ctx context.Context, folder string) error
}

type RevocationConfig struct {
	// Folder is the root folder of revocation mail. Every folder below it
	// is scanned too.
	Folder string
	Logger *log.Entry
}

type RevocationWatcher struct {
	cfg   RevocationConfig
	dial  Dialer
	store RevocationStore
	log   *log.Entry
	now   func() time.Time
}

func NewRevocationWatcher(cfg RevocationConfig, dial Dialer, st RevocationStore) *RevocationWatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &RevocationWatcher{
		cfg:   cfg,
		dial:  dial,
		store: st,
		log:   logger.WithField("pipeline", "revocation"),
		now:   time.Now,
	}
}

// Run scans every folder from its watermark onwards, or from the start in
// full mode. Cancellation is checked before each message; the watermark
// still advances over the messages handled before it.
func (w *RevocationWatcher) Run(ctx context.Context, mode Mode) (*Report, error) {
	report := &Report{Pipeline: "revocation", Mode: mode, Started: w.now()}
	defer func() {
		report.Finished = w.now()
		w.log.WithFields(report.Fields()).Info("revocation_run_finished")
	}()

	mb, err := w.dial(ctx)
	if err != nil {
		return report, report.abort(ctx, err)
	}
	defer func() { _ = mb.Close() }()

	root, err := mb.ResolveFolder(w.cfg.Folder)
	if err != nil {
		w.log.WithError(err).WithField("folder", w.cfg.Folder).Error("revocation_root_unresolved")
		return report, report.abort(ctx, err)
	}

	err = walk(ctx, mb, root, w.log, func(f mailstore.Folder) error {
		report.Folders++

		err := w.scanFolder(ctx, mb, f, mode, report)
		if err == nil || mailstore.IsConnectError(err) || ctx.Err() != nil {
			return err
		}

		report.FoldersFailed++
		w.log.WithError(err).WithField("folder", f.Name).Warn("revocation_folder_failed")
		return nil
	})

	if ctx.Err() != nil {
		report.Cancelled = true
		return report, ctx.Err()
	}
	return report, err
}

func (w *RevocationWatcher) scanFolder(ctx context.Context, mb Mailbox, f mailstore.Folder, mode Mode, report *Report) error {
	logger := w.log.WithField("folder", f.Name)

	watermark, err := w.store.Watermark(ctx, f.Name)
	if err != nil {
		return err
	}

	count, err := mb.MessageCount(f)
	if err != nil {
		return err
	}

	if count < watermark {
		// Expunged below the watermark; sequence numbers were reused. The
		// ledger keeps the rescan from reapplying anything.
		logger.WithFields(log.Fields{
			"watermark": watermark,
			"count":     count,
		}).Warn("revocation_watermark_reset")

		if err := w.store.ResetWatermark(ctx, f.Name); err != nil {
			return err
		}
		watermark = 0
	}

	filter := mailstore.SequenceGreaterThan(watermark)
	if mode == ModeFull {
		filter = mailstore.All()
	}

	seqs, err := mb.Search(f, filter)
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

	// Every message looked at counts as seen, failed ones included. They
	// are left out of the ledger, so a full scan picks them up again.
	seen := watermark

	defer func() {
		if seen <= watermark {
			return
		}

		if err := w.store.SetWatermark(context.WithoutCancel(ctx), f.Name, seen); err != nil {
			logger.WithError(err).Error("revocation_watermark_save_failed")
			return
		}
		logger.WithField("watermark", seen).Debug("revocation_watermark_saved")
	}()

	for _, sum := range sums {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.processMessage(ctx, mb, f, sum, report, logger); err != nil {
			if mailstore.IsConnectError(err) || ctx.Err() != nil {
				return err
			}

			report.Errors++
			logger.WithError(err).WithFields(log.Fields{
				"seq":        sum.SeqNum,
				"message_id": sum.Key(),
			}).Warn("revocation_message_failed")
		}

		if sum.SeqNum > seen {
			seen = sum.SeqNum
		}
	}

	return nil
}

func (w *RevocationWatcher) processMessage(ctx context.Context, mb Mailbox, f mailstore.Folder, sum mailstore.Summary, report *Report, logger *log.Entry) error {
	key := sum.Key()

	done, err := w.store.IsProcessed(ctx, f.Name, key, store.KindRevoke)
	if err != nil {
		return err
	}

	if done {
		report.Skipped++
		return nil
	}

	report.Scanned++

	msg, err := mb.FetchFull(f, sum.SeqNum)
	if err != nil {
		return err
	}

	serial, ok := extract.RevocationSerial(msg.Body())
	if !ok {
		report.NoFact++
		logger.WithFields(log.Fields{
			"seq":        sum.SeqNum,
			"message_id": key,
		}).Debug("revocation_no_serial")
	} else {
		at := messageDate(sum)
		if at.IsZero() {
			at = w.now()
		}

		applied, err := w.store.Revoke(ctx, serial, f.Name, at)
		if err != nil {
			return err
		}

		if applied {
			report.Revoked++
		}

		logger.WithFields(log.Fields{
			"seq":     sum.SeqNum,
			"serial":  serial,
			"applied": applied,
		}).Info("revocation_matched")
	}

	return w.store.MarkProcessed(ctx, f.Name, key, store.KindRevoke)
}

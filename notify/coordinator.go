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

package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vs49688/certwatch/store"
)

const DefaultThreshold = 30

type Config struct {
	// Sites maps a site tag to the recipients of its expiry notices. The
	// union of every list receives new-user notices.
	Sites map[string][]string

	// Threshold is the largest days-left value that counts as expiring.
	Threshold int

	// Location decides where calendar days begin. Defaults to time.Local.
	Location *time.Location

	Logger *log.Entry
}

type Coordinator struct {
	cfg     Config
	records RecordSource
	state   SuppressionState
	sender  Sender
	log     *log.Entry

	// mu covers the read-modify-write of state for a whole batch.
	mu sync.Mutex
}

func NewCoordinator(cfg Config, records RecordSource, state SuppressionState, sender Sender) *Coordinator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}

	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &Coordinator{
		cfg:     cfg,
		records: records,
		state:   state,
		sender:  sender,
		log:     logger.WithField("component", "notify"),
	}
}

// Outcome counts what one notification pass did.
type Outcome struct {
	Batches    int
	Delivered  int
	Failed     int
	Suppressed int
	Unrouted   int
}

func (o *Outcome) add(other Outcome) {
	o.Batches += other.Batches
	o.Delivered += other.Delivered
	o.Failed += other.Failed
	o.Suppressed += other.Suppressed
	o.Unrouted += other.Unrouted
}

func (o Outcome) Fields() log.Fields {
	return log.Fields{
		"batches":    o.Batches,
		"delivered":  o.Delivered,
		"failed":     o.Failed,
		"suppressed": o.Suppressed,
		"unrouted":   o.Unrouted,
	}
}

// NotifyExpiring sends one message per site listing the current records
// that expire within the threshold and were not yet notified today.
func (c *Coordinator) NotifyExpiring(ctx context.Context, now time.Time) (Outcome, error) {
	var out Outcome

	records, err := c.records.LoadAll(ctx, false, "")
	if err != nil {
		return out, err
	}

	bySite := map[string][]store.Record{}
	for _, r := range records {
		if !r.Current() {
			continue
		}

		if d := r.DaysLeft(now); d <= 0 || d > c.cfg.Threshold {
			continue
		}

		bySite[r.Site] = append(bySite[r.Site], r)
	}

	sites := make([]string, 0, len(bySite))
	for site := range bySite {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		group := bySite[site]

		recipients := c.cfg.Sites[site]
		if len(recipients) == 0 {
			out.Unrouted += len(group)
			c.log.WithFields(log.Fields{
				"site":    site,
				"records": len(group),
			}).Warn("notify_site_without_recipients")
			continue
		}

		sort.SliceStable(group, func(i, j int) bool {
			di, dj := group[i].DaysLeft(now), group[j].DaysLeft(now)
			if di != dj {
				return di < dj
			}
			return group[i].Name < group[j].Name
		})

		res, err := c.sendBatch(ctx, ReasonExpiring, recipients, group, now, func(rs []store.Record) (string, error) {
			return expiringText(site, rs, now, c.cfg.Location)
		})
		out.add(res)
		if err != nil {
			return out, err
		}
	}

	c.log.WithFields(out.Fields()).Debug("notify_expiring_done")
	return out, nil
}

// NotifyNewUsers sends one message to every configured recipient listing
// the records added since the given time.
func (c *Coordinator) NotifyNewUsers(ctx context.Context, since time.Time, now time.Time) (Outcome, error) {
	var out Outcome

	records, err := c.records.LoadAddedAfter(ctx, since)
	if err != nil {
		return out, err
	}

	if len(records) == 0 {
		return out, nil
	}

	recipients := c.allRecipients()
	if len(recipients) == 0 {
		out.Unrouted = len(records)
		c.log.WithField("records", len(records)).Warn("notify_no_recipients")
		return out, nil
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	out, err = c.sendBatch(ctx, ReasonNewUser, recipients, records, now, func(rs []store.Record) (string, error) {
		return newUserText(rs, c.cfg.Location)
	})

	c.log.WithFields(out.Fields()).Debug("notify_newusers_done")
	return out, err
}

func (c *Coordinator) allRecipients() []string {
	seen := map[string]struct{}{}
	var out []string

	for _, list := range c.cfg.Sites {
		for _, r := range list {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}

	sort.Strings(out)
	return out
}

// sendBatch drops the entities already notified today, composes one
// message for the rest and, only if the sender accepts it, records them
// as notified. Must be called with c.mu held.
func (c *Coordinator) sendBatch(ctx context.Context, reason Reason, recipients []string, records []store.Record, now time.Time, compose func([]store.Record) (string, error)) (Outcome, error) {
	var out Outcome

	eligible := make([]store.Record, 0, len(records))
	for _, r := range records {
		if last, ok := c.state.Get(Key{Reason: reason, Entity: entityOf(r)}); ok && sameDay(last, now, c.cfg.Location) {
			out.Suppressed++
			continue
		}
		eligible = append(eligible, r)
	}

	if len(eligible) == 0 {
		return out, nil
	}

	text, err := compose(eligible)
	if err != nil {
		return out, err
	}

	out.Batches++

	logger := c.log.WithFields(log.Fields{
		"reason":     reason,
		"recipients": len(recipients),
		"entities":   len(eligible),
	})

	if !c.sender.Send(ctx, recipients, text) {
		out.Failed += len(eligible)
		logger.Warn("notify_send_failed")
		return out, nil
	}

	for _, r := range eligible {
		c.state.Set(Key{Reason: reason, Entity: entityOf(r)}, now)
	}
	out.Delivered += len(eligible)
	logger.Info("notify_sent")

	if err := c.state.Flush(ctx); err != nil {
		logger.WithError(err).Error("notify_state_flush_failed")
		return out, err
	}
	return out, nil
}

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
	"time"

	"github.com/emersion/go-imap"
)

type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterDeliveredAfter
	FilterSequenceGreaterThan
)

// Filter selects which messages of a folder Search returns.
type Filter struct {
	Kind  FilterKind
	After time.Time
	Seq   uint32
}

func All() Filter {
	return Filter{Kind: FilterAll}
}

// DeliveredAfter matches on the server's internal date. IMAP SINCE has
// day granularity, so messages from earlier on the same day are included.
func DeliveredAfter(t time.Time) Filter {
	return Filter{Kind: FilterDeliveredAfter, After: t}
}

func SequenceGreaterThan(n uint32) Filter {
	return Filter{Kind: FilterSequenceGreaterThan, Seq: n}
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterAll:
		return "all"
	case FilterDeliveredAfter:
		return fmt.Sprintf("delivered_after(%v)", f.After.Format("2006-01-02"))
	case FilterSequenceGreaterThan:
		return fmt.Sprintf("seq_gt(%v)", f.Seq)
	default:
		return "invalid"
	}
}

func (f Filter) criteria() *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	switch f.Kind {
	case FilterDeliveredAfter:
		c.Since = f.After
	case FilterSequenceGreaterThan:
		c.SeqNum = new(imap.SeqSet)
		c.SeqNum.AddRange(f.Seq+1, 0)
	}
	return c
}

// accept drops results the server returns for the "n:*" edge case, where
// "*" is smaller than n and the range is read backwards.
func (f Filter) accept(seq uint32) bool {
	if f.Kind == FilterSequenceGreaterThan {
		return seq > f.Seq
	}
	return true
}

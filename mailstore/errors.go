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
)

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrNoSuchMessage  = errors.New("no such message")
)

// ConnectError is returned when the mail server cannot be reached or
// refuses the credentials. Callers abort the whole cycle on it.
type ConnectError struct {
	HostPort string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %v: %v", e.HostPort, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

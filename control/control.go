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

// Package control serves a line-oriented command socket for a running
// daemon. Each connection carries one request line and one response line.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	CmdFastCheck = "FAST_CHECK"

	RespOK      = "OK"
	RespError   = "ERROR"
	RespUnknown = "UNKNOWN"
)

const (
	maxRequest  = 256
	readTimeout = 10 * time.Second
)

// FastCheckFunc runs, or joins, an immediate check and reports how it went.
type FastCheckFunc func(ctx context.Context) error

type Server struct {
	path      string
	fastCheck FastCheckFunc
	listener  net.Listener
	log       *log.Entry

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Listen binds the socket at path. A stale socket left by an earlier
// process is removed first; any other file there is an error.
func Listen(path string, fastCheck FastCheckFunc, logger *log.Entry) (*Server, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("%v exists and is not a socket", path)
		}

		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	if err := os.Chmod(path, 0o600); err != nil {
		_ = l.Close()
		return nil, err
	}

	return &Server{
		path:      path,
		fastCheck: fastCheck,
		listener:  l,
		log:       logger.WithField("socket", path),
	}, nil
}

func (s *Server) Path() string {
	return s.path
}

// Serve accepts connections until ctx is done or Close is called, then
// waits for the requests in flight.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.log.Info("control_listening")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()

			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.listener.Close()
	})
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	line, err := bufio.NewReader(io.LimitReader(conn, maxRequest)).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		s.log.WithError(err).Debug("control_read_failed")
		return
	}

	cmd := strings.TrimSpace(line)
	resp := s.dispatch(ctx, cmd)

	s.log.WithFields(log.Fields{
		"command":  cmd,
		"response": resp,
	}).Info("control_request")

	_ = conn.SetWriteDeadline(time.Now().Add(readTimeout))
	if _, err := io.WriteString(conn, resp+"\n"); err != nil {
		s.log.WithError(err).Debug("control_write_failed")
	}
}

func (s *Server) dispatch(ctx context.Context, cmd string) string {
	switch cmd {
	case CmdFastCheck:
		if err := s.fastCheck(ctx); err != nil {
			return RespError + " " + oneLine(err.Error())
		}
		return RespOK
	default:
		return RespUnknown
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Send issues one command and returns the response line.
func Send(ctx context.Context, path string, cmd string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, cmd+"\n"); err != nil {
		return "", err
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// FastCheck asks the daemon at path for an immediate check.
func FastCheck(ctx context.Context, path string) error {
	resp, err := Send(ctx, path, CmdFastCheck)
	if err != nil {
		return err
	}

	switch {
	case resp == RespOK:
		return nil
	case strings.HasPrefix(resp, RespError):
		return errors.New(strings.TrimSpace(strings.TrimPrefix(resp, RespError)))
	default:
		return fmt.Errorf("unexpected response %q", resp)
	}
}

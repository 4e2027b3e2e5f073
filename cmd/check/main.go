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

package check

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vs49688/certwatch/cmd/config"
	"github.com/vs49688/certwatch/control"
)

type checkConfig struct {
	Log           config.LogConfig
	ControlSocket string
	Timeout       time.Duration
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &checkConfig{}

	flags := cfg.Log.Parameters()
	flags = append(flags,
		&cli.StringFlag{
			Name:        "control-socket",
			Usage:       "path of the daemon's control socket",
			EnvVars:     []string{"CERTWATCH_CONTROL_SOCKET"},
			Destination: &cfg.ControlSocket,
			Value:       config.DefaultControlSocket,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "how long to wait for the check to finish",
			EnvVars:     []string{"CERTWATCH_CHECK_TIMEOUT"},
			Destination: &cfg.Timeout,
			Value:       10 * time.Minute,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "check",
		Usage:  "Ask a running daemon to check the mailbox now",
		Flags:  flags,
		Action: func(context *cli.Context) error { return check(context, cfg) },
	})
	return app
}

func check(c *cli.Context, cfg *checkConfig) error {
	cfg.Log.Apply()

	ctx, cancel := context.WithTimeout(c.Context, cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := control.FastCheck(ctx, cfg.ControlSocket); err != nil {
		return err
	}

	log.WithField("duration", time.Since(start).String()).Info("check_ok")
	return nil
}

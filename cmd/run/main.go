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

package run

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vs49688/certwatch/cmd/config"
	"github.com/vs49688/certwatch/daemon"
)

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &config.RunConfig{}
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "run",
		Usage:  "Watch the mailbox and send notifications",
		Flags:  cfg.Parameters(),
		Action: func(context *cli.Context) error { return run(context, cfg) },
	})
	return app
}

func run(c *cli.Context, cfg *config.RunConfig) error {
	cfg.Log.Apply()

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return err
	}

	st, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	logger := log.NewEntry(log.StandardLogger())

	daemonConfig := daemon.Config{}
	release, err := cfg.BuildDaemonConfig(c.Context, &daemonConfig, settings, st, logger)
	if err != nil {
		return err
	}
	defer release()

	log.WithFields(cfg.Fields()).WithField("sites", len(settings.Sites)).Info("starting")

	doneChan := make(chan error)
	stopChan := make(chan struct{})
	daemonConfig.DoneChan = doneChan
	daemonConfig.StopChan = stopChan

	d, err := daemon.NewDaemon(&daemonConfig)
	if err != nil {
		return err
	}

	defer d.Close()

	sigchan := make(chan os.Signal, 10)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigchan)

	sigcount := 0
	for {
		select {
		case sig := <-sigchan:
			log.WithFields(log.Fields{"signal": sig, "count": sigcount}).Trace("caught_signal")

			sigcount += 1
			if sigcount > 1 {
				log.WithFields(log.Fields{"signal": sig}).Warn("received_interrupt_force_exit")
				os.Exit(1)
			}
			log.WithFields(log.Fields{"signal": sig}).Info("received_interrupt")

			close(stopChan)
		case err := <-doneChan:
			if err != nil {
				log.WithError(err).Error("daemon_terminated")
				return err
			}
			log.Info("daemon_terminated")
			return nil
		}
	}
}

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

package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vs49688/certwatch/cmd/config"
	"github.com/vs49688/certwatch/watcher"
)

const (
	onlyNew    = "new"
	onlyRevoke = "revoke"
)

type scanConfig struct {
	config.ScanConfig
	Mode string
	Only string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &scanConfig{ScanConfig: config.DefaultScanConfig()}

	flags := cfg.ScanConfig.Parameters()
	flags = append(flags,
		&cli.StringFlag{
			Name:        "mode",
			Usage:       "incremental or full",
			EnvVars:     []string{"CERTWATCH_SCAN_MODE"},
			Destination: &cfg.Mode,
			Value:       watcher.ModeIncremental.String(),
		},
		&cli.StringFlag{
			Name:        "only",
			Usage:       "run only one pipeline (new, revoke)",
			Destination: &cfg.Only,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "scan",
		Usage:  "Scan the mailbox once, without notifying anyone",
		Flags:  flags,
		Action: func(context *cli.Context) error { return scan(context, cfg) },
	})
	return app
}

func scan(c *cli.Context, cfg *scanConfig) error {
	cfg.Log.Apply()

	mode, err := watcher.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	runNew, runRevoke := true, true
	switch cfg.Only {
	case "":
	case onlyNew:
		runRevoke = false
	case onlyRevoke:
		runNew = false
	default:
		return fmt.Errorf("unknown pipeline: %v", cfg.Only)
	}

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return err
	}

	logger := log.NewEntry(log.StandardLogger())

	dial, err := cfg.Dialer(logger)
	if err != nil {
		return err
	}

	newCertConfig, err := cfg.NewCertConfig(settings, logger)
	if err != nil {
		return err
	}

	st, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(cfg.Fields()).WithFields(log.Fields{
		"mode": mode.String(),
		"only": cfg.Only,
	}).Info("scan_starting")

	var (
		wg        sync.WaitGroup
		newErr    error
		revokeErr error
	)

	if runRevoke {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := watcher.NewRevocationWatcher(watcher.RevocationConfig{Folder: cfg.RevokeFolder, Logger: logger}, dial, st)
			_, revokeErr = w.Run(ctx, mode)
		}()
	}

	if runNew {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := watcher.NewNewCertWatcher(newCertConfig, dial, st)
			_, newErr = w.Run(ctx, mode)
		}()
	}

	wg.Wait()

	if errors.Is(ctx.Err(), context.Canceled) {
		log.Warn("scan_interrupted")
	}

	return errors.Join(revokeErr, newErr)
}

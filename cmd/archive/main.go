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

package archive

import (
	"errors"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vs49688/certwatch/cmd/config"
)

type archiveConfig struct {
	config.ScanConfig
	ID  int64
	Out string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &archiveConfig{}

	flags := cfg.ScanConfig.StoreParameters()
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "id",
			Usage:       "record id",
			Destination: &cfg.ID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "out",
			Usage:       "output file, defaults to the archive's own name",
			Destination: &cfg.Out,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "archive",
		Usage:  "Write a record's certificate archive to disk",
		Flags:  flags,
		Action: func(context *cli.Context) error { return export(context, cfg) },
	})
	return app
}

func export(c *cli.Context, cfg *archiveConfig) error {
	cfg.Log.Apply()

	st, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	data, filename, err := st.Archive(c.Context, cfg.ID)
	if err != nil {
		return err
	}

	out := cfg.Out
	if out == "" {
		out = filepath.Base(filename)
		if out == "." || out == string(filepath.Separator) {
			return errors.New("the archive has no usable file name, pass --out")
		}
	}

	if err := os.WriteFile(out, data, 0o600); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"id":    cfg.ID,
		"file":  out,
		"bytes": len(data),
	}).Info("archive_written")
	return nil
}

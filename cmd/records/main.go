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

package records

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vs49688/certwatch/cmd/config"
	"github.com/vs49688/certwatch/store"
)

type recordsConfig struct {
	config.ScanConfig
	All  bool
	Site string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &recordsConfig{}

	flags := cfg.ScanConfig.StoreParameters()
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "all",
			Usage:       "include revoked and deleted records",
			Destination: &cfg.All,
		},
		&cli.StringFlag{
			Name:        "site",
			Usage:       "only list records of this site",
			Destination: &cfg.Site,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "records",
		Usage:  "List certificate records",
		Flags:  flags,
		Action: func(context *cli.Context) error { return list(context, cfg) },
	})
	return app
}

func list(c *cli.Context, cfg *recordsConfig) error {
	cfg.Log.Apply()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	records, err := st.LoadAll(c.Context, cfg.All, cfg.Site)
	if err != nil {
		return err
	}

	return write(os.Stdout, records, time.Now(), loc)
}

func status(r store.Record) string {
	switch {
	case r.Revoked:
		return "revoked"
	case r.Deleted:
		return "deleted"
	default:
		return "current"
	}
}

func write(out io.Writer, records []store.Record, now time.Time, loc *time.Location) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ID\tNAME\tSERIAL\tSITE\tVALID TO\tDAYS LEFT\tSTATUS\tARCHIVE")
	for _, r := range records {
		archive := ""
		if r.HasArchive {
			archive = "yes"
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Name, r.Serial, r.Site,
			r.ValidTo.In(loc).Format("02.01.2006"),
			r.DaysLeft(now), status(r), archive,
		)
	}

	return w.Flush()
}

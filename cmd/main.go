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

package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vs49688/certwatch/cmd/archive"
	"github.com/vs49688/certwatch/cmd/check"
	"github.com/vs49688/certwatch/cmd/oauthlogin"
	"github.com/vs49688/certwatch/cmd/records"
	"github.com/vs49688/certwatch/cmd/run"
	"github.com/vs49688/certwatch/cmd/scan"
)

func Main() {
	app := cli.App{
		Name:  "certwatch",
		Usage: os.Args[0],
		Description: `CertWatch watches an IMAP mailbox for certificate issuance and
revocation mail, keeps a register of who holds which certificate, and warns
each site before its certificates expire.
`,
	}

	run.RegisterCommand(&app)
	scan.RegisterCommand(&app)
	check.RegisterCommand(&app)
	records.RegisterCommand(&app)
	archive.RegisterCommand(&app)
	oauthlogin.RegisterCommand(&app)

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

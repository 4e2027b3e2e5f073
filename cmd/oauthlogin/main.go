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

package oauthlogin

import (
	"errors"

	"github.com/emersion/go-oauthdialog"
	"github.com/emersion/go-sasl"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"github.com/vs49688/certwatch/cmd/config"
)

type loginConfig struct {
	OAuth2         config.OAuth2Config
	Username       string
	KeyringService string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &loginConfig{}

	flags := cfg.OAuth2.Parameters("imap-oauth2")
	flags = append(flags,
		&cli.StringFlag{
			Name:        "imap-username",
			Usage:       "imap username the token belongs to",
			EnvVars:     []string{"CERTWATCH_IMAP_USERNAME"},
			Destination: &cfg.Username,
		},
		&cli.StringFlag{
			Name:        "imap-keyring-service",
			Usage:       "store the refresh token in this OS keyring service instead of printing it",
			EnvVars:     []string{"CERTWATCH_IMAP_KEYRING_SERVICE"},
			Destination: &cfg.KeyringService,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "oauthlogin",
		Usage:  "Generate an OAuth2 refresh token",
		Flags:  flags,
		Action: func(context *cli.Context) error { return oauthlogin(context, cfg) },
	})
	return app
}

func oauthlogin(ctx *cli.Context, cfg *loginConfig) error {
	if cfg.KeyringService != "" && cfg.Username == "" {
		return errors.New("storing the token in the keyring needs --imap-username")
	}

	oc, err := cfg.OAuth2.Resolve()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"auth_url":  oc.Endpoint.AuthURL,
		"token_url": oc.Endpoint.TokenURL,
		"client_id": oc.ClientID,
		"scopes":    oc.Scopes,
	}).Info("using_provider")

	code, err := oauthdialog.Open(&oc)
	if err != nil {
		return err
	}

	tok, err := oc.Exchange(ctx.Context, code, oauth2.AccessTypeOffline)
	if err != nil {
		return err
	}

	if tok.RefreshToken == "" {
		return errors.New("the provider did not return a refresh token")
	}

	if cfg.KeyringService != "" {
		if err := config.KeyringSet(cfg.KeyringService, cfg.Username, tok.RefreshToken); err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"service":  cfg.KeyringService,
			"username": cfg.Username,
		}).Info("token_stored")

		log.Infof("You may now pass:\n")
		log.Infof("  --imap-auth-method=%v --imap-username=%v --imap-keyring-service=%v\n",
			sasl.OAuthBearer, cfg.Username, cfg.KeyringService)
		return nil
	}

	log.Infof("Your OAuth2 token is:\n")
	log.Info()
	log.Infof("  %v\n", tok.RefreshToken)
	log.Info()
	log.Infof("You may now pass this via:\n")
	log.Infof("  --imap-auth-method=%v (CERTWATCH_IMAP_AUTH_METHOD=%v), and\n", sasl.OAuthBearer, sasl.OAuthBearer)
	log.Infof("  --imap-password=<token> (CERTWATCH_IMAP_PASSWORD=<token>)\n")
	log.Info()
	log.Infof("> Keep It Secret, Keep It Safe\n")
	log.Infof(">   - Gandalf\n")

	return nil
}

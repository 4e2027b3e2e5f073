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

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var oauthProviders = map[string]oauth2.Config{
	"google": {
		Endpoint: endpoints.Google,
		Scopes:   []string{"https://mail.google.com/"},
	},
	"microsoft": {
		Endpoint: endpoints.AzureAD("common"),
		Scopes:   []string{"https://outlook.office.com/IMAP.AccessAsUser.All", "offline_access"},
	},
}

func DefaultOAuth2Config() OAuth2Config {
	return OAuth2Config{
		Provider: "google",
	}
}

func (cfg *OAuth2Config) Parameters(prefix string) []cli.Flag {
	def := DefaultOAuth2Config()

	return []cli.Flag{
		&cli.StringFlag{
			Name:        prefix + "-provider",
			Usage:       "oauth2 provider (google, microsoft, custom)",
			EnvVars:     []string{envName(prefix, "provider")},
			Destination: &cfg.Provider,
			Value:       def.Provider,
		},
		&cli.StringFlag{
			Name:        prefix + "-client-id",
			Usage:       "oauth2 client id",
			EnvVars:     []string{envName(prefix, "client-id")},
			Destination: &cfg.ClientID,
			Value:       def.ClientID,
		},
		&cli.StringFlag{
			Name:        prefix + "-client-secret",
			Usage:       "oauth2 client secret",
			EnvVars:     []string{envName(prefix, "client-secret")},
			Destination: &cfg.ClientSecret,
			Value:       def.ClientSecret,
		},
		&cli.StringFlag{
			Name:        prefix + "-auth-url",
			Usage:       "oauth2 authorization url, custom provider only",
			EnvVars:     []string{envName(prefix, "auth-url")},
			Destination: &cfg.AuthURL,
			Value:       def.AuthURL,
		},
		&cli.StringFlag{
			Name:        prefix + "-token-url",
			Usage:       "oauth2 token url, custom provider only",
			EnvVars:     []string{envName(prefix, "token-url")},
			Destination: &cfg.TokenURL,
			Value:       def.TokenURL,
		},
	}
}

func (cfg *OAuth2Config) Resolve() (oauth2.Config, error) {
	var oc oauth2.Config

	provider := strings.ToLower(cfg.Provider)
	if provider == "custom" {
		if cfg.AuthURL == "" || cfg.TokenURL == "" {
			return oc, errors.New("the custom oauth2 provider needs an auth url and a token url")
		}
		oc.Endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	} else {
		p, ok := oauthProviders[provider]
		if !ok {
			return oc, fmt.Errorf("unknown oauth2 provider: %v", cfg.Provider)
		}
		oc = p
	}

	if cfg.ClientID == "" {
		return oc, errors.New("an oauth2 client id is required")
	}

	oc.ClientID = cfg.ClientID
	oc.ClientSecret = cfg.ClientSecret

	if len(cfg.Scopes) > 0 {
		oc.Scopes = cfg.Scopes
	}

	return oc, nil
}

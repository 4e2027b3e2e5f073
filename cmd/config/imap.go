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
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"github.com/vs49688/certwatch/imap"
	"github.com/vs49688/certwatch/imap/client"
	"github.com/vs49688/certwatch/imap/persistentclient"
)

const (
	AuthMethodLogin = imap.AuthMethodLogin

	TransportStandard   = "standard"
	TransportPersistent = "persistent"

	DefaultRequestTimeout = 30 * time.Second
)

func DefaultIMAPConfig() IMAPConfig {
	return IMAPConfig{
		AuthMethod:    AuthMethodLogin,
		TLSSkipVerify: false,
		Transport:     TransportStandard,
		Debug:         false,
		OAuth2:        DefaultOAuth2Config(),
	}
}

func envName(prefix string, name string) string {
	s := strings.ToUpper(strings.ReplaceAll(prefix+"_"+name, "-", "_"))
	return "CERTWATCH_" + s
}

func (cfg *IMAPConfig) makeIMAPParameters(prefix string) []cli.Flag {
	def := DefaultIMAPConfig()

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        prefix + "-url",
			Usage:       "imap url, imap:// or imaps://",
			EnvVars:     []string{envName(prefix, "url")},
			Destination: &cfg.URL,
			Required:    true,
			Value:       def.URL,
		},
		&cli.StringFlag{
			Name:        prefix + "-auth-method",
			Usage:       "auth method (LOGIN, PLAIN, OAUTHBEARER)",
			EnvVars:     []string{envName(prefix, "auth-method")},
			Destination: &cfg.AuthMethod,
			Value:       def.AuthMethod,
		},
		&cli.StringFlag{
			Name:        prefix + "-username",
			Usage:       "imap username",
			EnvVars:     []string{envName(prefix, "username")},
			Destination: &cfg.Username,
			Value:       def.Username,
		},
		&cli.StringFlag{
			Name:        prefix + "-password",
			Usage:       "imap password, or refresh token for OAUTHBEARER",
			EnvVars:     []string{envName(prefix, "password")},
			Destination: &cfg.Password,
			Value:       def.Password,
		},
		&cli.StringFlag{
			Name:        prefix + "-password-file",
			Usage:       "file containing the imap password",
			EnvVars:     []string{envName(prefix, "password-file")},
			Destination: &cfg.PasswordFile,
			Value:       def.PasswordFile,
		},
		&cli.StringFlag{
			Name:        prefix + "-systemd-credential",
			Usage:       "name of the systemd credential containing the imap password",
			EnvVars:     []string{envName(prefix, "systemd-credential")},
			Destination: &cfg.SystemdCredential,
			Value:       def.SystemdCredential,
		},
		&cli.StringFlag{
			Name:        prefix + "-keyring-service",
			Usage:       "read the imap password from this OS keyring service, keyed by username",
			EnvVars:     []string{envName(prefix, "keyring-service")},
			Destination: &cfg.KeyringService,
			Value:       def.KeyringService,
		},
		&cli.BoolFlag{
			Name:        prefix + "-tls-skip-verify",
			Usage:       "skip tls verification",
			EnvVars:     []string{envName(prefix, "tls-skip-verify")},
			Destination: &cfg.TLSSkipVerify,
			Value:       def.TLSSkipVerify,
		},
		&cli.StringFlag{
			Name:        prefix + "-transport",
			Usage:       "imap transport (standard, persistent)",
			EnvVars:     []string{envName(prefix, "transport")},
			Destination: &cfg.Transport,
			Value:       def.Transport,
		},
		&cli.BoolFlag{
			Name:        prefix + "-debug",
			Usage:       "display imap protocol traffic",
			EnvVars:     []string{envName(prefix, "debug")},
			Destination: &cfg.Debug,
			Value:       def.Debug,
		},
	}

	return append(flags, cfg.OAuth2.Parameters(prefix+"-oauth2")...)
}

func extractUrl(u *url.URL) (string, string, bool, error) {
	var defaultPort string
	var useTLS bool
	switch strings.ToLower(u.Scheme) {
	case "imap":
		defaultPort = "143"
		useTLS = false
	case "imaps":
		defaultPort = "993"
		useTLS = true
	default:
		return "", "", false, errInvalidScheme
	}

	host := u.Hostname()
	port := u.Port()

	if port == "" {
		port = defaultPort
	}

	return net.JoinHostPort(host, port), strings.TrimPrefix(u.Path, "/"), useTLS, nil
}

// readCredential reads a systemd credential. The name must not leave
// $CREDENTIALS_DIRECTORY.
func readCredential(name string) (string, error) {
	dir := os.Getenv("CREDENTIALS_DIRECTORY")
	if dir == "" {
		return "", errors.New("CREDENTIALS_DIRECTORY is not set")
	}

	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid credential name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// resolvePassword tries, in order, the password itself, the password
// file, the systemd credential and the keyring.
func (cfg *IMAPConfig) resolvePassword() (string, error) {
	switch {
	case cfg.Password != "":
		return cfg.Password, nil
	case cfg.PasswordFile != "":
		pass, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(pass)), nil
	case cfg.SystemdCredential != "":
		return readCredential(cfg.SystemdCredential)
	case cfg.KeyringService != "":
		return keyringGet(cfg.KeyringService, cfg.Username)
	default:
		return "", errors.New("one of password, password-file, systemd-credential or keyring-service is required")
	}
}

func (cfg *IMAPConfig) validateUserPass() (string, string, error) {
	if cfg.Username == "" {
		return "", "", fmt.Errorf("a username is required when using %v auth", cfg.AuthMethod)
	}

	pass, err := cfg.resolvePassword()
	if err != nil {
		return "", "", err
	}

	return cfg.Username, pass, nil
}

func (cfg *IMAPConfig) buildAuthenticator() (imap.Authenticator, error) {
	user, pass, err := cfg.validateUserPass()
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(cfg.AuthMethod, sasl.OAuthBearer) {
		return imap.NewPasswordAuthenticator(cfg.AuthMethod, user, pass)
	}

	oc, err := cfg.OAuth2.Resolve()
	if err != nil {
		return nil, err
	}

	// The password is the refresh token.
	src := oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: pass})
	return imap.NewOAuthBearerAuthenticator(user, oauth2.ReuseTokenSource(nil, src)), nil
}

// Resolve builds the connection settings and the client factory.
func (cfg *IMAPConfig) Resolve() (imap.ConnectionConfig, imap.ClientFactory, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return imap.ConnectionConfig{}, nil, err
	}

	hostPort, mailbox, wantTLS, err := extractUrl(u)
	if err != nil {
		return imap.ConnectionConfig{}, nil, err
	}

	auth, err := cfg.buildAuthenticator()
	if err != nil {
		return imap.ConnectionConfig{}, nil, err
	}

	connConfig := imap.ConnectionConfig{
		HostPort: hostPort,
		Auth:     auth,
		Mailbox:  mailbox,
		TLS:      wantTLS,
		Debug:    cfg.Debug,
	}

	if cfg.TLSSkipVerify {
		// #nosec G402
		connConfig.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var factory imap.ClientFactory
	if cfg.Transport == TransportPersistent {
		factory = &persistentclient.Factory{RequestTimeout: DefaultRequestTimeout}
	} else {
		factory = &client.Factory{}
	}

	return connConfig, factory, nil
}

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
	"time"
)

var (
	errInvalidScheme = errors.New("invalid uri scheme")
)

type OAuth2Config struct {
	Provider     string   `mapstructure:"provider"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type IMAPConfig struct {
	URL               string       `mapstructure:"url"`
	AuthMethod        string       `mapstructure:"auth_method"`
	Username          string       `mapstructure:"username"`
	Password          string       `mapstructure:"-"`
	PasswordFile      string       `mapstructure:"password_file"`
	SystemdCredential string       `mapstructure:"systemd_credential"`
	KeyringService    string       `mapstructure:"keyring_service"`
	TLSSkipVerify     bool         `mapstructure:"tls_skip_verify"`
	Transport         string       `mapstructure:"transport"`
	Debug             bool         `mapstructure:"debug"`
	OAuth2            OAuth2Config `mapstructure:"oauth2"`
}

type LogConfig struct {
	Level  string
	Format string
}

// ScanConfig is what every command touching the mailbox needs.
type ScanConfig struct {
	IMAP             IMAPConfig
	Log              LogConfig
	DatabasePath     string
	SettingsPath     string
	NewCertFolder    string
	RevokeFolder     string
	SubjectPrefix    string
	Window           time.Duration
	Timezone         string
	ArchiveExtension string
}

type RunConfig struct {
	ScanConfig

	Period          time.Duration
	InitialDelay    time.Duration
	Timeout         time.Duration
	ControlSocket   string
	NotifyThreshold int
	NotifySender    string
	AMQP            AMQPConfig
	Suppression     string
	Redis           RedisConfig
}

type AMQPConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
	Key      string `mapstructure:"key"`
}

// Site is one building or office: the folders its certificate mail is
// filed into and who hears about its expiring certificates.
type Site struct {
	Folders    []string `mapstructure:"folders"`
	Recipients []string `mapstructure:"recipients"`
}

// Settings is the settings file.
type Settings struct {
	Sites  map[string]Site `mapstructure:"sites"`
	Notify struct {
		ThresholdDays int        `mapstructure:"threshold_days"`
		Sender        string     `mapstructure:"sender"`
		AMQP          AMQPConfig `mapstructure:"amqp"`
	} `mapstructure:"notify"`
	Suppression struct {
		Backend string      `mapstructure:"backend"`
		Redis   RedisConfig `mapstructure:"redis"`
	} `mapstructure:"suppression"`
}

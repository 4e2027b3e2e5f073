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
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vs49688/certwatch/extract"
	"github.com/vs49688/certwatch/notify"
	"github.com/vs49688/certwatch/scheduler"
	"github.com/vs49688/certwatch/watcher"
)

const (
	SenderLog  = "log"
	SenderAMQP = "amqp"

	SuppressionStore = "store"
	SuppressionRedis = "redis"

	DefaultDatabasePath  = "certwatch.db"
	DefaultControlSocket = "/run/certwatch/control.sock"
)

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		IMAP:             DefaultIMAPConfig(),
		Log:              DefaultLogConfig(),
		DatabasePath:     DefaultDatabasePath,
		NewCertFolder:    "Certificates",
		RevokeFolder:     "Revocations",
		SubjectPrefix:    extract.DefaultSubjectPrefix,
		Window:           watcher.DefaultWindow,
		ArchiveExtension: extract.DefaultArchiveMatcher().Extension,
	}
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		ScanConfig:    DefaultScanConfig(),
		Period:        scheduler.DefaultPeriod,
		InitialDelay:  scheduler.DefaultInitialDelay,
		Timeout:       scheduler.DefaultTimeout,
		ControlSocket: DefaultControlSocket,
		AMQP:          AMQPConfig{Queue: notify.DefaultQueue},
		Redis:         RedisConfig{Key: notify.DefaultRedisKey},
	}
}

func (cfg *LogConfig) Parameters() []cli.Flag {
	def := DefaultLogConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "logging level",
			EnvVars:     []string{"CERTWATCH_LOG_LEVEL"},
			Destination: &cfg.Level,
			Value:       def.Level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "logging format (text/json)",
			EnvVars:     []string{"CERTWATCH_LOG_FORMAT"},
			Destination: &cfg.Format,
			Value:       def.Format,
		},
	}
}

// Apply configures the standard logger.
func (cfg *LogConfig) Apply() {
	logLevel, err := log.ParseLevel(cfg.Level)
	if err == nil {
		log.SetLevel(logLevel)
	}

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// StoreParameters are the flags of commands that only read the database.
func (cfg *ScanConfig) StoreParameters() []cli.Flag {
	def := DefaultScanConfig()

	flags := cfg.Log.Parameters()
	return append(flags,
		&cli.StringFlag{
			Name:        "database",
			Usage:       "path to the sqlite database",
			EnvVars:     []string{"CERTWATCH_DATABASE"},
			Destination: &cfg.DatabasePath,
			Value:       def.DatabasePath,
		},
		&cli.StringFlag{
			Name:        "timezone",
			Usage:       "timezone of dates in certificate mail, and of the notification day",
			EnvVars:     []string{"CERTWATCH_TIMEZONE"},
			Destination: &cfg.Timezone,
			Value:       def.Timezone,
		},
	)
}

func (cfg *ScanConfig) Parameters() []cli.Flag {
	def := DefaultScanConfig()

	var flags []cli.Flag
	flags = append(flags, cfg.IMAP.makeIMAPParameters("imap")...)
	flags = append(flags, cfg.StoreParameters()...)
	flags = append(flags, []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "settings file (yaml, json or toml)",
			EnvVars:     []string{"CERTWATCH_CONFIG"},
			Destination: &cfg.SettingsPath,
			Value:       def.SettingsPath,
		},
		&cli.StringFlag{
			Name:        "new-cert-folder",
			Usage:       "root folder of new certificate mail",
			EnvVars:     []string{"CERTWATCH_NEW_CERT_FOLDER"},
			Destination: &cfg.NewCertFolder,
			Value:       def.NewCertFolder,
		},
		&cli.StringFlag{
			Name:        "revoke-folder",
			Usage:       "root folder of revocation mail",
			EnvVars:     []string{"CERTWATCH_REVOKE_FOLDER"},
			Destination: &cfg.RevokeFolder,
			Value:       def.RevokeFolder,
		},
		&cli.StringFlag{
			Name:        "subject-prefix",
			Usage:       "subject prefix of new certificate mail",
			EnvVars:     []string{"CERTWATCH_SUBJECT_PREFIX"},
			Destination: &cfg.SubjectPrefix,
			Value:       def.SubjectPrefix,
		},
		&cli.DurationFlag{
			Name:        "window",
			Usage:       "how far back an incremental scan of new certificate mail looks",
			EnvVars:     []string{"CERTWATCH_WINDOW"},
			Destination: &cfg.Window,
			Value:       def.Window,
		},
		&cli.StringFlag{
			Name:        "archive-extension",
			Usage:       "file extension of certificate archives",
			EnvVars:     []string{"CERTWATCH_ARCHIVE_EXTENSION"},
			Destination: &cfg.ArchiveExtension,
			Value:       def.ArchiveExtension,
		},
	}...)

	return flags
}

func (cfg *ScanConfig) Location() (*time.Location, error) {
	if cfg.Timezone == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	return loc, nil
}

func (cfg *ScanConfig) Extractor() (*extract.Extractor, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	archive := extract.DefaultArchiveMatcher()
	if cfg.ArchiveExtension != "" {
		ext := cfg.ArchiveExtension
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		archive.Extension = ext
	}

	return extract.NewExtractor(cfg.SubjectPrefix, loc, archive), nil
}

func (cfg *ScanConfig) Fields() log.Fields {
	return log.Fields{
		"imap_url":             cfg.IMAP.URL,
		"imap_auth_method":     cfg.IMAP.AuthMethod,
		"imap_username":        cfg.IMAP.Username,
		"imap_password_file":   cfg.IMAP.PasswordFile,
		"imap_keyring_service": cfg.IMAP.KeyringService,
		"imap_tls_skip_verify": cfg.IMAP.TLSSkipVerify,
		"imap_transport":       cfg.IMAP.Transport,
		"imap_debug":           cfg.IMAP.Debug,
		"log_level":            cfg.Log.Level,
		"log_format":           cfg.Log.Format,
		"database":             cfg.DatabasePath,
		"config":               cfg.SettingsPath,
		"new_cert_folder":      cfg.NewCertFolder,
		"revoke_folder":        cfg.RevokeFolder,
		"subject_prefix":       cfg.SubjectPrefix,
		"window":               cfg.Window,
		"timezone":             cfg.Timezone,
		"archive_extension":    cfg.ArchiveExtension,
	}
}

func (cfg *RunConfig) Parameters() []cli.Flag {
	def := DefaultRunConfig()

	flags := cfg.ScanConfig.Parameters()
	flags = append(flags, []cli.Flag{
		&cli.DurationFlag{
			Name:        "period",
			Usage:       "interval between scheduled checks",
			EnvVars:     []string{"CERTWATCH_PERIOD"},
			Destination: &cfg.Period,
			Value:       def.Period,
		},
		&cli.DurationFlag{
			Name:        "initial-delay",
			Usage:       "delay before the first scheduled check",
			EnvVars:     []string{"CERTWATCH_INITIAL_DELAY"},
			Destination: &cfg.InitialDelay,
			Value:       def.InitialDelay,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "maximum duration of one check",
			EnvVars:     []string{"CERTWATCH_TIMEOUT"},
			Destination: &cfg.Timeout,
			Value:       def.Timeout,
		},
		&cli.StringFlag{
			Name:        "control-socket",
			Usage:       "path of the control socket, empty to disable",
			EnvVars:     []string{"CERTWATCH_CONTROL_SOCKET"},
			Destination: &cfg.ControlSocket,
			Value:       def.ControlSocket,
		},
		&cli.IntFlag{
			Name:        "notify-threshold",
			Usage:       "notify about certificates expiring within this many days",
			EnvVars:     []string{"CERTWATCH_NOTIFY_THRESHOLD"},
			Destination: &cfg.NotifyThreshold,
			Value:       def.NotifyThreshold,
		},
		&cli.StringFlag{
			Name:        "notify-sender",
			Usage:       "notification sender (log, amqp)",
			EnvVars:     []string{"CERTWATCH_NOTIFY_SENDER"},
			Destination: &cfg.NotifySender,
			Value:       def.NotifySender,
		},
		&cli.StringFlag{
			Name:        "amqp-url",
			Usage:       "amqp broker url for the amqp sender",
			EnvVars:     []string{"CERTWATCH_AMQP_URL"},
			Destination: &cfg.AMQP.URL,
			Value:       def.AMQP.URL,
		},
		&cli.StringFlag{
			Name:        "amqp-queue",
			Usage:       "amqp queue notifications are published to",
			EnvVars:     []string{"CERTWATCH_AMQP_QUEUE"},
			Destination: &cfg.AMQP.Queue,
			Value:       def.AMQP.Queue,
		},
		&cli.StringFlag{
			Name:        "suppression",
			Usage:       "where notification suppression state is kept (store, redis)",
			EnvVars:     []string{"CERTWATCH_SUPPRESSION"},
			Destination: &cfg.Suppression,
			Value:       def.Suppression,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "redis host:port",
			EnvVars:     []string{"CERTWATCH_REDIS_ADDR"},
			Destination: &cfg.Redis.Addr,
			Value:       def.Redis.Addr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "redis password",
			EnvVars:     []string{"CERTWATCH_REDIS_PASSWORD"},
			Destination: &cfg.Redis.Password,
			Value:       def.Redis.Password,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "redis database number",
			EnvVars:     []string{"CERTWATCH_REDIS_DB"},
			Destination: &cfg.Redis.DB,
			Value:       def.Redis.DB,
		},
		&cli.BoolFlag{
			Name:        "redis-tls",
			Usage:       "connect to redis over tls",
			EnvVars:     []string{"CERTWATCH_REDIS_TLS"},
			Destination: &cfg.Redis.TLS,
			Value:       def.Redis.TLS,
		},
		&cli.StringFlag{
			Name:        "redis-key",
			Usage:       "redis hash holding suppression state",
			EnvVars:     []string{"CERTWATCH_REDIS_KEY"},
			Destination: &cfg.Redis.Key,
			Value:       def.Redis.Key,
		},
	}...)

	return flags
}

// Merge fills every setting not given on the command line from the
// settings file, then from the built-in defaults.
func (cfg *RunConfig) Merge(s *Settings) error {
	if cfg.NotifyThreshold == 0 {
		cfg.NotifyThreshold = s.Notify.ThresholdDays
	}
	if cfg.NotifyThreshold == 0 {
		cfg.NotifyThreshold = notify.DefaultThreshold
	}

	if cfg.NotifySender == "" {
		cfg.NotifySender = s.Notify.Sender
	}
	if cfg.NotifySender == "" {
		cfg.NotifySender = SenderLog
	}
	cfg.NotifySender = strings.ToLower(cfg.NotifySender)

	if cfg.AMQP.URL == "" {
		cfg.AMQP.URL = s.Notify.AMQP.URL
	}
	if s.Notify.AMQP.Queue != "" && (cfg.AMQP.Queue == "" || cfg.AMQP.Queue == notify.DefaultQueue) {
		cfg.AMQP.Queue = s.Notify.AMQP.Queue
	}

	if cfg.Suppression == "" {
		cfg.Suppression = s.Suppression.Backend
	}
	if cfg.Suppression == "" {
		cfg.Suppression = SuppressionStore
	}
	cfg.Suppression = strings.ToLower(cfg.Suppression)

	fileRedis := s.Suppression.Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = fileRedis.Addr
	}
	if cfg.Redis.Password == "" {
		cfg.Redis.Password = fileRedis.Password
	}
	if cfg.Redis.DB == 0 {
		cfg.Redis.DB = fileRedis.DB
	}
	cfg.Redis.TLS = cfg.Redis.TLS || fileRedis.TLS
	if fileRedis.Key != "" && (cfg.Redis.Key == "" || cfg.Redis.Key == notify.DefaultRedisKey) {
		cfg.Redis.Key = fileRedis.Key
	}

	switch cfg.NotifySender {
	case SenderLog:
	case SenderAMQP:
		if cfg.AMQP.URL == "" {
			return fmt.Errorf("the %v sender needs an amqp url", SenderAMQP)
		}
	default:
		return fmt.Errorf("unknown notification sender: %v", cfg.NotifySender)
	}

	switch cfg.Suppression {
	case SuppressionStore, SuppressionRedis:
	default:
		return fmt.Errorf("unknown suppression backend: %v", cfg.Suppression)
	}

	return nil
}

func (cfg *RunConfig) Fields() log.Fields {
	f := cfg.ScanConfig.Fields()
	f["period"] = cfg.Period
	f["initial_delay"] = cfg.InitialDelay
	f["timeout"] = cfg.Timeout
	f["control_socket"] = cfg.ControlSocket
	f["notify_threshold"] = cfg.NotifyThreshold
	f["notify_sender"] = cfg.NotifySender
	f["amqp_queue"] = cfg.AMQP.Queue
	f["suppression"] = cfg.Suppression
	f["redis_addr"] = cfg.Redis.Addr
	f["redis_key"] = cfg.Redis.Key
	return f
}

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
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

func defaultSettings() *Settings {
	return &Settings{Sites: map[string]Site{}}
}

// LoadSettings reads the settings file. An empty path or a missing file
// yields empty settings.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		return defaultSettings(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("notify.sender", "")
	v.SetDefault("suppression.backend", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return defaultSettings(), nil
		}
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}

	s := defaultSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}

	if s.Sites == nil {
		s.Sites = map[string]Site{}
	}

	return s, nil
}

// Recipients maps each site to its recipients.
func (s *Settings) Recipients() map[string][]string {
	out := make(map[string][]string, len(s.Sites))
	for name, site := range s.Sites {
		out[name] = site.Recipients
	}
	return out
}

// FolderSites maps each folder to the site it is filed under.
func (s *Settings) FolderSites() (map[string]string, error) {
	names := make([]string, 0, len(s.Sites))
	for name := range s.Sites {
		names = append(names, name)
	}
	sort.Strings(names)

	out := map[string]string{}
	for _, name := range names {
		for _, folder := range s.Sites[name].Folders {
			folder = strings.TrimSpace(folder)
			if folder == "" {
				continue
			}

			if other, ok := out[folder]; ok {
				return nil, fmt.Errorf("folder %q belongs to both %q and %q", folder, other, name)
			}
			out[folder] = name
		}
	}
	return out, nil
}

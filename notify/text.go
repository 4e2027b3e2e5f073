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

package notify

import (
	"strings"
	"text/template"
	"time"

	"github.com/vs49688/certwatch/store"
)

type textLine struct {
	Name     string
	Serial   string
	DaysLeft int
	ValidTo  string
	Site     string
}

var expiringTemplate = template.Must(template.New("expiring").Parse(
	`Истекает срок действия сертификатов{{if .Site}} ({{.Site}}){{end}}:
{{range .Lines}}- {{.Name}}, № {{.Serial}}: осталось {{.DaysLeft}} дн. (до {{.ValidTo}})
{{end}}`))

var newUserTemplate = template.Must(template.New("newuser").Parse(
	`Выпущены новые сертификаты:
{{range .Lines}}- {{.Name}}, № {{.Serial}}{{if .Site}} ({{.Site}}){{end}}, действует до {{.ValidTo}}
{{end}}`))

func linesOf(records []store.Record, now time.Time, loc *time.Location) []textLine {
	lines := make([]textLine, 0, len(records))
	for _, r := range records {
		lines = append(lines, textLine{
			Name:     r.Name,
			Serial:   r.Serial,
			DaysLeft: r.DaysLeft(now),
			ValidTo:  r.ValidTo.In(loc).Format("02.01.2006"),
			Site:     r.Site,
		})
	}
	return lines
}

func render(t *template.Template, data interface{}) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func expiringText(site string, records []store.Record, now time.Time, loc *time.Location) (string, error) {
	return render(expiringTemplate, struct {
		Site  string
		Lines []textLine
	}{site, linesOf(records, now, loc)})
}

func newUserText(records []store.Record, loc *time.Location) (string, error) {
	return render(newUserTemplate, struct {
		Lines []textLine
	}{linesOf(records, time.Time{}, loc)})
}

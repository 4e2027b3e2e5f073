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

package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const scenarioBody = "Уважаемый пользователь!\r\n" +
	"Выпущен сертификат.\r\n" +
	"ФИО: Иванов Иван Иванович.\r\n" +
	"Срок действия сертификата: с 01.01.2025 00:00:00 по 01.01.2026 00:00:00\r\n"

func TestName(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"labelled_line", "ФИО: Иванов Иван Иванович.", "Иванов Иван Иванович", true},
		{"nbsp", "ФИО:\u00a0Петров\u00a0Пётр Петрович", "Петров Пётр Петрович", true},
		{"trailing_marker", "ФИО: Сидорова Анна Павловна Срок действия с 01.01.2025", "Сидорова Анна Павловна", true},
		{"dash", "ФИО - Кузнецов Олег", "Кузнецов Олег", true},
		{"hyphenated", "ФИО: Салтыков-Щедрин Михаил Евграфович", "Салтыков-Щедрин Михаил Евграфович", true},
		{"at_most_three_words", "ФИО: Иванов Иван Иванович оглы junk", "Иванов Иван Иванович", true},
		{"next_line", "ФИО:\n  Смирнов Алексей Ильич\n", "Смирнов Алексей Ильич", true},
		{"assignment", "CN=x; ФИО = Орлов Денис Викторович; O=y", "Орлов Денис Викторович", true},
		{"no_words", "ФИО: 12345.", "", false},
		{"missing", "Здравствуйте", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Name(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerial(t *testing.T) {
	long := "0123456789abcdef0123456789ABCDEF"

	t.Run("subject_wins", func(t *testing.T) {
		got, ok := Serial("Сертификат №AB12", DefaultSubjectPrefix, "Сертификат № FFFF")
		assert.True(t, ok)
		assert.Equal(t, "AB12", got)
	})

	t.Run("subject_must_be_strict", func(t *testing.T) {
		_, ok := MatchSubject("Re: Сертификат №AB12", DefaultSubjectPrefix)
		assert.False(t, ok)

		_, ok = MatchSubject("Сертификат №AB12 выпущен", DefaultSubjectPrefix)
		assert.False(t, ok)

		got, ok := MatchSubject("  Сертификат № ab12  ", DefaultSubjectPrefix)
		assert.True(t, ok)
		assert.Equal(t, "AB12", got)
	})

	t.Run("file_before_certificate", func(t *testing.T) {
		body := "Сертификат №1111\nФайл сертификата №2222"
		got, ok := Serial("", DefaultSubjectPrefix, body)
		assert.True(t, ok)
		assert.Equal(t, "2222", got)
	})

	t.Run("certificate_number", func(t *testing.T) {
		got, ok := Serial("Привет", DefaultSubjectPrefix, "Сертификат № 0a1B")
		assert.True(t, ok)
		assert.Equal(t, "0A1B", got)
	})

	t.Run("long_hex", func(t *testing.T) {
		got, ok := Serial("", DefaultSubjectPrefix, "серийный номер: "+long+".")
		assert.True(t, ok)
		assert.Equal(t, "0123456789ABCDEF0123456789ABCDEF", got)
	})

	t.Run("short_hex_ignored", func(t *testing.T) {
		_, ok := Serial("", DefaultSubjectPrefix, "код 0123456789abcdef")
		assert.False(t, ok)
	})
}

func TestNormalizeSerial(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeSerial("  ab 12\tcd \n"))
}

func TestValidity(t *testing.T) {
	loc := time.UTC

	t.Run("strict", func(t *testing.T) {
		r, ok := Validity(scenarioBody, loc)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), r.Start)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, loc), r.End)
	})

	t.Run("strict_beats_bare_tokens", func(t *testing.T) {
		body := "Запрос от 05.05.2020 10:00:00, обработан 06.05.2020 11:00:00.\n" +
			"Срок действия сертификата: с 01.02.2025 12:00:00 по 01.02.2026 12:00:00"

		r, ok := Validity(body, loc)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2025, 2, 1, 12, 0, 0, 0, loc), r.Start)
		assert.Equal(t, time.Date(2026, 2, 1, 12, 0, 0, 0, loc), r.End)
	})

	t.Run("loose_multiline", func(t *testing.T) {
		body := "Действует\nс 3.03.2024\nпо 03.03.2025"

		r, ok := Validity(body, loc)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, loc), r.Start)
		assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, loc), r.End)
	})

	t.Run("first_two_timestamps", func(t *testing.T) {
		body := "Начало: 10.10.2024 08:00:00\nОкончание: 10.10.2025 08:00:00\n"

		r, ok := Validity(body, loc)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2024, 10, 10, 8, 0, 0, 0, loc), r.Start)
		assert.Equal(t, time.Date(2025, 10, 10, 8, 0, 0, 0, loc), r.End)
	})

	t.Run("bad_bound_falls_through", func(t *testing.T) {
		body := "Срок действия сертификата: с 41.01.2025 по 01.01.2026\n" +
			"10.10.2024 08:00:00 - 10.10.2025 08:00:00"

		r, ok := Validity(body, loc)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2024, 10, 10, 8, 0, 0, 0, loc), r.Start)
	})

	t.Run("none", func(t *testing.T) {
		_, ok := Validity("без дат", loc)
		assert.False(t, ok)
	})
}

func TestRevocationSerial(t *testing.T) {
	t.Run("labelled_short", func(t *testing.T) {
		got, ok := RevocationSerial("Уведомляем, что сертификат № AB12 пользователя прекратил действие.")
		assert.True(t, ok)
		assert.Equal(t, "AB12", got)
	})

	t.Run("case_insensitive", func(t *testing.T) {
		got, ok := RevocationSerial("СЕРТИФИКАТ №ab12 ПРЕКРАТИЛ ДЕЙСТВИЕ")
		assert.True(t, ok)
		assert.Equal(t, "AB12", got)
	})

	t.Run("unlabelled_long", func(t *testing.T) {
		got, ok := RevocationSerial("Отозван: 00aa11bb22cc33dd44ee55ff")
		assert.True(t, ok)
		assert.Equal(t, "00AA11BB22CC33DD44EE55FF", got)
	})

	t.Run("unlabelled_short", func(t *testing.T) {
		_, ok := RevocationSerial("Отозван: AB12")
		assert.False(t, ok)
	})
}

func TestArchiveMatcher(t *testing.T) {
	m := DefaultArchiveMatcher()

	assert.True(t, m.Match("cert.ZIP", "application/octet-stream"))
	assert.True(t, m.Match("", "application/x-zip-compressed"))
	assert.True(t, m.Match("noext", "Application/Zip"))
	assert.False(t, m.Match("cert.cer", "application/pkix-cert"))
}

func TestExtractor_Extract(t *testing.T) {
	e := NewExtractor("", time.UTC, DefaultArchiveMatcher())

	t.Run("complete", func(t *testing.T) {
		f, ok := e.Extract("Сертификат №AB12", scenarioBody)
		assert.True(t, ok)
		assert.Equal(t, Fact{
			Name:   "Иванов Иван Иванович",
			Serial: "AB12",
			Start:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}, f)
	})

	t.Run("missing_name", func(t *testing.T) {
		_, ok := e.Extract("Сертификат №AB12", "Срок действия сертификата: с 01.01.2025 по 01.01.2026")
		assert.False(t, ok)
	})

	t.Run("missing_dates", func(t *testing.T) {
		_, ok := e.Extract("Сертификат №AB12", "ФИО: Иванов Иван")
		assert.False(t, ok)
	})
}

func TestNormalizeText(t *testing.T) {
	in := "a\u00a0b\u2007c\u202fd\u2009e\tf\r\ng\rh №1"
	assert.Equal(t, "a b c d e f\ng\nh №1", normalizeText(in))
}

func TestFirst(t *testing.T) {
	calls := 0
	strategies := []Strategy[int]{
		{Name: "miss", Fn: func(string) (int, bool) { calls++; return 0, false }},
		{Name: "hit", Fn: func(string) (int, bool) { calls++; return 1, true }},
		{Name: "never", Fn: func(string) (int, bool) { calls++; return 2, true }},
	}

	v, name, ok := First("", strategies)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, "hit", name)
	assert.Equal(t, 2, calls)
}

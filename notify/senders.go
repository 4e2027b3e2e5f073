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
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger *log.Entry
}

func (s LogSender) Send(_ context.Context, recipients []string, text string) bool {
	logger := s.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	logger.WithFields(log.Fields{
		"recipients": recipients,
		"text":       text,
	}).Info("notify_message")
	return true
}

const DefaultQueue = "certwatch.notify"

type AMQPConfig struct {
	URL   string
	Queue string
}

// Message is the body published for each notification.
type Message struct {
	Recipients []string  `json:"recipients"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// AMQPSender publishes each message to a durable queue, from which a chat
// bridge delivers it. A connection is opened per message.
type AMQPSender struct {
	cfg AMQPConfig
	log *log.Entry
	now func() time.Time
}

func NewAMQPSender(cfg AMQPConfig, logger *log.Entry) *AMQPSender {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}

	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &AMQPSender{
		cfg: cfg,
		log: logger.WithField("queue", cfg.Queue),
		now: time.Now,
	}
}

func (s *AMQPSender) Send(ctx context.Context, recipients []string, text string) bool {
	body, err := json.Marshal(Message{
		Recipients: recipients,
		Text:       text,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		s.log.WithError(err).Error("amqp_marshal_failed")
		return false
	}

	if err := s.publish(ctx, body); err != nil {
		s.log.WithError(err).Warn("amqp_publish_failed")
		return false
	}

	s.log.WithField("recipients", len(recipients)).Debug("amqp_published")
	return true
}

func (s *AMQPSender) publish(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, "", s.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    s.now().UTC(),
		Body:         body,
	})
}

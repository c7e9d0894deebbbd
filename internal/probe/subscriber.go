package probe

import (
	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// RecordHandler processes a received PacketRecord.
type RecordHandler func(record model.PacketRecord)

// Subscriber consumes the packet feed written by Publisher.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	log     *logrus.Entry
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.PublisherConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("ns-monitor-tail"))
	if err != nil {
		return nil, err
	}
	log := logging.For("subscriber")
	log.WithField("url", cfg.NATSURL).Info("Connected to NATS server")
	return &Subscriber{nc: nc, subject: cfg.Subject, log: log}, nil
}

// Start subscribes to the subject and hands every decodable record to handler.
func (s *Subscriber) Start(handler RecordHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		record, err := DecodeRecord(msg.Data)
		if err != nil {
			s.log.WithError(err).Warn("Dropping undecodable message")
			return
		}
		handler(record)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.WithField("subject", s.subject).Info("Subscribed, waiting for records")
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}

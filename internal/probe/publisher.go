package probe

import (
	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// Publisher is responsible for publishing packet records to a NATS subject.
type Publisher struct {
	nc      conn
	subject string
	log     *logrus.Entry
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.PublisherConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("ns-monitor"))
	if err != nil {
		return nil, err
	}
	log := logging.For("publisher")
	log.WithField("url", cfg.NATSURL).Info("Connected to NATS server")
	return &Publisher{nc: nc, subject: cfg.Subject, log: log}, nil
}

// Publish serializes a PacketRecord and publishes it to the configured subject.
func (p *Publisher) Publish(record model.PacketRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.log.WithError(err).Warn("Failed to drain NATS connection")
		return
	}
	p.log.Info("NATS connection drained and closed")
}

// Package events publishes a notification for every instance the SCP stores.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject stored-instance events are published on.
const DefaultSubject = "dicom.instance.stored"

// InstanceStored describes one instance accepted by the SCP.
type InstanceStored struct {
	AssociationID     string    `json:"association_id"`
	CallingAETitle    string    `json:"calling_ae_title"`
	CalledAETitle     string    `json:"called_ae_title"`
	SOPClassUID       string    `json:"sop_class_uid"`
	SOPInstanceUID    string    `json:"sop_instance_uid"`
	StudyInstanceUID  string    `json:"study_instance_uid"`
	SeriesInstanceUID string    `json:"series_instance_uid"`
	TransferSyntaxUID string    `json:"transfer_syntax_uid"`
	PatientName       string    `json:"patient_name,omitempty"`
	Location          string    `json:"location,omitempty"`
	Status            uint16    `json:"status"`
	Size              int       `json:"size"`
	StoredAt          time.Time `json:"stored_at"`
}

// Notifier receives stored-instance events.
type Notifier interface {
	InstanceStored(ctx context.Context, ev InstanceStored) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) InstanceStored(context.Context, InstanceStored) error { return nil }

// Publisher is the subset of *nats.Conn the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events as JSON on a NATS subject.
type NATSNotifier struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSNotifier connects to the NATS server at url and publishes on
// subject, or on DefaultSubject when subject is empty.
func NewNATSNotifier(url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("dicomstore"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	n := NewPublisherNotifier(conn, subject, logger)
	n.conn = conn
	return n, nil
}

// NewPublisherNotifier publishes through pub on subject.
func NewPublisherNotifier(pub Publisher, subject string, logger *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{pub: pub, subject: subject, logger: logger}
}

// InstanceStored publishes ev.
func (n *NATSNotifier) InstanceStored(ctx context.Context, ev InstanceStored) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	n.logger.DebugContext(ctx, "Published stored-instance event",
		"subject", n.subject,
		"sop_instance_uid", ev.SOPInstanceUID)
	return nil
}

// Close drains the connection opened by NewNATSNotifier.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

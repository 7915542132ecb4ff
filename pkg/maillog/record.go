package maillog

import (
	"slices"
	"time"

	"github.com/crimson-sun/maillog/internal/engine"
	"github.com/crimson-sun/maillog/internal/model"
)

// Record is one reconstructed mail transaction.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Record struct {
	Host      string    `json:"host"`
	SessionID string    `json:"sessionId"` // Postfix queue id
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  float64   `json:"duration"` // EndTime - StartTime, seconds

	ClientHost string `json:"clientHost"`
	ClientIP   string `json:"clientIp"`
	MessageID  string `json:"messageId"`
	Completed  bool   `json:"completed"` // qmgr removed the message

	SizeBytes      int64    `json:"sizeBytes"`
	EnvelopeFrom   string   `json:"envelopeFrom"`
	EnvelopeTo     []string `json:"envelopeTo"`
	RecipientCount int64    `json:"recipientCount"`
	OriginalTo     []string `json:"originalTo"`

	DeliveryStatusCode    []string `json:"deliveryStatusCode"`    // dsn=
	DeliveryDisposition   []string `json:"deliveryDisposition"`   // sent, deferred, bounced
	DeliveryDetailMessage []string `json:"deliveryDetailMessage"` // remainder of status=

	DelayTotal          float64 `json:"delayTotal"`
	BeforeQueueManager  float64 `json:"beforeQueueManager"`
	QueueManagerTime    float64 `json:"queueManagerTime"`
	ConnectionSetup     float64 `json:"connectionSetup"`
	MessageTransmission float64 `json:"messageTransmission"`

	RelayHost []string `json:"relayHost"`
	RelayIP   []string `json:"relayIp"`
	RelayPort []string `json:"relayPort"`

	SubsystemsSeen []string `json:"subsystemsSeen"`
}

// Stats summarizes one parse.
type Stats = engine.Stats

func recordFromModel(m *model.MailRecord) Record {
	return Record{
		Host:                  m.Host,
		SessionID:             m.SessionID,
		StartTime:             m.StartTime,
		EndTime:               m.EndTime,
		Duration:              m.Duration().Seconds(),
		ClientHost:            m.ClientHost,
		ClientIP:              m.ClientIP,
		MessageID:             m.MessageID,
		Completed:             m.Completed,
		SizeBytes:             m.SizeBytes,
		EnvelopeFrom:          m.EnvelopeFrom,
		EnvelopeTo:            slices.Clone(m.EnvelopeTo),
		RecipientCount:        m.RecipientCount,
		OriginalTo:            slices.Clone(m.OriginalTo),
		DeliveryStatusCode:    slices.Clone(m.DeliveryStatusCode),
		DeliveryDisposition:   slices.Clone(m.DeliveryDisposition),
		DeliveryDetailMessage: slices.Clone(m.DeliveryDetailMessage),
		DelayTotal:            m.DelayTotal,
		BeforeQueueManager:    m.BeforeQueueManager,
		QueueManagerTime:      m.QueueManagerTime,
		ConnectionSetup:       m.ConnectionSetup,
		MessageTransmission:   m.MessageTransmission,
		RelayHost:             slices.Clone(m.RelayHost),
		RelayIP:               slices.Clone(m.RelayIP),
		RelayPort:             slices.Clone(m.RelayPort),
		SubsystemsSeen:        slices.Clone(m.SubsystemsSeen),
	}
}

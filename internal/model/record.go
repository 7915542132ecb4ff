package model

import (
	"slices"
	"time"
)

// MailRecord is one reconstructed mail transaction, keyed by Host+SessionID.
//
// The five delivery slices (RelayHost, RelayIP, RelayPort,
// DeliveryStatusCode, DeliveryDisposition, DeliveryDetailMessage) are
// parallel per delivery attempt, except that a relay value without the
// host[ip]:port shape only lands in RelayHost.
type MailRecord struct {
	Host      string `json:"host"`
	SessionID string `json:"sessionId"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	ClientHost string `json:"clientHost"`
	ClientIP   string `json:"clientIp"`
	MessageID  string `json:"messageId"`
	Completed  bool   `json:"completed"`

	SizeBytes      int64    `json:"sizeBytes"`
	EnvelopeFrom   string   `json:"envelopeFrom"`
	EnvelopeTo     []string `json:"envelopeTo"`
	RecipientCount int64    `json:"recipientCount"`
	OriginalTo     []string `json:"originalTo"`

	DeliveryStatusCode    []string `json:"deliveryStatusCode"`
	DeliveryDisposition   []string `json:"deliveryDisposition"`
	DeliveryDetailMessage []string `json:"deliveryDetailMessage"`

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

// NewMailRecord returns an empty, open record for the given session key.
func NewMailRecord(host, sessionID string) *MailRecord {
	return &MailRecord{Host: host, SessionID: sessionID}
}

// Observe folds ts into the running StartTime/EndTime window.
func (r *MailRecord) Observe(ts time.Time) {
	if r.StartTime.IsZero() || ts.Before(r.StartTime) {
		r.StartTime = ts
	}
	if r.EndTime.IsZero() || ts.After(r.EndTime) {
		r.EndTime = ts
	}
}

// Duration is EndTime - StartTime.
func (r *MailRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Clone returns a deep copy of r.
func (r *MailRecord) Clone() *MailRecord {
	c := *r
	c.EnvelopeTo = slices.Clone(r.EnvelopeTo)
	c.OriginalTo = slices.Clone(r.OriginalTo)
	c.DeliveryStatusCode = slices.Clone(r.DeliveryStatusCode)
	c.DeliveryDisposition = slices.Clone(r.DeliveryDisposition)
	c.DeliveryDetailMessage = slices.Clone(r.DeliveryDetailMessage)
	c.RelayHost = slices.Clone(r.RelayHost)
	c.RelayIP = slices.Clone(r.RelayIP)
	c.RelayPort = slices.Clone(r.RelayPort)
	c.SubsystemsSeen = slices.Clone(r.SubsystemsSeen)
	return &c
}

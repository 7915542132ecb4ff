package grammar

import (
	"errors"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/crimson-sun/maillog/internal/model"
)

const separator = ", "

var (
	clientPattern = regexp.MustCompile(`([^\[]*)\[([^\]]*)\]`)
	relayPattern  = regexp.MustCompile(`([^\[]*)\[([^\]]*)\]:([0-9]*)`)
)

// Outcome reports what applying one payload did.
type Outcome struct {
	Terminal bool // qmgr "removed" was seen
	Warnings int  // numeric updates dropped
}

// token is one "key=value" (or bare "key") element of a payload.
type token struct {
	key      string
	value    string
	hasValue bool
}

type rule func(a *applier, rec *model.MailRecord, tok token)

// Set holds the rules for every reconstructible subsystem.
type Set struct {
	rules  map[model.Subsystem]rule
	logger *slog.Logger
}

// NewSet creates the rule set. Warnings go to logger, or slog.Default()
// when logger is nil.
func NewSet(logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		rules: map[model.Subsystem]rule{
			model.SMTPD:   connectionRule,
			model.Cleanup: submissionRule,
			model.QMgr:    queueManagerRule,
			model.SMTP:    deliveryRule,
			model.Local:   deliveryRule,
		},
		logger: logger,
	}
}

// Apply runs the rule for sub over every token of payload.
func (s *Set) Apply(rec *model.MailRecord, sub model.Subsystem, payload string) Outcome {
	r, ok := s.rules[sub]
	if !ok {
		return Outcome{}
	}
	a := &applier{logger: s.logger, rec: rec, sub: sub}
	for _, raw := range strings.Split(payload, separator) {
		key, value, hasValue := strings.Cut(raw, "=")
		r(a, rec, token{key: key, value: value, hasValue: hasValue})
	}
	return a.outcome
}

// applier carries per-payload state through the token loop.
type applier struct {
	logger  *slog.Logger
	rec     *model.MailRecord
	sub     model.Subsystem
	outcome Outcome
}

func (a *applier) warn(tok token, err error) {
	a.outcome.Warnings++
	a.logger.Warn("ignoring unparsable field",
		"host", a.rec.Host,
		"session_id", a.rec.SessionID,
		"subsystem", string(a.sub),
		"field", tok.key,
		"value", tok.value,
		"error", err)
}

func connectionRule(_ *applier, rec *model.MailRecord, tok token) {
	if !tok.hasValue || tok.key != "client" {
		return
	}
	if m := clientPattern.FindStringSubmatch(tok.value); m != nil {
		rec.ClientHost = m[1]
		rec.ClientIP = m[2]
	}
}

func submissionRule(_ *applier, rec *model.MailRecord, tok token) {
	if !tok.hasValue || tok.key != "message-id" {
		return
	}
	// "<>" is kept verbatim so "present but empty" differs from "absent".
	if tok.value == "<>" {
		rec.MessageID = tok.value
		return
	}
	rec.MessageID = StripAngles(tok.value)
}

func queueManagerRule(a *applier, rec *model.MailRecord, tok token) {
	if !tok.hasValue {
		if tok.key == "removed" {
			rec.Completed = true
			a.outcome.Terminal = true
		}
		return
	}
	switch tok.key {
	case "size":
		n, err := strconv.ParseInt(tok.value, 10, 64)
		if err != nil {
			a.warn(tok, err)
			return
		}
		rec.SizeBytes += n
	case "from":
		rec.EnvelopeFrom = StripAngles(tok.value)
	case "nrcpt":
		lead, _, _ := strings.Cut(tok.value, " ")
		n, err := strconv.ParseInt(lead, 10, 64)
		if err != nil {
			a.warn(tok, err)
			return
		}
		rec.RecipientCount += n
	}
}

func deliveryRule(a *applier, rec *model.MailRecord, tok token) {
	if !tok.hasValue {
		return
	}
	switch tok.key {
	case "orig_to":
		rec.OriginalTo = append(rec.OriginalTo, StripAngles(tok.value))
	case "to":
		rec.EnvelopeTo = append(rec.EnvelopeTo, StripAngles(tok.value))
	case "dsn":
		rec.DeliveryStatusCode = append(rec.DeliveryStatusCode, tok.value)
	case "status":
		words := strings.Fields(tok.value)
		var disposition, detail string
		if len(words) > 0 {
			disposition = words[0]
			detail = strings.Join(words[1:], " ")
		}
		rec.DeliveryDisposition = append(rec.DeliveryDisposition, disposition)
		rec.DeliveryDetailMessage = append(rec.DeliveryDetailMessage, detail)
	case "delay":
		f, err := parseFloat(tok.value)
		if err != nil {
			a.warn(tok, err)
			return
		}
		rec.DelayTotal += f
	case "delays":
		parts := strings.Split(tok.value, "/")
		if len(parts) != 4 {
			return
		}
		var phases [4]float64
		for i, p := range parts {
			f, err := parseFloat(p)
			if err != nil {
				a.warn(tok, err)
				return
			}
			phases[i] = f
		}
		rec.BeforeQueueManager = max(rec.BeforeQueueManager, phases[0])
		rec.QueueManagerTime = max(rec.QueueManagerTime, phases[1])
		rec.ConnectionSetup = max(rec.ConnectionSetup, phases[2])
		rec.MessageTransmission = max(rec.MessageTransmission, phases[3])
	case "relay":
		if m := relayPattern.FindStringSubmatch(tok.value); m != nil {
			rec.RelayHost = append(rec.RelayHost, m[1])
			rec.RelayIP = append(rec.RelayIP, m[2])
			rec.RelayPort = append(rec.RelayPort, m[3])
			return
		}
		rec.RelayHost = append(rec.RelayHost, tok.value)
	}
}

var errNotFinite = errors.New("not a finite number")

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

// StripAngles removes one leading '<' and one trailing '>', so "<>" becomes
// the empty string and "<user@x>" becomes "user@x".
func StripAngles(s string) string {
	s = strings.TrimPrefix(s, "<")
	return strings.TrimSuffix(s, ">")
}

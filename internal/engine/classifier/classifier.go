package classifier

import (
	"regexp"

	"github.com/crimson-sun/maillog/internal/model"
)

// linePattern matches
//
//	<Mon> <day> <hh>:<mm>:<ss> <host> <agent>/<subsystem>[<pid>]: <QUEUEID>: <payload>
//
// Syslog pads single-digit days with a second space.
var linePattern = regexp.MustCompile(
	`^([A-Z][a-z][a-z])  ?(\d+) (\d{2}):(\d{2}):(\d{2}) ([^ ]*) [\w.-]+/([\w-]+)\[\d+\]: ([0-9A-F]+):\s*(.*)$`)

// DefaultSubsystems are the subsystems whose lines feed reconstruction.
// Everything else (scache, anvil, trivial-rewrite, pickup, ...) is dropped.
var DefaultSubsystems = []model.Subsystem{
	model.SMTPD, model.Cleanup, model.QMgr, model.SMTP, model.Local,
}

// Classifier turns raw log lines into LogEvents.
type Classifier struct {
	accept map[model.Subsystem]bool
}

// New creates a Classifier accepting the given subsystems, or
// DefaultSubsystems when none are given.
func New(subsystems ...model.Subsystem) *Classifier {
	if len(subsystems) == 0 {
		subsystems = DefaultSubsystems
	}
	accept := make(map[model.Subsystem]bool, len(subsystems))
	for _, s := range subsystems {
		accept[s] = true
	}
	return &Classifier{accept: accept}
}

// Classify parses one line. ok is false when the line does not match the
// grammar or belongs to a subsystem the engine does not reconstruct.
func (c *Classifier) Classify(line string) (ev model.LogEvent, ok bool) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return model.LogEvent{}, false
	}
	sub := model.Subsystem(m[7])
	if !c.accept[sub] {
		return model.LogEvent{}, false
	}
	return model.LogEvent{
		Month:     m[1],
		Day:       m[2],
		Hour:      m[3],
		Minute:    m[4],
		Second:    m[5],
		Host:      m[6],
		Subsystem: sub,
		SessionID: m[8],
		Payload:   m[9],
	}, true
}

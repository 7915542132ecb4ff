package model

// Subsystem is the Postfix daemon that wrote a log line (the part after the
// slash in "postfix/qmgr[123]").
type Subsystem string

// Subsystems whose lines carry fields the engine reconstructs.
const (
	SMTPD   Subsystem = "smtpd"   // connection accept
	Cleanup Subsystem = "cleanup" // submission
	QMgr    Subsystem = "qmgr"    // queue manager, owns the terminal event
	SMTP    Subsystem = "smtp"    // remote delivery
	Local   Subsystem = "local"   // local delivery
)

// LogEvent is one classified log line. Timestamp components are kept as the
// raw matched text; resolving them needs the externally supplied year.
type LogEvent struct {
	Month     string
	Day       string
	Hour      string
	Minute    string
	Second    string
	Host      string
	Subsystem Subsystem
	SessionID string
	Payload   string
}

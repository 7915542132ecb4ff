// Package grammar applies the per-subsystem field rules that turn the free
// text payload of a Postfix log line into updates on a MailRecord.
//
// A payload is split on ", " into tokens and each token is split once on
// "=". Tokens a subsystem does not recognize are ignored, so new fields
// logged by later Postfix versions pass through harmlessly.
//
//	smtpd    client=<host>[<ip>]
//	cleanup  message-id=<id>
//	qmgr     from=<addr>, size=<n>, nrcpt=<n> ..., removed (terminal)
//	smtp     to=, orig_to=, relay=, delay=, delays=, dsn=, status=
//	local    same rules as smtp
//
// Numeric values that fail to parse are logged as warnings and dropped; the
// rest of the record is unaffected.
package grammar

// Package maillog reconstructs mail transactions from Postfix log lines.
//
// Lines of one message are scattered through the log and tied together only
// by host and queue id. The parser folds them into one Record per message
// and hands records back as the queue manager removes each message.
//
// Quick start:
//
//	res, err := maillog.Open("/var/log/maillog.1.gz", maillog.WithYear(2017))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer res.Close()
//
//	for rec, err := range res.Completed() {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(rec.SessionID, rec.EnvelopeFrom, rec.DeliveryDisposition)
//	}
//	for rec, err := range res.Incomplete() { ... }
//
// Completed must be drained before Incomplete. A Result is single-use and
// not safe for concurrent use; parse different files in parallel with
// separate Results.
package maillog

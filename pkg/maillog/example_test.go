package maillog_test

import (
	"fmt"
	"log"
	"strings"

	"github.com/crimson-sun/maillog/pkg/maillog"
)

func Example() {
	logs := `Jan  5 09:12:01 mx1 postfix/smtpd[1001]: 3A1B2C: client=mail.example.com[10.0.0.1]
Jan  5 09:12:01 mx1 postfix/qmgr[900]: 3A1B2C: from=<alice@example.com>, size=2048, nrcpt=1 (queue active)
Jan  5 09:12:03 mx1 postfix/smtp[1004]: 3A1B2C: to=<bob@remote.test>, relay=mx.remote.test[198.51.100.5]:25, delay=2.5, delays=0.1/0.01/0.9/1.1, dsn=2.0.0, status=sent (250 2.0.0 Ok)
Jan  5 09:12:04 mx1 postfix/qmgr[900]: 3A1B2C: removed
Jan  5 09:12:05 mx1 postfix/smtpd[1003]: 4D5E6F: client=unknown[192.0.2.44]
`
	res := maillog.Parse(strings.NewReader(logs), maillog.WithYear(2017))

	for rec, err := range res.Completed() {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s %s -> %v %v in %.0fs\n", rec.SessionID, rec.EnvelopeFrom, rec.EnvelopeTo, rec.DeliveryDisposition, rec.Duration)
	}
	for rec, err := range res.Incomplete() {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("incomplete: %s from %s\n", rec.SessionID, rec.ClientIP)
	}
	// Output:
	// 3A1B2C alice@example.com -> [bob@remote.test] [sent] in 3s
	// incomplete: 4D5E6F from 192.0.2.44
}

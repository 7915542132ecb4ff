package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/crimson-sun/maillog/internal/model"
)

// Encoder renders one record as one line of text, without the newline.
// Encoders are not safe for concurrent use.
type Encoder interface {
	// Header returns the line written once at the top of a file, or "".
	Header() string
	AppendRecord(dst []byte, rec *model.MailRecord) []byte
}

// Columns is the flat column order shared by the TSV and ORIG encoders.
var Columns = []string{
	"analyzed", "start", "end", "host", "qid", "from", "org_to", "to",
	"msg_id", "nrcpt", "relay_host", "relay_ip", "relay_port",
	"dsn", "status", "size", "client_host", "client_ip", "proc",
	"delay", "delay_before", "delay_qmgr", "delay_con", "delay_trans", "dur", "msg",
}

// origKeys are the short keys of the greppable ORIG line, parallel to Columns.
var origKeys = []string{
	"anlyzd", "start", "end", "host", "qid", "from", "org_to", "to",
	"msgid", "nrcpt", "rlyhost", "rlyip", "rlyprt",
	"dsn", "status", "size", "clhost", "clip", "proc",
	"delay", "dlybfr", "dlyqmgr", "dlycon", "dlytrns", "dur", "msg",
}

// NewEncoder returns the encoder registered under name: tsv, json or orig.
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case "tsv":
		return &TSV{}, nil
	case "json":
		return &JSON{}, nil
	case "orig":
		return &Orig{}, nil
	}
	return nil, fmt.Errorf("unknown export type: %s", name)
}

// Flatten returns rec as column values in Columns order. List fields are
// comma-joined.
func Flatten(rec *model.MailRecord) []string {
	return []string{
		strconv.FormatBool(rec.Completed),
		rec.StartTime.Format(time.RFC3339),
		rec.EndTime.Format(time.RFC3339),
		rec.Host,
		rec.SessionID,
		rec.EnvelopeFrom,
		strings.Join(rec.OriginalTo, ","),
		strings.Join(rec.EnvelopeTo, ","),
		rec.MessageID,
		strconv.FormatInt(rec.RecipientCount, 10),
		strings.Join(rec.RelayHost, ","),
		strings.Join(rec.RelayIP, ","),
		strings.Join(rec.RelayPort, ","),
		strings.Join(rec.DeliveryStatusCode, ","),
		strings.Join(rec.DeliveryDisposition, ","),
		strconv.FormatInt(rec.SizeBytes, 10),
		rec.ClientHost,
		rec.ClientIP,
		strings.Join(rec.SubsystemsSeen, ","),
		formatFloat(rec.DelayTotal),
		formatFloat(rec.BeforeQueueManager),
		formatFloat(rec.QueueManagerTime),
		formatFloat(rec.ConnectionSetup),
		formatFloat(rec.MessageTransmission),
		rec.Duration().String(),
		strings.Join(rec.DeliveryDetailMessage, ","),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var stripTabs = strings.NewReplacer("\t", "", "\n", "")

// TSV writes a header row and one tab-separated row per record.
type TSV struct{}

func (*TSV) Header() string { return strings.Join(Columns, "\t") }

func (*TSV) AppendRecord(dst []byte, rec *model.MailRecord) []byte {
	for i, v := range Flatten(rec) {
		if i > 0 {
			dst = append(dst, '\t')
		}
		dst = append(dst, stripTabs.Replace(v)...)
	}
	return dst
}

// Orig writes greppable key=value pairs separated by tabs, no header.
type Orig struct{}

func (*Orig) Header() string { return "" }

func (*Orig) AppendRecord(dst []byte, rec *model.MailRecord) []byte {
	for i, v := range Flatten(rec) {
		if i > 0 {
			dst = append(dst, '\t')
		}
		dst = append(dst, origKeys[i]...)
		dst = append(dst, '=')
		dst = append(dst, stripTabs.Replace(v)...)
	}
	return dst
}

// JSON writes one object per record using the stable field names, plus
// "duration" in seconds.
type JSON struct {
	a fastjson.Arena
}

func (*JSON) Header() string { return "" }

func (j *JSON) AppendRecord(dst []byte, rec *model.MailRecord) []byte {
	defer j.a.Reset()
	return j.value(rec).MarshalTo(dst)
}

// AppendArray renders entries as one JSON array. Each object carries the
// record fields plus "source" and "run_id" when the entry has them.
func (j *JSON) AppendArray(dst []byte, entries []Entry) []byte {
	defer j.a.Reset()
	arr := j.a.NewArray()
	for i, e := range entries {
		o := j.value(e.Record)
		if e.Source != "" {
			o.Set("source", j.a.NewString(e.Source))
		}
		if e.RunID != "" {
			o.Set("run_id", j.a.NewString(e.RunID))
		}
		arr.SetArrayItem(i, o)
	}
	return arr.MarshalTo(dst)
}

// value builds rec on the encoder's arena; valid until the next Reset.
func (j *JSON) value(rec *model.MailRecord) *fastjson.Value {
	a := &j.a
	o := a.NewObject()
	o.Set("host", a.NewString(rec.Host))
	o.Set("sessionId", a.NewString(rec.SessionID))
	o.Set("startTime", a.NewString(rec.StartTime.Format(time.RFC3339)))
	o.Set("endTime", a.NewString(rec.EndTime.Format(time.RFC3339)))
	o.Set("duration", a.NewNumberFloat64(rec.Duration().Seconds()))
	o.Set("clientHost", a.NewString(rec.ClientHost))
	o.Set("clientIp", a.NewString(rec.ClientIP))
	o.Set("messageId", a.NewString(rec.MessageID))
	o.Set("completed", j.bool(rec.Completed))
	o.Set("sizeBytes", a.NewNumberString(strconv.FormatInt(rec.SizeBytes, 10)))
	o.Set("envelopeFrom", a.NewString(rec.EnvelopeFrom))
	o.Set("envelopeTo", j.strings(rec.EnvelopeTo))
	o.Set("recipientCount", a.NewNumberString(strconv.FormatInt(rec.RecipientCount, 10)))
	o.Set("originalTo", j.strings(rec.OriginalTo))
	o.Set("deliveryStatusCode", j.strings(rec.DeliveryStatusCode))
	o.Set("deliveryDisposition", j.strings(rec.DeliveryDisposition))
	o.Set("deliveryDetailMessage", j.strings(rec.DeliveryDetailMessage))
	o.Set("delayTotal", a.NewNumberFloat64(rec.DelayTotal))
	o.Set("beforeQueueManager", a.NewNumberFloat64(rec.BeforeQueueManager))
	o.Set("queueManagerTime", a.NewNumberFloat64(rec.QueueManagerTime))
	o.Set("connectionSetup", a.NewNumberFloat64(rec.ConnectionSetup))
	o.Set("messageTransmission", a.NewNumberFloat64(rec.MessageTransmission))
	o.Set("relayHost", j.strings(rec.RelayHost))
	o.Set("relayIp", j.strings(rec.RelayIP))
	o.Set("relayPort", j.strings(rec.RelayPort))
	o.Set("subsystemsSeen", j.strings(rec.SubsystemsSeen))
	return o
}

func (j *JSON) bool(b bool) *fastjson.Value {
	if b {
		return j.a.NewTrue()
	}
	return j.a.NewFalse()
}

// strings always renders an array, never null.
func (j *JSON) strings(ss []string) *fastjson.Value {
	arr := j.a.NewArray()
	for i, s := range ss {
		arr.SetArrayItem(i, j.a.NewString(s))
	}
	return arr
}

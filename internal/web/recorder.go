package web

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/joestump/slackbridge/internal/db"
	"github.com/joestump/slackbridge/internal/dispatch"
	"github.com/joestump/slackbridge/internal/redact"
)

// Publisher receives serialized delivery records for live subscribers.
type Publisher interface {
	Publish(line string)
}

// Recorder is a dispatch.Observer that persists each delivery and publishes
// it to the live stream. Either sink may be nil.
type Recorder struct {
	db     *db.DB
	pub    Publisher
	filter atomic.Pointer[redact.Filter]
}

// NewRecorder returns a Recorder writing to database and pub. Details are
// passed through filter before they leave the process; a nil filter still
// masks Slack tokens.
func NewRecorder(database *db.DB, pub Publisher, filter *redact.Filter) *Recorder {
	rec := &Recorder{db: database, pub: pub}
	rec.filter.Store(filter)
	return rec
}

// SetFilter replaces the redaction filter, e.g. after credentials rotate.
func (rec *Recorder) SetFilter(filter *redact.Filter) {
	rec.filter.Store(filter)
}

// ObserveDelivery stores d and publishes it. Failures are logged and never
// reach the caller.
func (rec *Recorder) ObserveDelivery(_ context.Context, d dispatch.Delivery) {
	row := db.Delivery{
		RequestID:   d.RequestID,
		ReceivedAt:  d.ReceivedAt.UTC().Format(time.RFC3339),
		PayloadType: d.PayloadType,
		EventType:   d.EventType,
		Channel:     d.Channel,
		Outcome:     d.Outcome,
		Status:      d.Status,
		Detail:      rec.filter.Load().Redact(d.Detail),
		RetryNum:    d.RetryNum,
	}

	if rec.db != nil {
		id, err := rec.db.InsertDelivery(&row)
		if err != nil {
			log.Printf("recorder: store delivery %s: %v", d.RequestID, err)
		} else {
			row.ID = id
		}
	}

	if rec.pub == nil {
		return
	}
	b, err := json.Marshal(toAPIDelivery(row))
	if err != nil {
		log.Printf("recorder: encode delivery %s: %v", d.RequestID, err)
		return
	}
	rec.pub.Publish(string(b))
}

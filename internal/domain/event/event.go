// Package event defines the change notifications produced by the order and
// settlement services. Events are recorded in the same transaction as the
// mutation that caused them and delivered later by the outbox dispatcher.
package event

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
)

// Type names a kind of change.
type Type string

const (
	OrderCreated  Type = "order.created"
	OrderUpdated  Type = "order.updated"
	OrderDeleted  Type = "order.deleted"
	ItemUpdated   Type = "order.item_updated"
	SaleCreated   Type = "sale.created"
	ReceiptIssued Type = "receipt.issued"
)

// Event is a committed change, addressed by the aggregate it belongs to.
type Event struct {
	ID          string
	Type        Type
	AggregateID string
	Attrs       map[string]string
	CreatedAt   time.Time
}

// New returns an event with a fresh id.
func New(t Type, aggregateID string, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		AggregateID: aggregateID,
		Attrs:       attrs,
		CreatedAt:   at,
	}
}

// Recorder appends events to the outbox. Implementations must write through
// the transaction carried by ctx, if any.
type Recorder interface {
	Record(ctx context.Context, events ...Event) error
}

// Encode renders the event as the JSON document delivered to consumers.
// Attribute keys are written in sorted order.
func (e Event) Encode() []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("id")
	enc.Str(e.ID)
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("aggregateId")
	enc.Str(e.AggregateID)
	enc.FieldStart("createdAt")
	enc.Str(e.CreatedAt.UTC().Format(time.RFC3339Nano))
	enc.FieldStart("attrs")
	enc.ObjStart()
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.FieldStart(k)
		enc.Str(e.Attrs[k])
	}
	enc.ObjEnd()
	enc.ObjEnd()
	return enc.Bytes()
}

// Decode parses a document produced by Encode.
func Decode(data []byte) (Event, error) {
	var e Event
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Str()
			e.ID = v
			return err
		case "type":
			v, err := d.Str()
			e.Type = Type(v)
			return err
		case "aggregateId":
			v, err := d.Str()
			e.AggregateID = v
			return err
		case "createdAt":
			v, err := d.Str()
			if err != nil {
				return err
			}
			e.CreatedAt, err = time.Parse(time.RFC3339Nano, v)
			return err
		case "attrs":
			e.Attrs = map[string]string{}
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				v, err := d.Str()
				e.Attrs[string(key)] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	return e, nil
}

package handler

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/receipt"
	"github.com/xenking/comanda/internal/domain/report"
	"github.com/xenking/comanda/internal/domain/settlement"
)

const maxBodySize = 1 << 20

// decodeBody reads a JSON object from the request and hands every field to
// fn. Values that do not decode are reported as validation errors on the
// field path.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	if len(data) == 0 {
		return errors.Wrap(errBadRequest, "empty body")
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return errors.Wrap(errBadRequest, "expected JSON object")
	}
	if err := d.Obj(fn); err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

// fieldErr reports a value that failed to decode against its path.
func fieldErr(path string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.Validation(path, "invalid value")
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeMoney accepts a JSON number or a numeric string.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("expected number")
	}
}

func decodeItemInputs(d *jx.Decoder) ([]order.ItemInput, error) {
	items := []order.ItemInput{}
	i := 0
	err := d.Arr(func(d *jx.Decoder) error {
		prefix := fmt.Sprintf("items[%d].", i)
		var it order.ItemInput
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				it.ID, err = optStr(d)
			case "menuItemId":
				it.MenuItemID, err = d.Str()
			case "menuItemName":
				it.Name, err = d.Str()
			case "unitPrice":
				it.UnitPrice, err = decodeMoney(d)
			case "quantity":
				it.Quantity, err = d.Int()
			case "notes":
				it.Notes, err = optStr(d)
			default:
				return d.Skip()
			}
			return fieldErr(prefix+key, err)
		})
		if err != nil {
			return err
		}
		items = append(items, it)
		i++
		return nil
	})
	return items, err
}

func decodeSelections(d *jx.Decoder) ([]settlement.Selection, error) {
	var sel []settlement.Selection
	i := 0
	err := d.Arr(func(d *jx.Decoder) error {
		prefix := fmt.Sprintf("items[%d].", i)
		var s settlement.Selection
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "itemId":
				s.ItemID, err = optStr(d)
			case "menuItemId":
				s.MenuItemID, err = optStr(d)
			case "quantity":
				s.Quantity, err = d.Int()
			default:
				return d.Skip()
			}
			return fieldErr(prefix+key, err)
		})
		if err != nil {
			return err
		}
		sel = append(sel, s)
		i++
		return nil
	})
	return sel, err
}

func money(e *jx.Encoder, v decimal.Decimal) {
	e.RawStr(v.StringFixed(2))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("orderType")
	e.Str(string(o.Type))
	if o.TableNumber != "" {
		e.FieldStart("tableNumber")
		e.Str(o.TableNumber)
	}
	if o.CustomerName != "" {
		e.FieldStart("customerName")
		e.Str(o.CustomerName)
	}
	if o.SettlementOf != "" {
		e.FieldStart("settlementOf")
		e.Str(o.SettlementOf)
	}
	e.FieldStart("total")
	money(e, o.Total())
	e.FieldStart("createdAt")
	timestamp(e, o.CreatedAt)
	e.FieldStart("timestamp")
	timestamp(e, o.UpdatedAt)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("menuItemId")
		e.Str(it.MenuItemID)
		e.FieldStart("menuItemName")
		e.Str(it.Name)
		e.FieldStart("unitPrice")
		money(e, it.UnitPrice)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		if it.Notes != "" {
			e.FieldStart("notes")
			e.Str(it.Notes)
		}
		e.FieldStart("itemStatus")
		e.Str(string(it.Status))
		e.FieldStart("lineTotal")
		money(e, it.LineTotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodePage(e *jx.Encoder, p *order.Page) {
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range p.Orders {
		encodeOrder(e, &p.Orders[i])
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Int(p.Total)
	e.FieldStart("page")
	e.Int(p.Page)
	e.FieldStart("limit")
	e.Int(p.Limit)
	e.ObjEnd()
}

func encodeSale(e *jx.Encoder, s *settlement.Sale) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("number")
	e.Int64(s.Number)
	e.FieldStart("orderId")
	e.Str(s.OrderID)
	e.FieldStart("paymentMethod")
	e.Str(string(s.PaymentMethod))
	e.FieldStart("totalAmount")
	money(e, s.TotalAmount)
	e.FieldStart("isReceiptIssued")
	e.Bool(s.IsReceiptIssued)
	e.FieldStart("createdAt")
	timestamp(e, s.CreatedAt)
	e.ObjEnd()
}

func encodeResult(e *jx.Encoder, res *settlement.Result) {
	e.ObjStart()
	e.FieldStart("sale")
	encodeSale(e, res.Sale)
	e.FieldStart("isPartialPayment")
	e.Bool(res.IsPartialPayment)
	e.FieldStart("originalOrderId")
	e.Str(res.OriginalOrderID)
	e.FieldStart("settlementOrderId")
	e.Str(res.SettlementOrderID)
	if res.Original != nil {
		e.FieldStart("originalOrder")
		encodeOrder(e, res.Original)
	}
	if res.SettlementOrder != nil {
		e.FieldStart("settlementOrder")
		encodeOrder(e, res.SettlementOrder)
	}
	e.ObjEnd()
}

func encodeReceipt(e *jx.Encoder, rc *receipt.Receipt) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(rc.ID)
	e.FieldStart("saleId")
	e.Str(rc.SaleID)
	e.FieldStart("orderId")
	e.Str(rc.OrderID)
	e.FieldStart("receiptNumber")
	e.Str(rc.Number)
	e.FieldStart("paymentMethod")
	e.Str(string(rc.PaymentMethod))
	e.FieldStart("subtotal")
	money(e, rc.Subtotal)
	e.FieldStart("tax")
	money(e, rc.Tax)
	e.FieldStart("total")
	money(e, rc.Total)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range rc.Items {
		e.ObjStart()
		e.FieldStart("menuItemId")
		e.Str(l.MenuItemID)
		e.FieldStart("menuItemName")
		e.Str(l.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		money(e, l.UnitPrice)
		e.FieldStart("total")
		money(e, l.Total)
		if l.Notes != "" {
			e.FieldStart("notes")
			e.Str(l.Notes)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("issuedAt")
	timestamp(e, rc.IssuedAt)
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s *report.Summary) {
	e.ObjStart()
	e.FieldStart("from")
	timestamp(e, s.From)
	e.FieldStart("to")
	timestamp(e, s.To)
	e.FieldStart("orders")
	e.Int(s.Orders())
	e.FieldStart("ordersByStatus")
	e.ObjStart()
	for _, st := range []order.Status{order.StatusPending, order.StatusReady, order.StatusDelivered, order.StatusPaid} {
		e.FieldStart(string(st))
		e.Int(s.OrdersByStatus[st])
	}
	e.ObjEnd()
	e.FieldStart("sales")
	e.Int(s.Sales)
	e.FieldStart("revenue")
	money(e, s.Revenue)
	e.FieldStart("averageTicket")
	money(e, s.AverageTicket())
	e.FieldStart("byPaymentMethod")
	e.ObjStart()
	methods := make([]string, 0, len(s.ByPaymentMethod))
	for m := range s.ByPaymentMethod {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		e.FieldStart(m)
		money(e, s.ByPaymentMethod[settlement.PaymentMethod(m)])
	}
	e.ObjEnd()
	e.ObjEnd()
}

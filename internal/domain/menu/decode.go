package menu

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Decode parses a JSON array of catalog entries:
//
//	[{"id": "lomo", "name": "Lomo Saltado", "price": "30.00", "category": "Fondos"}]
//
// Prices may be numbers or strings. Entries are available unless
// "available" is false.
func Decode(data []byte) ([]Item, error) {
	var items []Item
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		it := Item{Available: true}
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				it.ID, err = d.Str()
			case "name":
				it.Name, err = d.Str()
			case "category":
				it.Category, err = d.Str()
			case "available":
				it.Available, err = d.Bool()
			case "price":
				it.Price, err = decodePrice(d)
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		}); err != nil {
			return err
		}
		if it.ID == "" || it.Name == "" {
			return errors.Errorf("menu item %d: id and name are required", len(items))
		}
		if !it.Price.IsPositive() {
			return errors.Errorf("menu item %s: price must be positive", it.ID)
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode menu")
	}
	return items, nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

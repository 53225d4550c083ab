package order

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/apperr"
)

// ItemInput is a caller-supplied order line. ID is set only when editing an
// existing line.
type ItemInput struct {
	ID         string          `json:"id"`
	MenuItemID string          `json:"menuItemId" validate:"required,max=64"`
	Name       string          `json:"menuItemName" validate:"required,max=200"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Quantity   int             `json:"quantity" validate:"gt=0,lte=1000"`
	Notes      string          `json:"notes" validate:"max=500"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateItems checks every input line and reports the first offending
// field as items[i].<field>.
func (s *Service) validateItems(ctx context.Context, items []ItemInput) error {
	if len(items) == 0 {
		return apperr.Validation("items", "at least one item is required")
	}

	ids := make([]string, 0, len(items))
	for i, it := range items {
		if err := s.validate.Struct(it); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				fe := fieldErrs[0]
				return apperr.Validation(fmt.Sprintf("items[%d].%s", i, fe.Field()), "%s", describe(fe))
			}
			return errors.Wrap(err, "validate item")
		}
		if !it.UnitPrice.IsPositive() {
			return apperr.Validation(fmt.Sprintf("items[%d].unitPrice", i), "must be greater than 0")
		}
		if !it.UnitPrice.Equal(it.UnitPrice.Round(2)) {
			return apperr.Validation(fmt.Sprintf("items[%d].unitPrice", i), "must have at most 2 decimal places")
		}
		ids = append(ids, it.MenuItemID)
	}

	if s.catalog == nil {
		return nil
	}
	known, err := s.catalog.Lookup(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "lookup menu items")
	}
	for i, it := range items {
		m, ok := known[it.MenuItemID]
		if !ok {
			return apperr.Validation(fmt.Sprintf("items[%d].menuItemId", i), "menu item %s does not exist", it.MenuItemID)
		}
		if !m.Available {
			return apperr.Validation(fmt.Sprintf("items[%d].menuItemId", i), "menu item %s is not available", it.MenuItemID)
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// CreateRequest is the input of Service.Create.
type CreateRequest struct {
	Items        []ItemInput
	Type         Type
	TableNumber  string
	CustomerName string
}

func (s *Service) validateCreate(ctx context.Context, req *CreateRequest) error {
	if !req.Type.Valid() {
		return apperr.Validation("orderType", "must be %s or %s", TypeDineIn, TypeTakeaway)
	}
	req.TableNumber = strings.TrimSpace(req.TableNumber)
	req.CustomerName = strings.TrimSpace(req.CustomerName)

	switch req.Type {
	case TypeDineIn:
		if req.TableNumber == "" {
			return apperr.Validation("tableNumber", "is required for %s orders", TypeDineIn)
		}
		req.CustomerName = ""
	case TypeTakeaway:
		req.TableNumber = ""
	}

	return s.validateItems(ctx, req.Items)
}

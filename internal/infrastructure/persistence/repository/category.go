package repository

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/garyjia/expense-portal/internal/domain/entity"
)

// keyColumn copies one payload field into an indexed column
type keyColumn struct {
	column string
	field  string
}

// category describes the table backing one form type
type category struct {
	table        string
	amountColumn string
	keys         []keyColumn
}

var categories = map[entity.FormType]category{
	entity.FormTypeCashPayment: {
		table:        "cash_payments",
		amountColumn: "total_expenses",
		keys:         []keyColumn{{"voucher_no", "voucherNo"}, {"department", "department"}},
	},
	entity.FormTypeLocalTravel: {
		table:        "local_travels",
		amountColumn: "total_expenses",
		keys:         []keyColumn{{"travel_date", "date"}, {"mode_of_transport", "modeOfTransport"}},
	},
	entity.FormTypeOutstationTravel: {
		table:        "outstation_travels",
		amountColumn: "total_expenses",
		keys:         []keyColumn{{"destination", "destination"}, {"departure_date", "departureDate"}},
	},
	entity.FormTypeVendorPayment: {
		table:        "vendor_payments",
		amountColumn: "total_expenses",
		keys:         []keyColumn{{"vendor_name", "vendorName"}, {"invoice_no", "invoiceNo"}},
	},
	entity.FormTypeReimbursement: {
		table:        "reimbursements",
		amountColumn: "amount",
		keys:         []keyColumn{{"purpose", "purpose"}, {"category", "category"}},
	},
}

func categoryFor(formType entity.FormType) (category, error) {
	c, ok := categories[formType]
	if !ok {
		return category{}, &entity.ErrUnknownFormType{FormType: string(formType)}
	}
	return c, nil
}

// keyValues extracts the indexed columns from a raw payload
func (c category) keyValues(raw json.RawMessage) ([]interface{}, error) {
	fields := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode form data: %w", err)
		}
	}

	values := make([]interface{}, len(c.keys))
	for i, k := range c.keys {
		values[i] = stringField(fields[k.field])
	}
	return values, nil
}

func stringField(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

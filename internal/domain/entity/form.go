package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Form is the category-specific payload of a submission
type Form interface {
	FormType() FormType
	// MissingFields lists required fields that are empty
	MissingFields() []string
	Employee() string
	Total() float64
	LineItems() []Bill
	ProofRefs() []string
}

// MissingFieldsError reports required form fields that were not supplied
type MissingFieldsError struct {
	FormType FormType
	Fields   []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s: missing required fields: %s", e.FormType, strings.Join(e.Fields, ", "))
}

// ErrUnknownFormType is returned when a submission names no known category
type ErrUnknownFormType struct {
	FormType string
}

func (e *ErrUnknownFormType) Error() string {
	return fmt.Sprintf("unknown form type: %q", e.FormType)
}

// DecodeForm decodes a raw payload into the form struct for its category
func DecodeForm(formType FormType, raw json.RawMessage) (Form, error) {
	var form Form
	switch formType {
	case FormTypeCashPayment:
		form = &CashPaymentForm{}
	case FormTypeLocalTravel:
		form = &LocalTravelForm{}
	case FormTypeOutstationTravel:
		form = &OutstationTravelForm{}
	case FormTypeVendorPayment:
		form = &VendorPaymentForm{}
	case FormTypeReimbursement:
		form = &ReimbursementForm{}
	default:
		return nil, &ErrUnknownFormType{FormType: string(formType)}
	}

	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, form); err != nil {
		return nil, fmt.Errorf("decode %s form: %w", formType, err)
	}
	return form, nil
}

// ValidateForm returns a *MissingFieldsError if any required field is empty
func ValidateForm(form Form) error {
	if missing := form.MissingFields(); len(missing) > 0 {
		return &MissingFieldsError{FormType: form.FormType(), Fields: missing}
	}
	return nil
}

// CashPaymentForm is a petty-cash payment voucher
type CashPaymentForm struct {
	EmployeeName  string   `json:"employeeName"`
	VoucherNo     string   `json:"voucherNo"`
	Department    string   `json:"department,omitempty"`
	PaidTo        string   `json:"paidTo,omitempty"`
	Date          string   `json:"date,omitempty"`
	Purpose       string   `json:"purpose,omitempty"`
	Bills         []Bill   `json:"bills,omitempty"`
	TotalExpenses *Amount  `json:"totalExpenses,omitempty"`
	Proofs        []string `json:"proofs,omitempty"`
}

func (f *CashPaymentForm) FormType() FormType { return FormTypeCashPayment }
func (f *CashPaymentForm) Employee() string   { return f.EmployeeName }
func (f *CashPaymentForm) LineItems() []Bill  { return f.Bills }
func (f *CashPaymentForm) Total() float64     { return totalOf(f.TotalExpenses, f.Bills) }
func (f *CashPaymentForm) ProofRefs() []string {
	return collectProofs(f.Proofs, f.Bills)
}

func (f *CashPaymentForm) MissingFields() []string {
	return required(map[string]string{
		"employeeName": f.EmployeeName,
		"voucherNo":    f.VoucherNo,
	})
}

// LocalTravelForm is an in-city conveyance claim
type LocalTravelForm struct {
	EmployeeName    string   `json:"employeeName"`
	Date            string   `json:"date"`
	Department      string   `json:"department,omitempty"`
	FromLocation    string   `json:"fromLocation,omitempty"`
	ToLocation      string   `json:"toLocation,omitempty"`
	ModeOfTransport string   `json:"modeOfTransport,omitempty"`
	Distance        Amount   `json:"distance,omitempty"`
	Bills           []Bill   `json:"bills,omitempty"`
	TotalExpenses   *Amount  `json:"totalExpenses,omitempty"`
	Proofs          []string `json:"proofs,omitempty"`
}

func (f *LocalTravelForm) FormType() FormType { return FormTypeLocalTravel }
func (f *LocalTravelForm) Employee() string   { return f.EmployeeName }
func (f *LocalTravelForm) LineItems() []Bill  { return f.Bills }
func (f *LocalTravelForm) Total() float64     { return totalOf(f.TotalExpenses, f.Bills) }
func (f *LocalTravelForm) ProofRefs() []string {
	return collectProofs(f.Proofs, f.Bills)
}

func (f *LocalTravelForm) MissingFields() []string {
	return required(map[string]string{
		"employeeName": f.EmployeeName,
		"date":         f.Date,
	})
}

// OutstationTravelForm is a trip claim with travel, lodging and daily allowance bills
type OutstationTravelForm struct {
	EmployeeName  string   `json:"employeeName"`
	Destination   string   `json:"destination"`
	Purpose       string   `json:"purpose,omitempty"`
	DepartureDate string   `json:"departureDate,omitempty"`
	ReturnDate    string   `json:"returnDate,omitempty"`
	AdvanceTaken  Amount   `json:"advanceTaken,omitempty"`
	Bills         []Bill   `json:"bills,omitempty"`
	TotalExpenses *Amount  `json:"totalExpenses,omitempty"`
	Proofs        []string `json:"proofs,omitempty"`
}

func (f *OutstationTravelForm) FormType() FormType { return FormTypeOutstationTravel }
func (f *OutstationTravelForm) Employee() string   { return f.EmployeeName }
func (f *OutstationTravelForm) LineItems() []Bill  { return f.Bills }
func (f *OutstationTravelForm) Total() float64     { return totalOf(f.TotalExpenses, f.Bills) }
func (f *OutstationTravelForm) ProofRefs() []string {
	return collectProofs(f.Proofs, f.Bills)
}

func (f *OutstationTravelForm) MissingFields() []string {
	return required(map[string]string{
		"employeeName": f.EmployeeName,
		"destination":  f.Destination,
	})
}

// VendorPaymentForm requests payment of a vendor invoice
type VendorPaymentForm struct {
	VendorName    string   `json:"vendorName"`
	InvoiceNo     string   `json:"invoiceNo"`
	InvoiceDate   string   `json:"invoiceDate,omitempty"`
	EmployeeName  string   `json:"employeeName,omitempty"`
	Description   string   `json:"description,omitempty"`
	BankAccount   string   `json:"bankAccount,omitempty"`
	Bills         []Bill   `json:"bills,omitempty"`
	TotalExpenses *Amount  `json:"totalExpenses,omitempty"`
	Proofs        []string `json:"proofs,omitempty"`
}

func (f *VendorPaymentForm) FormType() FormType { return FormTypeVendorPayment }
func (f *VendorPaymentForm) Employee() string   { return f.EmployeeName }
func (f *VendorPaymentForm) LineItems() []Bill  { return f.Bills }
func (f *VendorPaymentForm) Total() float64     { return totalOf(f.TotalExpenses, f.Bills) }
func (f *VendorPaymentForm) ProofRefs() []string {
	return collectProofs(f.Proofs, f.Bills)
}

func (f *VendorPaymentForm) MissingFields() []string {
	return required(map[string]string{
		"vendorName": f.VendorName,
		"invoiceNo":  f.InvoiceNo,
	})
}

// ReimbursementForm is a generic out-of-pocket claim
type ReimbursementForm struct {
	EmployeeName string   `json:"employeeName"`
	Purpose      string   `json:"purpose"`
	Category     string   `json:"category,omitempty"`
	ExpenseDate  string   `json:"expenseDate,omitempty"`
	Bills        []Bill   `json:"bills,omitempty"`
	Amount       *Amount  `json:"amount,omitempty"`
	Proofs       []string `json:"proofs,omitempty"`
}

func (f *ReimbursementForm) FormType() FormType { return FormTypeReimbursement }
func (f *ReimbursementForm) Employee() string   { return f.EmployeeName }
func (f *ReimbursementForm) LineItems() []Bill  { return f.Bills }
func (f *ReimbursementForm) Total() float64     { return totalOf(f.Amount, f.Bills) }
func (f *ReimbursementForm) ProofRefs() []string {
	return collectProofs(f.Proofs, f.Bills)
}

func (f *ReimbursementForm) MissingFields() []string {
	return required(map[string]string{
		"employeeName": f.EmployeeName,
		"purpose":      f.Purpose,
	})
}

// totalOf prefers the declared total and falls back to the bill sum
func totalOf(declared *Amount, bills []Bill) float64 {
	if declared != nil {
		return declared.Float64()
	}
	values := make([]float64, 0, len(bills))
	for _, b := range bills {
		values = append(values, b.Amount.Float64())
	}
	return SumAmounts(values...)
}

func collectProofs(top []string, bills []Bill) []string {
	proofs := make([]string, 0, len(top)+len(bills))
	seen := make(map[string]bool)
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		proofs = append(proofs, p)
	}
	for _, p := range top {
		add(p)
	}
	for _, b := range bills {
		add(b.Proof)
	}
	return proofs
}

// required returns the sorted names of empty fields
func required(fields map[string]string) []string {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

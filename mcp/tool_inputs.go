package mcp

import (
	"fmt"
	"net/mail"
	"strings"
)

// Optional fields are pointers so an explicit false or 0 is forwarded to
// Crater while an absent field is omitted from the request body.

type emptyInput struct{}

type listInput struct {
	Limit int64  `json:"limit,omitempty" jsonschema:"Maximum number of records per page"`
	Page  int64  `json:"page,omitempty" jsonschema:"Page number, starting at 1"`
	Query string `json:"query,omitempty" jsonschema:"Search query"`
}

type idInput struct {
	ID int64 `json:"id" jsonschema:"Record ID"`
}

type deleteInput struct {
	IDs []int64 `json:"ids" jsonschema:"Array of record IDs to delete"`
}

func (in deleteInput) Validate() error {
	if len(in.IDs) == 0 {
		return fmt.Errorf("ids must contain at least one id")
	}
	return nil
}

type addressInput struct {
	Name           *string `json:"name,omitempty"`
	AddressStreet1 *string `json:"address_street_1,omitempty"`
	AddressStreet2 *string `json:"address_street_2,omitempty"`
	City           *string `json:"city,omitempty"`
	State          *string `json:"state,omitempty"`
	CountryID      *int64  `json:"country_id,omitempty"`
	Zip            *string `json:"zip,omitempty"`
	Phone          *string `json:"phone,omitempty"`
}

type createCustomerInput struct {
	Name         string        `json:"name" jsonschema:"Customer Name"`
	Email        *string       `json:"email,omitempty" jsonschema:"Customer Email"`
	CurrencyID   *int64        `json:"currency_id,omitempty"`
	Password     *string       `json:"password,omitempty" jsonschema:"Customer portal password"`
	Phone        *string       `json:"phone,omitempty"`
	CompanyName  *string       `json:"company_name,omitempty"`
	ContactName  *string       `json:"contact_name,omitempty"`
	Website      *string       `json:"website,omitempty"`
	EnablePortal *bool         `json:"enable_portal,omitempty"`
	Billing      *addressInput `json:"billing,omitempty" jsonschema:"Billing address"`
	Shipping     *addressInput `json:"shipping,omitempty" jsonschema:"Shipping address"`
}

func (in createCustomerInput) Validate() error {
	return validateEmail("email", in.Email)
}

type updateCustomerInput struct {
	ID           int64   `json:"id" jsonschema:"Customer ID"`
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	CurrencyID   *int64  `json:"currency_id,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	CompanyName  *string `json:"company_name,omitempty"`
	ContactName  *string `json:"contact_name,omitempty"`
	Website      *string `json:"website,omitempty"`
	EnablePortal *bool   `json:"enable_portal,omitempty"`
}

func (in updateCustomerInput) Validate() error {
	return validateEmail("email", in.Email)
}

type lineItemInput struct {
	Name        string  `json:"name" jsonschema:"Item name"`
	Quantity    float64 `json:"quantity" jsonschema:"Quantity"`
	Price       float64 `json:"price" jsonschema:"Unit price"`
	Description *string `json:"description,omitempty"`
	UnitID      *int64  `json:"unit_id,omitempty"`
}

type createInvoiceInput struct {
	InvoiceDate   string          `json:"invoice_date" jsonschema:"Invoice Date (YYYY-MM-DD)"`
	DueDate       *string         `json:"due_date,omitempty" jsonschema:"Due Date (YYYY-MM-DD)"`
	CustomerID    int64           `json:"customer_id" jsonschema:"Customer ID"`
	InvoiceNumber string          `json:"invoice_number" jsonschema:"Invoice Number"`
	Discount      *float64        `json:"discount,omitempty"`
	DiscountVal   *float64        `json:"discount_val,omitempty"`
	SubTotal      *float64        `json:"sub_total,omitempty"`
	Total         *float64        `json:"total,omitempty"`
	Tax           *float64        `json:"tax,omitempty"`
	TemplateName  *string         `json:"template_name,omitempty" jsonschema:"PDF template name"`
	Items         []lineItemInput `json:"items" jsonschema:"Line items"`
}

type updateInvoiceInput struct {
	ID            int64           `json:"id" jsonschema:"Invoice ID"`
	InvoiceDate   *string         `json:"invoice_date,omitempty"`
	DueDate       *string         `json:"due_date,omitempty"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	InvoiceNumber *string         `json:"invoice_number,omitempty"`
	Discount      *float64        `json:"discount,omitempty"`
	DiscountVal   *float64        `json:"discount_val,omitempty"`
	SubTotal      *float64        `json:"sub_total,omitempty"`
	Total         *float64        `json:"total,omitempty"`
	Tax           *float64        `json:"tax,omitempty"`
	Items         []lineItemInput `json:"items,omitempty"`
}

type sendInvoiceInput struct {
	ID      int64   `json:"id" jsonschema:"Invoice ID"`
	To      *string `json:"to,omitempty" jsonschema:"Recipient email, defaults to the customer's address"`
	Subject *string `json:"subject,omitempty"`
	Message *string `json:"message,omitempty"`
}

func (in sendInvoiceInput) Validate() error {
	return validateEmail("to", in.To)
}

type createEstimateInput struct {
	EstimateDate   string          `json:"estimate_date" jsonschema:"Estimate Date (YYYY-MM-DD)"`
	ExpiryDate     *string         `json:"expiry_date,omitempty" jsonschema:"Expiry Date (YYYY-MM-DD)"`
	CustomerID     int64           `json:"customer_id" jsonschema:"Customer ID"`
	EstimateNumber string          `json:"estimate_number" jsonschema:"Estimate Number"`
	Discount       *float64        `json:"discount,omitempty"`
	DiscountVal    *float64        `json:"discount_val,omitempty"`
	SubTotal       *float64        `json:"sub_total,omitempty"`
	Total          *float64        `json:"total,omitempty"`
	Tax            *float64        `json:"tax,omitempty"`
	TemplateName   *string         `json:"template_name,omitempty" jsonschema:"PDF template name"`
	Items          []lineItemInput `json:"items" jsonschema:"Line items"`
}

type updateEstimateInput struct {
	ID             int64           `json:"id" jsonschema:"Estimate ID"`
	EstimateDate   *string         `json:"estimate_date,omitempty"`
	ExpiryDate     *string         `json:"expiry_date,omitempty"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	EstimateNumber *string         `json:"estimate_number,omitempty"`
	Discount       *float64        `json:"discount,omitempty"`
	DiscountVal    *float64        `json:"discount_val,omitempty"`
	SubTotal       *float64        `json:"sub_total,omitempty"`
	Total          *float64        `json:"total,omitempty"`
	Tax            *float64        `json:"tax,omitempty"`
	Items          []lineItemInput `json:"items,omitempty"`
}

type createExpenseInput struct {
	ExpenseCategoryID int64   `json:"expense_category_id" jsonschema:"Expense category ID"`
	Amount            float64 `json:"amount" jsonschema:"Amount"`
	ExpenseDate       string  `json:"expense_date" jsonschema:"Expense Date (YYYY-MM-DD)"`
	Notes             *string `json:"notes,omitempty"`
	CustomerID        *int64  `json:"customer_id,omitempty"`
	CurrencyID        int64   `json:"currency_id" jsonschema:"Currency ID"`
}

type createPaymentInput struct {
	PaymentDate     string  `json:"payment_date" jsonschema:"Payment Date (YYYY-MM-DD)"`
	CustomerID      int64   `json:"customer_id" jsonschema:"Customer ID"`
	Amount          float64 `json:"amount" jsonschema:"Amount"`
	PaymentNumber   string  `json:"payment_number" jsonschema:"Payment Number"`
	InvoiceID       *int64  `json:"invoice_id,omitempty"`
	PaymentMethodID *int64  `json:"payment_method_id,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type createItemInput struct {
	Name        string  `json:"name" jsonschema:"Item name"`
	Price       float64 `json:"price" jsonschema:"Unit price"`
	UnitID      *int64  `json:"unit_id,omitempty"`
	Description *string `json:"description,omitempty"`
}

// validateEmail accepts a bare address only; display names are rejected.
func validateEmail(field string, value *string) error {
	if value == nil {
		return nil
	}
	raw := strings.TrimSpace(*value)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Name != "" || addr.Address != raw {
		return fmt.Errorf("%s must be a valid email address", field)
	}
	return nil
}

package mcp

import (
	"fmt"
	"strings"
)

const (
	toolCreateCustomer = "create_customer"
	toolListCustomers  = "list_customers"
	toolGetCustomer    = "get_customer"
	toolUpdateCustomer = "update_customer"
	toolDeleteCustomer = "delete_customer"
	toolCreateInvoice  = "create_invoice"
	toolListInvoices   = "list_invoices"
	toolGetInvoice     = "get_invoice"
	toolUpdateInvoice  = "update_invoice"
	toolDeleteInvoice  = "delete_invoice"
	toolSendInvoice    = "send_invoice"
	toolCreateEstimate = "create_estimate"
	toolListEstimates  = "list_estimates"
	toolGetEstimate    = "get_estimate"
	toolUpdateEstimate = "update_estimate"
	toolDeleteEstimate = "delete_estimate"
	toolCreateExpense  = "create_expense"
	toolListExpenses   = "list_expenses"
	toolGetExpense     = "get_expense"
	toolDeleteExpense  = "delete_expense"
	toolCreatePayment  = "create_payment"
	toolListPayments   = "list_payments"
	toolCreateItem     = "create_item"
	toolListItems      = "list_items"
	toolGetSettings    = "get_settings"
)

var mcpToolNames = []string{
	toolCreateCustomer,
	toolListCustomers,
	toolGetCustomer,
	toolUpdateCustomer,
	toolDeleteCustomer,
	toolCreateInvoice,
	toolListInvoices,
	toolGetInvoice,
	toolUpdateInvoice,
	toolDeleteInvoice,
	toolSendInvoice,
	toolCreateEstimate,
	toolListEstimates,
	toolGetEstimate,
	toolUpdateEstimate,
	toolDeleteEstimate,
	toolCreateExpense,
	toolListExpenses,
	toolGetExpense,
	toolDeleteExpense,
	toolCreatePayment,
	toolListPayments,
	toolCreateItem,
	toolListItems,
	toolGetSettings,
}

type toolContract struct {
	Summary  string
	Requires string
	Effects  string
	Next     string
}

func formatToolDescription(spec toolContract) string {
	lines := []string{
		strings.TrimSpace(spec.Summary),
		"Requires: " + spec.Requires,
		"Effects: " + spec.Effects,
	}
	if spec.Next != "" {
		lines = append(lines, "Next: "+spec.Next)
	}
	return strings.Join(lines, "\n")
}

func listContract(noun string) toolContract {
	return toolContract{
		Summary:  fmt.Sprintf("List all %s.", noun),
		Requires: "nothing; limit, page and query are optional and forwarded to Crater unchanged.",
		Effects:  "read-only; returns one page of Crater's paginated response as JSON.",
		Next:     "use page to continue, or the get_ tool with an id from data[].",
	}
}

func getContract(noun string) toolContract {
	return toolContract{
		Summary:  fmt.Sprintf("Get a specific %s by ID.", noun),
		Requires: "id of an existing " + noun + ".",
		Effects:  "read-only.",
	}
}

func deleteContract(plural string) toolContract {
	return toolContract{
		Summary:  fmt.Sprintf("Delete one or more %s.", plural),
		Requires: "ids, a non-empty array of " + plural + " IDs.",
		Effects:  "deletes every listed record in one batch request; not reversible.",
	}
}

func buildToolDescriptions() map[string]string {
	descriptions := map[string]string{
		toolCreateCustomer: formatToolDescription(toolContract{
			Summary:  "Create a new customer in Crater.",
			Requires: "name. email must be a valid address when given; billing and shipping are optional address objects.",
			Effects:  "creates a customer and returns it.",
			Next:     "use the returned id as customer_id for invoices, estimates and payments.",
		}),
		toolListCustomers: formatToolDescription(listContract("customers")),
		toolGetCustomer:   formatToolDescription(getContract("customer")),
		toolUpdateCustomer: formatToolDescription(toolContract{
			Summary:  "Update a specific customer.",
			Requires: "id; only the fields you pass are sent.",
			Effects:  "updates the customer and returns it.",
		}),
		toolDeleteCustomer: formatToolDescription(deleteContract("customers")),
		toolCreateInvoice: formatToolDescription(toolContract{
			Summary:  "Create a new invoice.",
			Requires: "invoice_date (YYYY-MM-DD), customer_id, invoice_number and items[] with name, quantity and price. template_name defaults to Invoice.",
			Effects:  "creates a draft invoice and returns it.",
			Next:     "send_invoice to email it to the customer.",
		}),
		toolListInvoices: formatToolDescription(listContract("invoices")),
		toolGetInvoice:   formatToolDescription(getContract("invoice")),
		toolUpdateInvoice: formatToolDescription(toolContract{
			Summary:  "Update a specific invoice.",
			Requires: "id; only the fields you pass are sent. items replaces the line items when given.",
			Effects:  "updates the invoice and returns it.",
		}),
		toolDeleteInvoice: formatToolDescription(deleteContract("invoices")),
		toolSendInvoice: formatToolDescription(toolContract{
			Summary:  "Send an invoice via email.",
			Requires: "id. to, subject and message are optional; to must be a valid address when given.",
			Effects:  "emails the invoice and marks it sent.",
		}),
		toolCreateEstimate: formatToolDescription(toolContract{
			Summary:  "Create a new estimate.",
			Requires: "estimate_date (YYYY-MM-DD), customer_id, estimate_number and items[] with name, quantity and price. template_name defaults to Estimate.",
			Effects:  "creates a draft estimate and returns it.",
		}),
		toolListEstimates: formatToolDescription(listContract("estimates")),
		toolGetEstimate:   formatToolDescription(getContract("estimate")),
		toolUpdateEstimate: formatToolDescription(toolContract{
			Summary:  "Update a specific estimate.",
			Requires: "id; only the fields you pass are sent.",
			Effects:  "updates the estimate and returns it.",
		}),
		toolDeleteEstimate: formatToolDescription(deleteContract("estimates")),
		toolCreateExpense: formatToolDescription(toolContract{
			Summary:  "Create a new expense.",
			Requires: "expense_category_id, amount, expense_date (YYYY-MM-DD) and currency_id.",
			Effects:  "records the expense and returns it.",
		}),
		toolListExpenses: formatToolDescription(listContract("expenses")),
		toolGetExpense:   formatToolDescription(getContract("expense")),
		toolDeleteExpense: formatToolDescription(deleteContract("expenses")),
		toolCreatePayment: formatToolDescription(toolContract{
			Summary:  "Record a payment.",
			Requires: "payment_date (YYYY-MM-DD), customer_id, amount and payment_number. invoice_id links the payment to an invoice.",
			Effects:  "records the payment and returns it.",
		}),
		toolListPayments: formatToolDescription(listContract("payments")),
		toolCreateItem: formatToolDescription(toolContract{
			Summary:  "Create a new item/product.",
			Requires: "name and price.",
			Effects:  "creates a reusable item and returns it.",
		}),
		toolListItems: formatToolDescription(listContract("items")),
		toolGetSettings: formatToolDescription(toolContract{
			Summary:  "Get company settings.",
			Requires: "nothing.",
			Effects:  "read-only; returns currency, date format and other company settings.",
		}),
	}
	for _, name := range mcpToolNames {
		if strings.TrimSpace(descriptions[name]) == "" {
			panic(fmt.Sprintf("mcp: missing description for %s", name))
		}
	}
	return descriptions
}

func defaultServerInstructions() string {
	return strings.TrimSpace(`
Crater MCP operating manual:
- Every tool calls the Crater invoicing API and returns its JSON response unchanged.
- Look up ids first: list_customers before creating invoices, estimates or payments for a customer.
- Dates are YYYY-MM-DD strings. Amounts are forwarded as given; Crater stores money in the smallest currency unit.
- delete_* tools take an ids array and delete all listed records in one request.
- Errors start with "Error <action>:" and carry a structured error_code; invalid_argument means fix the input, unauthenticated means the server credentials need attention.
`)
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"pkt.systems/cratermcp/client"
)

var (
	invoiceDefaults  = toolOptions{defaults: map[string]any{"template_name": "Invoice"}}
	estimateDefaults = toolOptions{defaults: map[string]any{"template_name": "Estimate"}}
	deleteOptions    = toolOptions{minItems: map[string]int{"ids": 1}}
)

// NewRegistry builds the full tool catalog backed by cli.
func NewRegistry(cli *client.Client) *Registry {
	d := buildToolDescriptions()
	r := newRegistry()

	customers := cli.Customers()
	register(r, toolCreateCustomer, "creating customer", d[toolCreateCustomer], toolOptions{},
		func(ctx context.Context, in createCustomerInput) Result {
			return resultOf(customers.Create(ctx, in))
		})
	register(r, toolListCustomers, "listing customers", d[toolListCustomers], toolOptions{}, listHandler(customers))
	register(r, toolGetCustomer, "getting customer", d[toolGetCustomer], toolOptions{}, getHandler(customers))
	register(r, toolUpdateCustomer, "updating customer", d[toolUpdateCustomer], toolOptions{},
		func(ctx context.Context, in updateCustomerInput) Result {
			return updateWithoutID(ctx, customers, in.ID, in)
		})
	register(r, toolDeleteCustomer, "deleting customer", d[toolDeleteCustomer], deleteOptions, deleteHandler(customers))

	invoices := cli.Invoices()
	register(r, toolCreateInvoice, "creating invoice", d[toolCreateInvoice], invoiceDefaults,
		func(ctx context.Context, in createInvoiceInput) Result {
			return resultOf(invoices.Create(ctx, in))
		})
	register(r, toolListInvoices, "listing invoices", d[toolListInvoices], toolOptions{}, listHandler(invoices.Resource))
	register(r, toolGetInvoice, "getting invoice", d[toolGetInvoice], toolOptions{}, getHandler(invoices.Resource))
	register(r, toolUpdateInvoice, "updating invoice", d[toolUpdateInvoice], toolOptions{},
		func(ctx context.Context, in updateInvoiceInput) Result {
			return updateWithoutID(ctx, invoices.Resource, in.ID, in)
		})
	register(r, toolDeleteInvoice, "deleting invoice", d[toolDeleteInvoice], deleteOptions, deleteHandler(invoices.Resource))
	register(r, toolSendInvoice, "sending invoice", d[toolSendInvoice], toolOptions{},
		func(ctx context.Context, in sendInvoiceInput) Result {
			body, err := withoutID(in)
			if err != nil {
				return Failure(err)
			}
			return resultOf(invoices.Send(ctx, in.ID, body))
		})

	estimates := cli.Estimates()
	register(r, toolCreateEstimate, "creating estimate", d[toolCreateEstimate], estimateDefaults,
		func(ctx context.Context, in createEstimateInput) Result {
			return resultOf(estimates.Create(ctx, in))
		})
	register(r, toolListEstimates, "listing estimates", d[toolListEstimates], toolOptions{}, listHandler(estimates))
	register(r, toolGetEstimate, "getting estimate", d[toolGetEstimate], toolOptions{}, getHandler(estimates))
	register(r, toolUpdateEstimate, "updating estimate", d[toolUpdateEstimate], toolOptions{},
		func(ctx context.Context, in updateEstimateInput) Result {
			return updateWithoutID(ctx, estimates, in.ID, in)
		})
	register(r, toolDeleteEstimate, "deleting estimate", d[toolDeleteEstimate], deleteOptions, deleteHandler(estimates))

	expenses := cli.Expenses()
	register(r, toolCreateExpense, "creating expense", d[toolCreateExpense], toolOptions{},
		func(ctx context.Context, in createExpenseInput) Result {
			return resultOf(expenses.Create(ctx, in))
		})
	register(r, toolListExpenses, "listing expenses", d[toolListExpenses], toolOptions{}, listHandler(expenses))
	register(r, toolGetExpense, "getting expense", d[toolGetExpense], toolOptions{}, getHandler(expenses))
	register(r, toolDeleteExpense, "deleting expense", d[toolDeleteExpense], deleteOptions, deleteHandler(expenses))

	payments := cli.Payments()
	register(r, toolCreatePayment, "creating payment", d[toolCreatePayment], toolOptions{},
		func(ctx context.Context, in createPaymentInput) Result {
			return resultOf(payments.Create(ctx, in))
		})
	register(r, toolListPayments, "listing payments", d[toolListPayments], toolOptions{}, listHandler(payments))

	items := cli.Items()
	register(r, toolCreateItem, "creating item", d[toolCreateItem], toolOptions{},
		func(ctx context.Context, in createItemInput) Result {
			return resultOf(items.Create(ctx, in))
		})
	register(r, toolListItems, "listing items", d[toolListItems], toolOptions{}, listHandler(items))

	register(r, toolGetSettings, "getting settings", d[toolGetSettings], toolOptions{},
		func(ctx context.Context, _ emptyInput) Result {
			return resultOf(cli.Settings(ctx))
		})

	if r.Len() != len(mcpToolNames) {
		panic(fmt.Sprintf("mcp: registered %d tools, expected %d", r.Len(), len(mcpToolNames)))
	}
	return r
}

func listHandler(res *client.Resource) func(context.Context, listInput) Result {
	return func(ctx context.Context, in listInput) Result {
		return resultOf(res.List(ctx, client.ListParams{Limit: in.Limit, Page: in.Page, Query: in.Query}))
	}
}

func getHandler(res *client.Resource) func(context.Context, idInput) Result {
	return func(ctx context.Context, in idInput) Result {
		return resultOf(res.Get(ctx, in.ID))
	}
}

func deleteHandler(res *client.Resource) func(context.Context, deleteInput) Result {
	return func(ctx context.Context, in deleteInput) Result {
		return resultOf(res.Delete(ctx, in.IDs))
	}
}

func updateWithoutID(ctx context.Context, res *client.Resource, id int64, in any) Result {
	body, err := withoutID(in)
	if err != nil {
		return Failure(err)
	}
	return resultOf(res.Update(ctx, id, body))
}

// withoutID re-encodes a typed record as a JSON object minus its "id" key,
// which travels in the URL path instead.
func withoutID(in any) (map[string]json.RawMessage, error) {
	encoded, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	delete(fields, "id")
	return fields, nil
}

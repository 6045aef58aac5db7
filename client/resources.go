package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Kind names a Crater resource collection under /api/v1.
type Kind string

const (
	KindCustomers Kind = "customers"
	KindInvoices  Kind = "invoices"
	KindEstimates Kind = "estimates"
	KindExpenses  Kind = "expenses"
	KindPayments  Kind = "payments"
	KindItems     Kind = "items"
)

// ListParams are the paging and search parameters forwarded to list
// endpoints. Zero values are omitted from the query string.
type ListParams struct {
	Limit int64
	Page  int64
	Query string
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	if p.Limit != 0 {
		v.Set("limit", strconv.FormatInt(p.Limit, 10))
	}
	if p.Page != 0 {
		v.Set("page", strconv.FormatInt(p.Page, 10))
	}
	if q := strings.TrimSpace(p.Query); q != "" {
		v.Set("query", q)
	}
	return v
}

// Resource exposes the CRUD operations shared by every resource kind.
type Resource struct {
	client *Client
	kind   Kind
}

// Customers returns the customer operations.
func (c *Client) Customers() *Resource { return &Resource{client: c, kind: KindCustomers} }

// Estimates returns the estimate operations.
func (c *Client) Estimates() *Resource { return &Resource{client: c, kind: KindEstimates} }

// Expenses returns the expense operations.
func (c *Client) Expenses() *Resource { return &Resource{client: c, kind: KindExpenses} }

// Payments returns the payment operations.
func (c *Client) Payments() *Resource { return &Resource{client: c, kind: KindPayments} }

// Items returns the item (product) operations.
func (c *Client) Items() *Resource { return &Resource{client: c, kind: KindItems} }

// Invoices returns the invoice operations, which add Send.
func (c *Client) Invoices() *InvoiceResource {
	return &InvoiceResource{Resource: &Resource{client: c, kind: KindInvoices}}
}

// Kind reports the collection this resource addresses.
func (r *Resource) Kind() Kind { return r.kind }

func (r *Resource) collectionPath() string {
	return apiPrefix + "/" + string(r.kind)
}

func (r *Resource) itemPath(id int64) string {
	return fmt.Sprintf("%s/%d", r.collectionPath(), id)
}

// List returns one page of the collection.
func (r *Resource) List(ctx context.Context, params ListParams) (json.RawMessage, error) {
	return r.client.do(ctx, http.MethodGet, r.collectionPath(), params.values(), nil)
}

// Get returns a single record.
func (r *Resource) Get(ctx context.Context, id int64) (json.RawMessage, error) {
	return r.client.do(ctx, http.MethodGet, r.itemPath(id), nil, nil)
}

// Create posts body to the collection.
func (r *Resource) Create(ctx context.Context, body any) (json.RawMessage, error) {
	return r.client.do(ctx, http.MethodPost, r.collectionPath(), nil, bodyOrEmpty(body))
}

// Update replaces the fields present in body on record id.
func (r *Resource) Update(ctx context.Context, id int64, body any) (json.RawMessage, error) {
	return r.client.do(ctx, http.MethodPut, r.itemPath(id), nil, bodyOrEmpty(body))
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

// Delete removes every record in ids with a single batch request.
func (r *Resource) Delete(ctx context.Context, ids []int64) (json.RawMessage, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("crater: delete %s: at least one id required", r.kind)
	}
	return r.client.do(ctx, http.MethodPost, r.collectionPath()+"/delete", nil, deleteRequest{IDs: ids})
}

// InvoiceResource adds invoice-only operations to Resource.
type InvoiceResource struct {
	*Resource
}

// Send emails invoice id. A nil body sends an empty object, letting Crater
// fall back to the customer's address and the default template.
func (r *InvoiceResource) Send(ctx context.Context, id int64, body any) (json.RawMessage, error) {
	return r.client.do(ctx, http.MethodPost, r.itemPath(id)+"/send", nil, bodyOrEmpty(body))
}

func bodyOrEmpty(body any) any {
	if body == nil {
		return struct{}{}
	}
	return body
}

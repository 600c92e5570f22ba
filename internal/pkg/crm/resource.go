package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Filter is one [field, operator, value] condition.
type Filter struct {
	Field    string
	Operator string
	Value    interface{}
}

// Eq builds an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Operator: "=", Value: value}
}

type ListQuery struct {
	Filters []Filter
	Fields  []string
	OrderBy string

	// Limit caps the result size; zero returns every match.
	Limit int
}

func (q ListQuery) values() (url.Values, error) {
	v := url.Values{}

	if len(q.Filters) > 0 {
		filters := make([][]interface{}, 0, len(q.Filters))
		for _, f := range q.Filters {
			filters = append(filters, []interface{}{f.Field, f.Operator, f.Value})
		}
		b, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filters: %w", err)
		}
		v.Set("filters", string(b))
	}

	fields := q.Fields
	if len(fields) == 0 {
		fields = []string{"*"}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	v.Set("fields", string(b))

	if q.OrderBy != "" {
		v.Set("order_by", q.OrderBy)
	}
	v.Set("limit_page_length", strconv.Itoa(q.Limit))
	return v, nil
}

type listEnvelope struct {
	Data []Doc `json:"data"`
}

type docEnvelope struct {
	Data Doc `json:"data"`
}

// GetList queries documents of doctype.
func (c *Client) GetList(ctx context.Context, doctype string, q ListQuery) ([]Doc, error) {
	v, err := q.values()
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := c.doJSON(ctx, http.MethodGet, resourcePath(doctype)+"?"+v.Encode(), nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Insert creates a document and returns the stored version.
func (c *Client) Insert(ctx context.Context, doctype string, doc Doc) (Doc, error) {
	var env docEnvelope
	if err := c.doJSON(ctx, http.MethodPost, resourcePath(doctype), doc, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Update writes the given fields of an existing document.
func (c *Client) Update(ctx context.Context, doctype, name string, doc Doc) (Doc, error) {
	var env docEnvelope
	if err := c.doJSON(ctx, http.MethodPut, resourcePath(doctype, name), doc, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

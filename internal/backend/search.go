package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"medibot/internal/domain"
)

type searchItem struct {
	Name                 string            `json:"name"`
	ProductName          string            `json:"product_name"`
	Manufacturer         string            `json:"manufacturer"`
	Brand                string            `json:"brand"`
	Price                *domain.FlexFloat `json:"price"`
	MRP                  *domain.FlexFloat `json:"mrp"`
	RequiresPrescription *domain.FlexBool  `json:"requires_prescription"`
	PrescriptionRequired *domain.FlexBool  `json:"prescription_required"`
	RxRequired           *domain.FlexBool  `json:"rx_required"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
	Data  []searchItem `json:"data"`
	Count *int         `json:"count"`
}

// Search queries one catalog. A 404 is an empty result.
func (c *Client) Search(ctx context.Context, kind domain.SearchKind, query string, limit int) (domain.SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, "GET", "/search/"+url.PathEscape(string(kind)), q, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.SearchResult{}, nil
		}
		return domain.SearchResult{}, fmt.Errorf("search %s: %w", kind, err)
	}

	var resp searchResponse
	if err := decode(data, &resp, "search response"); err != nil {
		return domain.SearchResult{}, err
	}
	items := resp.Items
	if len(items) == 0 {
		items = resp.Data
	}

	res := domain.SearchResult{Hits: make([]domain.SearchHit, 0, len(items)), Count: len(items)}
	if resp.Count != nil && *resp.Count > res.Count {
		res.Count = *resp.Count
	}
	for _, it := range items {
		res.Hits = append(res.Hits, it.hit())
	}
	return res, nil
}

func (it searchItem) hit() domain.SearchHit {
	h := domain.SearchHit{
		Name:         it.Name,
		Manufacturer: it.Manufacturer,
	}
	if h.Name == "" {
		h.Name = it.ProductName
	}
	if h.Manufacturer == "" {
		h.Manufacturer = it.Brand
	}
	if p, ok := it.Price.Value(); ok {
		h.Price = p
	} else if p, ok := it.MRP.Value(); ok {
		h.Price = p
	}
	for _, b := range []*domain.FlexBool{it.RequiresPrescription, it.PrescriptionRequired, it.RxRequired} {
		if b != nil {
			h.PrescriptionRequired = bool(*b)
			break
		}
	}
	return h
}

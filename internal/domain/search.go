package domain

// SearchKind selects the catalog a search runs against.
type SearchKind string

const (
	SearchMedicines SearchKind = "medicines"
	SearchProducts  SearchKind = "products"
)

// SearchHit is one catalog entry in canonical form.
type SearchHit struct {
	Name                 string
	Manufacturer         string
	Price                float64
	PrescriptionRequired bool
}

// SearchResult holds the hits returned for a query. Count is the backend's total, which
// may exceed len(Hits).
type SearchResult struct {
	Hits  []SearchHit
	Count int
}

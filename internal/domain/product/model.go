// Package product implements Product / ProductProjectLink: a named set of
// projects enabling product-wide inbox/search without changing per-project
// semantics.
package product

import "time"

// Product is a logical grouping across multiple projects.
type Product struct {
	ID        string    `json:"id"`
	UID       string    `json:"product_uid"`
	Name      string    `json:"name"`
	CreatedTS time.Time `json:"created_ts"`
}

// ProjectLink associates a Project with a Product.
type ProjectLink struct {
	ProductID string    `json:"product_id"`
	ProjectID string    `json:"project_id"`
	LinkedTS  time.Time `json:"linked_ts"`
}

// Status is the result of a product status lookup: the product plus the
// projects currently linked into it.
type Status struct {
	Product      Product
	ProjectIDs   []string
	ProjectSlugs []string
}

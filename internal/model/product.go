package model

// ProductInput is the raw, inconsistently-structured product record
// handed to a verification run by the intake boundary.
type ProductInput struct {
	CatalogID   string `json:"catalog_id"`
	CatalogName string `json:"catalog_name"`

	Brand       string `json:"brand,omitempty"`
	ModelNumber string `json:"model_number,omitempty"`
	Category    string `json:"category,omitempty"`

	// RawText carries unstructured source material (supplier description,
	// spec-sheet dump) that providers extract from.
	RawText string `json:"raw_text,omitempty"`

	// RawAttributes carries whatever key/value pairs the source system
	// had. Keys and values are untrusted and unnormalized.
	RawAttributes map[string]string `json:"raw_attributes,omitempty"`
}

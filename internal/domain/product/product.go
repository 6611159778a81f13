// Package product defines the Product domain entity and its owned associations.
package product

import "time"

// Product is the canonical definition of a marketable product. The ID is
// assigned once at registration and never changes; everything else may be
// replaced wholesale by an upsert.
type Product struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Variant    string           `json:"variant,omitempty"`
	Version    string           `json:"version,omitempty"`
	Arch       string           `json:"arch,omitempty"`
	Multiplier int64            `json:"multiplier"`
	Category   string           `json:"category,omitempty"`
	Attributes []Attribute      `json:"attributes"`
	Content    []ProductContent `json:"content,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Attribute is a name/value pair owned by exactly one product.
// ProductID is the back-reference to the owning product.
type Attribute struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	ProductID string `json:"product_id,omitempty"`
}

// ProductContent associates a content entity with a product.
type ProductContent struct {
	ContentID string `json:"content_id"`
	Enabled   bool   `json:"enabled"`
}

// ReparentAttributes points every attribute's back-reference at p.
// Incoming payloads routinely carry attributes referencing a stale or
// absent owner; normalizing here keeps the invariant that an attribute
// always belongs to the product it is attached to.
func (p *Product) ReparentAttributes() {
	for i := range p.Attributes {
		p.Attributes[i].ProductID = p.ID
	}
}

// Attribute returns the value of the named attribute and whether it is set.
func (p *Product) Attribute(name string) (string, bool) {
	for i := range p.Attributes {
		if p.Attributes[i].Name == name {
			return p.Attributes[i].Value, true
		}
	}
	return "", false
}

// RemoveContent removes the first association matching contentID.
// It reports whether an association was removed; a miss is a no-op.
func (p *Product) RemoveContent(contentID string) bool {
	for i := range p.Content {
		if p.Content[i].ContentID == contentID {
			p.Content = append(p.Content[:i], p.Content[i+1:]...)
			return true
		}
	}
	return false
}

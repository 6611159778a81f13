package product

import (
	"fmt"
	"unicode"

	"github.com/entgrid/entitled/internal/domain"
)

// Validate checks that a product is in a state the certificate pipeline
// can work with. Products failing here are rejected at create/update time
// so regeneration never sees them.
func Validate(p *Product) error {
	if p.ID == "" {
		return fmt.Errorf("id is required: %w", domain.ErrValidation)
	}
	if len(p.ID) > 255 {
		return fmt.Errorf("id exceeds 255 characters: %w", domain.ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(p.Name) > 255 {
		return fmt.Errorf("name exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, r := range p.Name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name contains control characters: %w", domain.ErrValidation)
		}
	}
	if p.Multiplier < 0 {
		return fmt.Errorf("multiplier must not be negative: %w", domain.ErrValidation)
	}
	for i := range p.Attributes {
		if p.Attributes[i].Name == "" {
			return fmt.Errorf("attribute %d has no name: %w", i, domain.ErrValidation)
		}
	}
	for i := range p.Content {
		if p.Content[i].ContentID == "" {
			return fmt.Errorf("content association %d has no content_id: %w", i, domain.ErrValidation)
		}
	}
	return nil
}

package scheduler

import (
	"context"
	"fmt"

	"github.com/entgrid/entitled/internal/domain/product"
	"github.com/entgrid/entitled/internal/service"
)

// ProductLister is the slice of the store the sweep needs.
type ProductLister interface {
	ListProducts(ctx context.Context) ([]product.Product, error)
}

// ProductSweepSource yields one regeneration parameter bag per known
// product. The periodic sweep is the backstop for regeneration requests
// lost between the product write committing and the queue publish.
func ProductSweepSource(store ProductLister) Source {
	return func(ctx context.Context) ([]map[string]string, error) {
		products, err := store.ListProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("list products for sweep: %w", err)
		}
		bags := make([]map[string]string, 0, len(products))
		for i := range products {
			bags = append(bags, map[string]string{service.ParamProductID: products[i].ID})
		}
		return bags, nil
	}
}

package messagequeue

// RegenRequestPayload is the schema for certs.regen messages. The
// product_id key is the only contractually required field; the job worker
// fails loudly when it is absent.
type RegenRequestPayload struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason,omitempty"`
}

// RegenResultPayload is the schema for certs.regen.result messages.
type RegenResultPayload struct {
	ProductID   string               `json:"product_id"`
	Pools       int                  `json:"pools"`
	Regenerated int                  `json:"regenerated"`
	Failures    []RegenFailureDetail `json:"failures,omitempty"`
}

// RegenFailureDetail identifies one entitlement that failed regeneration.
type RegenFailureDetail struct {
	EntitlementID string `json:"entitlement_id"`
	PoolID        string `json:"pool_id"`
	Error         string `json:"error"`
}

// ProductUpdatedPayload is the schema for products.updated messages.
type ProductUpdatedPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
}

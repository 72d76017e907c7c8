package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/utils"
)

// VendorResolution is the outcome of resolving an upstream restaurant id.
type VendorResolution struct {
	VendorIDs []string
	Broadcast bool
}

// VendorResolver maps upstream restaurant ids to the eateries that fulfil
// them. An unmatched restaurant is an error unless BroadcastUnmatched is
// set, in which case every registered eatery receives the order.
type VendorResolver struct {
	store              *OrderStore
	BroadcastUnmatched bool
}

func NewVendorResolver(store *OrderStore, broadcastUnmatched bool) *VendorResolver {
	return &VendorResolver{store: store, BroadcastUnmatched: broadcastUnmatched}
}

func (r *VendorResolver) Resolve(ctx context.Context, restaurantID string) (VendorResolution, error) {
	if restaurantID == "" {
		return VendorResolution{}, validationError("restaurantId is required")
	}

	eateries, err := r.store.FindEateriesByRestaurant(ctx, restaurantID)
	if err != nil {
		return VendorResolution{}, err
	}
	if len(eateries) > 0 {
		ids := make([]string, 0, len(eateries))
		for _, e := range eateries {
			ids = append(ids, e.ID)
		}
		return VendorResolution{VendorIDs: ids}, nil
	}

	// an eatery may be registered under the restaurant id itself
	if e, err := r.store.GetEatery(ctx, restaurantID); err == nil {
		return VendorResolution{VendorIDs: []string{e.ID}}, nil
	} else if !errors.Is(err, ErrVendorNotFound) {
		return VendorResolution{}, err
	}

	if !r.BroadcastUnmatched {
		return VendorResolution{}, newError(CodeVendorNotFound, "no vendor registered for restaurant "+restaurantID, nil)
	}

	all, err := r.store.ListEateries(ctx)
	if err != nil {
		return VendorResolution{}, err
	}
	if len(all) == 0 {
		return VendorResolution{}, newError(CodeVendorNotFound, "no vendors registered", nil)
	}
	ids := make([]string, 0, len(all))
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"restaurant_id": restaurantID,
		"vendor_count":  len(ids),
	}).Warn("No vendor mapped to restaurant, broadcasting order to all vendors")
	return VendorResolution{VendorIDs: ids, Broadcast: true}, nil
}

package service

import (
	"context"
	"fmt"

	"github.com/socertis/bnpl-simulator/internal/models"
)

// Dashboard returns role-dependent headline statistics for the caller.
func (s *Service) Dashboard(ctx context.Context, identity models.Identity) (any, error) {
	if identity.IsMerchant() {
		return s.store.MerchantDashboard(ctx, identity.UserID)
	}
	return s.store.CustomerDashboard(ctx, identity.Email)
}

// MerchantReport builds the payment status report for the calling merchant.
func (s *Service) MerchantReport(ctx context.Context, identity models.Identity) (*models.MerchantReport, error) {
	if !identity.IsMerchant() {
		return nil, fmt.Errorf("%w: merchant report", ErrForbidden)
	}
	return s.store.MerchantReport(ctx, identity.UserID, s.today())
}

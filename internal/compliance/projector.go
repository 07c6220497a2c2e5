package compliance

import "context"

// Project writes the application's state onto the company row in the same
// transaction. It hides the badge for any non-approved status and never shows
// it; showing the badge is an explicit action.
func Project(ctx context.Context, tx Tx, companyID string, p Projection) error {
	cc := CompanyCompliance{
		Status:          p.Status,
		ExpiresAt:       copyTime(p.ExpiresAt),
		ComplianceScore: p.ComplianceScore,
	}
	if p.Status != StatusApproved {
		hidden := false
		cc.BadgeVisible = &hidden
	}
	return tx.UpdateCompanyCompliance(ctx, companyID, cc)
}

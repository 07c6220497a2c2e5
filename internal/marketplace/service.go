package marketplace

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketplace-backend/internal/compliance"
	"marketplace-backend/internal/moderation"
	"marketplace-backend/internal/shared/telemetry"
)

// DefaultHoldDays bounds how long a listing may go without a compliance re-check.
const DefaultHoldDays = 90

// Gate runs fn only when the company passes the insured seller gate. fn shares
// the gate's transaction.
type Gate interface {
	WithEligibility(ctx context.Context, companyID string, opts compliance.GateOptions, fn func(ctx context.Context, snap compliance.Snapshot) error) (compliance.Snapshot, error)
}

// Companies resolves company existence for listings that skip the gate.
type Companies interface {
	GetCompany(ctx context.Context, companyID string) (compliance.Company, error)
}

// Service creates and moderates marketplace listings.
type Service struct {
	Repo      Repo
	Gate      Gate
	Companies Companies
	Recorder  moderation.Recorder
	Publisher moderation.Publisher
	HoldDays  int
	Clock     func() time.Time
}

// CreateInput is a new listing.
type CreateInput struct {
	Title       string
	InsuredOnly bool
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// Create stores a pending listing. Insured-only listings require the company to
// pass the gate and carry a compliance snapshot from that check.
func (s *Service) Create(ctx context.Context, companyID string, in CreateInput) (Item, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Item{}, compliance.Validation("title is required")
	}
	now := s.now()
	item := Item{
		ID:          uuid.NewString(),
		CompanyID:   companyID,
		Title:       in.Title,
		Status:      StatusPendingReview,
		InsuredOnly: in.InsuredOnly,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if !in.InsuredOnly {
		if _, err := s.Companies.GetCompany(ctx, companyID); err != nil {
			if errors.Is(err, compliance.ErrCompanyNotFound) {
				return Item{}, compliance.NotFound("company not found")
			}
			return Item{}, err
		}
		if err := s.Repo.Insert(ctx, item); err != nil {
			return Item{}, err
		}
		return item, nil
	}

	_, err := s.Gate.WithEligibility(ctx, companyID, compliance.GateOptions{}, func(ctx context.Context, snap compliance.Snapshot) error {
		s.attachCompliance(&item, snap, now)
		return s.Repo.Insert(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	telemetry.Info("insured listing created", map[string]any{
		"company_id": companyID,
		"item_id":    item.ID,
	})
	return item, nil
}

// Approve moves a listing to approved. Insured-only listings re-run the gate
// with the badge requirement and refresh their snapshot; approving an approved
// listing returns it unchanged.
func (s *Service) Approve(ctx context.Context, itemID, actorID string) (Item, error) {
	item, err := s.get(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	if item.Status == StatusApproved {
		return item, nil
	}

	now := s.now()
	var pending []moderation.Action
	approve := func(ctx context.Context, item Item, snap *compliance.Snapshot) (Item, error) {
		if snap != nil {
			s.attachCompliance(&item, *snap, now)
		}
		item.Status = StatusApproved
		item.ReviewedBy = actorID
		item.RejectionReason = ""
		item.UpdatedAt = now
		if err := s.Repo.Update(ctx, item); err != nil {
			return Item{}, err
		}
		s.record(ctx, &pending, moderation.Action{
			EntityType: moderation.EntityMarketplaceItem,
			EntityID:   item.ID,
			Action:     moderation.ActionItemApproved,
			ActorID:    actorID,
			Metadata:   map[string]any{"companyId": item.CompanyID, "insuredOnly": item.InsuredOnly},
		})
		return item, nil
	}

	var result Item
	if !item.InsuredOnly {
		if result, err = approve(ctx, item, nil); err != nil {
			return Item{}, err
		}
	} else {
		_, err = s.Gate.WithEligibility(ctx, item.CompanyID, compliance.GateOptions{RequireBadge: true}, func(ctx context.Context, snap compliance.Snapshot) error {
			current, err := s.get(ctx, itemID)
			if err != nil {
				return err
			}
			if current.Status == StatusApproved {
				result = current
				return nil
			}
			result, err = approve(ctx, current, &snap)
			return err
		})
		if err != nil {
			return Item{}, err
		}
	}
	moderation.PublishAll(ctx, s.Publisher, pending)
	return result, nil
}

// Reject moves a listing to rejected with a reason.
func (s *Service) Reject(ctx context.Context, itemID, actorID, reason string) (Item, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Item{}, compliance.Validation("rejection reason is required")
	}
	item, err := s.get(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	now := s.now()
	item.Status = StatusRejected
	item.ReviewedBy = actorID
	item.RejectionReason = reason
	item.UpdatedAt = now
	if err := s.Repo.Update(ctx, item); err != nil {
		return Item{}, err
	}
	var pending []moderation.Action
	s.record(ctx, &pending, moderation.Action{
		EntityType: moderation.EntityMarketplaceItem,
		EntityID:   item.ID,
		Action:     moderation.ActionItemRejected,
		ActorID:    actorID,
		Reason:     reason,
		Metadata:   map[string]any{"companyId": item.CompanyID},
	})
	moderation.PublishAll(ctx, s.Publisher, pending)
	return item, nil
}

// ListByCompany returns a company's listings.
func (s *Service) ListByCompany(ctx context.Context, companyID string) ([]Item, error) {
	return s.Repo.ListByCompany(ctx, companyID)
}

func (s *Service) get(ctx context.Context, itemID string) (Item, error) {
	item, err := s.Repo.Get(ctx, itemID)
	if errors.Is(err, ErrNotFound) {
		return Item{}, compliance.NotFound("marketplace item not found")
	}
	return item, err
}

// attachCompliance embeds the snapshot and sets the hold to the earlier of the
// compliance expiry and the configured re-check window.
func (s *Service) attachCompliance(item *Item, snap compliance.Snapshot, now time.Time) {
	item.ComplianceSnapshot = &snap
	item.ComplianceHoldUntil = HoldUntil(snap, now, s.HoldDays)
}

// HoldUntil is min(snap.ExpiresAt, now + holdDays). holdDays <= 0 uses DefaultHoldDays.
func HoldUntil(snap compliance.Snapshot, now time.Time, holdDays int) *time.Time {
	if holdDays <= 0 {
		holdDays = DefaultHoldDays
	}
	hold := now.AddDate(0, 0, holdDays)
	if snap.ExpiresAt != nil && snap.ExpiresAt.Before(hold) {
		hold = *snap.ExpiresAt
	}
	return &hold
}

func (s *Service) record(ctx context.Context, pending *[]moderation.Action, a moderation.Action) {
	a.ID = uuid.NewString()
	a.CreatedAt = s.now()
	if s.Recorder != nil {
		if err := s.Recorder.Record(ctx, a); err != nil {
			telemetry.Warn("moderation record failed", map[string]any{
				"entity_type": a.EntityType,
				"entity_id":   a.EntityID,
				"action":      a.Action,
				"error":       err,
			})
			return
		}
	}
	*pending = append(*pending, a)
}

package renewal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/models"
)

var ErrNoEffector = errors.New("no renewal effector for package type")

// Effector applies the entitlement a successful charge pays for
type Effector interface {
	Update(ctx context.Context, sub *models.SubscriptionItem) error
}

// Saver persists subscription billing state
type Saver interface {
	SaveChargeState(ctx context.Context, sub *models.SubscriptionItem) error
}

// Registry resolves the effector for a package type
type Registry struct {
	effectors map[models.PackageType]Effector
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{effectors: make(map[models.PackageType]Effector)}
}

// DefaultRegistry registers the period and quota effectors over one saver
func DefaultRegistry(saver Saver) *Registry {
	r := NewRegistry()
	r.Register(models.PackageTypePeriod, NewPeriodEffector(saver))
	r.Register(models.PackageTypeQuota, NewQuotaEffector(saver))
	return r
}

// Register adds or replaces the effector for a package type
func (r *Registry) Register(packageType models.PackageType, effector Effector) {
	r.effectors[packageType] = effector
}

// Get returns the effector for a package type
func (r *Registry) Get(packageType models.PackageType) (Effector, error) {
	effector, exists := r.effectors[packageType]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNoEffector, packageType)
	}
	return effector, nil
}

// Types returns the registered package types in sorted order
func (r *Registry) Types() []models.PackageType {
	types := make([]models.PackageType, 0, len(r.effectors))
	for t := range r.effectors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// PeriodEffector extends the paid period of a subscription item
type PeriodEffector struct {
	saver Saver
	now   func() time.Time
}

func NewPeriodEffector(saver Saver) *PeriodEffector {
	return &PeriodEffector{saver: saver, now: time.Now}
}

func (e *PeriodEffector) Update(ctx context.Context, sub *models.SubscriptionItem) error {
	return apply(ctx, e.saver, sub, func(c *models.SubscriptionItem) error {
		return extendPeriod(c, e.now())
	})
}

// QuotaEffector extends the period and restores the package quota
type QuotaEffector struct {
	saver Saver
	now   func() time.Time
}

func NewQuotaEffector(saver Saver) *QuotaEffector {
	return &QuotaEffector{saver: saver, now: time.Now}
}

func (e *QuotaEffector) Update(ctx context.Context, sub *models.SubscriptionItem) error {
	return apply(ctx, e.saver, sub, func(c *models.SubscriptionItem) error {
		if err := extendPeriod(c, e.now()); err != nil {
			return err
		}
		c.QuotaBalance = c.Package.Quota
		return nil
	})
}

// apply mutates a copy and only copies it back once persisted
func apply(ctx context.Context, saver Saver, sub *models.SubscriptionItem, mutate func(*models.SubscriptionItem) error) error {
	c := sub.Clone()
	if err := mutate(c); err != nil {
		return err
	}
	if err := saver.SaveChargeState(ctx, c); err != nil {
		return fmt.Errorf("failed to persist renewal of %s: %w", sub.ID, err)
	}
	*sub = *c
	return nil
}

func extendPeriod(sub *models.SubscriptionItem, now time.Time) error {
	if sub.Package.PeriodDays <= 0 {
		return fmt.Errorf("package %s has no renewal period", sub.Package.ID)
	}
	period := time.Duration(sub.Package.PeriodDays) * 24 * time.Hour

	sub.DateEnding = later(sub.DateEnding, now).Add(period)
	sub.NextChargeDate = later(sub.NextChargeDate, now).Add(period)
	return nil
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

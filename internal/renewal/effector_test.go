package renewal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnuragDani/subscription-charger/internal/models"
)

type stubSaver struct {
	saved []*models.SubscriptionItem
	err   error
}

func (s *stubSaver) SaveChargeState(ctx context.Context, sub *models.SubscriptionItem) error {
	if s.err != nil {
		return s.err
	}
	sub.Version++
	s.saved = append(s.saved, sub.Clone())
	return nil
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func dueSubscription(packageType models.PackageType) *models.SubscriptionItem {
	return &models.SubscriptionItem{
		ID:             "sub-1",
		IsActive:       true,
		IsChargeable:   true,
		NextChargeDate: now.Add(-time.Hour),
		DateEnding:     now.Add(2 * time.Hour),
		QuotaBalance:   3,
		Package: models.SubscriptionPackage{
			ID:         "pkg-1",
			Type:       packageType,
			PeriodDays: 30,
			Quota:      100,
		},
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(&stubSaver{})

	e, err := r.Get(models.PackageTypePeriod)
	require.NoError(t, err)
	assert.IsType(t, &PeriodEffector{}, e)

	e, err = r.Get(models.PackageTypeQuota)
	require.NoError(t, err)
	assert.IsType(t, &QuotaEffector{}, e)

	_, err = r.Get("lifetime")
	assert.ErrorIs(t, err, ErrNoEffector)

	assert.Equal(t, []models.PackageType{models.PackageTypePeriod, models.PackageTypeQuota}, r.Types())
}

func TestPeriodEffector(t *testing.T) {
	saver := &stubSaver{}
	e := NewPeriodEffector(saver)
	e.now = fixedClock
	sub := dueSubscription(models.PackageTypePeriod)

	require.NoError(t, e.Update(context.Background(), sub))

	period := 30 * 24 * time.Hour
	assert.Equal(t, now.Add(2*time.Hour).Add(period), sub.DateEnding)
	assert.Equal(t, now.Add(period), sub.NextChargeDate)
	assert.True(t, sub.NextChargeDate.After(now))
	assert.Equal(t, 3, sub.QuotaBalance)
	assert.Equal(t, int64(1), sub.Version)
	require.Len(t, saver.saved, 1)
}

func TestPeriodEffector_ExpiredEndingStartsFromNow(t *testing.T) {
	e := NewPeriodEffector(&stubSaver{})
	e.now = fixedClock
	sub := dueSubscription(models.PackageTypePeriod)
	sub.DateEnding = now.Add(-48 * time.Hour)

	require.NoError(t, e.Update(context.Background(), sub))
	assert.Equal(t, now.Add(30*24*time.Hour), sub.DateEnding)
}

func TestQuotaEffector(t *testing.T) {
	e := NewQuotaEffector(&stubSaver{})
	e.now = fixedClock
	sub := dueSubscription(models.PackageTypeQuota)

	require.NoError(t, e.Update(context.Background(), sub))
	assert.Equal(t, 100, sub.QuotaBalance)
	assert.Equal(t, now.Add(30*24*time.Hour), sub.NextChargeDate)
}

func TestEffector_SaveFailureLeavesSubscriptionUntouched(t *testing.T) {
	boom := errors.New("connection reset")
	e := NewQuotaEffector(&stubSaver{err: boom})
	e.now = fixedClock
	sub := dueSubscription(models.PackageTypeQuota)
	before := sub.Clone()

	err := e.Update(context.Background(), sub)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, sub)
}

func TestEffector_RejectsPackageWithoutPeriod(t *testing.T) {
	saver := &stubSaver{}
	e := NewPeriodEffector(saver)
	sub := dueSubscription(models.PackageTypePeriod)
	sub.Package.PeriodDays = 0

	assert.Error(t, e.Update(context.Background(), sub))
	assert.Empty(t, saver.saved)
}

package pricing

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	versions []PriceVersion
	nextID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) ActiveVersion(ctx context.Context, ref EntityRef, kind PriceKind) (PriceVersion, error) {
	for i := len(f.versions) - 1; i >= 0; i-- {
		v := f.versions[i]
		if v.EntityType == ref.Type && v.EntityID == ref.ID && v.Kind == kind && v.EndDate == nil {
			return v, nil
		}
	}
	return PriceVersion{}, ErrVersionNotFound
}

func (f *fakeRepo) VersionAt(ctx context.Context, ref EntityRef, kind PriceKind, date time.Time) (PriceVersion, error) {
	for i := len(f.versions) - 1; i >= 0; i-- {
		v := f.versions[i]
		if v.EntityType != ref.Type || v.EntityID != ref.ID || v.Kind != kind {
			continue
		}
		if v.Contains(date) {
			return v, nil
		}
	}
	return PriceVersion{}, ErrVersionNotFound
}

func (f *fakeRepo) ListVersions(ctx context.Context, ref EntityRef, kind PriceKind) ([]PriceVersion, error) {
	var out []PriceVersion
	for _, v := range f.versions {
		if v.EntityType == ref.Type && v.EntityID == ref.ID && v.Kind == kind {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (f *fakeRepo) ActiveVersionForUpdate(ctx context.Context, ref EntityRef, kind PriceKind) (PriceVersion, error) {
	return f.ActiveVersion(ctx, ref, kind)
}

func (f *fakeRepo) CloseVersion(ctx context.Context, versionID int64, endDate time.Time) error {
	for i := range f.versions {
		if f.versions[i].ID == versionID && f.versions[i].EndDate == nil {
			end := endDate
			f.versions[i].EndDate = &end
			return nil
		}
	}
	return ErrVersionNotFound
}

func (f *fakeRepo) InsertVersion(ctx context.Context, v PriceVersion) (PriceVersion, error) {
	v.ID = f.nextID
	f.nextID++
	f.versions = append(f.versions, v)
	return v, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAddPriceClosesPreviousVersion(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ref := EntityRef{Type: EntityProduct, ID: 1}

	_, err := svc.AddPrice(context.Background(), ref, KindSelling, price("100.00"), day(2024, time.January, 1))
	require.NoError(t, err)
	_, err = svc.AddPrice(context.Background(), ref, KindSelling, price("120.00"), day(2024, time.June, 1))
	require.NoError(t, err)

	versions, err := svc.History(context.Background(), ref, KindSelling)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	old := versions[1]
	require.NotNil(t, old.EndDate)
	require.True(t, old.EndDate.Equal(day(2024, time.June, 1)))

	got, err := svc.PriceAt(context.Background(), ref, KindSelling, day(2024, time.March, 1))
	require.NoError(t, err)
	require.True(t, got.Equal(price("100.00")), "got %s", got)

	current, err := svc.CurrentPrice(context.Background(), ref, KindSelling)
	require.NoError(t, err)
	require.True(t, current.Equal(price("120.00")), "got %s", current)
}

func TestPriceAtBoundaryBelongsToNewVersion(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ref := EntityRef{Type: EntityProduct, ID: 1}

	_, err := svc.AddPrice(context.Background(), ref, KindSelling, price("100.00"), day(2024, time.January, 1))
	require.NoError(t, err)
	_, err = svc.AddPrice(context.Background(), ref, KindSelling, price("120.00"), day(2024, time.June, 1))
	require.NoError(t, err)

	got, err := svc.PriceAt(context.Background(), ref, KindSelling, day(2024, time.June, 1))
	require.NoError(t, err)
	require.True(t, got.Equal(price("120.00")), "got %s", got)

	got, err = svc.PriceAt(context.Background(), ref, KindSelling, day(2024, time.May, 31))
	require.NoError(t, err)
	require.True(t, got.Equal(price("100.00")), "got %s", got)
}

func TestAddPriceRejectsNonMonotonicStart(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ref := EntityRef{Type: EntityService, ID: 7}

	_, err := svc.AddPrice(context.Background(), ref, KindSelling, price("50.00"), day(2024, time.June, 1))
	require.NoError(t, err)

	_, err = svc.AddPrice(context.Background(), ref, KindSelling, price("55.00"), day(2024, time.May, 1))
	require.ErrorIs(t, err, ErrNonMonotonicDate)

	_, err = svc.AddPrice(context.Background(), ref, KindSelling, price("55.00"), day(2024, time.June, 1))
	require.ErrorIs(t, err, ErrNonMonotonicDate)
}

func TestAddPriceDefaultsStartDateToToday(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo).WithClock(func() time.Time {
		return time.Date(2024, time.July, 15, 13, 45, 0, 0, time.UTC)
	})
	ref := EntityRef{Type: EntityProduct, ID: 3}

	v, err := svc.AddPrice(context.Background(), ref, KindBuying, price("9.99"), time.Time{})
	require.NoError(t, err)
	require.True(t, v.StartDate.Equal(day(2024, time.July, 15)))
}

func TestAddPriceValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	_, err := svc.AddPrice(context.Background(), EntityRef{Type: EntityProduct, ID: 1}, KindSelling, price("-1"), day(2024, time.January, 1))
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.AddPrice(context.Background(), EntityRef{Type: "WIDGET", ID: 1}, KindSelling, price("1"), day(2024, time.January, 1))
	require.ErrorIs(t, err, ErrInvalidEntity)

	_, err = svc.AddPrice(context.Background(), EntityRef{Type: EntityProduct, ID: 1}, "RENTING", price("1"), day(2024, time.January, 1))
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestPriceKindsAreIndependent(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ref := EntityRef{Type: EntityProduct, ID: 4}

	_, err := svc.AddPrice(context.Background(), ref, KindSelling, price("200.00"), day(2024, time.January, 1))
	require.NoError(t, err)
	_, err = svc.AddPrice(context.Background(), ref, KindBuying, price("140.00"), day(2024, time.January, 1))
	require.NoError(t, err)

	selling, err := svc.CurrentPrice(context.Background(), ref, KindSelling)
	require.NoError(t, err)
	require.True(t, selling.Equal(price("200.00")))

	buying, err := svc.CurrentPrice(context.Background(), ref, KindBuying)
	require.NoError(t, err)
	require.True(t, buying.Equal(price("140.00")))
}

func TestAtMostOneOpenVersionPerSeries(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ref := EntityRef{Type: EntityProduct, ID: 9}

	dates := []time.Time{
		day(2024, time.January, 1),
		day(2024, time.February, 1),
		day(2024, time.March, 1),
		day(2024, time.April, 1),
	}
	for i, d := range dates {
		_, err := svc.AddPrice(context.Background(), ref, KindSelling, price("10.00").Add(decimal.NewFromInt(int64(i))), d)
		require.NoError(t, err)
	}

	versions, err := svc.History(context.Background(), ref, KindSelling)
	require.NoError(t, err)
	require.Len(t, versions, 4)

	open := 0
	for i, v := range versions {
		if v.EndDate == nil {
			open++
			continue
		}
		// Each closed version ends exactly where its successor starts.
		require.True(t, v.EndDate.Equal(versions[i-1].StartDate))
	}
	require.Equal(t, 1, open)
}

func TestCurrentPriceWithoutHistory(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ref := EntityRef{Type: EntityProduct, ID: 42}

	_, err := svc.CurrentPrice(context.Background(), ref, KindSelling)
	require.ErrorIs(t, err, ErrNoActivePrice)

	_, err = svc.PriceAt(context.Background(), ref, KindSelling, day(2024, time.January, 1))
	require.ErrorIs(t, err, ErrNoPriceForDate)
}

package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/example/ride-notify/internal/models"
	"github.com/example/ride-notify/internal/storage"
)

type fakeTrips struct {
	trips map[string]models.Trip
	err   error
	calls int
}

func (f *fakeTrips) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	f.calls++
	if f.err != nil {
		return models.Trip{}, f.err
	}
	t, ok := f.trips[id]
	if !ok {
		return models.Trip{}, storage.ErrNotFound
	}
	return t, nil
}

func newFake() *fakeTrips {
	return &fakeTrips{trips: map[string]models.Trip{"trip123": {ID: "trip123", DriverID: "drv789"}}}
}

func TestResolvePassengerToDriver(t *testing.T) {
	f := newFake()
	r := NewResolver(f, nil)

	got, ok := r.ResolveRecipient(context.Background(), "trip123__pax456", models.RolePassenger, "pax456")
	assert.True(t, ok)
	assert.Equal(t, "drv789", got)
	assert.Equal(t, 1, f.calls)
}

func TestResolveDriverToPassengerWithoutLookup(t *testing.T) {
	f := newFake()
	r := NewResolver(f, nil)

	got, ok := r.ResolveRecipient(context.Background(), "trip123__pax456", models.RoleDriver, "drv789")
	assert.True(t, ok)
	assert.Equal(t, "pax456", got)
	assert.Zero(t, f.calls)
}

func TestResolveMalformedChannel(t *testing.T) {
	f := newFake()
	r := NewResolver(f, nil)

	for _, id := range []string{"trip123", "", "trip123__", "a__b__c"} {
		got, ok := r.ResolveRecipient(context.Background(), id, models.RolePassenger, "pax456")
		assert.False(t, ok, id)
		assert.Empty(t, got, id)
	}
	assert.Zero(t, f.calls)
}

func TestResolveTripGone(t *testing.T) {
	r := NewResolver(newFake(), nil)
	got, ok := r.ResolveRecipient(context.Background(), "gone__pax456", models.RolePassenger, "pax456")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestResolveLookupError(t *testing.T) {
	f := newFake()
	f.err = errors.New("timeout")
	r := NewResolver(f, nil)
	_, ok := r.ResolveRecipient(context.Background(), "trip123__pax456", models.RolePassenger, "pax456")
	assert.False(t, ok)
}

func TestResolveUnknownRole(t *testing.T) {
	r := NewResolver(newFake(), nil)
	_, ok := r.ResolveRecipient(context.Background(), "trip123__pax456", "admin", "x")
	assert.False(t, ok)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hola", Preview("hola"))

	exact := strings.Repeat("a", 100)
	assert.Equal(t, exact, Preview(exact))

	long := strings.Repeat("b", 101)
	got := Preview(long)
	assert.Equal(t, 100, len(got))
	assert.Equal(t, strings.Repeat("b", 97)+"...", got)

	accents := strings.Repeat("ñ", 150)
	got = Preview(accents)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

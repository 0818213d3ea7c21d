package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/prescription"
)

func seedCatalog(t *testing.T) (*catalog.InMemory, catalog.App) {
	t.Helper()
	apps := catalog.NewInMemory()
	app, err := apps.CreateApp(context.Background(), catalog.NewApp{
		Name: "MindfulPath", Category: "Mental Health",
		ClinicalScore: 4.8, UXScore: 4.7, SecurityScore: 4.9, IntegrationScore: 4.6,
	})
	require.NoError(t, err)
	return apps, app
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	apps, app := seedCatalog(t)
	tr := NewInMemory(apps)

	first, err := tr.UpsertProgress(ctx, "P1", "MindfulPath", 50)
	require.NoError(t, err)
	second, err := tr.UpsertProgress(ctx, "P1", "MindfulPath", 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, tr.Len())

	got, err := tr.GetProgress(ctx, "P1", app.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Percent)
	assert.Equal(t, app.ID, got.AppID)
}

func TestUpsertReplacesPercent(t *testing.T) {
	ctx := context.Background()
	apps, _ := seedCatalog(t)
	tr := NewInMemory(apps)

	first, err := tr.UpsertProgress(ctx, "P1", "MindfulPath", 20)
	require.NoError(t, err)
	next, err := tr.UpsertProgress(ctx, "P1", "mindfulpath", 75)
	require.NoError(t, err)
	assert.Equal(t, first.ID, next.ID)
	assert.Equal(t, 75, next.Percent)
	assert.Equal(t, 1, tr.Len())

	_, err = tr.UpsertProgress(ctx, "P2", "MindfulPath", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Len())

	list, err := tr.ListProgress(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 75, list[0].Percent)
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	apps, _ := seedCatalog(t)
	tr := NewInMemory(apps)

	for _, bad := range []int{-5, 101} {
		_, err := tr.UpsertProgress(ctx, "P1", "MindfulPath", bad)
		require.ErrorIs(t, err, apperr.ErrValidation)
	}
	_, err := tr.UpsertProgress(ctx, "", "MindfulPath", 10)
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = tr.UpsertProgress(ctx, "P1", "Unknown", 10)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, tr.Len())

	_, err = tr.GetProgress(ctx, "P1", "MindfulPath")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRequirePrescription(t *testing.T) {
	ctx := context.Background()
	apps, app := seedCatalog(t)
	ledger := prescription.NewInMemory(apps)
	tr := NewInMemory(apps, RequirePrescription(ledger))

	_, err := tr.UpsertProgress(ctx, "P1", app.ID, 10)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = ledger.Prescribe(ctx, prescription.Request{AppRef: app.ID, ProviderID: "Dr. Smith", PatientID: "P1"})
	require.NoError(t, err)
	rec, err := tr.UpsertProgress(ctx, "P1", app.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Percent)
}

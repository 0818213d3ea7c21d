package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/identity"
	"beaconhealth.org/internal/messaging"
	"beaconhealth.org/internal/prescription"
)

func targets() Targets {
	apps := catalog.NewInMemory()
	return Targets{
		Catalog:       apps,
		Prescriptions: prescription.NewInMemory(apps),
		Messages:      messaging.NewInMemory(apps),
	}
}

func TestDemoFixturesMatchComputedScores(t *testing.T) {
	f, err := Demo()
	require.NoError(t, err)
	require.Len(t, f.Apps, 3)
	for _, in := range f.Apps {
		require.NotNil(t, in.ClaimedOverall, in.Name)
		computed := catalog.Score(in.ClinicalScore, in.UXScore, in.SecurityScore, in.IntegrationScore)
		_, diverges := catalog.OverallDivergence(in.ClaimedOverall, computed)
		assert.False(t, diverges, "%s: claimed %v computed %v", in.Name, *in.ClaimedOverall, computed)
	}
}

func TestLoadDemo(t *testing.T) {
	ctx := context.Background()
	tg := targets()
	f, err := Demo()
	require.NoError(t, err)

	res, err := Load(ctx, tg, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Apps: 3, Prescriptions: 3, Messages: 3}, res)

	views, err := tg.Prescriptions.ListForPatient(ctx, "Demo Patient")
	require.NoError(t, err)
	require.Len(t, views, 3)
	statuses := map[string]prescription.Status{}
	for _, v := range views {
		statuses[v.App.Name] = v.Status
	}
	assert.Equal(t, prescription.StatusPending, statuses["SleepHarmony"])
	assert.Equal(t, prescription.StatusActive, statuses["DiabetesGuard"])

	inbox, err := tg.Messages.Inbox(ctx, messaging.InboxQuery{ParticipantID: "Demo Patient", Role: identity.Patient})
	require.NoError(t, err)
	assert.Len(t, inbox, 3)

	n, err := tg.Messages.UnreadCount(ctx, "Dr. Johnson")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadSkipsNonEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	tg := targets()
	f, err := Demo()
	require.NoError(t, err)

	_, err = Load(ctx, tg, f)
	require.NoError(t, err)
	res, err := Load(ctx, tg, f)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	apps, err := tg.Catalog.ListApps(ctx, catalog.Filter{})
	require.NoError(t, err)
	assert.Len(t, apps, 3)
}

func TestLoadStopsOnUnknownApp(t *testing.T) {
	ctx := context.Background()
	f, err := Parse([]byte(`
apps:
  - {name: Solo, category: Sleep, clinical_score: 4, ux_score: 4, security_score: 4, integration_score: 4}
prescriptions:
  - {app: Ghost, provider_id: Dr. Smith, patient_id: P1}
`))
	require.NoError(t, err)

	res, err := Load(ctx, targets(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ghost")
	assert.Equal(t, 1, res.Apps)
}

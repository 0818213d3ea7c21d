// Package seed loads demo fixtures through the public service contracts.
// It is never called by the domain packages themselves.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/messaging"
	"beaconhealth.org/internal/obs"
	"beaconhealth.org/internal/prescription"
)

//go:embed demo.yaml
var demoYAML []byte

type Fixtures struct {
	Apps          []catalog.NewApp       `yaml:"apps"`
	Prescriptions []prescription.Request `yaml:"prescriptions"`
	Messages      []messaging.Draft      `yaml:"messages"`
}

// Targets are the services fixtures are written to.
type Targets struct {
	Catalog       catalog.Service
	Prescriptions prescription.Service
	Messages      messaging.Service
}

type Result struct {
	Apps          int  `json:"apps"`
	Prescriptions int  `json:"prescriptions"`
	Messages      int  `json:"messages"`
	Skipped       bool `json:"skipped"`
}

// Demo returns the embedded demo fixtures.
func Demo() (Fixtures, error) {
	return Parse(demoYAML)
}

func Parse(data []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	return f, nil
}

// Load writes f into t unless the catalog already holds apps.
func Load(ctx context.Context, t Targets, f Fixtures) (Result, error) {
	existing, err := t.Catalog.ListApps(ctx, catalog.Filter{})
	if err != nil {
		return Result{}, err
	}
	if len(existing) > 0 {
		return Result{Skipped: true}, nil
	}

	var res Result
	for _, in := range f.Apps {
		app, err := t.Catalog.CreateApp(ctx, in)
		if err != nil {
			return res, fmt.Errorf("seed app %q: %w", in.Name, err)
		}
		if gap, ok := catalog.OverallDivergence(in.ClaimedOverall, app.OverallScore); ok {
			obs.Logger().Warn().Str("app", app.Name).Float64("computed", app.OverallScore).
				Float64("gap", gap).Msg("fixture overall score diverges")
		}
		res.Apps++
	}
	if t.Prescriptions != nil {
		for _, req := range f.Prescriptions {
			if _, err := t.Prescriptions.Prescribe(ctx, req); err != nil {
				return res, fmt.Errorf("seed prescription %s/%s: %w", req.AppRef, req.PatientID, err)
			}
			res.Prescriptions++
		}
	}
	if t.Messages != nil {
		for _, d := range f.Messages {
			if _, err := t.Messages.SendMessage(ctx, d); err != nil {
				return res, fmt.Errorf("seed message %q: %w", d.Subject, err)
			}
			res.Messages++
		}
	}
	return res, nil
}

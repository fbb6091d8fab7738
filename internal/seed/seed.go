// Package seed bootstraps a warehouse from a YAML fixture file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/log"
	"github.com/georgemunganga/warehouse-backend/internal/modules/fleet"
	"github.com/georgemunganga/warehouse-backend/internal/modules/inventory"
)

// Fixture is the content of a seed file.
type Fixture struct {
	Products  []Product  `yaml:"products"`
	Forklifts []Forklift `yaml:"forklifts"`
}

// Product is a seeded product. Products are matched by code, so a seeded product needs one.
type Product struct {
	Code      string     `yaml:"code"`
	Name      string     `yaml:"name"`
	ImageURL  string     `yaml:"image_url,omitempty"`
	Threshold *int       `yaml:"threshold,omitempty"`
	Positions []Position `yaml:"positions"`
}

type Position struct {
	Label string `yaml:"label"`
	Units int    `yaml:"units"`
}

// Forklift is a seeded forklift, matched by name.
type Forklift struct {
	Name            string     `yaml:"name"`
	PositionLabel   string     `yaml:"position_label,omitempty"`
	ImageURL        string     `yaml:"image_url,omitempty"`
	VideoURL        string     `yaml:"video_url,omitempty"`
	State           string     `yaml:"state,omitempty"`
	LastMaintenance *time.Time `yaml:"last_maintenance,omitempty"`
}

// Load reads and validates the fixture at path in fsys.
func Load(fsys fs.FS, path string) (*Fixture, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("could not read seed file: %w", err)
	}

	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("could not parse seed file %s: %w", path, err)
	}

	codes := map[string]bool{}
	for i, p := range f.Products {
		if p.Code == "" {
			return nil, fmt.Errorf("product %d (%s): code is required", i, p.Name)
		}
		if codes[p.Code] {
			return nil, fmt.Errorf("product code %q is repeated", p.Code)
		}
		codes[p.Code] = true
	}
	for i, fl := range f.Forklifts {
		if fl.Name == "" {
			return nil, fmt.Errorf("forklift %d: name is required", i)
		}
	}
	return &f, nil
}

// Result counts what Apply did.
type Result struct {
	ProductsCreated  int
	ProductsSkipped  int
	ForkliftsCreated int
	ForkliftsSkipped int
}

// Apply creates the fixture entities that do not exist yet. Running it twice is harmless.
func Apply(ctx context.Context, f *Fixture, inv inventory.Service, fl fleet.Service, logger log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.Noop
	}
	logger = logger.WithValues(log.Kv{"svc": "seed"})
	res := &Result{}

	for _, p := range f.Products {
		_, err := inv.GetProductByCode(ctx, p.Code)
		if err == nil {
			res.ProductsSkipped++
			continue
		}
		if !errors.Is(err, apperr.ErrProductNotFound) {
			return res, fmt.Errorf("could not look up product %q: %w", p.Code, err)
		}

		req := inventory.CreateProductRequest{Code: p.Code, Name: p.Name, ImageURL: p.ImageURL, Threshold: p.Threshold}
		for _, pos := range p.Positions {
			req.Positions = append(req.Positions, inventory.PositionRequest{Label: pos.Label, Units: pos.Units})
		}
		if _, err := inv.CreateProduct(ctx, req); err != nil {
			return res, fmt.Errorf("could not seed product %q: %w", p.Code, err)
		}
		res.ProductsCreated++
	}

	existing, err := fl.ListForklifts(ctx, fleet.ListFilter{})
	if err != nil {
		return res, fmt.Errorf("could not list forklifts: %w", err)
	}
	names := map[string]bool{}
	for _, e := range existing {
		names[e.Name] = true
	}
	for _, fk := range f.Forklifts {
		if names[fk.Name] {
			res.ForkliftsSkipped++
			continue
		}
		_, err := fl.CreateForklift(ctx, fleet.CreateForkliftRequest{
			Name:            fk.Name,
			PositionLabel:   fk.PositionLabel,
			ImageURL:        fk.ImageURL,
			VideoURL:        fk.VideoURL,
			State:           fleet.State(fk.State),
			LastMaintenance: fk.LastMaintenance,
		})
		if err != nil {
			return res, fmt.Errorf("could not seed forklift %q: %w", fk.Name, err)
		}
		names[fk.Name] = true
		res.ForkliftsCreated++
	}

	logger.WithValues(log.Kv{
		"products-created":  res.ProductsCreated,
		"products-skipped":  res.ProductsSkipped,
		"forklifts-created": res.ForkliftsCreated,
		"forklifts-skipped": res.ForkliftsSkipped,
	}).Infof("Seed applied")
	return res, nil
}

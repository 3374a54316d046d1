// Package synth generates reproducible Big Mart style transaction tables for
// demos and tests.
package synth

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"mart-segments/internal/models"
)

var (
	itemTypes = []string{
		"Baking Goods", "Breads", "Breakfast", "Canned", "Dairy", "Frozen Foods",
		"Fruits and Vegetables", "Hard Drinks", "Health and Hygiene", "Household",
		"Meat", "Others", "Seafood", "Snack Foods", "Soft Drinks", "Starchy Foods",
	}
	// Spelling variants as they occur in the raw data.
	fatSpellings = []string{"Low Fat", "Low Fat", "LF", "low fat", "Regular", "Regular", "reg"}
	outletTypes  = []string{"Grocery Store", "Supermarket Type1", "Supermarket Type1", "Supermarket Type2", "Supermarket Type3"}
	outletSizes  = []string{"Small", "Medium", "High", ""}
	locations    = []string{"Tier 1", "Tier 2", "Tier 3"}
)

type Options struct {
	Products int
	Stores   int
	// MissingWeight is the probability that a record's weight is absent.
	MissingWeight float64
	// Coverage is the probability that a given store carries a product.
	Coverage float64
}

func DefaultOptions() Options {
	return Options{Products: 200, Stores: 10, MissingWeight: 0.15, Coverage: 0.6}
}

type store struct {
	id, kind, size, location string
	year                     int
	scale                    float64
}

type product struct {
	id, itemType, fat string
	weight, mrp, vis  float64
	demand            float64
}

// Generate returns a transaction table fully determined by seed and opts.
// Every product is carried by at least one store.
func Generate(seed int64, opts Options) []models.Transaction {
	if opts.Products <= 0 || opts.Stores <= 0 {
		return nil
	}
	f := gofakeit.New(seed)

	stores := make([]store, opts.Stores)
	for i := range stores {
		stores[i] = store{
			id:       fmt.Sprintf("OUT%03d", i+10),
			kind:     f.RandomString(outletTypes),
			size:     f.RandomString(outletSizes),
			location: f.RandomString(locations),
			year:     f.Number(1985, 2009),
			scale:    f.Float64Range(0.5, 2.0),
		}
	}

	products := make([]product, opts.Products)
	for i := range products {
		typ := f.RandomString(itemTypes)
		products[i] = product{
			id:       fmt.Sprintf("%s%s%02d", prefixFor(typ), strings.ToUpper(f.LetterN(1)), i),
			itemType: typ,
			fat:      f.RandomString(fatSpellings),
			weight:   f.Float64Range(4.5, 21.5),
			mrp:      f.Float64Range(31, 267),
			vis:      f.Float64Range(0, 0.2),
			demand:   f.Float64Range(2, 25),
		}
	}

	var out []models.Transaction
	for _, p := range products {
		first := f.Number(0, len(stores)-1)
		for si, s := range stores {
			if si != first && f.Float64Range(0, 1) >= opts.Coverage {
				continue
			}
			tx := models.Transaction{
				ItemID:          p.id,
				ItemFatContent:  p.fat,
				ItemVisibility:  p.vis,
				ItemType:        p.itemType,
				ItemMRP:         p.mrp * f.Float64Range(0.97, 1.03),
				OutletID:        s.id,
				OutletYear:      s.year,
				OutletSize:      s.size,
				OutletLocation:  s.location,
				OutletType:      s.kind,
				ItemOutletSales: p.mrp * p.demand * s.scale * f.Float64Range(0.6, 1.4),
				SourceRowNumber: len(out) + 2,
			}
			if f.Float64Range(0, 1) >= opts.MissingWeight {
				tx.ItemWeight = models.Float(p.weight)
			}
			out = append(out, tx)
		}
	}
	return out
}

func prefixFor(itemType string) string {
	switch itemType {
	case "Hard Drinks", "Soft Drinks":
		return "DR"
	case "Health and Hygiene", "Household", "Others":
		return "NC"
	default:
		return "FD"
	}
}

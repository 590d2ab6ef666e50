package ledger

import (
	"context"

	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
)

// Package is a purchasable credit bundle. Purchases are simulated; no payment is taken.
type Package struct {
	ID      string  `json:"id"`
	Credits int     `json:"credits"`
	Price   float64 `json:"price"`
	Bonus   int     `json:"bonus"`
	Popular bool    `json:"popular"`
}

// Total is the number of credits granted.
func (p Package) Total() int {
	return p.Credits + p.Bonus
}

var packages = []Package{
	{ID: "small", Credits: 10, Price: 4.99},
	{ID: "medium", Credits: 25, Price: 9.99, Bonus: 5, Popular: true},
	{ID: "large", Credits: 50, Price: 19.99, Bonus: 15},
	{ID: "xl", Credits: 100, Price: 34.99, Bonus: 35},
}

// Packages lists the available bundles.
func Packages() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

// FindPackage looks a bundle up by id.
func FindPackage(id string) (Package, bool) {
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// Purchase grants the bundle's credits to userID.
func (c *Coordinator) Purchase(ctx context.Context, userID, packageID string) (Package, error) {
	pkg, ok := FindPackage(packageID)
	if !ok {
		return Package{}, apperr.Validationf("unknown credit package %q", packageID)
	}
	if err := c.ApplyCreditDelta(ctx, userID, pkg.Total()); err != nil {
		return Package{}, err
	}
	c.metrics.CreditsPurchased(pkg.Total())
	c.logger.Info("credits purchased",
		zap.String("user_id", userID),
		zap.String("package", pkg.ID),
		zap.Int("credits", pkg.Total()),
	)
	return pkg, nil
}

package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/service"
)

type seedCategory struct {
	code        string
	name        string
	description string
}

type seedRule struct {
	categoryCode string
	matchValue   string
}

var defaultCategories = []seedCategory{
	{code: "supermercado", name: "Supermercado", description: "Compras de supermercado y abarrotes"},
	{code: "transporte", name: "Transporte", description: "Combustible, peajes y viajes"},
	{code: "utilidades", name: "Utilidades", description: "Electricidad, agua, telefonía e internet"},
	{code: "restaurantes", name: "Restaurantes", description: "Restaurantes, sodas y cafeterías"},
	{code: "salud", name: "Salud", description: "Farmacias, clínicas y seguros médicos"},
	{code: "ocio", name: "Ocio", description: "Entretenimiento, streaming y compras en línea"},
	{code: "otros", name: "Otros", description: "Gastos sin categoría específica"},
}

var defaultRules = []seedRule{
	{categoryCode: "utilidades", matchValue: "CLARO"},
	{categoryCode: "utilidades", matchValue: "CNFL"},
	{categoryCode: "utilidades", matchValue: "KOLBI"},
	{categoryCode: "transporte", matchValue: "SERVICENTRO"},
	{categoryCode: "transporte", matchValue: "UBER"},
	{categoryCode: "supermercado", matchValue: "WALMART"},
	{categoryCode: "supermercado", matchValue: "AUTOMERCADO"},
	{categoryCode: "salud", matchValue: "FARMACIA"},
	{categoryCode: "ocio", matchValue: "AMAZON"},
	{categoryCode: "ocio", matchValue: "NETFLIX"},
}

// SeedDefaults installs the default category set and, when the rule table is
// empty, a starter set of merchant rules. Existing categories are left alone
// and a non-empty rule table suppresses rule seeding entirely so user edits
// are never mixed with defaults.
func SeedDefaults(ctx context.Context, logger *slog.Logger, categories service.CategoryStore, rules service.RuleStore) error {
	byCode := make(map[string]int64, len(defaultCategories))
	for _, seed := range defaultCategories {
		category, err := categories.GetCategoryByCode(ctx, seed.code)
		if err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("failed to look up category %q: %w", seed.code, err)
			}
			category = &model.Category{
				Code:        seed.code,
				Name:        seed.name,
				Description: seed.description,
				IsActive:    true,
			}
			if err := categories.CreateCategory(ctx, category); err != nil {
				return fmt.Errorf("failed to seed category %q: %w", seed.code, err)
			}
			logger.Debug("seeded category", "code", seed.code)
		}
		byCode[seed.code] = category.ID
	}

	count, err := rules.CountRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to count rules: %w", err)
	}
	if count > 0 {
		logger.Debug("rule table not empty, skipping rule seeding", "rules", count)
		return nil
	}

	for _, seed := range defaultRules {
		categoryID, ok := byCode[seed.categoryCode]
		if !ok {
			continue
		}
		rule := &model.CategoryRule{
			CategoryID: categoryID,
			MatchField: model.MatchFieldMerchant,
			MatchType:  model.MatchContains,
			MatchValue: seed.matchValue,
			Priority:   seededPriority,
			Origin:     model.OriginSeeded,
			IsActive:   true,
		}
		if err := rules.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to seed rule %q: %w", seed.matchValue, err)
		}
	}
	logger.Info("seeded default rules", "count", len(defaultRules))
	return nil
}

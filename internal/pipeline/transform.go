package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/rnli-heatmap/internal/domain"
)

// Transformer turns source features into the all-data and harm-subset tables.
type Transformer struct {
	allTable  string
	harmTable string
	predicate domain.HarmPredicate
	logger    *slog.Logger
}

// NewTransformer creates a Transformer writing to the named tables.
func NewTransformer(allTable, harmTable string, predicate domain.HarmPredicate, logger *slog.Logger) *Transformer {
	return &Transformer{
		allTable:  allTable,
		harmTable: harmTable,
		predicate: predicate,
		logger:    logger,
	}
}

// Tables flattens every feature and splits out the harm subset. Both tables
// share the column layout inferred from the full record set.
func (t *Transformer) Tables(features []domain.Feature) (all, harm domain.Table, err error) {
	records, err := domain.FlattenFeatures(features)
	if err != nil {
		return domain.Table{}, domain.Table{}, err
	}

	cols := domain.InferColumns(records)
	subset := domain.FilterHarmSubset(records, t.predicate)
	t.logger.Debug("features transformed",
		"records", len(records), "harm", len(subset), "columns", len(cols),
		"activity", t.predicate.Activity, "exclude_aic", t.predicate.ExcludeAIC)

	return domain.Table{Name: t.allTable, Columns: cols, Records: records},
		domain.Table{Name: t.harmTable, Columns: cols, Records: subset},
		nil
}

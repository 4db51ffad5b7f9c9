package datastore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Defaults for best-recordings pagination.
const (
	defaultPerSpeciesLimit = 5
	defaultPerPage         = 25
)

// BestRecordingsQuery selects the highest-confidence recorded detections
// per species.
type BestRecordingsQuery struct {
	// PerSpeciesLimit caps how many recordings one species may contribute.
	// Ignored when Species is set: a species-scoped request returns every
	// matching recording.
	PerSpeciesLimit int
	MinConfidence   float64
	Page            int // 1-based
	PerPage         int
	Species         string
	Family          string
}

func (q *BestRecordingsQuery) normalize() error {
	if q.PerSpeciesLimit < 0 || q.MinConfidence < 0 || q.Page < 0 || q.PerPage < 0 {
		return validationError("best_recordings", "query parameters must not be negative")
	}
	if q.PerSpeciesLimit == 0 {
		q.PerSpeciesLimit = defaultPerSpeciesLimit
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = defaultPerPage
	}
	return nil
}

// rankedCTE renders the ranked-recordings common table expression shared
// by the count and page queries.
func (q *BestRecordingsQuery) rankedCTE() (string, []any) {
	conds := []string{"d.audio_file_id IS NOT NULL", "d.confidence >= ?"}
	args := []any{q.MinConfidence}

	if q.Species != "" {
		conds = append(conds, "d.scientific_name = ?")
		args = append(args, q.Species)
	}
	if q.Family != "" {
		conds = append(conds,
			"LOWER(d.scientific_name) IN (SELECT LOWER(fs.scientific_name) FROM ioc.species fs WHERE LOWER(fs.family) = LOWER(?))")
		args = append(args, q.Family)
	}

	cte := `
WITH ranked AS (
  SELECT d.*,
         ROW_NUMBER() OVER (PARTITION BY d.scientific_name ORDER BY d.confidence DESC, d.id ASC) AS species_rank
  FROM detections d
  WHERE ` + strings.Join(conds, " AND ") + `
)`
	return cte, args
}

// capPredicate limits rows to the per-species cap, unless a species filter
// made the cap moot.
func (q *BestRecordingsQuery) capPredicate() (string, []any) {
	if q.Species != "" {
		return "1=1", nil
	}
	return "r.species_rank <= ?", []any{q.PerSpeciesLimit}
}

// QueryBestRecordingsPerSpecies returns the top recordings per species
// ordered by confidence descending, plus the total row count across all
// pages. The total is computed with the same predicates as the page query
// so it stays stable while paging.
func (ds *DataStore) QueryBestRecordingsPerSpecies(ctx context.Context, q *BestRecordingsQuery) ([]DetectionWithTaxa, int64, error) {
	if q == nil {
		q = &BestRecordingsQuery{}
	}
	if err := q.normalize(); err != nil {
		return nil, 0, err
	}

	start := time.Now()
	var (
		results []DetectionWithTaxa
		total   int64
	)

	err := ds.withTaxonomy(ctx, func(conn *gorm.DB, att attachedSources) error {
		if q.Family != "" && !att.ioc {
			return validationError("best_recordings", "family filter requires the IOC database", "family", q.Family)
		}

		cte, cteArgs := q.rankedCTE()
		capCond, capArgs := q.capPredicate()

		countQuery := cte + "\nSELECT COUNT(*) FROM ranked r WHERE " + capCond
		countArgs := append(append([]any{}, cteArgs...), capArgs...)
		if err := conn.Raw(countQuery, countArgs...).Scan(&total).Error; err != nil {
			return dbError(err, "best_recordings", "count query failed")
		}

		var b strings.Builder
		var args []any
		args = append(args, cteArgs...)

		b.WriteString(cte)
		b.WriteString("\nSELECT r.*")
		if att.ioc {
			b.WriteString(",\n  s.english_name AS ioc_english_name, s.genus AS genus, s.family AS family, s.order_name AS order_name")
		}
		nameExpr, nameArgs := translatedNameExpr(att, "r", ds.language())
		b.WriteString(",\n  " + nameExpr + " AS translated_name")
		args = append(args, nameArgs...)

		b.WriteString("\nFROM ranked r")
		if att.ioc {
			b.WriteString("\nLEFT JOIN ioc.species s ON LOWER(s.scientific_name) = LOWER(r.scientific_name)")
		}
		b.WriteString("\nWHERE " + capCond)
		args = append(args, capArgs...)

		b.WriteString("\nORDER BY r.confidence DESC, r.id ASC\nLIMIT ? OFFSET ?")
		args = append(args, q.PerPage, (q.Page-1)*q.PerPage)

		var rows []detectionTaxaRow
		if err := conn.Raw(b.String(), args...).Scan(&rows).Error; err != nil {
			return dbError(err, "best_recordings", "page query failed")
		}

		results = make([]DetectionWithTaxa, 0, len(rows))
		for i := range rows {
			results = append(results, rows[i].toDetectionWithTaxa(false))
		}
		return nil
	})
	if err != nil {
		ds.metrics.RecordDbOperation("best_recordings", "error")
		return nil, 0, err
	}

	ds.metrics.RecordDbOperation("best_recordings", "success")
	ds.metrics.RecordDbOperationDuration("best_recordings", time.Since(start).Seconds())
	return results, total, nil
}

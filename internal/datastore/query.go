package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// OrderBy names a sortable detection column. The set is closed so that a
// typo in a caller fails validation instead of silently falling back.
type OrderBy string

const (
	OrderByTimestamp  OrderBy = "timestamp"
	OrderByConfidence OrderBy = "confidence"
	OrderBySpecies    OrderBy = "scientific_name"
	OrderByID         OrderBy = "id"
)

// column returns the SQL column for an OrderBy value.
func (o OrderBy) column() (string, bool) {
	switch o {
	case OrderByTimestamp:
		return "timestamp", true
	case OrderByConfidence:
		return "confidence", true
	case OrderBySpecies:
		return "scientific_name", true
	case OrderByID:
		return "id", true
	default:
		return "", false
	}
}

// DetectionFilters selects and orders detections for QueryDetections.
// The zero value returns every detection ordered by timestamp ascending.
type DetectionFilters struct {
	Species       []string // exact scientific names
	StartDate     *time.Time
	EndDate       *time.Time // inclusive
	MinConfidence *float64
	MaxConfidence *float64
	Family        string // IOC family, requires the IOC database

	OrderBy    OrderBy
	Descending bool
	Limit      int
	Offset     int

	// IncludeFirstDetections adds the first-ever and first-in-period
	// ranking columns to each returned row.
	IncludeFirstDetections bool
}

func (f *DetectionFilters) validate() error {
	if f.OrderBy == "" {
		f.OrderBy = OrderByTimestamp
	}
	if _, ok := f.OrderBy.column(); !ok {
		return validationError("query_detections", fmt.Sprintf("unsupported order_by column %q", f.OrderBy))
	}
	if f.Limit < 0 {
		return validationError("query_detections", "limit must not be negative")
	}
	if f.Offset < 0 {
		return validationError("query_detections", "offset must not be negative")
	}
	if f.MinConfidence != nil && f.MaxConfidence != nil && *f.MinConfidence > *f.MaxConfidence {
		return validationError("query_detections", "min confidence must not exceed max confidence")
	}
	return nil
}

// predicates renders the WHERE conditions for these filters against table
// alias d. The same predicate set scopes both the outer query and the
// first-in-period ranking subquery.
func (f *DetectionFilters) predicates() (string, []any) {
	var conds []string
	var args []any

	switch len(f.Species) {
	case 0:
	case 1:
		conds = append(conds, "d.scientific_name = ?")
		args = append(args, f.Species[0])
	default:
		conds = append(conds, "d.scientific_name IN ?")
		args = append(args, f.Species)
	}
	if f.StartDate != nil {
		conds = append(conds, "d.timestamp >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		conds = append(conds, "d.timestamp <= ?")
		args = append(args, *f.EndDate)
	}
	if f.MinConfidence != nil {
		conds = append(conds, "d.confidence >= ?")
		args = append(args, *f.MinConfidence)
	}
	if f.MaxConfidence != nil {
		conds = append(conds, "d.confidence <= ?")
		args = append(args, *f.MaxConfidence)
	}
	if f.Family != "" {
		conds = append(conds,
			"LOWER(d.scientific_name) IN (SELECT LOWER(fs.scientific_name) FROM ioc.species fs WHERE LOWER(fs.family) = LOWER(?))")
		args = append(args, f.Family)
	}

	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// translatedNameExpr renders the common-name resolution cascade as a SQL
// expression over the attached sources, against the detection table alias.
func translatedNameExpr(att attachedSources, alias, lang string) (string, []any) {
	var branches []string
	var args []any

	if att.ioc && lang == "en" {
		branches = append(branches, "s.english_name")
	}
	if att.ioc {
		branches = append(branches,
			fmt.Sprintf("(SELECT t.common_name FROM ioc.translations t WHERE LOWER(t.scientific_name) = LOWER(%s.scientific_name) AND t.language_code = ? LIMIT 1)", alias))
		args = append(args, lang)
	}
	if att.patlevin {
		branches = append(branches,
			fmt.Sprintf("(SELECT pl.common_name FROM patlevin.patlevin_labels pl WHERE LOWER(pl.scientific_name) = LOWER(%s.scientific_name) AND pl.language_code = ? LIMIT 1)", alias))
		args = append(args, lang)
	}
	if att.avibase {
		branches = append(branches,
			fmt.Sprintf("(SELECT av.common_name FROM avibase.avibase_names av WHERE LOWER(av.scientific_name) = LOWER(%s.scientific_name) AND av.language_code = ? LIMIT 1)", alias))
		args = append(args, lang)
	}

	switch len(branches) {
	case 0:
		return "NULL", nil
	case 1:
		return branches[0], args
	default:
		return "COALESCE(" + strings.Join(branches, ", ") + ")", args
	}
}

// detectionTaxaRow is the flat scan target for enriched detection queries.
type detectionTaxaRow struct {
	ID               string
	ScientificName   string
	CommonName       string
	Confidence       float64
	Timestamp        time.Time
	Week             int
	Latitude         *float64
	Longitude        *float64
	Threshold        float64
	Sensitivity      float64
	Overlap          float64
	AudioFileID      *uint
	WeatherTimestamp *time.Time
	HourEpoch        *int64

	IOCEnglishName *string `gorm:"column:ioc_english_name"`
	Genus          *string `gorm:"column:genus"`
	Family         *string `gorm:"column:family"`
	OrderName      *string `gorm:"column:order_name"`
	TranslatedName *string `gorm:"column:translated_name"`

	FirstEverDetection   *time.Time `gorm:"column:first_ever_detection"`
	IsFirstEver          int        `gorm:"column:is_first_ever"`
	FirstPeriodDetection *time.Time `gorm:"column:first_period_detection"`
	IsFirstInPeriod      int        `gorm:"column:is_first_in_period"`
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *detectionTaxaRow) toDetectionWithTaxa(includeFirst bool) DetectionWithTaxa {
	out := DetectionWithTaxa{
		Detection: Detection{
			ID:               r.ID,
			ScientificName:   r.ScientificName,
			CommonName:       r.CommonName,
			Confidence:       r.Confidence,
			Timestamp:        r.Timestamp,
			Week:             r.Week,
			Latitude:         r.Latitude,
			Longitude:        r.Longitude,
			Threshold:        r.Threshold,
			Sensitivity:      r.Sensitivity,
			Overlap:          r.Overlap,
			AudioFileID:      r.AudioFileID,
			WeatherTimestamp: r.WeatherTimestamp,
			HourEpoch:        r.HourEpoch,
		},
		IOCEnglishName: strOrEmpty(r.IOCEnglishName),
		Genus:          strOrEmpty(r.Genus),
		Family:         strOrEmpty(r.Family),
		OrderName:      strOrEmpty(r.OrderName),
		TranslatedName: strOrEmpty(r.TranslatedName),
	}
	if includeFirst {
		firstEver := r.IsFirstEver != 0
		firstPeriod := r.IsFirstInPeriod != 0
		out.IsFirstEver = &firstEver
		out.IsFirstInPeriod = &firstPeriod
		out.FirstEverDetection = r.FirstEverDetection
		out.FirstPeriodDetection = r.FirstPeriodDetection
	}
	return out
}

// buildDetectionQuery assembles the enrichment SQL for the given filters
// and attached sources. Argument order follows the textual order of
// placeholders: select expressions, period-ranking subquery, outer WHERE,
// then pagination.
func buildDetectionQuery(f *DetectionFilters, att attachedSources, lang string) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT d.*")
	if att.ioc {
		b.WriteString(",\n  s.english_name AS ioc_english_name, s.genus AS genus, s.family AS family, s.order_name AS order_name")
	}
	nameExpr, nameArgs := translatedNameExpr(att, "d", lang)
	b.WriteString(",\n  " + nameExpr + " AS translated_name")
	args = append(args, nameArgs...)

	if f.IncludeFirstDetections {
		b.WriteString(",\n  fe.first_ts AS first_ever_detection, CASE WHEN fe.first_id = d.id THEN 1 ELSE 0 END AS is_first_ever")
		b.WriteString(",\n  fp.first_ts AS first_period_detection, CASE WHEN fp.first_id = d.id THEN 1 ELSE 0 END AS is_first_in_period")
	}

	b.WriteString("\nFROM detections d")
	if att.ioc {
		b.WriteString("\nLEFT JOIN ioc.species s ON LOWER(s.scientific_name) = LOWER(d.scientific_name)")
	}

	where, whereArgs := f.predicates()

	if f.IncludeFirstDetections {
		// First-ever ranks over the full unfiltered history; the outer
		// filters must not influence which row is globally first.
		b.WriteString(`
JOIN (
  SELECT id AS first_id, scientific_name, timestamp AS first_ts,
         ROW_NUMBER() OVER (PARTITION BY scientific_name ORDER BY timestamp ASC, id ASC) AS rn
  FROM detections
) fe ON fe.scientific_name = d.scientific_name AND fe.rn = 1`)

		b.WriteString(`
JOIN (
  SELECT d.id AS first_id, d.scientific_name, d.timestamp AS first_ts,
         ROW_NUMBER() OVER (PARTITION BY d.scientific_name ORDER BY d.timestamp ASC, d.id ASC) AS rn
  FROM detections d
  WHERE ` + where + `
) fp ON fp.scientific_name = d.scientific_name AND fp.rn = 1`)
		args = append(args, whereArgs...)
	}

	b.WriteString("\nWHERE " + where)
	args = append(args, whereArgs...)

	col, _ := f.OrderBy.column()
	direction := "ASC"
	if f.Descending {
		direction = "DESC"
	}
	fmt.Fprintf(&b, "\nORDER BY d.%s %s, d.id ASC", col, direction)

	if f.Limit > 0 {
		b.WriteString("\nLIMIT ?")
		args = append(args, f.Limit)
		if f.Offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, f.Offset)
		}
	} else if f.Offset > 0 {
		b.WriteString("\nLIMIT -1 OFFSET ?")
		args = append(args, f.Offset)
	}

	return b.String(), args
}

// QueryDetections returns detections matching the filters, enriched with
// taxonomy and translated names from whichever reference databases are
// available. Reference database errors after a successful attach fail the
// whole query; a failing enrichment join must not silently return partial
// rows.
func (ds *DataStore) QueryDetections(ctx context.Context, filters *DetectionFilters) ([]DetectionWithTaxa, error) {
	if filters == nil {
		filters = &DetectionFilters{}
	}
	if err := filters.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var results []DetectionWithTaxa

	err := ds.withTaxonomy(ctx, func(conn *gorm.DB, att attachedSources) error {
		if filters.Family != "" && !att.ioc {
			return validationError("query_detections", "family filter requires the IOC database", "family", filters.Family)
		}

		query, args := buildDetectionQuery(filters, att, ds.language())

		var rows []detectionTaxaRow
		if err := conn.Raw(query, args...).Scan(&rows).Error; err != nil {
			return dbError(err, "query_detections", "detection query failed")
		}

		results = make([]DetectionWithTaxa, 0, len(rows))
		for i := range rows {
			results = append(results, rows[i].toDetectionWithTaxa(filters.IncludeFirstDetections))
		}
		return nil
	})
	if err != nil {
		ds.metrics.RecordDbOperation("query_detections", "error")
		return nil, err
	}

	ds.metrics.RecordDbOperation("query_detections", "success")
	ds.metrics.RecordDbOperationDuration("query_detections", time.Since(start).Seconds())
	return results, nil
}

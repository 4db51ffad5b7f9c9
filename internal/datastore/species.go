package datastore

import (
	"context"
	"strings"

	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// Common name sources, in resolution priority order.
const (
	SourceIOC      = "IOC"
	SourcePatLevin = "PatLevin"
	SourceAvibase  = "Avibase"
)

// CommonNameResult is a resolved common name and the source that supplied
// it. The zero value means no name was found.
type CommonNameResult struct {
	CommonName string
	Source     string
}

// TranslationEntry is one common name in one language from one source.
type TranslationEntry struct {
	Name   string
	Source string
}

// normalizeLanguage canonicalizes a BCP 47 language code. Unparseable codes
// are lowercased and used as-is.
func normalizeLanguage(code string) string {
	if tag, err := language.Parse(code); err == nil {
		return strings.ToLower(tag.String())
	}
	return strings.ToLower(strings.TrimSpace(code))
}

// GetBestCommonName resolves the best common name for a species in the
// given language. Sources are consulted in priority order: the IOC English
// column for English, IOC translations, PatLevin labels, then Avibase. A
// species with no name in any source yields a zero result and no error.
func (ds *DataStore) GetBestCommonName(ctx context.Context, scientificName, lang string) (CommonNameResult, error) {
	if scientificName == "" {
		return CommonNameResult{}, validationError("best_common_name", "scientific name must not be empty")
	}
	lang = normalizeLanguage(lang)
	if lang == "" {
		lang = ds.language()
	}

	var result CommonNameResult
	err := ds.withTaxonomy(ctx, func(conn *gorm.DB, att attachedSources) error {
		var err error
		result, err = bestCommonName(conn, att, scientificName, lang)
		return err
	})
	if err != nil {
		return CommonNameResult{}, err
	}
	return result, nil
}

// bestCommonName runs the priority cascade on an already-attached session.
func bestCommonName(conn *gorm.DB, att attachedSources, scientificName, lang string) (CommonNameResult, error) {
	if att.ioc {
		if lang == "en" {
			var name string
			err := conn.Raw(
				"SELECT english_name FROM ioc.species WHERE LOWER(scientific_name) = LOWER(?) LIMIT 1",
				scientificName,
			).Scan(&name).Error
			if err != nil {
				return CommonNameResult{}, dbError(err, "best_common_name", "IOC english lookup failed")
			}
			if name != "" {
				return CommonNameResult{CommonName: name, Source: SourceIOC}, nil
			}
		}

		var name string
		err := conn.Raw(
			"SELECT common_name FROM ioc.translations WHERE LOWER(scientific_name) = LOWER(?) AND language_code = ? LIMIT 1",
			scientificName, lang,
		).Scan(&name).Error
		if err != nil {
			return CommonNameResult{}, dbError(err, "best_common_name", "IOC translation lookup failed")
		}
		if name != "" {
			return CommonNameResult{CommonName: name, Source: SourceIOC}, nil
		}
	}

	if att.patlevin {
		var name string
		err := conn.Raw(
			"SELECT common_name FROM patlevin.patlevin_labels WHERE LOWER(scientific_name) = LOWER(?) AND language_code = ? LIMIT 1",
			scientificName, lang,
		).Scan(&name).Error
		if err != nil {
			return CommonNameResult{}, dbError(err, "best_common_name", "PatLevin lookup failed")
		}
		if name != "" {
			return CommonNameResult{CommonName: name, Source: SourcePatLevin}, nil
		}
	}

	if att.avibase {
		var name string
		err := conn.Raw(
			"SELECT common_name FROM avibase.avibase_names WHERE LOWER(scientific_name) = LOWER(?) AND language_code = ? LIMIT 1",
			scientificName, lang,
		).Scan(&name).Error
		if err != nil {
			return CommonNameResult{}, dbError(err, "best_common_name", "Avibase lookup failed")
		}
		if name != "" {
			return CommonNameResult{CommonName: name, Source: SourceAvibase}, nil
		}
	}

	return CommonNameResult{}, nil
}

// GetAllTranslations collects every known common name for a species across
// all attached sources, keyed by language code. Identical (name, source)
// pairs are deduplicated; the same name from different sources is kept.
func (ds *DataStore) GetAllTranslations(ctx context.Context, scientificName string) (map[string][]TranslationEntry, error) {
	if scientificName == "" {
		return nil, validationError("all_translations", "scientific name must not be empty")
	}

	translations := make(map[string][]TranslationEntry)
	seen := make(map[string]bool)

	add := func(lang, name, source string) {
		lang = normalizeLanguage(lang)
		if lang == "" || name == "" {
			return
		}
		key := lang + "\x00" + name + "\x00" + source
		if seen[key] {
			return
		}
		seen[key] = true
		translations[lang] = append(translations[lang], TranslationEntry{Name: name, Source: source})
	}

	type row struct {
		LanguageCode string
		CommonName   string
	}

	err := ds.withTaxonomy(ctx, func(conn *gorm.DB, att attachedSources) error {
		if att.ioc {
			var name string
			err := conn.Raw(
				"SELECT english_name FROM ioc.species WHERE LOWER(scientific_name) = LOWER(?) LIMIT 1",
				scientificName,
			).Scan(&name).Error
			if err != nil {
				return dbError(err, "all_translations", "IOC english lookup failed")
			}
			add("en", name, SourceIOC)

			var rows []row
			err = conn.Raw(
				"SELECT language_code, common_name FROM ioc.translations WHERE LOWER(scientific_name) = LOWER(?)",
				scientificName,
			).Scan(&rows).Error
			if err != nil {
				return dbError(err, "all_translations", "IOC translations lookup failed")
			}
			for _, r := range rows {
				add(r.LanguageCode, r.CommonName, SourceIOC)
			}
		}

		if att.patlevin {
			var rows []row
			err := conn.Raw(
				"SELECT language_code, common_name FROM patlevin.patlevin_labels WHERE LOWER(scientific_name) = LOWER(?)",
				scientificName,
			).Scan(&rows).Error
			if err != nil {
				return dbError(err, "all_translations", "PatLevin lookup failed")
			}
			for _, r := range rows {
				add(r.LanguageCode, r.CommonName, SourcePatLevin)
			}
		}

		if att.avibase {
			var rows []row
			err := conn.Raw(
				"SELECT language_code, common_name FROM avibase.avibase_names WHERE LOWER(scientific_name) = LOWER(?)",
				scientificName,
			).Scan(&rows).Error
			if err != nil {
				return dbError(err, "all_translations", "Avibase lookup failed")
			}
			for _, r := range rows {
				add(r.LanguageCode, r.CommonName, SourceAvibase)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return translations, nil
}

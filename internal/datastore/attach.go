package datastore

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/tphakala/taxondb/internal/errors"
)

// Alias identifies an attachable reference database. ATTACH aliases cannot
// be bound as SQL parameters, so only values from this fixed set are ever
// interpolated into statements.
type Alias string

const (
	AliasIOC      Alias = "ioc"
	AliasAvibase  Alias = "avibase"
	AliasPatLevin Alias = "patlevin"
	AliasEBird    Alias = "ebird"
)

var validAliases = map[Alias]bool{
	AliasIOC:      true,
	AliasAvibase:  true,
	AliasPatLevin: true,
	AliasEBird:    true,
}

// attachedSources records which taxonomy databases a session managed to
// attach. Query builders consult it to skip joins against missing sources.
type attachedSources struct {
	ioc      bool
	avibase  bool
	patlevin bool
}

func (a attachedSources) any() bool {
	return a.ioc || a.avibase || a.patlevin
}

// attachDatabase attaches the database file at path under the given alias
// on this connection. The file must already exist: SQLite would otherwise
// silently create an empty database at path.
func (ds *DataStore) attachDatabase(conn *gorm.DB, path string, alias Alias) error {
	if !validAliases[alias] {
		ds.metrics.RecordAttachOperation(string(alias), "attach", "error")
		return validationError("attach", fmt.Sprintf("unknown attach alias %q", alias))
	}
	if path == "" {
		ds.metrics.RecordAttachOperation(string(alias), "attach", "error")
		return errors.Newf("no database configured for alias %s", alias).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("alias", string(alias)).
			Build()
	}
	if _, err := os.Stat(path); err != nil {
		ds.metrics.RecordAttachOperation(string(alias), "attach", "error")
		return errors.Newf("reference database for alias %s unavailable: %w", alias, err).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("alias", string(alias)).
			Context("path", path).
			Build()
	}

	if err := conn.Exec(fmt.Sprintf("ATTACH DATABASE ? AS %s", alias), path).Error; err != nil {
		ds.metrics.RecordAttachOperation(string(alias), "attach", "error")
		return dbError(err, "attach", "failed to attach database", "alias", string(alias), "path", path)
	}
	ds.metrics.RecordAttachOperation(string(alias), "attach", "success")
	return nil
}

// detachDatabase detaches an alias from this connection. Detach failures
// are logged rather than returned: the connection goes back to the pool
// either way and the caller's result should not depend on it.
func (ds *DataStore) detachDatabase(conn *gorm.DB, alias Alias) {
	if !validAliases[alias] {
		return
	}
	if err := conn.Exec(fmt.Sprintf("DETACH DATABASE %s", alias)).Error; err != nil {
		ds.metrics.RecordAttachOperation(string(alias), "detach", "error")
		getLogger().Warn("failed to detach database", "alias", alias, "error", err)
		return
	}
	ds.metrics.RecordAttachOperation(string(alias), "detach", "success")
}

// withTaxonomy pins a single pooled connection, attaches whichever taxonomy
// reference databases are configured and present, and runs fn on that
// connection. Missing sources degrade the session rather than failing it;
// fn learns what is available from the attachedSources argument. All
// aliases are detached before the connection returns to the pool.
func (ds *DataStore) withTaxonomy(ctx context.Context, fn func(conn *gorm.DB, att attachedSources) error) error {
	return ds.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var att attachedSources

		type source struct {
			alias Alias
			path  string
			flag  *bool
		}
		sources := []source{
			{AliasIOC, ds.Settings.Taxonomy.IOCPath, &att.ioc},
			{AliasAvibase, ds.Settings.Taxonomy.AvibasePath, &att.avibase},
			{AliasPatLevin, ds.Settings.Taxonomy.PatLevinPath, &att.patlevin},
		}

		attached := make([]Alias, 0, len(sources))
		defer func() {
			for i := len(attached) - 1; i >= 0; i-- {
				ds.detachDatabase(conn, attached[i])
			}
		}()

		for _, s := range sources {
			if err := ds.attachDatabase(conn, s.path, s.alias); err != nil {
				getLogger().Debug("taxonomy source unavailable", "alias", s.alias, "error", err)
				continue
			}
			*s.flag = true
			attached = append(attached, s.alias)
		}

		return fn(conn, att)
	})
}

// WithRegionPack pins a connection, attaches the named region pack and runs
// fn with a session scoped to it. Unlike taxonomy sources the pack is
// required: a missing pack database is an error.
func (ds *DataStore) WithRegionPack(ctx context.Context, pack string, fn func(*RegionSession) error) error {
	path := ds.Settings.RegionPackPath(pack)
	return ds.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := ds.attachDatabase(conn, path, AliasEBird); err != nil {
			return err
		}
		defer ds.detachDatabase(conn, AliasEBird)
		return fn(&RegionSession{conn: conn})
	})
}

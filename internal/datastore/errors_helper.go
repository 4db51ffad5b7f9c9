package datastore

import (
	"github.com/tphakala/taxondb/internal/errors"
)

// dbError wraps a database error with component and operation context.
func dbError(err error, operation, message string, keyvals ...any) error {
	builder := errors.Newf("%s: %w", message, err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok {
			builder = builder.Context(key, keyvals[i+1])
		}
	}
	return builder.Build()
}

// validationError reports invalid caller input.
func validationError(operation, message string, keyvals ...any) error {
	builder := errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("operation", operation)
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok {
			builder = builder.Context(key, keyvals[i+1])
		}
	}
	return builder.Build()
}

// notFoundError reports a missing entity.
func notFoundError(entity, id string) error {
	return errors.Newf("%s not found: %s", entity, id).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("entity", entity).
		Context("id", id).
		Build()
}

func errorsIs(err, target error) bool {
	return errors.Is(err, target)
}

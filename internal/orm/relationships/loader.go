package relationships

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
)

// PathSeparator separates the relations of a prefetch path
const PathSeparator = "__"

// Prefetch loads the relations named by paths for records of resource.
// Each path is walked from the root records one relation at a time; every
// path prefix is loaded by a single query however many paths share it.
// Loaded records are attached under the relation name: a map (or nil) for
// to-one relations, a slice for to-many relations.
func (l *Loader) Prefetch(
	ctx context.Context,
	records []map[string]interface{},
	resource string,
	paths []string,
) error {
	if len(records) == 0 {
		return nil
	}

	loadCtx := NewLoadContext(l.maxDepth)
	return l.PrefetchWithContext(ctx, records, resource, paths, loadCtx)
}

// PrefetchWithContext is Prefetch sharing an existing load context
func (l *Loader) PrefetchWithContext(
	ctx context.Context,
	records []map[string]interface{},
	resource string,
	paths []string,
	loadCtx *LoadContext,
) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		segments := strings.Split(path, PathSeparator)
		if err := l.prefetchPath(ctx, records, resource, segments, "", loadCtx); err != nil {
			return fmt.Errorf("failed to prefetch %s: %w", path, err)
		}
	}
	return nil
}

func (l *Loader) prefetchPath(
	ctx context.Context,
	records []map[string]interface{},
	resource string,
	segments []string,
	prefix string,
	loadCtx *LoadContext,
) error {
	if len(segments) == 0 || len(records) == 0 {
		return nil
	}

	if err := loadCtx.IncrementDepth(); err != nil {
		return err
	}
	defer loadCtx.DecrementDepth()

	owner, ok := l.getSchema(resource)
	if !ok {
		return fmt.Errorf("%w: %s", schema.ErrUnknownResource, resource)
	}
	attr, ok, err := l.accessor.Lookup(resource, segments[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, resource, segments[0])
	}
	if !attr.IsRelation() {
		return fmt.Errorf("%w: %s.%s is not a relation", ErrInvalidRelationType, resource, attr.Name)
	}

	target, ok := l.getSchema(attr.RelatedType)
	if !ok {
		return fmt.Errorf("%w: %s", schema.ErrUnknownResource, attr.RelatedType)
	}

	key := prefix + attr.Name
	if loadCtx.MarkVisited(key) {
		if err := l.loadRelation(ctx, records, owner, target, attr); err != nil {
			return fmt.Errorf("failed to load relationship %s: %w", key, err)
		}
	}

	if len(segments) == 1 {
		return nil
	}

	nested := extractNestedRecords(records, attr)
	return l.prefetchPath(ctx, nested, attr.RelatedType, segments[1:], key+PathSeparator, loadCtx)
}

// loadRelation loads one relation for all records
func (l *Loader) loadRelation(
	ctx context.Context,
	records []map[string]interface{},
	owner, target *schema.ResourceSchema,
	attr schema.AttributeDescriptor,
) error {
	switch attr.Kind {
	case schema.KindToOneForward:
		if attached(records, attr.Name) {
			l.logger.Debug("relation already joined", zap.String("relation", attr.Name))
			return nil
		}
		return l.loadForward(ctx, records, target, attr)
	case schema.KindToOneReverse:
		if attached(records, attr.Name) {
			l.logger.Debug("relation already joined", zap.String("relation", attr.Name))
			return nil
		}
		return l.loadReverseOne(ctx, records, owner, target, attr)
	case schema.KindToManyReverse:
		if attr.JoinTable != "" {
			return l.loadThrough(ctx, records, owner, target, attr)
		}
		return l.loadReverseMany(ctx, records, owner, target, attr)
	case schema.KindToManyForward:
		return l.loadThrough(ctx, records, owner, target, attr)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRelationType, attr.Kind)
	}
}

// attached reports whether every record already holds the relation, as
// happens when it was loaded by a join
func attached(records []map[string]interface{}, name string) bool {
	for _, record := range records {
		v, ok := record[name]
		if !ok {
			return false
		}
		if _, isMap := v.(map[string]interface{}); !isMap && v != nil {
			return false
		}
	}
	return true
}

// extractNestedRecords collects the related records attached to records.
// The same related row may appear in several maps when it was loaded for
// several owners; each of them needs the next relation attached.
func extractNestedRecords(records []map[string]interface{}, attr schema.AttributeDescriptor) []map[string]interface{} {
	var nested []map[string]interface{}
	for _, record := range records {
		switch relData := record[attr.Name].(type) {
		case map[string]interface{}:
			nested = append(nested, relData)
		case []map[string]interface{}:
			nested = append(nested, relData...)
		}
	}
	return nested
}

// scanRows scans multiple SQL rows into a slice of maps
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{})
		for i, col := range columns {
			// Handle []byte conversion to string for text fields
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

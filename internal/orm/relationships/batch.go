package relationships

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
)

// parentKeyColumn carries the owner key of many-to-many rows
const parentKeyColumn = "__parent_id"

// collectKeys returns the distinct non-nil values of column
func collectKeys(records []map[string]interface{}, column string) ([]interface{}, error) {
	var keys []interface{}
	seen := make(map[string]bool)
	for _, record := range records {
		id, ok := record[column]
		if !ok || id == nil {
			continue
		}
		idStr, err := idToString(id)
		if err != nil {
			return nil, fmt.Errorf("invalid key type for %s: %w", column, err)
		}
		if !seen[idStr] {
			seen[idStr] = true
			keys = append(keys, id)
		}
	}
	return keys, nil
}

// loadForward loads a to-one forward relation using a batched ANY query
// Example: Student.parent
//   - Collect all unique parent_ids from students
//   - Single query: SELECT * FROM "parents" WHERE "id" = ANY($1)
//   - Map parents back to students
func (l *Loader) loadForward(
	ctx context.Context,
	records []map[string]interface{},
	target *schema.ResourceSchema,
	attr schema.AttributeDescriptor,
) error {
	ids, err := collectKeys(records, attr.Column)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		for _, record := range records {
			record[attr.Name] = nil
		}
		return nil
	}

	pk := target.PrimaryKeyColumn()
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY($1)",
		pq.QuoteIdentifier(target.TableName), pq.QuoteIdentifier(pk))

	rows, err := l.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", attr.Name, err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s records: %w", attr.Name, err)
	}

	related := make(map[string]map[string]interface{}, len(results))
	for _, record := range results {
		idStr, err := idToString(record[pk])
		if err != nil {
			return fmt.Errorf("invalid ID type in results: %w", err)
		}
		related[idStr] = record
	}

	// Attach to parent records
	for _, record := range records {
		record[attr.Name] = nil
		id := record[attr.Column]
		if id == nil {
			continue
		}
		idStr, err := idToString(id)
		if err != nil {
			return fmt.Errorf("invalid foreign key value: %w", err)
		}
		if relRecord, ok := related[idStr]; ok {
			record[attr.Name] = relRecord
		}
	}

	return nil
}

// loadReverseOne loads a one-to-one back-reference
// Example: Parent.student (Student.parent is unique)
//   - Collect all parent IDs
//   - Single query: SELECT DISTINCT ON ("parent_id") * FROM "students" WHERE "parent_id" = ANY($1)
//   - Map students back to parents
func (l *Loader) loadReverseOne(
	ctx context.Context,
	records []map[string]interface{},
	owner, target *schema.ResourceSchema,
	attr schema.AttributeDescriptor,
) error {
	ownerPK := owner.PrimaryKeyColumn()
	parentIDs, err := collectKeys(records, ownerPK)
	if err != nil {
		return err
	}

	if len(parentIDs) == 0 {
		return nil
	}

	fk := pq.QuoteIdentifier(attr.ForeignKey)
	query := fmt.Sprintf(
		"SELECT DISTINCT ON (%s) * FROM %s WHERE %s = ANY($1) ORDER BY %s, %s",
		fk, pq.QuoteIdentifier(target.TableName), fk, fk, pq.QuoteIdentifier(target.PrimaryKeyColumn()),
	)

	rows, err := l.db.QueryContext(ctx, query, pq.Array(parentIDs))
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", attr.Name, err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s records: %w", attr.Name, err)
	}

	related := make(map[string]map[string]interface{}, len(results))
	for _, record := range results {
		parentIDStr, err := idToString(record[attr.ForeignKey])
		if err != nil {
			return fmt.Errorf("invalid parent ID in results: %w", err)
		}
		related[parentIDStr] = record
	}

	for _, record := range records {
		record[attr.Name] = nil
		idStr, err := idToString(record[ownerPK])
		if err != nil {
			continue
		}
		if relRecord, ok := related[idStr]; ok {
			record[attr.Name] = relRecord
		}
	}

	return nil
}

// loadReverseMany loads a one-to-many back-reference
// Example: Child.parent_set
//   - Collect all child IDs
//   - Single query: SELECT * FROM "parents" WHERE "child_id" = ANY($1)
//   - Group parents by child_id
func (l *Loader) loadReverseMany(
	ctx context.Context,
	records []map[string]interface{},
	owner, target *schema.ResourceSchema,
	attr schema.AttributeDescriptor,
) error {
	ownerPK := owner.PrimaryKeyColumn()
	parentIDs, err := collectKeys(records, ownerPK)
	if err != nil {
		return err
	}

	if len(parentIDs) == 0 {
		return nil
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY($1) ORDER BY %s",
		pq.QuoteIdentifier(target.TableName),
		pq.QuoteIdentifier(attr.ForeignKey),
		pq.QuoteIdentifier(target.PrimaryKeyColumn()),
	)

	rows, err := l.db.QueryContext(ctx, query, pq.Array(parentIDs))
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", attr.Name, err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s records: %w", attr.Name, err)
	}

	grouped := make(map[string][]map[string]interface{})
	for _, record := range results {
		parentIDStr, err := idToString(record[attr.ForeignKey])
		if err != nil {
			return fmt.Errorf("invalid parent ID in results: %w", err)
		}
		grouped[parentIDStr] = append(grouped[parentIDStr], record)
	}

	attachGrouped(records, ownerPK, attr.Name, grouped)
	return nil
}

// loadThrough loads a many-to-many relation in either direction
// Example: Teacher.teaches
//   - Single query joining the join table:
//     SELECT t.*, j."teacher_id" AS "__parent_id" FROM "courses" t
//     INNER JOIN "teachers_teaches" j ON t."id" = j."course_id"
//     WHERE j."teacher_id" = ANY($1)
//   - Group courses by teacher
func (l *Loader) loadThrough(
	ctx context.Context,
	records []map[string]interface{},
	owner, target *schema.ResourceSchema,
	attr schema.AttributeDescriptor,
) error {
	ownerPK := owner.PrimaryKeyColumn()
	parentIDs, err := collectKeys(records, ownerPK)
	if err != nil {
		return err
	}

	if len(parentIDs) == 0 {
		return nil
	}

	ownerKey := pq.QuoteIdentifier(attr.OwnerKey)
	query := fmt.Sprintf(
		"SELECT t.*, j.%s AS %s FROM %s t INNER JOIN %s j ON t.%s = j.%s WHERE j.%s = ANY($1) ORDER BY t.%s",
		ownerKey,
		pq.QuoteIdentifier(parentKeyColumn),
		pq.QuoteIdentifier(target.TableName),
		pq.QuoteIdentifier(attr.JoinTable),
		pq.QuoteIdentifier(target.PrimaryKeyColumn()),
		pq.QuoteIdentifier(attr.RelatedKey),
		ownerKey,
		pq.QuoteIdentifier(target.PrimaryKeyColumn()),
	)

	rows, err := l.db.QueryContext(ctx, query, pq.Array(parentIDs))
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", attr.Name, err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s records: %w", attr.Name, err)
	}

	grouped := make(map[string][]map[string]interface{})
	for _, record := range results {
		parentIDStr, err := idToString(record[parentKeyColumn])
		if err != nil {
			return fmt.Errorf("invalid parent ID in through results: %w", err)
		}
		delete(record, parentKeyColumn) // Remove join artifact
		grouped[parentIDStr] = append(grouped[parentIDStr], record)
	}

	attachGrouped(records, ownerPK, attr.Name, grouped)
	return nil
}

// attachGrouped attaches grouped children, always as a non-nil slice
func attachGrouped(records []map[string]interface{}, pk, name string, grouped map[string][]map[string]interface{}) {
	for _, record := range records {
		children := []map[string]interface{}{}
		if id := record[pk]; id != nil {
			if idStr, err := idToString(id); err == nil {
				if related, ok := grouped[idStr]; ok {
					children = related
				}
			}
		}
		record[name] = children
	}
}

// idToString efficiently converts an ID to a string with type validation
// Supports common ID types: string, int, int64, []byte (UUID)
func idToString(id interface{}) (string, error) {
	if id == nil {
		return "", fmt.Errorf("ID cannot be nil")
	}

	switch v := id.(type) {
	case string:
		return v, nil
	case int:
		return fmt.Sprintf("%d", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case int32:
		return fmt.Sprintf("%d", v), nil
	case uint:
		return fmt.Sprintf("%d", v), nil
	case uint64:
		return fmt.Sprintf("%d", v), nil
	case []byte:
		// UUID stored as bytes
		return string(v), nil
	default:
		// Fallback for other types (e.g., custom UUID types)
		return fmt.Sprintf("%v", v), nil
	}
}

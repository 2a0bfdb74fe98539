package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpILike
	OpIsNull
	OpIsNotNull
	OpBetween
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// Condition represents a WHERE condition
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
	Or       bool // true for OR, false for AND
}

// PredicateGroup represents a group of predicates combined with AND/OR
type PredicateGroup struct {
	Conditions []*Condition
	Groups     []*PredicateGroup
	Or         bool // true for OR, false for AND
}

// NewPredicateGroup creates a new predicate group
func NewPredicateGroup(or bool) *PredicateGroup {
	return &PredicateGroup{
		Conditions: make([]*Condition, 0),
		Groups:     make([]*PredicateGroup, 0),
		Or:         or,
	}
}

// AddCondition adds a condition to the group
func (pg *PredicateGroup) AddCondition(cond *Condition) {
	pg.Conditions = append(pg.Conditions, cond)
}

// AddGroup adds a nested group
func (pg *PredicateGroup) AddGroup(group *PredicateGroup) {
	pg.Groups = append(pg.Groups, group)
}

// ToSQL converts the predicate group to SQL
func (pg *PredicateGroup) ToSQL(paramCounter *int, args *[]interface{}) (string, error) {
	parts := make([]string, 0, len(pg.Conditions)+len(pg.Groups))

	for _, cond := range pg.Conditions {
		sql, err := conditionToSQL(cond, paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	for _, group := range pg.Groups {
		sql, err := group.ToSQL(paramCounter, args)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, fmt.Sprintf("(%s)", sql))
		}
	}

	connector := " AND "
	if pg.Or {
		connector = " OR "
	}
	return strings.Join(parts, connector), nil
}

// conditionToSQL converts a condition to SQL with parameterized values
func conditionToSQL(cond *Condition, paramCounter *int, args *[]interface{}) (string, error) {
	bind := func(v interface{}) string {
		*args = append(*args, v)
		placeholder := fmt.Sprintf("$%d", *paramCounter)
		*paramCounter++
		return placeholder
	}

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual,
		OpLessThan, OpLessThanOrEqual, OpLike, OpILike:
		return fmt.Sprintf("%s %s %s", cond.Field, cond.Operator, bind(cond.Value)), nil

	case OpIn, OpNotIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("%s operator requires []interface{} value", cond.Operator)
		}
		if len(values) == 0 {
			// IN () never matches, NOT IN () always does
			if cond.Operator == OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = bind(v)
		}
		return fmt.Sprintf("%s %s (%s)", cond.Field, cond.Operator, strings.Join(placeholders, ", ")), nil

	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", cond.Field, cond.Operator), nil

	case OpBetween:
		values, ok := cond.Value.([]interface{})
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("BETWEEN operator requires [min, max] values")
		}
		low := bind(values[0])
		high := bind(values[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", cond.Field, low, high), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", cond.Operator)
	}
}

// PredicateBuilder provides a fluent API for building complex predicates
type PredicateBuilder struct {
	root *PredicateGroup
}

// NewPredicateBuilder creates a new predicate builder
func NewPredicateBuilder() *PredicateBuilder {
	return &PredicateBuilder{
		root: NewPredicateGroup(false), // Default to AND
	}
}

// And adds an AND condition
func (pb *PredicateBuilder) And(field string, op Operator, value interface{}) *PredicateBuilder {
	pb.root.AddCondition(&Condition{Field: field, Operator: op, Value: value})
	return pb
}

// Or adds an OR condition
func (pb *PredicateBuilder) Or(field string, op Operator, value interface{}) *PredicateBuilder {
	pb.root.AddCondition(&Condition{Field: field, Operator: op, Value: value, Or: true})
	return pb
}

// AndGroup adds an AND group
func (pb *PredicateBuilder) AndGroup(fn func(*PredicateBuilder)) *PredicateBuilder {
	group := NewPredicateGroup(false)
	fn(&PredicateBuilder{root: group})
	pb.root.AddGroup(group)
	return pb
}

// OrGroup adds an OR group
func (pb *PredicateBuilder) OrGroup(fn func(*PredicateBuilder)) *PredicateBuilder {
	group := NewPredicateGroup(true)
	fn(&PredicateBuilder{root: group})
	pb.root.AddGroup(group)
	return pb
}

// ToSQL converts the predicate builder to SQL
func (pb *PredicateBuilder) ToSQL(paramCounter *int, args *[]interface{}) (string, error) {
	return pb.root.ToSQL(paramCounter, args)
}

// ValidateOperator validates that an operator is compatible with a field type
func ValidateOperator(op Operator, fieldType schema.PrimitiveType) error {
	switch op {
	case OpLike, OpILike:
		if fieldType != schema.TypeString && fieldType != schema.TypeText {
			return fmt.Errorf("%w: %s only works with text fields", ErrInvalidOperator, op)
		}
	case OpBetween:
		switch fieldType {
		case schema.TypeInt, schema.TypeBigInt, schema.TypeFloat, schema.TypeDecimal,
			schema.TypeTimestamp, schema.TypeDate:
		default:
			return fmt.Errorf("%w: %s only works with numeric or date fields", ErrInvalidOperator, op)
		}
	}
	return nil
}

// ParseCondition parses an expression such as "views > 100",
// "status IN draft,published" or "deleted_at IS NULL" into a condition
func ParseCondition(expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)

	parts := strings.SplitN(expr, " ", 2)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid condition format: %s", expr)
	}
	field := parts[0]
	rest := strings.TrimSpace(parts[1])

	upper := strings.ToUpper(rest)
	switch {
	case upper == "IS NULL":
		return &Condition{Field: field, Operator: OpIsNull}, nil
	case upper == "IS NOT NULL":
		return &Condition{Field: field, Operator: OpIsNotNull}, nil
	case strings.HasPrefix(upper, "NOT IN "):
		return &Condition{Field: field, Operator: OpNotIn, Value: parseList(rest[len("NOT IN "):])}, nil
	case strings.HasPrefix(upper, "IN "):
		return &Condition{Field: field, Operator: OpIn, Value: parseList(rest[len("IN "):])}, nil
	}

	opValue := strings.SplitN(rest, " ", 2)
	if len(opValue) < 2 {
		return nil, fmt.Errorf("invalid condition format: %s", expr)
	}
	op, err := parseOperatorString(opValue[0])
	if err != nil {
		return nil, err
	}
	return &Condition{Field: field, Operator: op, Value: parseLiteralValue(strings.TrimSpace(opValue[1]))}, nil
}

// parseOperatorString converts a binary operator string to an Operator
func parseOperatorString(opStr string) (Operator, error) {
	switch strings.ToUpper(opStr) {
	case "=", "==":
		return OpEqual, nil
	case "!=", "<>":
		return OpNotEqual, nil
	case "<":
		return OpLessThan, nil
	case "<=":
		return OpLessThanOrEqual, nil
	case ">":
		return OpGreaterThan, nil
	case ">=":
		return OpGreaterThanOrEqual, nil
	case "LIKE":
		return OpLike, nil
	case "ILIKE":
		return OpILike, nil
	default:
		return OpEqual, fmt.Errorf("unknown operator: %s", opStr)
	}
}

func parseList(s string) []interface{} {
	items := strings.Split(s, ",")
	values := make([]interface{}, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, parseLiteralValue(item))
		}
	}
	return values
}

// parseLiteralValue parses a literal value from a string
func parseLiteralValue(valueStr string) interface{} {
	// Quoted values are always strings
	if len(valueStr) >= 2 && (valueStr[0] == '\'' || valueStr[0] == '"') && valueStr[len(valueStr)-1] == valueStr[0] {
		return valueStr[1 : len(valueStr)-1]
	}

	switch valueStr {
	case "true":
		return true
	case "false":
		return false
	}

	if i, err := strconv.Atoi(valueStr); err == nil {
		return i
	}
	if strings.Contains(valueStr, ".") {
		if f, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return f
		}
	}

	return valueStr
}

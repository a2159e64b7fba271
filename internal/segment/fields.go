package segment

// ==========================================
// FIELD REGISTRY
// ==========================================

// Known attribute field names. Adding a field is a registry entry, not a
// new switch branch; unknown names fall through a single lookup-miss path.
const (
	FieldAge        = "age"
	FieldArpu       = "arpu"
	FieldBalance    = "balance"
	FieldChurnScore = "churn_score"
	FieldCity       = "city"
	FieldTier       = "tier"
	FieldGender     = "gender"
	FieldSimType    = "sim_type"
	FieldStatus     = "status"
	FieldCreatedAt  = "created_at"
	FieldTags       = "tags"
	FieldActivity   = "activity"
)

// FieldClass groups fields by the kind of predicate they compile to.
type FieldClass int

const (
	// ClassNumeric fields compare with > < = >= <= against a numeric column.
	ClassNumeric FieldClass = iota
	// ClassEnum fields compare with = or set membership via "in".
	ClassEnum
	// ClassTenure is created_at expressed as days since registration;
	// operators invert onto a calendar cutoff.
	ClassTenure
	// ClassTags requires two-step resolution through the tag tables and
	// yields a member set, never a column predicate.
	ClassTags
	// ClassActivity is the live recency classification; it is evaluated by
	// a batched aggregation in the store, not a stored-column filter.
	ClassActivity
)

// String names the class for API responses.
func (c FieldClass) String() string {
	switch c {
	case ClassNumeric:
		return "numeric"
	case ClassEnum:
		return "enum"
	case ClassTenure:
		return "tenure"
	case ClassTags:
		return "tags"
	case ClassActivity:
		return "activity"
	}
	return "unknown"
}

// FieldSpec describes one queryable attribute.
type FieldSpec struct {
	Name      string
	Class     FieldClass
	Column    string
	Operators []Operator
}

// AllowsOperator reports whether op is legal for this field's class.
func (f FieldSpec) AllowsOperator(op Operator) bool {
	for _, allowed := range f.Operators {
		if allowed == op {
			return true
		}
	}
	return false
}

var (
	numericOps = []Operator{OpGt, OpLt, OpEq, OpGte, OpLte}
	enumOps    = []Operator{OpEq, OpIn}
	tagOps     = []Operator{OpIn, OpContains}
)

var fieldRegistry = map[string]FieldSpec{
	FieldAge:        {Name: FieldAge, Class: ClassNumeric, Column: "age", Operators: numericOps},
	FieldArpu:       {Name: FieldArpu, Class: ClassNumeric, Column: "arpu", Operators: numericOps},
	FieldBalance:    {Name: FieldBalance, Class: ClassNumeric, Column: "balance", Operators: numericOps},
	FieldChurnScore: {Name: FieldChurnScore, Class: ClassNumeric, Column: "churn_score", Operators: numericOps},
	FieldCity:       {Name: FieldCity, Class: ClassEnum, Column: "city", Operators: enumOps},
	FieldTier:       {Name: FieldTier, Class: ClassEnum, Column: "tier", Operators: enumOps},
	FieldGender:     {Name: FieldGender, Class: ClassEnum, Column: "gender", Operators: enumOps},
	FieldSimType:    {Name: FieldSimType, Class: ClassEnum, Column: "sim_type", Operators: enumOps},
	FieldStatus:     {Name: FieldStatus, Class: ClassEnum, Column: "status", Operators: enumOps},
	FieldCreatedAt:  {Name: FieldCreatedAt, Class: ClassTenure, Column: "registration_date", Operators: numericOps},
	FieldTags:       {Name: FieldTags, Class: ClassTags, Operators: tagOps},
	FieldActivity:   {Name: FieldActivity, Class: ClassActivity, Operators: []Operator{OpEq, OpIn}},
}

// LookupField returns the spec for a field name. The second return is
// false for unknown fields, which the evaluator silently skips.
func LookupField(name string) (FieldSpec, bool) {
	spec, ok := fieldRegistry[name]
	return spec, ok
}

// Fields returns every registered field spec, for the builder UI's
// field/operator pickers.
func Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(fieldRegistry))
	for _, name := range []string{
		FieldAge, FieldArpu, FieldBalance, FieldChurnScore,
		FieldCity, FieldTier, FieldGender, FieldSimType, FieldStatus,
		FieldCreatedAt, FieldTags, FieldActivity,
	} {
		out = append(out, fieldRegistry[name])
	}
	return out
}

package extractor

// Mapping is a MappingProvider backed by an ordered list of parameter names.
type Mapping struct {
	typ    Type
	params []string
}

// NewMapping creates a mapping-based provider.
func NewMapping(typ Type, parameters ...string) *Mapping {
	return &Mapping{typ: typ, params: append([]string(nil), parameters...)}
}

func (m *Mapping) Type() Type { return m.typ }

// Parameters returns a copy of the parameter names.
func (m *Mapping) Parameters() []string { return append([]string(nil), m.params...) }

// Patterns is a PatternProvider backed by path templates.
type Patterns struct {
	typ      Type
	patterns []string
}

// NewPatterns creates a template-based provider.
func NewPatterns(typ Type, patterns ...string) *Patterns {
	return &Patterns{typ: typ, patterns: append([]string(nil), patterns...)}
}

func (p *Patterns) Type() Type { return p.typ }

func (p *Patterns) Patterns() []string { return append([]string(nil), p.patterns...) }

// Fields is a FieldProvider backed by JSON field paths.
type Fields struct {
	typ    Type
	fields []string
}

// NewFields creates a JSON-field provider.
func NewFields(typ Type, fields ...string) *Fields {
	return &Fields{typ: typ, fields: append([]string(nil), fields...)}
}

func (f *Fields) Type() Type { return f.typ }

func (f *Fields) Fields() []string { return append([]string(nil), f.fields...) }

var (
	_ MappingProvider = (*Mapping)(nil)
	_ PatternProvider = (*Patterns)(nil)
	_ FieldProvider   = (*Fields)(nil)
)

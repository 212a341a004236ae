package params

// wildcardToken is the textual form of Any (command line, String)
const wildcardToken = "_"

// Field is one slot of a Pattern: either a literal value or the wildcard Any.
// The zero value is the literal empty string.
type Field struct {
	value string
	any   bool
}

// Any matches every value
var Any = Field{any: true}

// Literal matches exactly v
func Literal(v string) Field {
	return Field{value: v}
}

// ParseField turns a command line token into a Field, "_" is the wildcard
func ParseField(s string) Field {
	if s == wildcardToken {
		return Any
	}
	return Literal(s)
}

// IsAny reports whether the field is the wildcard
func (f Field) IsAny() bool {
	return f.any
}

// Value returns the literal value. ok is false for the wildcard.
func (f Field) Value() (v string, ok bool) {
	return f.value, !f.any
}

// Matches reports whether s satisfies the field
func (f Field) Matches(s string) bool {
	return f.any || f.value == s
}

func (f Field) String() string {
	if f.any {
		return wildcardToken
	}
	return f.value
}

// Pattern selects scoped keys. A key matches if every field matches the
// corresponding part of the key. Global keys never match.
type Pattern struct {
	VHost     Field
	Component Field
	Name      Field
}

// Matches reports whether k satisfies the pattern
func (p Pattern) Matches(k Key) bool {
	if k.Global {
		return false
	}
	return p.VHost.Matches(k.VHost) && p.Component.Matches(k.Component) && p.Name.Matches(k.Name)
}

func (p Pattern) String() string {
	return p.VHost.String() + "/" + p.Component.String() + "/" + p.Name.String()
}

package constants

// Scope names a configuration layer.
type Scope string

const (
	// ScopeProject is <root>/.evonet/config.yaml.
	ScopeProject Scope = "project"

	// ScopeUser is ~/.evonet/config.yaml.
	ScopeUser Scope = "user"
)

// Valid reports whether s is a known layer.
func (s Scope) Valid() bool {
	return s == ScopeProject || s == ScopeUser
}

func (s Scope) String() string {
	return string(s)
}

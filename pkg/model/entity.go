package model

// EntityKind is the class of code artifact a finding is about.
type EntityKind string

const (
	KindFile         EntityKind = "file"
	KindModule       EntityKind = "module"
	KindInterface    EntityKind = "interface"
	KindType         EntityKind = "type"
	KindFunction     EntityKind = "function"
	KindArchitecture EntityKind = "architecture"
)

var entityKinds = []EntityKind{KindFile, KindModule, KindInterface, KindType, KindFunction, KindArchitecture}

// ParseEntityKind maps a raw kind string onto the enumeration.
// An empty string is a file.
func ParseEntityKind(s string) (EntityKind, bool) {
	if s == "" {
		return KindFile, true
	}
	for _, k := range entityKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Entity represents the code artifact a finding is attached to.
type Entity struct {
	Kind               EntityKind `json:"kind"`
	CanonicalPath      string     `json:"canonicalPath"`
	DisplayName        string     `json:"displayName"`
	OriginalIdentifier string     `json:"originalIdentifier"`
}

// EntityKey is the identity of an Entity. Display fields do not participate.
type EntityKey struct {
	Kind          EntityKind
	CanonicalPath string
}

func (e Entity) Key() EntityKey {
	return EntityKey{Kind: e.Kind, CanonicalPath: e.CanonicalPath}
}

// Same reports whether two entities share an identity.
func (e Entity) Same(o Entity) bool {
	return e.Key() == o.Key()
}

func (e Entity) IsFile() bool {
	return e.Kind == KindFile
}

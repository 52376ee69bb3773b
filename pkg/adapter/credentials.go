package adapter

// CredentialProvider hands out secrets by name. Adapters never read the
// environment for credentials themselves.
type CredentialProvider interface {
	Credential(name string) (string, bool)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(name string) (string, bool)

func (f CredentialFunc) Credential(name string) (string, bool) {
	return f(name)
}

// Chain returns the first credential any provider has for name.
type Chain []CredentialProvider

func (c Chain) Credential(name string) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if v, ok := p.Credential(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// NoCredentials never has anything.
var NoCredentials CredentialProvider = CredentialFunc(func(string) (string, bool) { return "", false })

// Credential looks name up on o, tolerating a nil provider.
func (o Options) Credential(name string) (string, bool) {
	if o.Credentials == nil {
		return "", false
	}
	return o.Credentials.Credential(name)
}

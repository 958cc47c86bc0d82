package types

// MaxAPIKeyNameLength bounds an APIKey's name.
const MaxAPIKeyNameLength = 16

// APIKey is an opaque random token carrying independent capability flags.
// Keys are append-only from the judge's perspective; only the operator CLI
// and the autoscaler mint them.
type APIKey struct {
	// Key is the token itself, 32 lower-case hex characters.
	Key string `json:"key"`

	// Name is a human-readable label, at most MaxAPIKeyNameLength characters.
	Name string `json:"name"`

	Active bool `json:"active"`

	Jury   bool `json:"perm_jury"`
	Reader bool `json:"perm_reader"`
	Master bool `json:"perm_master"`
}

// Copy returns a copy of the APIKey.
func (k *APIKey) Copy() *APIKey {
	ret := *k
	return &ret
}

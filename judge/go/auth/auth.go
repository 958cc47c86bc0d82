// Package auth guards the HTTP surface with api-key capabilities.
package auth

import (
	"context"
	"errors"

	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/util"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/types"
)

// ErrForbidden is returned for missing, unknown, and inactive keys, and for
// keys that lack every requested capability. All failure modes collapse into
// it so callers cannot probe which keys exist.
var ErrForbidden = errors.New("api key is missing or lacks the required permission")

// Capability is one permission an api key can carry.
type Capability string

const (
	// Jury marks keys used by judging workers: claim, release, submit.
	Jury Capability = "jury"
	// Reader marks keys that may read problems, submissions, and jobs.
	Reader Capability = "reader"
	// Master marks keys that may administer problems and issue api keys.
	Master Capability = "master"
)

// AllCapabilities is every defined Capability.
var AllCapabilities = Capabilities{Jury, Reader, Master}

// Capabilities is a set of Capability.
type Capabilities []Capability

// Has returns true if want is in the receiver.
func (c Capabilities) Has(want Capability) bool {
	for _, x := range c {
		if x == want {
			return true
		}
	}
	return false
}

// FromKey returns the capabilities an api key carries.
func FromKey(k *types.APIKey) Capabilities {
	ret := Capabilities{}
	if k.Jury {
		ret = append(ret, Jury)
	}
	if k.Reader {
		ret = append(ret, Reader)
	}
	if k.Master {
		ret = append(ret, Master)
	}
	return ret
}

// keyLength is the number of hex characters in a generated api key token,
// i.e. 16 random bytes.
const keyLength = 32

// GenerateKey returns a fresh api key token.
func GenerateKey() (string, error) {
	return util.RandHexString(keyLength)
}

// Authorizer resolves api-key tokens against the store.
type Authorizer struct {
	keys db.APIKeyStore
}

// New returns an Authorizer backed by the given store.
func New(keys db.APIKeyStore) *Authorizer {
	return &Authorizer{keys: keys}
}

// Require resolves token and returns the key if it is active and carries at
// least one of the wanted capabilities, otherwise ErrForbidden.
func (a *Authorizer) Require(ctx context.Context, token string, caps ...Capability) (*types.APIKey, error) {
	if token == "" {
		return nil, ErrForbidden
	}
	key, err := a.keys.GetAPIKey(ctx, token)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrForbidden
		}
		return nil, skerr.Wrap(err)
	}
	if !key.Active {
		return nil, ErrForbidden
	}
	have := FromKey(key)
	for _, c := range caps {
		if have.Has(c) {
			return key, nil
		}
	}
	return nil, ErrForbidden
}

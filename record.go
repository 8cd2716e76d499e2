package divide

import (
	"maps"
)

// TypeCredentials is the record type under which credentials persist.
const TypeCredentials = "divide.Credentials"

// Validated is the sentinel stored once an account's validation marker
// has been redeemed.
const Validated = "1"

// Reserved metadata keys. The set is fixed; user data keys are
// unconstrained.
const (
	MetaPassword      = "pw"
	MetaEmail         = "email"
	MetaAuthToken     = "auth_token"
	MetaRecoveryToken = "recovery_auth_token"
	MetaUsername      = "username"
	MetaValidation    = "validation"
	MetaPushKey       = "push_messaging_key"
	MetaUserGroup     = "user_group_key"
)

// Storable is the capability a value needs to pass through a Store.
type Storable interface {
	TypeName() string
	Owner() int64
}

// Record is a generic attribute-bag entity: a fixed metadata namespace
// plus arbitrary user data. Credentials are Records of TypeCredentials;
// application objects reuse the same shape under their own type names.
type Record struct {
	OwnerID  int64             `json:"owner_id,omitempty"`
	Type     string            `json:"object_type,omitempty"`
	Meta     map[string]string `json:"meta_data,omitempty"`
	UserData map[string]any    `json:"user_data,omitempty"`
}

var _ Storable = (*Record)(nil)

// NewRecord returns an empty record of the given type.
func NewRecord(typeName string) *Record {
	return &Record{
		Type:     typeName,
		Meta:     map[string]string{},
		UserData: map[string]any{},
	}
}

// NewCredentials returns a credentials record carrying the given identity
// attributes. The password is stored as provided; callers encrypt or hash
// it before the record travels or persists.
func NewCredentials(username, email, password string) *Record {
	r := NewRecord(TypeCredentials)
	r.SetMeta(MetaUsername, username)
	r.SetMeta(MetaEmail, email)
	r.SetMeta(MetaPassword, password)
	return r
}

// TypeName satisfies Storable.
func (r *Record) TypeName() string {
	if r.Type == "" {
		return TypeCredentials
	}
	return r.Type
}

// Owner satisfies Storable.
func (r *Record) Owner() int64 {
	return r.OwnerID
}

// GetMeta reads a reserved metadata attribute. Missing keys read as "".
func (r *Record) GetMeta(key string) string {
	if r.Meta == nil {
		return ""
	}
	return r.Meta[key]
}

// SetMeta writes a reserved metadata attribute.
func (r *Record) SetMeta(key, value string) {
	if r.Meta == nil {
		r.Meta = map[string]string{}
	}
	r.Meta[key] = value
}

func (r *Record) removeMeta(key string) {
	delete(r.Meta, key)
}

// Email returns the record's email address.
func (r *Record) Email() string { return r.GetMeta(MetaEmail) }

// Username returns the record's username.
func (r *Record) Username() string { return r.GetMeta(MetaUsername) }

// Password returns the stored password attribute. Depending on where the
// record is in its lifecycle this is RSA-encrypted (in transit) or a
// bcrypt hash (at rest); it is never a recoverable plaintext once stored.
func (r *Record) Password() string { return r.GetMeta(MetaPassword) }

// SetPassword overwrites the password attribute.
func (r *Record) SetPassword(v string) { r.SetMeta(MetaPassword, v) }

// AuthToken returns the bearer token attribute.
func (r *Record) AuthToken() string { return r.GetMeta(MetaAuthToken) }

// SetAuthToken overwrites the bearer token attribute.
func (r *Record) SetAuthToken(v string) { r.SetMeta(MetaAuthToken, v) }

// RecoveryToken returns the one-time recovery token attribute.
func (r *Record) RecoveryToken() string { return r.GetMeta(MetaRecoveryToken) }

// SetRecoveryToken overwrites the one-time recovery token attribute.
func (r *Record) SetRecoveryToken(v string) { r.SetMeta(MetaRecoveryToken, v) }

// Validation returns the account validation marker.
func (r *Record) Validation() string { return r.GetMeta(MetaValidation) }

// SetValidation overwrites the account validation marker.
func (r *Record) SetValidation(v string) { r.SetMeta(MetaValidation, v) }

// PushKey returns the push messaging key attribute.
func (r *Record) PushKey() string { return r.GetMeta(MetaPushKey) }

// SetPushKey overwrites the push messaging key attribute.
func (r *Record) SetPushKey(v string) { r.SetMeta(MetaPushKey, v) }

// UserGroup returns the user group attribute.
func (r *Record) UserGroup() string { return r.GetMeta(MetaUserGroup) }

// SetUserGroup overwrites the user group attribute.
func (r *Record) SetUserGroup(v string) { r.SetMeta(MetaUserGroup, v) }

// Put stores an application-defined user data attribute.
func (r *Record) Put(key string, value any) {
	if r.UserData == nil {
		r.UserData = map[string]any{}
	}
	r.UserData[key] = value
}

// Get reads an application-defined user data attribute.
func (r *Record) Get(key string) (any, bool) {
	if r.UserData == nil {
		return nil, false
	}
	v, ok := r.UserData[key]
	return v, ok
}

// ReplaceUserData swaps the record's user data for the given map.
func (r *Record) ReplaceUserData(data map[string]any) {
	r.UserData = map[string]any{}
	maps.Copy(r.UserData, data)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := &Record{
		OwnerID:  r.OwnerID,
		Type:     r.Type,
		Meta:     map[string]string{},
		UserData: map[string]any{},
	}
	maps.Copy(c.Meta, r.Meta)
	maps.Copy(c.UserData, r.UserData)
	return c
}

// Sanitized returns a projection safe to leave the server: the password
// hash, recovery token, validation marker, and push key are removed. The
// auth token stays; it is the session credential login-shaped responses
// deliver. Recovery tokens travel out-of-band only.
func (r *Record) Sanitized() *Record {
	s := r.Clone()
	s.removeMeta(MetaPassword)
	s.removeMeta(MetaRecoveryToken)
	s.removeMeta(MetaValidation)
	s.removeMeta(MetaPushKey)
	return s
}

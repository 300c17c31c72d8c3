package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore("host-secret", "admin-secret", time.Hour, nil, nil, nil)
}

func TestLogin_InvalidPassword(t *testing.T) {
	s := newTestStore()
	_, err := s.Login("wrong", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_GrantsPowerOfMatchedSecret(t *testing.T) {
	s := newTestStore()

	entry, err := s.Login("host-secret", "")
	require.NoError(t, err)
	require.Equal(t, PowerHost, entry.Power)

	entry, err = s.Login("admin-secret", "")
	require.NoError(t, err)
	require.Equal(t, PowerAdmin, entry.Power)
}

func TestLogin_RequestedRoleAboveGrantedIsRejected(t *testing.T) {
	s := newTestStore()
	_, err := s.Login("host-secret", "admin")
	require.ErrorIs(t, err, ErrInsufficientRole)
}

func TestLogin_RequestedRoleAtOrBelowGrantedSucceeds(t *testing.T) {
	s := newTestStore()
	entry, err := s.Login("admin-secret", "host")
	require.NoError(t, err)
	require.Equal(t, PowerHost, entry.Power)
}

func TestValidate_UnknownKeyFails(t *testing.T) {
	s := newTestStore()
	_, ok := s.Validate("nonexistent", PowerHost)
	require.False(t, ok)
}

func TestValidate_PowerOrderingEnforced(t *testing.T) {
	s := newTestStore()
	entry, err := s.Login("host-secret", "")
	require.NoError(t, err)

	_, ok := s.Validate(entry.Key, PowerHost)
	require.True(t, ok)

	_, ok = s.Validate(entry.Key, PowerAdmin)
	require.False(t, ok)
}

func TestValidate_ExpiredEntryFails(t *testing.T) {
	s := newTestStore()
	entry, err := s.Login("host-secret", "")
	require.NoError(t, err)

	// NewStore replaces a non-positive lifetime with its default, so the
	// entry is aged past its expiry directly.
	s.mu.Lock()
	expired := s.entries[entry.Key]
	expired.Expire = time.Now().Add(-time.Minute)
	s.entries[entry.Key] = expired
	s.mu.Unlock()

	_, ok := s.Validate(entry.Key, PowerHost)
	require.False(t, ok)

	// The expired entry must be evicted from the in-memory map, not just
	// rejected: a second Validate call finds nothing to expire again.
	s.mu.RLock()
	_, stillPresent := s.entries[entry.Key]
	s.mu.RUnlock()
	require.False(t, stillPresent)
}

func TestEncodeDecodeEntry_RoundTrip(t *testing.T) {
	expire := time.Now().Add(time.Hour).Truncate(time.Second)
	entry := Entry{Key: "abc", Power: PowerAdmin, Expire: expire}

	raw := encodeEntry(entry)
	decoded, ok := decodeEntry("abc", raw)
	require.True(t, ok)
	require.Equal(t, PowerAdmin, decoded.Power)
	require.True(t, decoded.Expire.Equal(expire))
}

func TestDecodeEntry_RejectsMalformedInput(t *testing.T) {
	_, ok := decodeEntry("abc", "not-a-valid-entry")
	require.False(t, ok)

	_, ok = decodeEntry("abc", "bogus-power|123")
	require.False(t, ok)
}

func TestPower_String(t *testing.T) {
	require.Equal(t, "host", PowerHost.String())
	require.Equal(t, "admin", PowerAdmin.String())
}

// Package credential keeps the tracker token in the OS keyring.
package credential

import (
	"github.com/99designs/keyring"
	"github.com/cockroachdb/errors"
)

const serviceName = "ticketledger"

// TokenKey is the keyring item holding the tracker API token.
const TokenKey = "tracker.token"

// ErrNotFound is returned when the keyring has no item for a key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes credentials. The zero value uses the system
// keyring.
type Store struct {
	open func() (keyring.Keyring, error)
}

// NewStore returns a store backed by ring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{open: func() (keyring.Keyring, error) { return ring, nil }}
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/ticketledger/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("ticketledger-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening keyring")
	}
	return ring, nil
}

func (s *Store) ring() (keyring.Keyring, error) {
	if s == nil || s.open == nil {
		return openKeyring()
	}
	return s.open()
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	ring, err := s.ring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", errors.Mark(errors.Wrapf(err, "getting credential %q", key), ErrNotFound)
		}
		return "", errors.Wrapf(err, "getting credential %q", key)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	ring, err := s.ring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	return errors.Wrapf(err, "setting credential %q", key)
}

// Delete removes a credential by key. Deleting a missing key is not an
// error.
func (s *Store) Delete(key string) error {
	ring, err := s.ring()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return errors.Wrapf(err, "deleting credential %q", key)
	}
	return nil
}

// Token returns configured when it is set, otherwise the token stored in
// the keyring. A missing keyring item gives "" and no error.
func (s *Store) Token(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	token, err := s.Get(TokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return token, err
}

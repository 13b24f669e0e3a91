package vault

import "errors"

var (
	// ErrNotInitialized is returned when the vault directory has no key file.
	ErrNotInitialized = errors.New("vault not initialized")

	// ErrCorruptedStore is returned when the credential store file exists
	// but cannot be decrypted. This is never treated as an empty store:
	// masking it would let an operator silently lose every credential.
	ErrCorruptedStore = errors.New("credential store is corrupted or undecryptable")

	// ErrNotFound is returned when a credential cannot be found.
	ErrNotFound = errors.New("credential not found")

	// ErrServiceRequired is returned when a service name is empty.
	ErrServiceRequired = errors.New("service name cannot be empty")

	// ErrKeyRequired is returned when a credential key is empty.
	ErrKeyRequired = errors.New("credential key cannot be empty")
)

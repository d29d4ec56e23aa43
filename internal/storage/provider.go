// Package storage defines the attachment blob store abstraction.
package storage

// Provider is the interface for attachment blob operations. Names are
// attachment hashes, relative to the store root.
type Provider interface {
	// Read returns the bytes of the blob stored under name.
	Read(name string) ([]byte, error)
	// Write atomically stores content under name.
	Write(name string, content []byte) error
	// Delete removes the blob stored under name.
	Delete(name string) error
	// Exists reports whether a blob is stored under name.
	Exists(name string) bool
}

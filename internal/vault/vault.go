// Package vault implements the save and decrypt path for locked notes.
// Content is sealed with XChaCha20-Poly1305 under a key derived from the
// vault password with Argon2id.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

const (
	metaSalt     = "vault.salt"
	metaVerifier = "vault.verifier"
	verifierText = "quill-vault"
	saltLen      = 16
)

// Store is the subset of the note store the vault needs.
type Store interface {
	Note(ctx context.Context, id string) (*models.Note, error)
	ContentRaw(ctx context.Context, id string) (*models.Content, error)
	PutLocked(ctx context.Context, p models.NotePatch, ciphertext string) error
	Meta(ctx context.Context, key string) ([]byte, error)
	SetMeta(ctx context.Context, key string, value []byte) error
}

// Vault seals and opens locked note content. It starts locked.
type Vault struct {
	store Store

	mu  sync.RWMutex
	key []byte
}

// New creates a locked vault over store.
func New(store Store) *Vault {
	return &Vault{store: store}
}

// Unlock derives the vault key from password. The first unlock creates the
// vault; later unlocks fail with apperr.ErrInvalidPassword on a wrong password.
func (v *Vault) Unlock(ctx context.Context, password string) error {
	if password == "" {
		return apperr.ErrInvalidPassword
	}

	salt, err := v.store.Meta(ctx, metaSalt)
	if errors.Is(err, apperr.ErrNotFound) {
		return v.create(ctx, password)
	}
	if err != nil {
		return fmt.Errorf("vault: load salt: %w", err)
	}

	key := deriveKey(password, salt)
	verifier, err := v.store.Meta(ctx, metaVerifier)
	if err != nil {
		return fmt.Errorf("vault: load verifier: %w", err)
	}
	plain, err := open(key, string(verifier))
	if err != nil || plain != verifierText {
		return apperr.ErrInvalidPassword
	}

	v.mu.Lock()
	v.key = key
	v.mu.Unlock()
	return nil
}

func (v *Vault) create(ctx context.Context, password string) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("vault: salt: %w", err)
	}
	key := deriveKey(password, salt)
	verifier, err := seal(key, verifierText)
	if err != nil {
		return err
	}
	if err := v.store.SetMeta(ctx, metaSalt, salt); err != nil {
		return err
	}
	if err := v.store.SetMeta(ctx, metaVerifier, []byte(verifier)); err != nil {
		return err
	}

	v.mu.Lock()
	v.key = key
	v.mu.Unlock()
	return nil
}

// Lock forgets the derived key.
func (v *Vault) Lock() {
	v.mu.Lock()
	v.key = nil
	v.mu.Unlock()
}

// Unlocked reports whether a key is held.
func (v *Vault) Unlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.key != nil
}

// Save encrypts the content of p and writes it through the locked path.
// p.ContentID selects the content record to overwrite.
func (v *Vault) Save(ctx context.Context, p models.NotePatch) error {
	key, err := v.currentKey()
	if err != nil {
		return err
	}
	sealed := ""
	if p.Content != nil {
		sealed, err = seal(key, p.Content.Data)
		if err != nil {
			return err
		}
	}
	return v.store.PutLocked(ctx, p, sealed)
}

// LockNote encrypts the current plain content of a note and marks it locked.
func (v *Vault) LockNote(ctx context.Context, id string) error {
	n, err := v.store.Note(ctx, id)
	if err != nil {
		return err
	}
	if n.Locked {
		return nil
	}
	data, typ := "", models.ContentTypeTiptap
	if n.ContentID != "" {
		c, err := v.store.ContentRaw(ctx, n.ContentID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if c != nil {
			data, typ = c.Data, c.Type
		}
	}
	return v.Save(ctx, models.NotePatch{
		ID:            id,
		ContentID:     n.ContentID,
		Content:       &models.ContentPatch{Data: data, Type: typ},
		HistoryAnchor: n.HistoryAnchor,
	})
}

// Decrypt returns the plain content of a locked note.
func (v *Vault) Decrypt(ctx context.Context, n *models.Note) (*models.Content, error) {
	if n.ContentID == "" {
		return &models.Content{NoteID: n.ID, Type: models.ContentTypeTiptap}, nil
	}
	c, err := v.store.ContentRaw(ctx, n.ContentID)
	if err != nil {
		return nil, err
	}
	return v.DecryptContent(c)
}

// DecryptContent opens an encrypted content record. Plain records are
// returned unchanged.
func (v *Vault) DecryptContent(c *models.Content) (*models.Content, error) {
	if !c.Locked {
		return c, nil
	}
	key, err := v.currentKey()
	if err != nil {
		return nil, err
	}
	plain := ""
	if c.Data != "" {
		plain, err = open(key, c.Data)
		if err != nil {
			return nil, fmt.Errorf("vault: decrypt %s: %w", c.ID, err)
		}
	}
	out := *c
	out.Data = plain
	out.Locked = false
	return &out, nil
}

func (v *Vault) currentKey() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.key == nil {
		return nil, apperr.ErrVaultLocked
	}
	return v.key, nil
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

func seal(key []byte, plain string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("vault: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func open(key []byte, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("vault: decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("vault: cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("vault: ciphertext too short")
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("vault: open: %w", err)
	}
	return string(plain), nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dropDatabas3/partnerportal/internal/codec"
	"github.com/dropDatabas3/partnerportal/internal/security/secretbox"
	"github.com/dropDatabas3/partnerportal/internal/util/atomicwrite"
)

// fileDoc es el documento en disco. Con box configurado el token va cifrado
// en TokenEnc y Token queda vacío.
type fileDoc struct {
	Token    string    `json:"token,omitempty"`
	TokenEnc string    `json:"token_enc,omitempty"`
	User     User      `json:"user"`
	SavedAt  time.Time `json:"saved_at"`
}

// FileStore persiste la credencial en un único archivo JSON (0600).
type FileStore struct {
	path string
	box  *secretbox.Box

	mu sync.Mutex
}

// NewFileStore crea el store. box puede ser nil (token en claro).
func NewFileStore(path string, box *secretbox.Box) *FileStore {
	return &FileStore{path: path, box: box}
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(_ context.Context) (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, ErrNoCredential
	}
	if err != nil {
		return Credential{}, fmt.Errorf("session: read %s: %w", f.path, err)
	}

	var doc fileDoc
	if err := codec.Unmarshal(b, &doc); err != nil {
		return Credential{}, fmt.Errorf("session: decode %s: %w", f.path, err)
	}

	token := doc.Token
	if doc.TokenEnc != "" {
		if f.box == nil {
			return Credential{}, fmt.Errorf("session: token cifrado y sin clave configurada")
		}
		plain, err := f.box.Decrypt(doc.TokenEnc)
		if err != nil {
			return Credential{}, fmt.Errorf("session: decrypt: %w", err)
		}
		token = plain
	}
	if token == "" {
		return Credential{}, ErrNoCredential
	}
	return Credential{Token: token, User: doc.User}, nil
}

func (f *FileStore) Save(_ context.Context, c Credential) error {
	if err := c.validate(); err != nil {
		return err
	}
	doc := fileDoc{User: c.User, SavedAt: time.Now().UTC()}
	if f.box != nil {
		enc, err := f.box.Encrypt(c.Token)
		if err != nil {
			return fmt.Errorf("session: encrypt: %w", err)
		}
		doc.TokenEnc = enc
	} else {
		doc.Token = c.Token
	}

	b, err := codec.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return atomicwrite.WriteFile(f.path, b, 0o600)
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return atomicwrite.Remove(f.path)
}

package certificate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// File names written by Store. The deployment tooling mounts them into
// the data plane.
const (
	CertificateFile = "certificate.crt"
	PrivateKeyFile  = "private.pem"
	PublicKeyFile   = "public.pem"
)

// Store keeps a ClientCertificate in a working directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore returns a Store rooted at dir on fs.
func NewStore(fs afero.Fs, dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{fs: fs, dir: dir}
}

// Dir returns the working directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the location of name inside the working directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Write persists all parts of c. The private key is only readable by the
// current user.
func (s *Store) Write(c *ClientCertificate) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}
	files := []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{PrivateKeyFile, c.PrivateKeyPEM, 0o600},
		{PublicKeyFile, c.PublicKeyPEM, 0o644},
		{CertificateFile, c.CertificatePEM, 0o644},
	}
	for _, f := range files {
		if err := afero.WriteFile(s.fs, s.Path(f.name), f.data, f.perm); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	return nil
}

// Read loads the certificate and private key back, byte for byte. The
// public key is optional.
func (s *Store) Read() (*ClientCertificate, error) {
	cert, err := afero.ReadFile(s.fs, s.Path(CertificateFile))
	if err != nil {
		return nil, fmt.Errorf("reading certificate: %w", err)
	}
	key, err := afero.ReadFile(s.fs, s.Path(PrivateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	public, err := afero.ReadFile(s.fs, s.Path(PublicKeyFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	return &ClientCertificate{
		CertificatePEM: cert,
		PrivateKeyPEM:  key,
		PublicKeyPEM:   public,
	}, nil
}

// Remove deletes every file Write may have created. Missing files are
// not an error.
func (s *Store) Remove() error {
	var errs []error
	for _, name := range []string{PrivateKeyFile, PublicKeyFile, CertificateFile} {
		err := s.fs.Remove(s.Path(name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/calendar/v3"
)

// ErrMissingClientSecrets is returned when the descriptor has to be written
// but no client id or secret is configured.
var ErrMissingClientSecrets = errors.New("missing Google OAuth client credentials: set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")

const certsURL = "https://www.googleapis.com/oauth2/v1/certs"

// ClientSecrets are the OAuth client values taken from configuration.
type ClientSecrets struct {
	ClientID     string
	ClientSecret string
	ProjectID    string
	RedirectURI  string
}

type descriptorFile struct {
	Installed installedApp `json:"installed"`
}

type installedApp struct {
	ClientID                string   `json:"client_id"`
	ProjectID               string   `json:"project_id,omitempty"`
	AuthURI                 string   `json:"auth_uri"`
	TokenURI                string   `json:"token_uri"`
	AuthProviderX509CertURL string   `json:"auth_provider_x509_cert_url"`
	ClientSecret            string   `json:"client_secret"`
	RedirectURIs            []string `json:"redirect_uris"`
}

// Bootstrapper makes sure the credentials descriptor exists before any
// operation that may need OAuth.
type Bootstrapper struct {
	path    string
	secrets ClientSecrets
	group   singleflight.Group
	logger  *slog.Logger
}

// NewBootstrapper returns a Bootstrapper writing to path.
func NewBootstrapper(path string, secrets ClientSecrets) *Bootstrapper {
	if secrets.RedirectURI == "" {
		secrets.RedirectURI = "http://localhost"
	}
	return &Bootstrapper{path: path, secrets: secrets, logger: slog.Default()}
}

// Path returns the descriptor location.
func (b *Bootstrapper) Path() string { return b.path }

// Ensure writes the descriptor if it is absent and validates whatever is on
// disk. An existing descriptor is never overwritten. Concurrent callers share
// one write.
func (b *Bootstrapper) Ensure() (*oauth2.Config, error) {
	v, err, _ := b.group.Do(b.path, func() (any, error) {
		return b.ensure()
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Config), nil
}

func (b *Bootstrapper) ensure() (*oauth2.Config, error) {
	data, err := os.ReadFile(b.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if data, err = b.write(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("reading credentials descriptor: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials descriptor %s: %w", b.path, err)
	}
	return cfg, nil
}

func (b *Bootstrapper) write() ([]byte, error) {
	if b.secrets.ClientID == "" || b.secrets.ClientSecret == "" {
		return nil, ErrMissingClientSecrets
	}

	data, err := json.MarshalIndent(descriptorFile{Installed: installedApp{
		ClientID:                b.secrets.ClientID,
		ProjectID:               b.secrets.ProjectID,
		AuthURI:                 google.Endpoint.AuthURL,
		TokenURI:                google.Endpoint.TokenURL,
		AuthProviderX509CertURL: certsURL,
		ClientSecret:            b.secrets.ClientSecret,
		RedirectURIs:            []string{b.secrets.RedirectURI},
	}}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding credentials descriptor: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating descriptor dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp descriptor: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing descriptor: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return nil, fmt.Errorf("installing descriptor: %w", err)
	}

	b.logger.Info("wrote credentials descriptor", "path", b.path, "client_id", b.secrets.ClientID)
	return data, nil
}

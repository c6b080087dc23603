package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// DatabaseURIFile is the dotenv file holding database URIs by key.
const DatabaseURIFile = ".database_uris"

var ErrUnknownURIKey = errors.New("database URI key not set")

// ReadHITIDs reads a HIT id list separated by commas or newlines. The
// experiment name is the file name without its extension.
func ReadHITIDs(fs afero.Fs, path string) ([]string, string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, "", fmt.Errorf("read HIT ids: %w", err)
	}
	text := strings.NewReplacer(" ", "", "\t", "", "\r", "", "\n", ",").Replace(string(data))
	var hits []string
	for _, h := range strings.Split(text, ",") {
		if h != "" {
			hits = append(hits, h)
		}
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if len(hits) == 0 {
		return nil, name, fmt.Errorf("%s: %w", path, ErrNoHITs)
	}
	return hits, name, nil
}

// URIs resolves database URI keys. Environment variables take precedence
// over the dotenv file.
type URIs struct {
	v *viper.Viper
}

// LoadDatabaseURIs reads dir/.database_uris. A missing file leaves only
// the environment.
func LoadDatabaseURIs(fs afero.Fs, dir string) (*URIs, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(filepath.Join(dir, DatabaseURIFile))
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", DatabaseURIFile, err)
		}
	}
	return &URIs{v: v}, nil
}

// Get returns the URI stored under key.
func (u *URIs) Get(key string) (string, error) {
	if uri := os.Getenv(key); uri != "" {
		return uri, nil
	}
	if uri := u.v.GetString(key); uri != "" {
		return uri, nil
	}
	return "", fmt.Errorf("%s: %w", key, ErrUnknownURIKey)
}

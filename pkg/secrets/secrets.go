// Package secrets resolves API credentials from a TOML secrets file, the
// process environment, and legacy JSON files left behind by earlier
// deployments. Resolution order is fixed and documented per credential;
// the most specific source wins.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is where the secrets file is looked up when no path is
// given.
const DefaultPath = "secrets.toml"

// legacyOpenAIFile is the flat JSON file older deployments stored the key
// in. Looked up next to the secrets file.
const legacyOpenAIFile = "openai_secrets.json"

// ErrMissing reports that a credential is absent from every source. The
// caller decides whether that degrades a feature or is fatal.
var ErrMissing = errors.New("secrets: not configured")

// fileLayout mirrors the TOML secrets file.
type fileLayout struct {
	OpenAI struct {
		APIKey string `toml:"api_key"`
	} `toml:"openai"`
	OpenAIAPIKey string `toml:"openai_api_key"`

	GoogleSheets struct {
		ServiceAccountJSON string `toml:"service_account_json"`
		CredentialsPath    string `toml:"credentials_path"`
		SpreadsheetID      string `toml:"spreadsheet_id"`
		SheetName          string `toml:"sheet_name"`
	} `toml:"google_sheets"`
}

// Secrets is a loaded secrets file plus the process environment.
type Secrets struct {
	file fileLayout
	dir  string // directory of the secrets file, anchors relative paths
}

// Load reads the secrets file at path (DefaultPath when empty). A missing
// file is not an error: resolution falls through to the environment and
// legacy sources.
func Load(path string) (*Secrets, error) {
	if path == "" {
		path = DefaultPath
	}

	s := &Secrets{dir: filepath.Dir(path)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &s.file); err != nil {
		return nil, fmt.Errorf("secrets: parse %s: %w", path, err)
	}
	return s, nil
}

// OpenAIKey resolves the OpenAI API key. Precedence:
//
//  1. [openai] api_key in the secrets file
//  2. flat openai_api_key in the secrets file
//  3. OPENAI_API_KEY environment variable
//  4. legacy openai_secrets.json next to the secrets file
//
// Returns ErrMissing when no source has a key.
func (s *Secrets) OpenAIKey() (string, error) {
	if k := s.file.OpenAI.APIKey; k != "" {
		return k, nil
	}
	if k := s.file.OpenAIAPIKey; k != "" {
		return k, nil
	}
	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		return k, nil
	}
	if k, err := s.legacyOpenAIKey(); err == nil && k != "" {
		return k, nil
	}
	return "", fmt.Errorf("%w: openai api key", ErrMissing)
}

func (s *Secrets) legacyOpenAIKey() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, legacyOpenAIFile))
	if err != nil {
		return "", err
	}
	var legacy struct {
		OpenAIAPIKey string `json:"openai_api_key"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return "", err
	}
	return legacy.OpenAIAPIKey, nil
}

// SheetsConfig is everything needed to build the spreadsheet log sink.
type SheetsConfig struct {
	CredentialsJSON []byte
	SpreadsheetID   string
	SheetName       string
}

// Sheets resolves the Google Sheets logging configuration. Inline
// service_account_json wins over credentials_path. Returns ErrMissing when
// the spreadsheet id or the credentials are absent; callers then log to
// the fallback sink only.
func (s *Secrets) Sheets() (SheetsConfig, error) {
	gs := s.file.GoogleSheets

	cfg := SheetsConfig{
		SpreadsheetID: gs.SpreadsheetID,
		SheetName:     gs.SheetName,
	}
	if cfg.SpreadsheetID == "" {
		return SheetsConfig{}, fmt.Errorf("%w: google sheets spreadsheet_id", ErrMissing)
	}

	switch {
	case gs.ServiceAccountJSON != "":
		cfg.CredentialsJSON = []byte(gs.ServiceAccountJSON)
	case gs.CredentialsPath != "":
		path := gs.CredentialsPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return SheetsConfig{}, fmt.Errorf("secrets: read sheets credentials %s: %w", path, err)
		}
		cfg.CredentialsJSON = data
	default:
		return SheetsConfig{}, fmt.Errorf("%w: google sheets credentials", ErrMissing)
	}

	return cfg, nil
}

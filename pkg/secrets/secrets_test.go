package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSecrets(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "secrets.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAIKey_NestedWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	path := writeSecrets(t, t.TempDir(), `
openai_api_key = "flat-key"

[openai]
api_key = "nested-key"
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	key, err := s.OpenAIKey()
	if err != nil {
		t.Fatalf("OpenAIKey: %v", err)
	}
	if key != "nested-key" {
		t.Errorf("key = %q, want nested-key", key)
	}
}

func TestOpenAIKey_FlatBeatsEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	path := writeSecrets(t, t.TempDir(), `openai_api_key = "flat-key"`)

	s, _ := Load(path)
	if key, _ := s.OpenAIKey(); key != "flat-key" {
		t.Errorf("key = %q, want flat-key", key)
	}
}

func TestOpenAIKey_EnvBeatsLegacy(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "openai_secrets.json"),
		[]byte(`{"openai_api_key":"legacy-key"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(filepath.Join(dir, "secrets.toml")) // no file
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if key, _ := s.OpenAIKey(); key != "env-key" {
		t.Errorf("key = %q, want env-key", key)
	}
}

func TestOpenAIKey_LegacyJSONLast(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "openai_secrets.json"),
		[]byte(`{"openai_api_key":"legacy-key"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	s, _ := Load(filepath.Join(dir, "secrets.toml"))
	if key, _ := s.OpenAIKey(); key != "legacy-key" {
		t.Errorf("key = %q, want legacy-key", key)
	}
}

func TestOpenAIKey_Missing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	s, err := Load(filepath.Join(t.TempDir(), "secrets.toml"))
	if err != nil {
		t.Fatalf("Load with no file: %v", err)
	}
	if _, err := s.OpenAIKey(); !errors.Is(err, ErrMissing) {
		t.Errorf("err = %v, want ErrMissing", err)
	}
}

func TestLoad_BadTOML(t *testing.T) {
	path := writeSecrets(t, t.TempDir(), `this is not toml = = =`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSheets_InlineJSONWins(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(credPath, []byte(`{"type":"service_account","from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeSecrets(t, dir, `
[google_sheets]
service_account_json = '{"type":"service_account","from":"inline"}'
credentials_path = "sa.json"
spreadsheet_id = "sheet-123"
`)

	s, _ := Load(path)
	cfg, err := s.Sheets()
	if err != nil {
		t.Fatalf("Sheets: %v", err)
	}
	if cfg.SpreadsheetID != "sheet-123" {
		t.Errorf("spreadsheet id = %q", cfg.SpreadsheetID)
	}
	if string(cfg.CredentialsJSON) != `{"type":"service_account","from":"inline"}` {
		t.Errorf("credentials = %s", cfg.CredentialsJSON)
	}
}

func TestSheets_CredentialsPathRelativeToSecretsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sa.json"), []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeSecrets(t, dir, `
[google_sheets]
credentials_path = "sa.json"
spreadsheet_id = "sheet-123"
sheet_name = "Custom Log"
`)

	s, _ := Load(path)
	cfg, err := s.Sheets()
	if err != nil {
		t.Fatalf("Sheets: %v", err)
	}
	if string(cfg.CredentialsJSON) != `{"from":"file"}` {
		t.Errorf("credentials = %s", cfg.CredentialsJSON)
	}
	if cfg.SheetName != "Custom Log" {
		t.Errorf("sheet name = %q", cfg.SheetName)
	}
}

func TestSheets_MissingConfig(t *testing.T) {
	s, _ := Load(filepath.Join(t.TempDir(), "secrets.toml"))
	if _, err := s.Sheets(); !errors.Is(err, ErrMissing) {
		t.Errorf("no config: err = %v, want ErrMissing", err)
	}

	path := writeSecrets(t, t.TempDir(), `
[google_sheets]
spreadsheet_id = "sheet-123"
`)
	s, _ = Load(path)
	if _, err := s.Sheets(); !errors.Is(err, ErrMissing) {
		t.Errorf("no credentials: err = %v, want ErrMissing", err)
	}
}

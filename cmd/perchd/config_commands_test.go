package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCLIConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q

[source]
url = "rtsp://camera.test/stream"

[detector]
endpoint = "http://127.0.0.1:8000/detect"
`, filepath.Join(dir, "data"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output %q does not contain %q", output, want)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "perch", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if strings.Contains(string(data), "api_key =") {
		t.Fatal("sample config embeds an api_key line")
	}

	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite succeeded")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	path := writeCLIConfig(t, t.TempDir())

	out, err := runCLI(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateRejectsMissingSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf("[paths]\ndata_dir = %q\n", filepath.Join(dir, "data"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := runCLI(t, "--config", path, "config", "validate")
	if err == nil {
		t.Fatal("validate accepted a config without source.url")
	}
	if !strings.Contains(err.Error(), "source.url") {
		t.Fatalf("error %q does not mention source.url", err)
	}
}

func TestConfigShowOmitsSecrets(t *testing.T) {
	t.Setenv("PERCH_VISION_API_KEY", "sk-super-secret")
	path := writeCLIConfig(t, t.TempDir())

	out, err := runCLI(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "rtsp://camera.test/stream")
	if strings.Contains(out, "sk-super-secret") {
		t.Fatal("config show printed the vision API key")
	}
}

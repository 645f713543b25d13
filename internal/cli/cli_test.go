package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		statusDictionaryPath = ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestNormalizeFromStdin(t *testing.T) {
	t.Setenv("WEBHOOK_STATUS_DICTIONARY_PATH", "")
	out, err := run(t, `{"id": 7, "status": 5}`, "normalize")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	var got struct {
		Update struct {
			TicketID   int `json:"ticketId"`
			StatusCode int `json:"statusCode"`
		} `json:"update"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Update.TicketID != 7 || got.Update.StatusCode != 5 {
		t.Fatalf("update = %+v", got.Update)
	}
}

func TestNormalizeTextWithDictionaryFile(t *testing.T) {
	dir := t.TempDir()
	dict := filepath.Join(dir, "statuses.yaml")
	if err := os.WriteFile(dict, []byte("statuses:\n  - label: \"En validación\"\n    code: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	payload := filepath.Join(dir, "payload.txt")
	if err := os.WriteFile(payload, []byte("Ticket #55\nEstados : En validación\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "normalize", "--status-dictionary", dict, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for _, want := range []string{`"ticketId": 55`, `"statusCode": 4`, `"source": "text"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %s:\n%s", want, out)
		}
	}
}

func TestNormalizeRejectsUnroutablePayload(t *testing.T) {
	if _, err := run(t, "sin identificador", "normalize"); err == nil {
		t.Fatal("expected an error for a payload without ticket id")
	}
}

func TestVAPIDKeys(t *testing.T) {
	out, err := run(t, "", "push", "vapid-keys")
	if err != nil {
		t.Fatalf("vapid-keys: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "VAPID_PUBLIC_KEY=") || !strings.HasPrefix(lines[1], "VAPID_PRIVATE_KEY=") {
		t.Fatalf("output = %q", out)
	}
	if len(strings.TrimPrefix(lines[0], "VAPID_PUBLIC_KEY=")) < 80 {
		t.Fatalf("public key too short: %q", lines[0])
	}
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	if _, err := run(t, "", "migrate"); err == nil || !strings.Contains(err.Error(), "POSTGRES_DSN") {
		t.Fatalf("err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	out, err := run(t, "", "version")
	if err != nil || strings.TrimSpace(out) != "portalctl 1.2.3" {
		t.Fatalf("version = %q, %v", out, err)
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\n  b\tc", 10); got != "a b c" {
		t.Fatalf("got %q", got)
	}
	if got := oneLine("ñandú", 3); got != "ñan…" {
		t.Fatalf("got %q", got)
	}
}

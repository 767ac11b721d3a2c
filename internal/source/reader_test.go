package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/fsmcheck/internal/apperr"
	"github.com/hyperjump/fsmcheck/internal/models"
	"golang.org/x/text/encoding/charmap"
)

const cyrillicFixture = "Экстремистский материал №12: Книга «Пример» (решение суда от 01.02.2015)"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRead_UTF8File(t *testing.T) {
	path := writeFile(t, "fs_em.txt", []byte(cyrillicFixture))
	r := NewReader(Config{})
	got, err := r.Read(context.Background(), models.SourceConfig{Kind: models.SourceInlineText, Location: path})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Encoding != "utf-8" {
		t.Errorf("Encoding = %q, want utf-8", got.Encoding)
	}
	if got.Text != cyrillicFixture {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(got.Attempts))
	}
}

func TestRead_UTF8BOMStripped(t *testing.T) {
	path := writeFile(t, "bom.csv", append([]byte{0xEF, 0xBB, 0xBF}, []byte("№;Материал;Дата")...))
	r := NewReader(Config{})
	got, err := r.Read(context.Background(), models.SourceConfig{Kind: models.SourceLocalDelimited, Location: path})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "№;Материал;Дата" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestRead_Windows1251Fallback(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String(cyrillicFixture)
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, "fs_em.txt", []byte(encoded))
	r := NewReader(Config{})
	got, err := r.Read(context.Background(), models.SourceConfig{Kind: models.SourceInlineText, Location: path})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Encoding != "windows-1251" {
		t.Errorf("Encoding = %q, want windows-1251", got.Encoding)
	}
	if got.Text != cyrillicFixture {
		t.Errorf("Text = %q, want %q", got.Text, cyrillicFixture)
	}
	if len(got.Attempts) != 2 || got.Attempts[0].Err == nil || got.Attempts[1].Err != nil {
		t.Errorf("unexpected attempts: %+v", got.Attempts)
	}
	if string(got.Raw) != encoded {
		t.Error("Raw must hold the undecoded bytes")
	}
}

func TestRead_Latin1NeverFails(t *testing.T) {
	// 0x98 is undefined in windows-1251 and invalid as a UTF-8 start byte.
	raw := []byte{'a', 0x98, 0xff, 'b'}
	path := writeFile(t, "odd.txt", raw)
	r := NewReader(Config{})
	got, err := r.Read(context.Background(), models.SourceConfig{Kind: models.SourceInlineText, Location: path})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Encoding != "iso-8859-1" {
		t.Errorf("Encoding = %q, want iso-8859-1", got.Encoding)
	}
	if got.Text != "a\u0098ÿb" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestRead_MissingFile(t *testing.T) {
	r := NewReader(Config{})
	_, err := r.Read(context.Background(), models.SourceConfig{
		Kind:     models.SourceInlineText,
		Location: filepath.Join(t.TempDir(), "missing.txt"),
	})
	if !errors.Is(err, apperr.ErrSourceUnreadable) {
		t.Fatalf("expected SourceUnreadable, got %v", err)
	}
}

func TestRead_RemoteSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("№;Материал;Дата\n1;X;01.01.2020\n"))
	}))
	defer srv.Close()

	r := NewReader(Config{})
	got, err := r.Read(context.Background(), models.SourceConfig{Kind: models.SourceRemoteDelimited, Location: srv.URL})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotUA != defaultUserAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotLang == "" {
		t.Error("Accept-Language should be set")
	}
	if got.Encoding != "utf-8" {
		t.Errorf("Encoding = %q", got.Encoding)
	}
}

func TestRead_RemoteNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewReader(Config{})
	_, err := r.Read(context.Background(), models.SourceConfig{Kind: models.SourceRemoteDelimited, Location: srv.URL})
	if !errors.Is(err, apperr.ErrSourceUnreadable) {
		t.Fatalf("expected SourceUnreadable, got %v", err)
	}
}

func TestRead_RemoteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := NewReader(Config{Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := r.Read(context.Background(), models.SourceConfig{Kind: models.SourceRemoteDelimited, Location: srv.URL})
	if !errors.Is(err, apperr.ErrSourceUnreadable) {
		t.Fatalf("expected SourceUnreadable, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("fetch should be bounded by the configured timeout")
	}
}

func TestDecode_RecordsEveryAttempt(t *testing.T) {
	failing := Decoder{Name: "never", Decode: func([]byte) (string, error) { return "", errors.New("no") }}
	_, _, attempts, err := Decode([]byte("x"), []Decoder{failing, failing})
	if err == nil {
		t.Fatal("expected error when every decoder fails")
	}
	if len(attempts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(attempts))
	}
}

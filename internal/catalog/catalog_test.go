package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/shared"
	tu "github.com/desertthunder/noncmra/internal/testing"
)

const countryPage = `<html><body><ul>
<li><a class='theme-simple-link' href='/l/usa/alabama'>Alabama</a></li>
<li><a class='theme-simple-link' href='/l/usa/texas'>Texas</a></li>
</ul></body></html>`

func statePage(locations ...string) string {
	return "<html><body>" + strings.Join(locations, "\n") + "</body></html>"
}

func location(title, line1, line2, price, plan string) string {
	return fmt.Sprintf(`<div class="theme-location-item">
  <h3 class="t-title">%s</h3>
  <div class="t-price">%s</div>
  <div class="t-addr">%s<br>%s<br></div>
  <a class="btn gt-plan" href="%s">Select</a>
</div>`, title, price, line1, line2, plan)
}

func newTestSource(t *testing.T, routes map[string]string) (*ATMBSource, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.Contains(r.Header.Get("User-Agent"), "Mozilla") {
			t.Errorf("expected a browser User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	cfg := shared.CatalogConfig{BaseURL: server.URL, Workers: 2}
	return NewATMBSource(cfg, server.Client(), log.New(io.Discard)), &hits
}

func TestATMBSource_Fetch(t *testing.T) {
	t.Run("crawls every state in page order", func(t *testing.T) {
		src, hits := newTestSource(t, map[string]string{
			"/l/usa": countryPage,
			"/l/usa/alabama": statePage(
				location("Birmingham - Main", "100 Main St", "Birmingham, AL 35203", "Starting from US$ 9.99 / month", "/p/1"),
				location("Huntsville", "5 Oak Ave Ste 2", "Huntsville, AL 35801-1234", "US$ 14.99 / month", "/p/2"),
			),
			"/l/usa/texas": statePage(
				location("Austin", "1 Congress Ave", "Austin, TX 78701", "US$ 19.99 / month", "/p/3"),
			),
		})

		mailboxes, err := src.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		if len(mailboxes) != 3 {
			t.Fatalf("expected 3 mailboxes, got %d", len(mailboxes))
		}
		if hits.Load() != 3 {
			t.Errorf("expected 3 requests, got %d", hits.Load())
		}

		for i, want := range []string{"Birmingham - Main", "Huntsville", "Austin"} {
			if mailboxes[i].Name != want || mailboxes[i].Index != i {
				t.Errorf("mailbox %d = %s (index %d), want %s", i, mailboxes[i].Name, mailboxes[i].Index, want)
			}
		}

		first := mailboxes[0]
		if first.Price != "US$9.99/month" {
			t.Errorf("unexpected price %q", first.Price)
		}
		if !strings.HasSuffix(first.Link, "/p/1") || !strings.HasPrefix(first.Link, "http") {
			t.Errorf("expected absolute plan link, got %q", first.Link)
		}
		if got := mailboxes[1].Address; got.Line1 != "5 Oak Ave Ste 2" || got.Zip != "35801" || got.Zip4 != "1234" {
			t.Errorf("unexpected address %+v", got)
		}
	})

	t.Run("failed state page fails the crawl", func(t *testing.T) {
		src, _ := newTestSource(t, map[string]string{
			"/l/usa":         countryPage,
			"/l/usa/alabama": statePage(location("A", "1 A St", "A, AL 35203", "$1", "/p/1")),
		})

		_, err := src.Fetch(context.Background())
		if !errors.Is(err, shared.ErrNetwork) {
			t.Fatalf("expected ErrNetwork, got %v", err)
		}
		if !strings.Contains(err.Error(), "Texas") {
			t.Errorf("error should name the state, got %v", err)
		}
	})

	t.Run("country page without states", func(t *testing.T) {
		src, _ := newTestSource(t, map[string]string{"/l/usa": "<html></html>"})

		if _, err := src.Fetch(context.Background()); !errors.Is(err, shared.ErrCatalogParse) {
			t.Errorf("expected ErrCatalogParse, got %v", err)
		}
	})

	t.Run("no locations", func(t *testing.T) {
		src, _ := newTestSource(t, map[string]string{
			"/l/usa":         countryPage,
			"/l/usa/alabama": statePage(),
			"/l/usa/texas":   statePage(),
		})

		if _, err := src.Fetch(context.Background()); !errors.Is(err, shared.ErrEmptyCatalog) {
			t.Errorf("expected ErrEmptyCatalog, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		src, _ := newTestSource(t, map[string]string{"/l/usa": countryPage})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := src.Fetch(ctx); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func TestParseStatePage(t *testing.T) {
	t.Run("missing plan link", func(t *testing.T) {
		page := statePage(`<div class="theme-location-item">
  <h3 class="t-title">No Plan</h3>
  <div class="t-price">$1</div>
  <div class="t-addr">1 A St<br>City, ST 12345</div>
</div>`)

		if _, err := ParseStatePage(page, "https://example.com"); !errors.Is(err, shared.ErrCatalogParse) {
			t.Errorf("expected ErrCatalogParse, got %v", err)
		}
	})

	t.Run("single address line", func(t *testing.T) {
		page := statePage(`<div class="theme-location-item">
  <h3 class="t-title">One Line</h3>
  <div class="t-price">$1</div>
  <div class="t-addr">1 A St</div>
  <a class="gt-plan" href="/p">x</a>
</div>`)

		if _, err := ParseStatePage(page, "https://example.com"); !errors.Is(err, shared.ErrCatalogParse) {
			t.Errorf("expected ErrCatalogParse, got %v", err)
		}
	})

	t.Run("entities are decoded", func(t *testing.T) {
		page := statePage(location("Smith &amp; Co", "1 A &amp; B St", "St. Louis, MO 63101", "$1", "/p"))

		mailboxes, err := ParseStatePage(page, "")
		if err != nil {
			t.Fatalf("ParseStatePage() error = %v", err)
		}
		if mailboxes[0].Name != "Smith & Co" || mailboxes[0].Address.Line1 != "1 A & B St" {
			t.Errorf("unexpected mailbox %+v", mailboxes[0])
		}
		if mailboxes[0].Address.City != "St. Louis" {
			t.Errorf("unexpected city %q", mailboxes[0].Address.City)
		}
	})
}

func TestParseLine2(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    models.Address
		wantErr bool
	}{
		{"zip5", "City, ST 12345", models.Address{City: "City", State: "ST", Zip: "12345"}, false},
		{"zip+4", "City, ST 12345-6789", models.Address{City: "City", State: "ST", Zip: "12345", Zip4: "6789"}, false},
		{"city with spaces", "City With WhiteSpace, ST 12345", models.Address{City: "City With WhiteSpace", State: "ST", Zip: "12345"}, false},
		{"no comma", "City ST 12345", models.Address{}, true},
		{"no zip", "City, ST", models.Address{}, true},
		{"bad zip", "City, ST 1234X", models.Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine2(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrCatalogParse) {
					t.Errorf("expected ErrCatalogParse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine2() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLine2() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	if got := NormalizePrice("Starting from US$ 9.99 / month"); got != "US$9.99/month" {
		t.Errorf("NormalizePrice() = %q", got)
	}
}

func TestFileSource(t *testing.T) {
	mailboxes := []models.Mailbox{
		tu.Mailbox(0, "1 Main St"),
		tu.Mailbox(1, "2 Oak, Unit 3"),
	}
	mailboxes[1].Address.Zip4 = "1234"

	t.Run("Save then Fetch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "catalog.csv")

		if err := Save(path, mailboxes); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		tu.AssertFileExists(t, path)

		got, err := NewFileSource(path).Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 mailboxes, got %d", len(got))
		}
		if got[1] != mailboxes[1] {
			t.Errorf("mailbox did not survive the file: got %+v, want %+v", got[1], mailboxes[1])
		}
	})

	t.Run("columns in any order", func(t *testing.T) {
		data := "link,zip,state,city,street,name,price\nhttps://x,78701,TX,Austin,1 Main St,Box,$5\n"

		got, err := Read(strings.NewReader(data))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got[0].Name != "Box" || got[0].Address.City != "Austin" || got[0].Link != "https://x" {
			t.Errorf("unexpected mailbox %+v", got[0])
		}
	})

	t.Run("missing column", func(t *testing.T) {
		if _, err := Read(strings.NewReader("name,street\nA,B\n")); !errors.Is(err, shared.ErrCatalogParse) {
			t.Errorf("expected ErrCatalogParse, got %v", err)
		}
	})

	t.Run("ragged row", func(t *testing.T) {
		data := strings.Join(Header, ",") + "\nA,B,C\n"
		if _, err := Read(strings.NewReader(data)); !errors.Is(err, shared.ErrCatalogParse) {
			t.Errorf("expected ErrCatalogParse, got %v", err)
		}
	})

	t.Run("header only is empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.csv")
		if err := os.WriteFile(path, []byte(strings.Join(Header, ",")+"\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := NewFileSource(path).Fetch(context.Background()); !errors.Is(err, shared.ErrEmptyCatalog) {
			t.Errorf("expected ErrEmptyCatalog, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := NewFileSource(filepath.Join(t.TempDir(), "nope.csv")).Fetch(context.Background()); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("Write failure", func(t *testing.T) {
		if err := Write(&tu.FWriter{}, mailboxes); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("Write", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, mailboxes); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if !strings.Contains(buf.String(), `"2 Oak, Unit 3"`) || !strings.Contains(buf.String(), "78701-1234") {
			t.Errorf("unexpected output %s", buf.String())
		}
	})
}

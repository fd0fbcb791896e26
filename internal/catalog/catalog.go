package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/shared"
)

// Source yields the mailbox catalog in a stable order. Mailbox.Index is the position in that order.
type Source interface {
	Fetch(ctx context.Context) ([]models.Mailbox, error)
	Name() string
}

// Header is the column layout of a catalog file.
var Header = []string{"name", "street", "city", "state", "zip", "price", "link"}

// FileSource reads a catalog previously written by [Save].
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return "file" }

// Fetch reads the whole file. An empty catalog is an error.
func (f *FileSource) Fetch(ctx context.Context) ([]models.Mailbox, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer file.Close()

	mailboxes, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	if len(mailboxes) == 0 {
		return nil, fmt.Errorf("%s: %w", f.path, shared.ErrEmptyCatalog)
	}
	return mailboxes, nil
}

// Read parses catalog CSV. Columns are matched by header name, so their order does not matter.
func Read(r io.Reader) ([]models.Mailbox, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCatalogParse, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range Header {
		if _, ok := cols[h]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", shared.ErrCatalogParse, h)
		}
	}
	reader.FieldsPerRecord = len(header)

	var mailboxes []models.Mailbox
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrCatalogParse, err)
		}

		zip, zip4, _ := strings.Cut(record[cols["zip"]], "-")
		mailboxes = append(mailboxes, models.Mailbox{
			Index: len(mailboxes),
			Name:  record[cols["name"]],
			Address: models.Address{
				Line1: record[cols["street"]],
				City:  record[cols["city"]],
				State: record[cols["state"]],
				Zip:   zip,
				Zip4:  zip4,
			},
			Price: record[cols["price"]],
			Link:  record[cols["link"]],
		})
	}

	return mailboxes, nil
}

// Write encodes mailboxes as catalog CSV in the given order.
func Write(w io.Writer, mailboxes []models.Mailbox) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, m := range mailboxes {
		record := []string{m.Name, m.Address.Line1, m.Address.City, m.Address.State, m.Address.FullZip(), m.Price, m.Link}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Save writes mailboxes to path, creating parent directories.
func Save(path string, mailboxes []models.Mailbox) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create catalog file: %w", err)
	}
	if err := Write(file, mailboxes); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/models"
)

// MockCall records one invocation of [MockValidator.Verify].
type MockCall struct {
	Address    models.Address
	Credential string
}

// MockValidator is a test double for [services.Validator].
//
// Fn decides each response; when nil every address verifies as non-CMRA commercial.
type MockValidator struct {
	Fn func(ctx context.Context, addr models.Address, cred credentials.Credential) (*models.Verification, error)

	mu    sync.Mutex
	calls []MockCall
}

func (m *MockValidator) Verify(ctx context.Context, addr models.Address, cred credentials.Credential) (*models.Verification, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Address: addr, Credential: cred.ID})
	m.mu.Unlock()

	if m.Fn == nil {
		return Verified(false, false), nil
	}
	return m.Fn(ctx, addr, cred)
}

func (m *MockValidator) Name() string { return "mock" }

// Calls returns a copy of every recorded call.
func (m *MockValidator) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallsFor counts calls made for the address with line1.
func (m *MockValidator) CallsFor(line1 string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Address.Line1 == line1 {
			n++
		}
	}
	return n
}

// Verified builds a verification result.
func Verified(cmra, residential bool) *models.Verification {
	rdi := models.RDICommercial
	if residential {
		rdi = models.RDIResidential
	}
	return &models.Verification{CMRA: cmra, Residential: residential, RDI: rdi, DPVMatchCode: "Y"}
}

// Mailbox builds a catalog entry whose street is line1.
func Mailbox(index int, line1 string) models.Mailbox {
	return models.Mailbox{
		Index: index,
		Name:  "Mailbox " + line1,
		Address: models.Address{
			Line1: line1,
			City:  "Austin",
			State: "TX",
			Zip:   "78701",
		},
		Link:  "https://example.com/" + line1,
		Price: "$9.99",
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

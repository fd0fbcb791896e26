package catalog

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/services"
	"github.com/desertthunder/noncmra/internal/shared"
)

const (
	DefaultATMBURL = "https://www.anytimemailbox.com"
	CountryPath    = "/l/usa"

	browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

var (
	stateLinkPattern = regexp.MustCompile(`<a class='theme-simple-link' href='(.*?)'>(.*?)</a>`)
	lineBreak        = regexp.MustCompile(`(?i)<br\s*/?>`)
	zipPattern       = regexp.MustCompile(`^(\d{5})(?:-(\d{4}))?$`)
)

// StateLink is one state listed on the country page.
type StateLink struct {
	Name string
	Path string
}

// ATMBSource crawls the Anytime Mailbox location directory for US mailboxes.
type ATMBSource struct {
	api     *services.APIService
	workers int
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewATMBSource creates a crawler from the [catalog] configuration. client and logger may be nil.
func NewATMBSource(cfg shared.CatalogConfig, client *http.Client, logger *log.Logger) *ATMBSource {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultATMBURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}

	api := services.NewAPIService(baseURL, client)
	api.SetUserAgent(browserUserAgent)

	return &ATMBSource{
		api:     api,
		workers: workers,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

func (s *ATMBSource) Name() string { return "atmb" }

// Fetch downloads the country page and every state page with bounded concurrency.
//
// Any state page failure fails the whole crawl so a partial catalog is never mistaken for a complete one.
// Mailboxes keep the country page's state order, then each state page's order.
func (s *ATMBSource) Fetch(ctx context.Context) ([]models.Mailbox, error) {
	page, err := s.fetchPage(ctx, CountryPath)
	if err != nil {
		return nil, err
	}

	states, err := ParseCountryPage(page)
	if err != nil {
		return nil, err
	}
	s.logger.Info("found states", "count", len(states))

	perState := make([][]models.Mailbox, len(states))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, state := range states {
		g.Go(func() error {
			s.logger.Debug("fetching state page", "step", fmt.Sprintf("%d/%d", i+1, len(states)), "state", state.Name)

			page, err := s.fetchPage(gctx, state.Path)
			if err != nil {
				return fmt.Errorf("state %s: %w", state.Name, err)
			}
			mailboxes, err := ParseStatePage(page, s.api.BaseURL())
			if err != nil {
				return fmt.Errorf("state %s: %w", state.Name, err)
			}
			perState[i] = mailboxes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var mailboxes []models.Mailbox
	for _, ms := range perState {
		for _, m := range ms {
			m.Index = len(mailboxes)
			mailboxes = append(mailboxes, m)
		}
	}
	if len(mailboxes) == 0 {
		return nil, shared.ErrEmptyCatalog
	}

	s.logger.Info("fetched catalog", "mailboxes", len(mailboxes), "states", len(states))
	return mailboxes, nil
}

func (s *ATMBSource) fetchPage(ctx context.Context, path string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	path = strings.TrimPrefix(path, s.api.BaseURL())
	resp, err := s.api.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: GET %s returned status %d", shared.ErrNetwork, path, resp.StatusCode)
	}
	return string(resp.Body), nil
}

// ParseCountryPage extracts state links from the country page in page order.
func ParseCountryPage(page string) ([]StateLink, error) {
	var states []StateLink
	for _, m := range stateLinkPattern.FindAllStringSubmatch(page, -1) {
		states = append(states, StateLink{Path: m[1], Name: html.UnescapeString(m[2])})
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: no states found on country page", shared.ErrCatalogParse)
	}
	return states, nil
}

// ParseStatePage extracts every location listed on a state page. Plan links are made absolute with baseURL.
func ParseStatePage(page, baseURL string) ([]models.Mailbox, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCatalogParse, err)
	}

	var (
		mailboxes []models.Mailbox
		parseErr  error
	)
	doc.Find("div.theme-location-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		m, err := parseLocation(item, baseURL)
		if err != nil {
			parseErr = err
			return false
		}
		mailboxes = append(mailboxes, m)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return mailboxes, nil
}

func parseLocation(item *goquery.Selection, baseURL string) (models.Mailbox, error) {
	title := item.Find("h3.t-title").First()
	if title.Length() == 0 {
		return models.Mailbox{}, fmt.Errorf("%w: location without title", shared.ErrCatalogParse)
	}
	name := strings.TrimSpace(title.Text())

	price := item.Find("div.t-price").First()
	if price.Length() == 0 {
		return models.Mailbox{}, fmt.Errorf("%w: %s: no price", shared.ErrCatalogParse, name)
	}

	addrHTML, err := item.Find("div.t-addr").First().Html()
	if err != nil || addrHTML == "" {
		return models.Mailbox{}, fmt.Errorf("%w: %s: no address", shared.ErrCatalogParse, name)
	}
	line1, line2, ok := splitAddress(addrHTML)
	if !ok {
		return models.Mailbox{}, fmt.Errorf("%w: %s: cannot split address %q", shared.ErrCatalogParse, name, addrHTML)
	}

	href, ok := item.Find("a.gt-plan").First().Attr("href")
	if !ok {
		return models.Mailbox{}, fmt.Errorf("%w: %s: no plan link", shared.ErrCatalogParse, name)
	}

	addr, err := ParseLine2(line2)
	if err != nil {
		return models.Mailbox{}, fmt.Errorf("%s: %w", name, err)
	}
	addr.Line1 = line1

	return models.Mailbox{
		Name:    name,
		Address: addr,
		Link:    baseURL + href,
		Price:   NormalizePrice(price.Text()),
	}, nil
}

func splitAddress(inner string) (string, string, bool) {
	parts := lineBreak.Split(inner, -1)
	if len(parts) < 2 {
		return "", "", false
	}
	line1 := strings.TrimSpace(html.UnescapeString(parts[0]))
	line2 := strings.TrimSpace(html.UnescapeString(parts[1]))
	return line1, line2, line1 != "" && line2 != ""
}

// ParseLine2 parses "City, ST 12345" or "City, ST 12345-6789".
func ParseLine2(line2 string) (models.Address, error) {
	city, rest, ok := strings.Cut(line2, ",")
	if !ok {
		return models.Address{}, fmt.Errorf("%w: no city in %q", shared.ErrCatalogParse, line2)
	}

	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return models.Address{}, fmt.Errorf("%w: no state and zip in %q", shared.ErrCatalogParse, line2)
	}

	zip := zipPattern.FindStringSubmatch(fields[1])
	if zip == nil {
		return models.Address{}, fmt.Errorf("%w: bad zip code in %q", shared.ErrCatalogParse, line2)
	}

	return models.Address{
		City:  strings.TrimSpace(city),
		State: fields[0],
		Zip:   zip[1],
		Zip4:  zip[2],
	}, nil
}

// NormalizePrice drops the "Starting from" prefix and all spaces: "US$9.99/month".
func NormalizePrice(s string) string {
	s = strings.ReplaceAll(s, "Starting from", "")
	return strings.Join(strings.Fields(s), "")
}

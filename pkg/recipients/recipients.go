// Package recipients loads airdrop recipient lists from the sources the
// operator can point a distribution at: a miners API, a CSV file, or a plain
// address list.
package recipients

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sigmanauts/ergodist/pkg/retry"
)

// Recipient is one distribution target. Amount is optional; zero means the
// caller decides the per-recipient amount.
type Recipient struct {
	Address string
	Amount  float64
}

// FromAddresses builds a recipient list from bare addresses, skipping blanks.
func FromAddresses(addrs []string) []Recipient {
	out := make([]Recipient, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		out = append(out, Recipient{Address: a})
	}
	return out
}

// FromCSV reads recipients from r. The first column is the address, an
// optional second column is the amount. A header row starting with "address"
// is skipped, as are rows with a blank address.
func FromCSV(log *slog.Logger, r io.Reader) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var out []Recipient
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", line+1, err)
		}
		line++

		if len(record) == 0 {
			continue
		}
		address := strings.TrimSpace(record[0])
		if address == "" {
			log.Warn("recipients: skipping row with empty address", "row", line)
			continue
		}
		if line == 1 && strings.EqualFold(address, "address") {
			continue
		}

		recipient := Recipient{Address: address}
		if len(record) > 1 && strings.TrimSpace(record[1]) != "" {
			amount, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse amount on row %d: %w", line, err)
			}
			recipient.Amount = amount
		}
		out = append(out, recipient)
	}
	return out, nil
}

// FromCSVFile reads recipients from a CSV file on disk.
func FromCSVFile(log *slog.Logger, path string) ([]Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipients file: %w", err)
	}
	defer f.Close()
	return FromCSV(log, f)
}

// FileSource reads recipients from a CSV file on every fetch, so a plan can
// be regenerated after editing the file without restarting.
type FileSource struct {
	log  *slog.Logger
	path string
}

func NewFileSource(log *slog.Logger, path string) *FileSource {
	return &FileSource{log: log, path: path}
}

func (s *FileSource) Fetch(ctx context.Context) ([]Recipient, error) {
	return FromCSVFile(s.log, s.path)
}

// MinersConfig configures the miners API source.
type MinersConfig struct {
	Logger *slog.Logger
	// URL is the full endpoint serving the miner list, e.g.
	// https://api.ergominers.com/sigscore/miners/bonus
	URL        string
	APIKey     string
	Timeout    time.Duration
	Retry      retry.Config
	HTTPClient *http.Client
}

func (cfg *MinersConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.URL == "" {
		return errors.New("miners endpoint URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// MinersSource fetches a miner list from the pool API.
type MinersSource struct {
	log    *slog.Logger
	url    string
	apiKey string
	http   *http.Client
	retry  retry.Config
}

func NewMinersSource(cfg MinersConfig) (*MinersSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &MinersSource{
		log:    cfg.Logger,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   httpClient,
		retry:  cfg.Retry,
	}, nil
}

type minerRecord struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount,omitempty"`
}

// Fetch retrieves the miner list and returns it as recipients, skipping
// records without an address. Amounts are carried through when the endpoint
// serves them (the bonus endpoint does), otherwise left zero for the caller
// to fill.
func (s *MinersSource) Fetch(ctx context.Context) ([]Recipient, error) {
	var records []minerRecord
	err := retry.Do(ctx, s.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if s.apiKey != "" {
			req.Header.Set("X-API-Key", s.apiKey)
		}

		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		return json.NewDecoder(resp.Body).Decode(&records)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch miners: %w", err)
	}

	out := make([]Recipient, 0, len(records))
	for i, record := range records {
		if strings.TrimSpace(record.Address) == "" {
			s.log.Warn("recipients: skipping miner with empty address", "index", i)
			continue
		}
		out = append(out, Recipient{Address: strings.TrimSpace(record.Address), Amount: record.Amount})
	}
	return out, nil
}

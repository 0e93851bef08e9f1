package wallet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/models"
)

// Column names of the wallet import file. type and cairo_version are legacy
// columns that are accepted and ignored.
const (
	ColumnName         = "name"
	ColumnPrivateKey   = "private_key"
	ColumnPairAddress  = "pair_address"
	ColumnProxy        = "proxy"
	ColumnType         = "type"
	ColumnCairoVersion = "cairo_version"
)

var requiredColumns = []string{ColumnName, ColumnPrivateKey}

// ImportCSV reads wallets from a CSV file with a header row. Every invalid row is
// reported with its line number and no wallets are returned in that case.
func ImportCSV(r io.Reader) ([]*models.Wallet, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("wallet file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var (
		wallets []*models.Wallet
		errs    error
		line    = 1
	)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}

		w, err := parseRow(
			field(record, ColumnName),
			field(record, ColumnPrivateKey),
			field(record, ColumnPairAddress),
			field(record, ColumnProxy),
		)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		w.Index = len(wallets)
		wallets = append(wallets, w)
	}

	if errs != nil {
		return nil, errs
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("wallet file has no rows")
	}
	return wallets, nil
}

// NewWallet validates a credential and builds an inactive wallet
func NewWallet(name, privateKey, pairAddress string, proxy *models.Proxy) (*models.Wallet, error) {
	account, err := aptos.AccountFromPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	if pairAddress != "" {
		pairAddress, err = aptos.NormalizeAddress(pairAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid pair address: %w", err)
		}
	}

	return &models.Wallet{
		WalletID:    uuid.New(),
		Name:        name,
		PrivateKey:  privateKey,
		Address:     account.Address(),
		PairAddress: pairAddress,
		Proxy:       proxy,
		Status:      models.WalletStatusInactive,
	}, nil
}

func parseRow(name, privateKey, pairAddress, proxy string) (*models.Wallet, error) {
	var p *models.Proxy
	if proxy != "" {
		var err error
		if p, err = ParseProxy(proxy); err != nil {
			return nil, err
		}
	}
	return NewWallet(name, privateKey, pairAddress, p)
}

// ParseProxy parses "[user:pass@]host:port[:mobile]"
func ParseProxy(s string) (*models.Proxy, error) {
	p := &models.Proxy{}

	if at := strings.LastIndex(s, "@"); at >= 0 {
		creds := s[:at]
		s = s[at+1:]
		user, pass, ok := strings.Cut(creds, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("invalid proxy credentials")
		}
		p.Username, p.Password = user, pass
	}

	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 3 && strings.EqualFold(parts[2], "mobile"):
		p.IsMobile = true
	case len(parts) != 2:
		return nil, fmt.Errorf("invalid proxy %q, expected [user:pass@]host:port[:mobile]", s)
	}

	p.Host = parts[0]
	if p.Host == "" {
		return nil, fmt.Errorf("proxy host is empty")
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid proxy port %q", parts[1])
	}
	p.Port = port

	return p, nil
}

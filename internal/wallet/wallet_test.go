package wallet

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"aptoswarm/internal/models"
)

const (
	keyA = "0x1111111111111111111111111111111111111111111111111111111111111111"
	keyB = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

func TestImportCSV(t *testing.T) {
	input := strings.Join([]string{
		"name,private_key,pair_address,proxy,type,cairo_version",
		"alpha," + keyA + ",0x5,user:pass@10.0.0.1:8080,argent,1",
		"beta," + keyB + ",,10.0.0.2:3128:mobile,,",
	}, "\n")

	wallets, err := ImportCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, wallets, 2)

	a := wallets[0]
	assert.Equal(t, "alpha", a.Name)
	assert.Equal(t, 0, a.Index)
	assert.True(t, strings.HasPrefix(a.Address, "0x"))
	assert.Len(t, a.Address, 66)
	assert.Equal(t, "0x"+strings.Repeat("0", 63)+"5", a.PairAddress)
	require.NotNil(t, a.Proxy)
	assert.Equal(t, "user", a.Proxy.Username)
	assert.Equal(t, 8080, a.Proxy.Port)
	assert.Equal(t, models.WalletStatusInactive, a.Status)

	b := wallets[1]
	assert.Equal(t, 1, b.Index)
	assert.Empty(t, b.PairAddress)
	require.NotNil(t, b.Proxy)
	assert.True(t, b.Proxy.IsMobile)
	assert.NotEqual(t, a.WalletID, b.WalletID)
	assert.NotEqual(t, a.Address, b.Address)
}

func TestImportCSV_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errors int
		msg    string
	}{
		{name: "empty", input: "", errors: 1, msg: "empty"},
		{name: "missing column", input: "name,pair_address\nalpha,0x1", errors: 1, msg: "private_key"},
		{name: "header only", input: "name,private_key", errors: 1, msg: "no rows"},
		{
			name:   "bad rows reported with line numbers",
			input:  "name,private_key,proxy\nok," + keyA + ",\nshort,0x1234,\nbadproxy," + keyB + ",host:notaport",
			errors: 2,
			msg:    "line 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallets, err := ImportCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Nil(t, wallets)
			assert.Len(t, multierr.Errors(err), tt.errors)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseProxy(t *testing.T) {
	tests := []struct {
		input    string
		expected *models.Proxy
		wantErr  bool
	}{
		{input: "1.2.3.4:80", expected: &models.Proxy{Host: "1.2.3.4", Port: 80}},
		{input: "u:p@proxy.local:3128", expected: &models.Proxy{Host: "proxy.local", Port: 3128, Username: "u", Password: "p"}},
		{input: "u:p@proxy.local:3128:mobile", expected: &models.Proxy{Host: "proxy.local", Port: 3128, Username: "u", Password: "p", IsMobile: true}},
		{input: "proxy.local", wantErr: true},
		{input: "proxy.local:0", wantErr: true},
		{input: ":80", wantErr: true},
		{input: "@proxy.local:80", wantErr: true},
		{input: "proxy.local:80:static", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParseProxy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, err := NewWallet("a", keyA, "", nil)
	require.NoError(t, err)
	b, err := NewWallet("b", keyB, "", nil)
	require.NoError(t, err)

	require.NoError(t, r.Add(a, b))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []*models.Wallet{a, b}, r.List())

	got, ok := r.Get(b.WalletID)
	require.True(t, ok)
	assert.Same(t, b, got)

	assert.Error(t, r.Add(a))
	assert.Equal(t, 2, r.Len())

	dup := *b
	dup.Name = "dup"
	assert.Error(t, r.Replace([]*models.Wallet{b, &dup}))
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Replace([]*models.Wallet{b}))
	assert.Equal(t, []*models.Wallet{b}, r.List())
	_, ok = r.Get(a.WalletID)
	assert.False(t, ok)

	r.Clear()
	assert.Zero(t, r.Len())
	_, ok = r.Get(uuid.New())
	assert.False(t, ok)
}

func proxyFor(t *testing.T, srv *httptest.Server) *models.Proxy {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return &models.Proxy{Host: host, Port: p}
}

func TestProxyValidator(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("203.0.113.7"))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	v := NewProxyValidator("http://ip.check.invalid/", 2*time.Second, zap.NewNop())
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, &models.Wallet{}))
	assert.NoError(t, v.Validate(ctx, &models.Wallet{Proxy: proxyFor(t, good)}))
	assert.Error(t, v.Validate(ctx, &models.Wallet{Proxy: proxyFor(t, bad)}))
}

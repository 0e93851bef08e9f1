package aptos

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"aptoswarm/internal/models"
)

// ClientPool hands out one client per distinct wallet proxy
type ClientPool struct {
	baseURL    string
	timeout    time.Duration
	expiration time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	direct  *Client
	proxied map[string]*Client
}

// NewClientPool creates a pool for the given endpoint. The direct client is created up front
// so a malformed endpoint fails here.
func NewClientPool(baseURL string, timeout, expiration time.Duration, logger *zap.Logger) (*ClientPool, error) {
	logger = logger.Named("aptos")

	direct, err := NewClient(baseURL, logger, WithTimeout(timeout), WithExpiration(expiration))
	if err != nil {
		return nil, err
	}

	return &ClientPool{
		baseURL:    baseURL,
		timeout:    timeout,
		expiration: expiration,
		logger:     logger,
		direct:     direct,
		proxied:    make(map[string]*Client),
	}, nil
}

// Default returns the client used without a proxy
func (p *ClientPool) Default() *Client {
	return p.direct
}

// ForWallet returns the client that routes through the wallet's proxy, if any
func (p *ClientPool) ForWallet(w *models.Wallet) *Client {
	if w.Proxy == nil {
		return p.direct
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := w.Proxy.URL().String()
	if c, ok := p.proxied[key]; ok {
		return c
	}

	c, err := NewClient(p.baseURL, p.logger.With(zap.String("proxy", w.Proxy.String())),
		WithTimeout(p.timeout),
		WithExpiration(p.expiration),
		WithProxy(w.Proxy.URL()))
	if err != nil {
		// unreachable once the direct client parsed the same endpoint
		p.logger.Error("Failed to create proxied client, using direct connection",
			zap.String("proxy", w.Proxy.String()),
			zap.Error(err))
		return p.direct
	}
	p.proxied[key] = c
	return c
}

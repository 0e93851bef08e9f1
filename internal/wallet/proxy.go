package wallet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"aptoswarm/internal/models"
)

// ProxyValidator checks that a wallet proxy forwards requests
type ProxyValidator struct {
	checkURL string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewProxyValidator creates a validator that fetches checkURL through each proxy
func NewProxyValidator(checkURL string, timeout time.Duration, logger *zap.Logger) *ProxyValidator {
	return &ProxyValidator{
		checkURL: checkURL,
		timeout:  timeout,
		logger:   logger.Named("proxy"),
	}
}

// Validate returns nil when the wallet has no proxy or the proxy answers
func (v *ProxyValidator) Validate(ctx context.Context, w *models.Wallet) error {
	if w.Proxy == nil {
		return nil
	}

	client := &http.Client{
		Timeout:   v.timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(w.Proxy.URL())},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.checkURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy %s unreachable: %w", w.Proxy, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy %s returned status %d", w.Proxy, resp.StatusCode)
	}

	v.logger.Debug("Proxy validated",
		zap.String("wallet", w.Label()),
		zap.String("proxy", w.Proxy.String()),
		zap.String("exit_ip", string(body)))

	return nil
}

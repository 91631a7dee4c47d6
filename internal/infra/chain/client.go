package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BalanceClient reads token balances from the chain indexer's HTTP API.
// Every failure is reported as domain.ErrExternalUnavailable so callers can
// skip the reading for this cycle.
type BalanceClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBalanceClient(baseURL string, timeout time.Duration) *BalanceClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BalanceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type balanceResp struct {
	UserID  string           `json:"userId"`
	Balance *decimal.Decimal `json:"balance"`
}

func (c *BalanceClient) ReadExternalBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	log := logger.Get().With(zap.String("userID", userID))
	endpoint := fmt.Sprintf("%s/balances/%s", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, unavailable(err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug("chain balance request failed", zap.Error(err))
		return decimal.Zero, unavailable(err)
	}
	defer resp.Body.Close()

	log.Debug("chain balance response", zap.Duration("took", time.Since(start)), zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return decimal.Zero, unavailable(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var out balanceResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, unavailable(err)
	}
	if out.Balance == nil {
		return decimal.Zero, unavailable(fmt.Errorf("balance missing for %s", userID))
	}
	return *out.Balance, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrExternalUnavailable, err)
}

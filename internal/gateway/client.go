// Package gateway предоставляет клиент внешнего платёжного шлюза для
// безналичных способов оплаты.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/coffeevend-system/internal/model"
)

// ErrDeclined возвращается, если шлюз отклонил списание.
var ErrDeclined = errors.New("payment declined by gateway")

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type chargeRequest struct {
	OrderID int64  `json:"order"`
	Amount  string `json:"amount"`
	Method  string `json:"method"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// NewClient создаёт HTTP-клиент для обращения к платёжному шлюзу по указанному адресу.
// Временные ошибки и ответы 429/5xx ретраятся клиентом самостоятельно.
func NewClient(baseURL string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.RetryWaitMin = 500 * time.Millisecond
	httpClient.RetryWaitMax = 5 * time.Second
	httpClient.HTTPClient.Timeout = 5 * time.Second
	httpClient.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Charge проводит списание суммы заказа через шлюз и возвращает идентификатор
// транзакции. Сумма передаётся строкой с двумя знаками после запятой.
func (c *Client) Charge(ctx context.Context, orderID int64, amount decimal.Decimal, method model.PaymentMethod) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("gateway client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(chargeRequest{
		OrderID: orderID,
		Amount:  amount.StringFixed(2),
		Method:  string(method),
	})
	if err != nil {
		return "", fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/charges", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return "", fmt.Errorf("%w: order %d", ErrDeclined, orderID)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if result.Status != "" && result.Status != "SUCCESS" {
		return "", fmt.Errorf("%w: order %d, status %s", ErrDeclined, orderID, result.Status)
	}
	if result.TransactionID == "" {
		return "", fmt.Errorf("gateway returned empty transaction id for order %d", orderID)
	}

	return result.TransactionID, nil
}

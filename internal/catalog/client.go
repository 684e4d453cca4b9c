// Package catalog предоставляет клиент для внешнего API каталога товаров.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/smolin/lunchorder-system/internal/model"
)

// ErrUnavailable возвращается при любой ошибке обращения к каталогу:
// сетевой сбой, неуспешный статус или некорректный ответ.
var ErrUnavailable = errors.New("product catalog unavailable")

// Client инкапсулирует HTTP-взаимодействие с внешним каталогом товаров.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type productPayload struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type productsResponse struct {
	Data []productPayload `json:"data"`
}

// NewClient создаёт HTTP-клиент каталога с ограниченным таймаутом и повторами.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// GetProducts запрашивает актуальный список товаров каталога.
// Цены ответа конвертируются в копейки.
func (c *Client) GetProducts(ctx context.Context) ([]model.Product, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: client not configured", ErrUnavailable)
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/v1/products", base)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: do request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status: %d", ErrUnavailable, resp.StatusCode)
	}

	var result productsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	products := make([]model.Product, 0, len(result.Data))
	for _, p := range result.Data {
		products = append(products, model.Product{
			ID:         p.ID,
			Name:       p.Name,
			PriceCents: int64(math.Round(p.Price * 100)),
		})
	}

	return products, nil
}

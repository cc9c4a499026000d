package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// minorUnits converts whole currency units into the gateway's smallest unit.
const minorUnits = 100

// HTTPClient talks to a hosted-checkout API over JSON.
type HTTPClient struct {
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewHTTPClient creates a gateway client. timeout bounds each call.
func NewHTTPClient(apiURL, secretKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		secretKey:  secretKey,
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type lineItem struct {
	Name       string `json:"name"`
	Currency   string `json:"currency"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
}

type createSessionRequest struct {
	Mode          string            `json:"mode"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	LineItems     []lineItem        `json:"line_items"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	Metadata      map[string]string `json:"metadata"`
}

type sessionResponse struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// CreateCheckout opens a hosted checkout session.
func (c *HTTPClient) CreateCheckout(ctx context.Context, in CheckoutRequest) (*Checkout, error) {
	body := createSessionRequest{
		Mode:          "payment",
		CustomerEmail: in.CustomerEmail,
		LineItems: []lineItem{{
			Name:       in.ProductName,
			Currency:   in.Currency,
			UnitAmount: in.Amount * minorUnits,
			Quantity:   1,
		}},
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
		Metadata:   in.Metadata,
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/checkout/sessions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Idempotency-Key", uuid.NewString())

	var resp sessionResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.URL == "" {
		return nil, errors.New("gateway returned an incomplete checkout session")
	}
	return &Checkout{Reference: resp.ID, RedirectURL: resp.URL}, nil
}

// RetrieveSession fetches the current state of a checkout session.
func (c *HTTPClient) RetrieveSession(ctx context.Context, reference string) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &Session{
		Reference:     resp.ID,
		PaymentStatus: resp.PaymentStatus,
		TransactionID: resp.PaymentIntent,
		CustomerEmail: resp.CustomerEmail,
		AmountTotal:   resp.AmountTotal / minorUnits,
		Currency:      resp.Currency,
		Metadata:      resp.Metadata,
	}, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway rejected request: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

// Package payos talks to the PayOS merchant API and authenticates its webhooks.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var ErrGateway = errors.New("payos: gateway error")

type Config struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	BaseURL     string
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	signer *Signer
	http   *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		signer: NewSigner(cfg.ChecksumKey),
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// PaymentRequest is the body of POST /v2/payment-requests. Amount is whole VND.
type PaymentRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	BuyerName   string `json:"buyerName,omitempty"`
	BuyerEmail  string `json:"buyerEmail,omitempty"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	ExpiredAt   int64  `json:"expiredAt,omitempty"`
	Signature   string `json:"signature"`
}

type PaymentLink struct {
	Bin           string `json:"bin"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	OrderCode     int64  `json:"orderCode"`
	Currency      string `json:"currency"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`

	Raw json.RawMessage `json:"-"`
}

type PaymentTransaction struct {
	Reference           string `json:"reference"`
	Amount              int64  `json:"amount"`
	AccountNumber       string `json:"accountNumber"`
	Description         string `json:"description"`
	TransactionDateTime string `json:"transactionDateTime"`
}

// PaymentInfo is the body of GET /v2/payment-requests/{orderCode}.
type PaymentInfo struct {
	ID                 string               `json:"id"`
	OrderCode          int64                `json:"orderCode"`
	Amount             int64                `json:"amount"`
	AmountPaid         int64                `json:"amountPaid"`
	AmountRemaining    int64                `json:"amountRemaining"`
	Status             string               `json:"status"`
	CreatedAt          string               `json:"createdAt"`
	Transactions       []PaymentTransaction `json:"transactions"`
	CancellationReason *string              `json:"cancellationReason"`
	CanceledAt         *string              `json:"canceledAt"`

	Raw json.RawMessage `json:"-"`
}

type envelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// CreatePaymentLink opens a checkout session. The request signature is
// filled in from the checksum key.
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentRequest) (PaymentLink, error) {
	req.Signature = c.signer.SignPaymentRequest(req.Amount, req.CancelURL, req.Description, req.OrderCode, req.ReturnURL)
	body, err := json.Marshal(req)
	if err != nil {
		return PaymentLink{}, err
	}

	raw, err := c.do(ctx, http.MethodPost, "/v2/payment-requests", body)
	if err != nil {
		return PaymentLink{}, err
	}
	var link PaymentLink
	if err := json.Unmarshal(raw, &link); err != nil {
		return PaymentLink{}, fmt.Errorf("%w: decode payment link: %v", ErrGateway, err)
	}
	link.Raw = raw
	return link, nil
}

// GetPaymentInfo fetches the gateway's view of an order.
func (c *Client) GetPaymentInfo(ctx context.Context, orderCode int64) (PaymentInfo, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v2/payment-requests/"+strconv.FormatInt(orderCode, 10), nil)
	if err != nil {
		return PaymentInfo{}, err
	}
	var info PaymentInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return PaymentInfo{}, fmt.Errorf("%w: decode payment info: %v", ErrGateway, err)
	}
	info.Raw = raw
	return info, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-client-id", c.cfg.ClientID)
	req.Header.Set("x-api-key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrGateway, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrGateway, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrGateway, err)
	}
	if env.Code != "00" {
		return nil, fmt.Errorf("%w: code %s: %s", ErrGateway, env.Code, env.Desc)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: empty data", ErrGateway)
	}
	return env.Data, nil
}

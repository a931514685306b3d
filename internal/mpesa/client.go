package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTransactionNotFound is returned by STKQuery when the provider no longer
// knows the checkout request. Callers treat it as a terminal outcome.
var ErrTransactionNotFound = errors.New("transaction not found")

type StkPushRequest struct {
	Phone       string
	Amount      int64
	AccountRef  string
	Description string
}

type StkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type StkQueryResponse struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResultCode        string `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

type Client struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	BaseURL        string
	httpClient     *http.Client
	now            func() time.Time
}

func NewClient(consumerKey, consumerSecret, shortCode, passkey, callbackURL, baseURL string) *Client {
	return &Client{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		ShortCode:      shortCode,
		Passkey:        passkey,
		CallbackURL:    callbackURL,
		BaseURL:        baseURL,
		httpClient:     http.DefaultClient,
		now:            time.Now,
	}
}

// accessToken fetches a fresh OAuth token with the client-credentials grant.
// Daraja tokens are valid for an hour but the volume here does not justify
// caching them.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	credentials := base64.StdEncoding.EncodeToString([]byte(c.ConsumerKey + ":" + c.ConsumerSecret))

	url := c.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Basic "+credentials)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("mpesa token request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("mpesa token decode: %w body=%s", err, string(raw))
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("mpesa token missing in response: http=%d body=%s", resp.StatusCode, string(raw))
	}
	return res.AccessToken, nil
}

// stkPassword builds the shortcode+passkey+timestamp password Daraja expects
// on both push and query calls.
func (c *Client) stkPassword() (password, timestamp string) {
	timestamp = c.now().Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(c.ShortCode + c.Passkey + timestamp))
	return password, timestamp
}

// STKPush asks the provider to pop a payment prompt on the customer's phone.
// The phone must already be normalized to 254 format.
func (c *Client) STKPush(ctx context.Context, req StkPushRequest) (StkPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return StkPushResponse{}, err
	}

	password, timestamp := c.stkPassword()
	payload := map[string]any{
		"BusinessShortCode": c.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            req.Phone,
		"PartyB":            c.ShortCode,
		"PhoneNumber":       req.Phone,
		"CallBackURL":       c.CallbackURL,
		"AccountReference":  req.AccountRef,
		"TransactionDesc":   req.Description,
	}
	body, _ := json.Marshal(payload)

	url := c.BaseURL + "/mpesa/stkpush/v1/processrequest"
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return StkPushResponse{}, fmt.Errorf("mpesa stk push request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var res StkPushResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return StkPushResponse{}, fmt.Errorf("mpesa stk push decode: %w body=%s", err, string(raw))
	}
	if res.ResponseCode != "0" {
		return res, fmt.Errorf("mpesa stk push rejected: http=%d body=%s", resp.StatusCode, string(raw))
	}
	return res, nil
}

// STKQuery asks the provider for the outcome of a previously initiated push.
// While the prompt is still open on the handset the provider reports no
// ResultCode; that decodes to an empty string and classifies as pending.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (StkQueryResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return StkQueryResponse{}, err
	}

	password, timestamp := c.stkPassword()
	payload := map[string]any{
		"BusinessShortCode": c.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}
	body, _ := json.Marshal(payload)

	url := c.BaseURL + "/mpesa/stkpushquery/v1/query"
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return StkQueryResponse{}, fmt.Errorf("mpesa stk query request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	// Daraja returns an error envelope while the push is still processing
	// and a different one when the request has aged out entirely.
	var errRes struct {
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(raw, &errRes); err == nil && errRes.ErrorCode != "" {
		if errRes.ErrorCode == "404.001.04" || errRes.ErrorCode == "500.001.1001" {
			return StkQueryResponse{}, ErrTransactionNotFound
		}
		// "The transaction is being processed" and friends: not terminal.
		return StkQueryResponse{CheckoutRequestID: checkoutRequestID}, nil
	}

	var res StkQueryResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return StkQueryResponse{}, fmt.Errorf("mpesa stk query decode: %w body=%s", err, string(raw))
	}
	return res, nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to the payment gateway's REST API. Requests carry the app and
// merchant identity plus a detached RSA signature.
type Client struct {
	APIURL     string
	AppID      string
	MerchantID string
	Signer     *Signer
	HTTPClient *http.Client
}

func NewClient(apiURL, appID, merchantID string, signer *Signer) *Client {
	return &Client{
		APIURL:     apiURL,
		AppID:      appID,
		MerchantID: merchantID,
		Signer:     signer,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
	}
}

func (c *Client) CreatePayment(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.post(ctx, "/v1/payments", params)
}

func (c *Client) QueryPayment(ctx context.Context, paymentID string) (map[string]any, error) {
	return c.post(ctx, "/v1/payments/"+paymentID+"/query", map[string]any{"id": paymentID})
}

func (c *Client) post(ctx context.Context, path string, params map[string]any) (map[string]any, error) {
	body := make(map[string]any, len(params)+4)
	for k, v := range params {
		body[k] = v
	}
	body["app_id"] = c.AppID
	if c.MerchantID != "" {
		body["merchant_id"] = c.MerchantID
	}
	body["request_id"] = uuid.NewString()

	sig, err := c.Signer.Sign(body)
	if err != nil {
		return nil, err
	}
	body[signField] = sig

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, data)
	}

	return DecodePayload(data)
}

// DecodePayload parses a gateway JSON object keeping numbers as json.Number
// so signature canonicalization never reformats them.
func DecodePayload(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

package pricing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shopagent/internal/config"
	"shopagent/internal/logging"
)

// PAAPIConfig holds Amazon Product Advertising API 5.0 credentials.
type PAAPIConfig struct {
	AccessKey  string
	SecretKey  string
	PartnerTag string
	Host       string
	Region     string
	Timeout    time.Duration
}

// PAAPIProvider looks up offer prices via the PAAPI GetItems operation.
// Requests are signed with AWS Signature Version 4.
type PAAPIProvider struct {
	config     PAAPIConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewPAAPIProvider creates a provider with the given credentials.
func NewPAAPIProvider(cfg PAAPIConfig) *PAAPIProvider {
	if cfg.Host == "" {
		cfg.Host = "webservices.amazon.com"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PAAPIProvider{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// NewProviderFromConfig returns a PAAPI provider when credentials are
// configured, otherwise the null provider.
func NewProviderFromConfig(cfg config.PricingConfig) Provider {
	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.PartnerTag == "" {
		return NullProvider{}
	}
	return NewPAAPIProvider(PAAPIConfig{
		AccessKey:  cfg.AccessKey,
		SecretKey:  cfg.SecretKey,
		PartnerTag: cfg.PartnerTag,
		Host:       cfg.Host,
		Region:     cfg.Region,
	})
}

type paapiResponse struct {
	ItemsResult struct {
		Items []struct {
			Offers struct {
				Listings []struct {
					Price struct {
						Amount *float64 `json:"Amount"`
					} `json:"Price"`
				} `json:"Listings"`
			} `json:"Offers"`
		} `json:"Items"`
	} `json:"ItemsResult"`
}

// GetPrice fetches the first listed offer price for the ASIN. Any
// failure — transport, auth, missing offers — yields an unknown price;
// pricing is best-effort enrichment, never a hard dependency.
func (p *PAAPIProvider) GetPrice(ctx context.Context, productID string) (*float64, error) {
	payload := map[string]interface{}{
		"ItemIds":     []string{productID},
		"PartnerTag":  p.config.PartnerTag,
		"PartnerType": "Associates",
		"Marketplace": "www.amazon.com",
		"Resources":   []string{"Offers.Listings.Price"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil
	}

	url := fmt.Sprintf("https://%s/paapi5/getitems", p.config.Host)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, nil
	}
	for k, v := range p.signedHeaders(string(body)) {
		req.Header.Set(k, v)
	}

	logging.PricingDebug("PAAPI GetItems: asin=%s", productID)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		logging.PricingDebug("PAAPI request failed: %v", err)
		return nil, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		logging.PricingDebug("PAAPI status=%d err=%v", resp.StatusCode, err)
		return nil, nil
	}

	var parsed paapiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, nil
	}
	items := parsed.ItemsResult.Items
	if len(items) == 0 || len(items[0].Offers.Listings) == 0 {
		return nil, nil
	}
	price := items[0].Offers.Listings[0].Price.Amount
	if price != nil {
		logging.PricingDebug("PAAPI price: asin=%s amount=%.2f", productID, *price)
	}
	return price, nil
}

const (
	paapiService = "ProductAdvertisingAPI"
	paapiTarget  = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.GetItems"
	contentType  = "application/json; charset=utf-8"
)

// signedHeaders builds the AWS SigV4 headers for one GetItems request.
func (p *PAAPIProvider) signedHeaders(payload string) map[string]string {
	now := p.now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	signedHeaderList := "content-type;host;x-amz-date;x-amz-target"
	canonicalHeaders := fmt.Sprintf("content-type:%s\nhost:%s\nx-amz-date:%s\nx-amz-target:%s\n",
		contentType, p.config.Host, amzDate, paapiTarget)
	payloadHash := sha256Hex([]byte(payload))
	canonicalRequest := fmt.Sprintf("POST\n/paapi5/getitems\n\n%s\n%s\n%s",
		canonicalHeaders, signedHeaderList, payloadHash)

	algorithm := "AWS4-HMAC-SHA256"
	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, p.config.Region, paapiService)
	stringToSign := fmt.Sprintf("%s\n%s\n%s\n%s",
		algorithm, amzDate, credentialScope, sha256Hex([]byte(canonicalRequest)))

	signingKey := p.signatureKey(dateStamp)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	authorization := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, p.config.AccessKey, credentialScope, signedHeaderList, signature)

	return map[string]string{
		"Content-Type":  contentType,
		"X-Amz-Date":    amzDate,
		"X-Amz-Target":  paapiTarget,
		"Authorization": authorization,
		"Host":          p.config.Host,
	}
}

func (p *PAAPIProvider) signatureKey(dateStamp string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+p.config.SecretKey), dateStamp)
	kRegion := hmacSHA256(kDate, p.config.Region)
	kService := hmacSHA256(kRegion, paapiService)
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

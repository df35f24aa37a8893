package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestSignedHeadersShape(t *testing.T) {
	p := NewPAAPIProvider(PAAPIConfig{
		AccessKey:  "AKIDEXAMPLE",
		SecretKey:  "secret",
		PartnerTag: "tag-20",
	})
	p.now = func() time.Time {
		return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	}

	headers := p.signedHeaders(`{"ItemIds":["B08N5WRWNW"]}`)

	if headers["X-Amz-Date"] != "20260825T120000Z" {
		t.Errorf("X-Amz-Date = %q", headers["X-Amz-Date"])
	}
	auth := headers["Authorization"]
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260825/us-east-1/ProductAdvertisingAPI/aws4_request") {
		t.Errorf("unexpected credential scope: %q", auth)
	}
	if !strings.Contains(auth, "SignedHeaders=content-type;host;x-amz-date;x-amz-target") {
		t.Errorf("signed header list missing: %q", auth)
	}
	if !strings.Contains(auth, "Signature=") {
		t.Errorf("signature missing: %q", auth)
	}
}

func TestSigningIsDeterministic(t *testing.T) {
	p := NewPAAPIProvider(PAAPIConfig{AccessKey: "k", SecretKey: "s", PartnerTag: "t"})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	a := p.signedHeaders("payload")["Authorization"]
	b := p.signedHeaders("payload")["Authorization"]
	if a != b {
		t.Error("same payload and time must produce the same signature")
	}
	c := p.signedHeaders("other payload")["Authorization"]
	if a == c {
		t.Error("different payloads must produce different signatures")
	}
}

func TestGetPriceParsesOffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Error("request is not signed")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ItemsResult": map[string]interface{}{
				"Items": []map[string]interface{}{
					{"Offers": map[string]interface{}{
						"Listings": []map[string]interface{}{
							{"Price": map[string]interface{}{"Amount": 129.99}},
						},
					}},
				},
			},
		})
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	p := NewPAAPIProvider(PAAPIConfig{AccessKey: "k", SecretKey: "s", PartnerTag: "t", Host: u.Host})
	// Point the client at the plain-HTTP test server.
	p.httpClient = srv.Client()
	p.httpClient.Transport = rewriteToHTTP{base: srv.Client().Transport}

	price, err := p.GetPrice(context.Background(), "B08N5WRWNW")
	if err != nil {
		t.Fatalf("GetPrice returned error: %v", err)
	}
	if price == nil || *price != 129.99 {
		t.Fatalf("price = %v", price)
	}
}

func TestGetPriceUnknownOnFailure(t *testing.T) {
	p := NewPAAPIProvider(PAAPIConfig{AccessKey: "k", SecretKey: "s", PartnerTag: "t", Host: "localhost:1"})
	p.httpClient.Timeout = 200 * time.Millisecond

	price, err := p.GetPrice(context.Background(), "B08N5WRWNW")
	if err != nil {
		t.Fatalf("failures must map to unknown price, got err %v", err)
	}
	if price != nil {
		t.Fatalf("expected unknown price, got %v", *price)
	}
}

// rewriteToHTTP downgrades request URLs to http for httptest servers.
type rewriteToHTTP struct{ base http.RoundTripper }

func (rt rewriteToHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	base := rt.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

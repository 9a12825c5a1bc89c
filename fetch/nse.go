// Package fetch talks to the NSE JSON endpoint directly, the alternative
// to driving a full browser. The site gates its API behind cookies issued
// on regular page loads and fingerprints the TLS handshake, so the client
// warms up a session first and presents a Chrome-like ClientHello.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/time/rate"

	"github.com/nsepulse/fiidii/models"
)

const (
	defaultBase = "https://www.nseindia.com"
	tradePath   = "/api/fiidiiTradeNse"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only. Computed once at init time and reused per connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Strip h2 from ALPN so the server never negotiates HTTP/2, which
	// Go's http.Transport cannot frame over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NseClient fetches the FII/DII trade data from the JSON API.
type NseClient struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
}

// NewNseClient builds a client with a fresh cookie jar and a Chrome-like
// TLS fingerprint. Warm-up requests are paced so the session acquisition
// does not look like a burst.
func NewNseClient() (*NseClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: cookie jar: %w", err)
	}
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("fetch: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return &NseClient{
		base: defaultBase,
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(1500*time.Millisecond), 1),
	}, nil
}

// SetBase overrides the API origin. Used by tests.
func (c *NseClient) SetBase(base string) {
	c.base = base
	c.client.Transport = nil
}

// TradeData warms up the session cookies and fetches the trade entries.
// One retry with a short backoff covers the occasional stale-session 401.
func (c *NseClient) TradeData(ctx context.Context) ([]models.TradeEntry, error) {
	if err := c.warmUp(ctx); err != nil {
		return nil, err
	}

	entries, err := c.fetchTrades(ctx)
	if err == nil {
		return entries, nil
	}

	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if werr := c.warmUp(ctx); werr != nil {
		return nil, werr
	}
	entries, rerr := c.fetchTrades(ctx)
	if rerr != nil {
		return nil, fmt.Errorf("fetch: trade data after retry: %w (first attempt: %v)", rerr, err)
	}
	return entries, nil
}

// warmUp visits the pages a browser would load before the API call, so
// the server issues the session cookies the endpoint requires.
func (c *NseClient) warmUp(ctx context.Context) error {
	for _, path := range []string{"/", "/market-data"} {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.touch(ctx, path); err != nil {
			return fmt.Errorf("fetch: warm-up %s: %w", path, err)
		}
	}
	return nil
}

func (c *NseClient) touch(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	c.browserHeaders(req, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (c *NseClient) fetchTrades(ctx context.Context) ([]models.TradeEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+tradePath, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	c.browserHeaders(req, "application/json, text/plain, */*")
	req.Header.Set("Referer", c.base+"/reports/fii-dii")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d from %s", resp.StatusCode, tradePath)
	}

	const maxBody = 1 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	var entries []models.TradeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("fetch: decode trade data: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("fetch: endpoint returned no entries")
	}
	return entries, nil
}

func (c *NseClient) browserHeaders(req *http.Request, accept string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeDesktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneSafariUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	androidChromeUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
)

func TestContextExtractor_DesktopBrowser(t *testing.T) {
	e := NewContextExtractor(nil, nil)

	reqCtx := e.Extract(context.Background(), RequestInput{
		IP:             "203.0.113.5",
		UserAgent:      chromeDesktopUA,
		AcceptLanguage: "en-US,en;q=0.9",
		Referrer:       "https://news.ycombinator.com/",
	})

	assert.Equal(t, "chrome", reqCtx.Browser)
	assert.Equal(t, "windows", reqCtx.OS)
	assert.Equal(t, "desktop", reqCtx.DeviceType)
	assert.False(t, reqCtx.Mobile)
	assert.Equal(t, "en", reqCtx.Language)
	assert.Equal(t, "https://news.ycombinator.com/", reqCtx.Referrer)
	assert.Empty(t, reqCtx.Country, "no resolver means no country")
}

func TestContextExtractor_MobileDevices(t *testing.T) {
	e := NewContextExtractor(nil, nil)

	iphone := e.Extract(context.Background(), RequestInput{UserAgent: iphoneSafariUA})
	assert.True(t, iphone.Mobile)
	assert.Equal(t, "mobile", iphone.DeviceType)
	assert.Equal(t, "ios", iphone.OS)

	android := e.Extract(context.Background(), RequestInput{UserAgent: androidChromeUA})
	assert.True(t, android.Mobile)
	assert.Equal(t, "mobile", android.DeviceType)
	assert.Equal(t, "android", android.OS)
	assert.Equal(t, "chrome", android.Browser)
}

func TestContextExtractor_EmptyAgentDegrades(t *testing.T) {
	e := NewContextExtractor(nil, nil)

	reqCtx := e.Extract(context.Background(), RequestInput{})
	assert.Equal(t, "desktop", reqCtx.DeviceType)
	assert.False(t, reqCtx.Mobile)
	assert.Empty(t, reqCtx.Language)
	assert.False(t, reqCtx.Now.IsZero())
}

func TestPrimaryLanguage(t *testing.T) {
	cases := map[string]string{
		"en-US,en;q=0.9":       "en",
		"de":                   "de",
		"fr-FR":                "fr",
		"ja,en-US;q=0.8":       "ja",
		"":                     "",
		"PT-BR,pt;q=0.9":       "pt",
	}
	for header, want := range cases {
		assert.Equal(t, want, primaryLanguage(header), "header %q", header)
	}
}

func TestGeoResolver_CachesLookups(t *testing.T) {
	rdb := newTestRedis(t)
	resolver := NewGeoResolver(rdb, "", nil)
	ctx := context.Background()

	// No database configured: lookups degrade to Unknown and the
	// result is still cached.
	assert.Equal(t, CountryUnknown, resolver.Country(ctx, "203.0.113.5"))

	cached, err := rdb.Get(ctx, "ip_country:203.0.113.5").Result()
	assert.NoError(t, err)
	assert.Equal(t, CountryUnknown, cached)

	// A pre-seeded cache entry wins over the lookup path.
	rdb.Set(ctx, "ip_country:198.51.100.7", "DE", 0)
	assert.Equal(t, "DE", resolver.Country(ctx, "198.51.100.7"))
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"
)

// ContextExtractor builds the transport-free RequestContext used by the
// rule engine and the analytics path.
type ContextExtractor struct {
	geo    *GeoResolver
	logger *zap.Logger
}

// NewContextExtractor creates an extractor with the given resolver.
func NewContextExtractor(geo *GeoResolver, logger *zap.Logger) *ContextExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextExtractor{geo: geo, logger: logger}
}

// RequestInput carries the raw header values resolved at the HTTP edge.
type RequestInput struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
	Referrer       string
}

var mobileDeviceFamilies = map[string]bool{
	"iphone":  true,
	"android": true,
	"ipad":    true,
}

// Extract is a pure function of the request input plus the country
// cache; it never fails, degrading fields to their zero values instead.
func (e *ContextExtractor) Extract(ctx context.Context, in RequestInput) model.RequestContext {
	ua := useragent.Parse(in.UserAgent)

	device := strings.ToLower(ua.Device)
	mobile := ua.Mobile || mobileDeviceFamilies[device]
	deviceType := "desktop"
	if mobile {
		deviceType = "mobile"
	}

	country := ""
	if e.geo != nil {
		if resolved := e.geo.Country(ctx, in.IP); resolved != CountryUnknown {
			country = strings.ToUpper(resolved)
		}
	}

	return model.RequestContext{
		IP:         in.IP,
		UserAgent:  in.UserAgent,
		Referrer:   in.Referrer,
		Language:   primaryLanguage(in.AcceptLanguage),
		Country:    country,
		Browser:    browserFamily(ua),
		OS:         osFamily(ua),
		DeviceType: deviceType,
		Mobile:     mobile,
		Tablet:     ua.Tablet,
		Now:        time.Now().UTC(),
	}
}

// primaryLanguage reduces "en-US,en;q=0.9" to "en".
func primaryLanguage(acceptLanguage string) string {
	if acceptLanguage == "" {
		return ""
	}
	primary := strings.SplitN(acceptLanguage, ",", 2)[0]
	primary = strings.SplitN(primary, ";", 2)[0]
	primary = strings.SplitN(primary, "-", 2)[0]
	return strings.ToLower(strings.TrimSpace(primary))
}

func browserFamily(ua useragent.UserAgent) string {
	switch ua.Name {
	case useragent.Chrome:
		return "chrome"
	case useragent.Firefox:
		return "firefox"
	case useragent.Safari:
		return "safari"
	case useragent.Edge:
		return "edge"
	case useragent.Opera, useragent.OperaMini, useragent.OperaTouch:
		return "opera"
	case useragent.InternetExplorer:
		return "ie"
	default:
		return strings.ToLower(ua.Name)
	}
}

func osFamily(ua useragent.UserAgent) string {
	switch ua.OS {
	case useragent.Windows:
		return "windows"
	case useragent.MacOS:
		return "macos"
	case useragent.Linux:
		return "linux"
	case useragent.Android:
		return "android"
	case useragent.IOS:
		return "ios"
	default:
		return strings.ToLower(ua.OS)
	}
}

//
//  internal/requestinfo/requestinfo.go
//
//  Visitor metadata: user-agent fingerprint, client IP, geolocation, and
//  the time of the visit.  These structs are inert.  They hold no handles
//  or large buffers, so they are safe to log or JSON-encode.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup, optional)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	surfer "github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// UA holds the parsed user-agent properties.
type UA struct {
	Raw         string `json:"-"`
	Browser     string `json:"browser,omitempty"`
	Version     string `json:"version,omitempty"`
	OS          string `json:"os,omitempty"`
	OSVersion   string `json:"osVersion,omitempty"`
	Device      string `json:"device,omitempty"`
	IsBot       bool   `json:"isBot"`
	PrimaryLang string `json:"lang,omitempty"`
}

// Geo holds IP-based geolocation hints.  Empty when no database is
// configured or the address has no match.
type Geo struct {
	CountryISO string `json:"country,omitempty"`
	City       string `json:"city,omitempty"`
}

// Visitor describes one tracked page visit.
type Visitor struct {
	IP         string    `json:"ip"`
	UserAgent  string    `json:"userAgent"`
	UA         UA        `json:"ua"`
	Geo        Geo       `json:"geo"`
	Timestamp  string    `json:"timestamp"`
	AccessTime time.Time `json:"accessTime"`
}

// Line renders the chat notification for v.
func (v Visitor) Line() string {
	device := v.UserAgent
	if v.UA.Browser != "" {
		device = fmt.Sprintf("%s on %s (%s)", v.UA.Browser, v.UA.OS, v.UA.Device)
	}
	if len(device) > 50 {
		device = device[:50] + "..."
	}
	var b strings.Builder
	b.WriteString("🚨 New visitor detected!\n")
	b.WriteString("⏰ Time: " + v.AccessTime.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("🌐 IP: " + v.IP)
	if v.Geo.CountryISO != "" {
		b.WriteString(" (" + strings.TrimPrefix(v.Geo.City+", ", ", ") + v.Geo.CountryISO + ")")
	}
	b.WriteString("\n📱 Device: " + device)
	return b.String()
}

//
//  -----------------------------
//  Resolver
//  -----------------------------
//

// Resolver builds Visitor values.  The zero value works without geo data.
// Safe for concurrent use; the MaxMind reader only serves reads.
type Resolver struct {
	geo *geoip2.Reader
	now func() time.Time
}

// NewResolver opens the GeoLite2-City database at dbPath.  An empty path
// yields a resolver without geolocation.
func NewResolver(dbPath string) (*Resolver, error) {
	r := &Resolver{now: time.Now}
	if dbPath == "" {
		return r, nil
	}
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	r.geo = db
	return r, nil
}

// Close releases the geo database.
func (r *Resolver) Close() error {
	if r.geo == nil {
		return nil
	}
	return r.geo.Close()
}

// Describe assembles a Visitor.  ip may be empty ("unknown").
func (r *Resolver) Describe(ip, uaHeader, acceptLang, timestamp string) Visitor {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	at := now().UTC()
	if ip == "" {
		ip = "unknown"
	}
	if timestamp == "" {
		timestamp = at.Format(time.RFC3339)
	}
	ua := uaHeader
	if ua == "" {
		ua = "unknown"
	}
	return Visitor{
		IP:         ip,
		UserAgent:  ua,
		UA:         parseUA(uaHeader, acceptLang),
		Geo:        r.lookupGeo(net.ParseIP(ip)),
		Timestamp:  timestamp,
		AccessTime: at,
	}
}

//
//  -----------------------------
//  Context helpers
//  -----------------------------
//

type ctxKey struct{} // unexported, collision-proof

// FromContext returns the Visitor stored by Enrich, or nil.
func FromContext(ctx context.Context) *Visitor {
	v, _ := ctx.Value(ctxKey{}).(*Visitor)
	return v
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// parseUA converts a raw header into our UA struct using uasurfer.
func parseUA(raw, acceptLang string) UA {
	if raw == "" {
		return UA{PrimaryLang: primaryLang(acceptLang)}
	}
	u := surfer.Parse(raw)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}
	return UA{
		Raw:         raw,
		Browser:     strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:     versionToString(u.Browser.Version),
		OS:          osName,
		OSVersion:   versionToString(u.OS.Version),
		Device:      deviceName(u.DeviceType),
		IsBot:       u.IsBot(),
		PrimaryLang: primaryLang(acceptLang),
	}
}

// versionToString trims trailing zeros: 17.0.0 → "17", 17.3.1 → "17.3.1".
func versionToString(v surfer.Version) string {
	if v.Major == 0 && v.Minor == 0 && v.Patch == 0 {
		return ""
	}
	if v.Patch != 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	if v.Minor != 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(int(v.Major))
}

func deviceName(dt surfer.DeviceType) string {
	switch dt {
	case surfer.DeviceComputer:
		return "Desktop"
	case surfer.DeviceTablet:
		return "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		return "Mobile"
	case surfer.DeviceTV:
		return "TV"
	default:
		return "Other"
	}
}

// primaryLang extracts the first language subtag before any ";q=" rule.
func primaryLang(al string) string {
	if al == "" {
		return ""
	}
	tag := strings.TrimSpace(strings.Split(al, ",")[0])
	if i := strings.Index(tag, ";"); i != -1 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

func (r *Resolver) lookupGeo(ip net.IP) Geo {
	if r.geo == nil || ip == nil {
		return Geo{}
	}
	rec, err := r.geo.City(ip)
	if err != nil {
		return Geo{}
	}
	return Geo{CountryISO: rec.Country.IsoCode, City: rec.City.Names["en"]}
}

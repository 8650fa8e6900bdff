package drift

import (
	"regexp"
	"strconv"
)

// Browser is the family and major version parsed from a user-agent string.
type Browser struct {
	Family string
	Major  int
}

// Order matters: Edge and Opera also carry a Chrome token, and Chrome carries a Safari token.
var uaPatterns = []struct {
	family string
	re     *regexp.Regexp
}{
	{"edge", regexp.MustCompile(`Edg(?:e|A|iOS)?/(\d+)`)},
	{"opera", regexp.MustCompile(`(?:OPR|Opera)/(\d+)`)},
	{"firefox", regexp.MustCompile(`(?:Firefox|FxiOS)/(\d+)`)},
	{"chrome", regexp.MustCompile(`(?:Chrome|CriOS|Chromium)/(\d+)`)},
	{"safari", regexp.MustCompile(`Version/(\d+)[\d.]* (?:Mobile/\S+ )?Safari/`)},
}

// ParseUserAgent returns the browser family and major version, or ok=false when unrecognized.
func ParseUserAgent(ua string) (Browser, bool) {
	for _, p := range uaPatterns {
		m := p.re.FindStringSubmatch(ua)
		if m == nil {
			continue
		}
		major, err := strconv.Atoi(m[1])
		if err != nil {
			return Browser{}, false
		}
		return Browser{Family: p.family, Major: major}, true
	}
	return Browser{}, false
}

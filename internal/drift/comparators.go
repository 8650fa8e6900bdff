package drift

import (
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"zero-trust-session-core/internal/drift/domain"
)

// Component is one weighted entry of the comparison table. Value renders the
// component for the diff list; Match decides whether the new value is accepted.
type Component struct {
	Name   string
	Weight float64
	Value  func(fp *domain.Fingerprint) string
	Match  func(old, cur *domain.Fingerprint) bool
}

const (
	maxUserAgentMajorDelta = 2
	pluginsThreshold       = 0.8
	fontsThreshold         = 0.9
	canvasThreshold        = 0.95
)

// DefaultComponents returns the ten standard components. Weights sum to 100.
func DefaultComponents() []Component {
	return []Component{
		Exact("platform", 15, func(fp *domain.Fingerprint) string { return fp.Platform }),
		Exact("screenWidth", 15, func(fp *domain.Fingerprint) string { return strconv.Itoa(fp.ScreenWidth) }),
		Exact("screenHeight", 15, func(fp *domain.Fingerprint) string { return strconv.Itoa(fp.ScreenHeight) }),
		UserAgent("userAgent", 10, maxUserAgentMajorDelta),
		Exact("gpuRenderer", 10, func(fp *domain.Fingerprint) string { return fp.GPURenderer }),
		Exact("gpuVendor", 5, func(fp *domain.Fingerprint) string { return fp.GPUVendor }),
		Canvas("canvasHash", 10, canvasThreshold),
		Exact("timezone", 5, func(fp *domain.Fingerprint) string { return fp.Timezone }),
		Jaccard("plugins", 5, pluginsThreshold, func(fp *domain.Fingerprint) []string { return fp.Plugins }),
		Jaccard("fonts", 10, fontsThreshold, func(fp *domain.Fingerprint) []string { return fp.Fonts }),
	}
}

// Exact accepts only identical values.
func Exact(name string, weight float64, get func(*domain.Fingerprint) string) Component {
	return Component{
		Name:   name,
		Weight: weight,
		Value:  get,
		Match:  func(old, cur *domain.Fingerprint) bool { return get(old) == get(cur) },
	}
}

// UserAgent accepts the same browser family within maxDelta major versions.
// Unparseable agents must match exactly.
func UserAgent(name string, weight float64, maxDelta int) Component {
	return Component{
		Name:   name,
		Weight: weight,
		Value:  func(fp *domain.Fingerprint) string { return fp.UserAgent },
		Match: func(old, cur *domain.Fingerprint) bool {
			if old.UserAgent == cur.UserAgent {
				return true
			}
			a, okA := ParseUserAgent(old.UserAgent)
			b, okB := ParseUserAgent(cur.UserAgent)
			if !okA || !okB || a.Family != b.Family {
				return false
			}
			d := a.Major - b.Major
			if d < 0 {
				d = -d
			}
			return d <= maxDelta
		},
	}
}

// Jaccard accepts when the set similarity of the two lists reaches threshold.
func Jaccard(name string, weight, threshold float64, get func(*domain.Fingerprint) []string) Component {
	return Component{
		Name:   name,
		Weight: weight,
		Value:  func(fp *domain.Fingerprint) string { return strings.Join(get(fp), ",") },
		Match: func(old, cur *domain.Fingerprint) bool {
			return JaccardSimilarity(get(old), get(cur)) >= threshold
		},
	}
}

// Canvas accepts equal hashes or hashes within a normalized edit distance.
func Canvas(name string, weight, threshold float64) Component {
	return Component{
		Name:   name,
		Weight: weight,
		Value:  func(fp *domain.Fingerprint) string { return fp.CanvasHash },
		Match: func(old, cur *domain.Fingerprint) bool {
			return EditSimilarity(old.CanvasHash, cur.CanvasHash) >= threshold
		},
	}
}

// JaccardSimilarity is |A∩B| / |A∪B| over trimmed, de-duplicated entries. Two empty lists are identical.
func JaccardSimilarity(a, b []string) float64 {
	sa, sb := toSet(a), toSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for k := range sa {
		if _, ok := sb[k]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// EditSimilarity is 1 - levenshtein(a, b) / max(len(a), len(b)), measured in runes.
func EditSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if la == 0 || lb == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func toSet(list []string) map[string]struct{} {
	s := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

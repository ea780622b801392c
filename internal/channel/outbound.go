package channel

import (
	"strings"
	"unicode"
)

// DefaultTextLimit is the rune limit used when an adapter sets none.
const DefaultTextLimit = 2000

// OutboundPolicy describes platform limits for one reply. Images are always
// sent before the text.
type OutboundPolicy struct {
	TextLimit int `json:"text_limit,omitempty"`
	MaxImages int `json:"max_images,omitempty"`
}

// NormalizeOutboundPolicy fills unset limits.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.TextLimit <= 0 {
		policy.TextLimit = DefaultTextLimit
	}
	return policy
}

// Chunks splits text into messages that fit the platform limit.
func (p OutboundPolicy) Chunks(text string) []string {
	return SplitText(text, NormalizeOutboundPolicy(p).TextLimit)
}

// LimitImages keeps the first MaxImages images. Zero means no cap.
func (p OutboundPolicy) LimitImages(images []string) []string {
	if p.MaxImages > 0 && len(images) > p.MaxImages {
		return images[:p.MaxImages]
	}
	return images
}

// SplitText packs whole lines into pieces of at most limit runes. A line
// longer than limit is broken at the last space that fits, or hard cut when
// it has none.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || runeLen(text) <= limit {
		return []string{text}
	}

	var (
		out   []string
		cur   []rune
		flush = func() {
			if s := strings.TrimSpace(string(cur)); s != "" {
				out = append(out, s)
			}
			cur = cur[:0]
		}
	)
	for _, line := range strings.Split(text, "\n") {
		r := []rune(line)
		if len(cur) > 0 && len(cur)+1+len(r) > limit {
			flush()
		}
		for len(r) > limit {
			flush()
			cut := breakAt(r, limit)
			if s := strings.TrimSpace(string(r[:cut])); s != "" {
				out = append(out, s)
			}
			r = []rune(strings.TrimLeftFunc(string(r[cut:]), unicode.IsSpace))
		}
		if len(cur) > 0 {
			cur = append(cur, '\n')
		}
		cur = append(cur, r...)
	}
	flush()
	return out
}

// breakAt returns the cut index for r, preferring the last space within limit.
func breakAt(r []rune, limit int) int {
	for i := limit; i > limit/2; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return limit
}

func runeLen(s string) int {
	return len([]rune(s))
}

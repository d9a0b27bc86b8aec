package admission

import (
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/elliotchance/pie/v2"
)

const (
	maxLinks         = 2
	capsRatioLimit   = 0.7
	capsMinLength    = 10
	imperfectionOdds = 0.1
)

var spamPatterns = []string{
	"buy now", "limited offer", "click this link", "urgent", "act now",
	"free money", "guaranteed", "no risk", "limited time", "exclusive deal",
}

var promotionalReplacer = strings.NewReplacer(
	"Buy now", "Consider purchasing",
	"Click here", "You can check",
	"Limited time", "For a while",
)

var contractionReplacer = strings.NewReplacer(
	"I am", "I'm",
	"you are", "you're",
	"cannot", "can't",
)

// CheckSpam reports whether a message looks like spam and which pattern
// matched. Spam does not opt the user out; the caller substitutes a fixed
// deflection reply.
func (s *Service) CheckSpam(message string) (bool, string) {
	if s.cfg.AntiBan.Disabled {
		return false, ""
	}

	lower := strings.ToLower(message)

	index := pie.FindFirstUsing(spamPatterns, func(pattern string) bool {
		return strings.Contains(lower, pattern)
	})
	if index >= 0 {
		return true, spamPatterns[index]
	}

	links := strings.Count(lower, "http://") + strings.Count(lower, "https://")
	if links > maxLinks {
		return true, "excessive_links"
	}

	if total := utf8.RuneCountInString(message); total > capsMinLength {
		upper := 0
		for _, r := range message {
			if unicode.IsUpper(r) {
				upper++
			}
		}

		if float64(upper)/float64(total) > capsRatioLimit {
			return true, "excessive_caps"
		}
	}

	return false, ""
}

// Sanitize softens promotional phrasing in an outbound reply and
// occasionally adds contractions so replies read less templated.
func (s *Service) Sanitize(reply string) string {
	if s.cfg.AntiBan.Disabled {
		return reply
	}

	reply = promotionalReplacer.Replace(reply)

	if rand.Float64() < imperfectionOdds {
		reply = contractionReplacer.Replace(reply)
	}

	return reply
}

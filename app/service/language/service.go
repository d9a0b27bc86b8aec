package language

import (
	"chatgate/app/config"
	"log/slog"
	"strings"

	"github.com/pemistahl/lingua-go"
	"github.com/samber/do"
)

// Texts shorter than this are not informative enough for detection.
const minDetectableLength = 10

var knownLanguages = map[string]lingua.Language{
	"english":    lingua.English,
	"romanian":   lingua.Romanian,
	"spanish":    lingua.Spanish,
	"french":     lingua.French,
	"german":     lingua.German,
	"italian":    lingua.Italian,
	"portuguese": lingua.Portuguese,
	"russian":    lingua.Russian,
}

type Service struct {
	cfg      *config.Config
	detector lingua.LanguageDetector
}

func New(di *do.Injector) (*Service, error) {
	return NewService(do.MustInvoke[*config.Config](di)), nil
}

func NewService(cfg *config.Config) *Service {
	languages := make([]lingua.Language, 0, len(cfg.Language.Supported))

	for _, name := range cfg.Language.Supported {
		lang, ok := knownLanguages[strings.ToLower(name)]
		if !ok {
			slog.Warn("Unsupported language in config, skipping", "language", name)
			continue
		}

		languages = append(languages, lang)
	}

	if len(languages) < 2 {
		// lingua needs at least two candidates to discriminate between
		languages = []lingua.Language{lingua.English, lingua.Romanian}
	}

	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()

	return &Service{
		cfg:      cfg,
		detector: detector,
	}
}

// Detect returns the lowercase language name of the text, or the configured
// default when detection is disabled, the text is too short, or the result
// is ambiguous.
func (s *Service) Detect(text string) string {
	fallback := s.cfg.Language.Default

	if !s.cfg.Language.DetectionEnabled {
		return fallback
	}

	if len(strings.TrimSpace(text)) < minDetectableLength {
		slog.Debug("Text too short for reliable detection", "default", fallback)
		return fallback
	}

	detected, ok := s.detector.DetectLanguageOf(text)
	if !ok {
		return fallback
	}

	name := strings.ToLower(detected.String())

	for _, supported := range s.cfg.Language.Supported {
		if strings.EqualFold(supported, name) {
			return name
		}
	}

	slog.Warn("Detected language not supported, falling back",
		"language", name,
		"default", fallback,
	)

	return fallback
}

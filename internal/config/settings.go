package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/JakeFAU/article-pipeline/internal/text"
)

// ErrUnknownOption is wrapped by NewSettings when the option map names a
// field Settings does not have.
var ErrUnknownOption = errors.New("unknown option")

// Settings is the per-article option bundle. Every field has a mapstructure
// name, and only those names are accepted by NewSettings.
type Settings struct {
	Language          string `mapstructure:"language" validate:"language"`
	FollowMetaRefresh bool   `mapstructure:"follow_meta_refresh"`
	UseMetaLanguage   bool   `mapstructure:"use_meta_language"`
	HTTPSuccessOnly   bool   `mapstructure:"http_success_only"`
	UseCanonicalLink  bool   `mapstructure:"use_canonical_link"`
	FetchImages       bool   `mapstructure:"fetch_images"`
	ExtractTables     bool   `mapstructure:"extract_tables"`
	RenderJavaScript  bool   `mapstructure:"render_javascript"`

	RequestTimeout time.Duration     `mapstructure:"request_timeout" validate:"gt=0"`
	UserAgent      string            `mapstructure:"user_agent" validate:"required"`
	Proxy          string            `mapstructure:"proxy" validate:"omitempty,url"`
	Headers        map[string]string `mapstructure:"headers"`
	MaxBodyBytes   int64             `mapstructure:"max_body_bytes" validate:"gte=0"`

	MaxTitleLen         int `mapstructure:"max_title_len" validate:"gt=0"`
	MaxTextLen          int `mapstructure:"max_text_len" validate:"gt=0"`
	MaxAuthors          int `mapstructure:"max_authors" validate:"gt=0"`
	MaxKeywords         int `mapstructure:"max_keywords" validate:"gt=0"`
	MaxSummaryLen       int `mapstructure:"max_summary_len" validate:"gt=0"`
	MaxSummarySentences int `mapstructure:"max_summary_sentences" validate:"gt=0"`
	MinWordCount        int `mapstructure:"min_word_count" validate:"gte=0"`
	MinSentenceCount    int `mapstructure:"min_sentence_count" validate:"gte=0"`
	MaxDedupEntries     int `mapstructure:"max_dedup_entries" validate:"gt=0"`

	// IgnoredContentTypes maps a response content type to the placeholder
	// text returned instead of the body.
	IgnoredContentTypes map[string]string `mapstructure:"ignored_content_types"`

	MinImageWidth  int     `mapstructure:"min_image_width" validate:"gte=0"`
	MinImageHeight int     `mapstructure:"min_image_height" validate:"gte=0"`
	MaxImageAspect float64 `mapstructure:"max_image_aspect" validate:"gte=0"`

	MinScore            float64 `mapstructure:"min_score" validate:"gte=0"`
	MinStopwordRatio    float64 `mapstructure:"min_stopword_ratio" validate:"gte=0,lte=1"`
	MaxLinkDensity      float64 `mapstructure:"max_link_density" validate:"gte=0,lte=1"`
	ParentDamping       float64 `mapstructure:"parent_damping" validate:"gte=0,lte=1"`
	LinkDensityPenalty  float64 `mapstructure:"link_density_penalty" validate:"gte=0"`
	PositiveHintBonus   float64 `mapstructure:"positive_hint_bonus" validate:"gte=0"`
	NegativeHintPenalty float64 `mapstructure:"negative_hint_penalty" validate:"gte=0,lte=1"`
	MinTextDensity      float64 `mapstructure:"min_text_density" validate:"gte=0"`

	CleanerDenylist []string `mapstructure:"cleaner_denylist"`
}

// DefaultCleanerDenylist lists class/id/name substrings of boilerplate containers.
var DefaultCleanerDenylist = []string{
	"advert", "adsbygoogle", "sponsor", "promo", "banner",
	"caption", "social", "share", "sharing", "related", "recommend",
	"newsletter", "subscribe", "signup", "cookie", "consent",
	"comment", "footer", "breadcrumb", "sidebar", "widget",
	"popup", "modal", "outbrain", "taboola", "disqus",
	"skip-link", "screen-reader", "print-only", "author-bio",
	"tags-list", "pagination", "masthead", "site-header", "nav-menu",
}

// DefaultSettings returns the settings used when no option overrides them.
func DefaultSettings() Settings {
	return Settings{
		Language:          "en",
		FollowMetaRefresh: false,
		UseMetaLanguage:   true,
		HTTPSuccessOnly:   true,
		UseCanonicalLink:  false,
		FetchImages:       true,

		RequestTimeout: 7 * time.Second,
		UserAgent:      "article-pipeline/0.1 (+https://github.com/JakeFAU/article-pipeline)",
		Headers:        map[string]string{},
		MaxBodyBytes:   20 << 20,

		MaxTitleLen:         200,
		MaxTextLen:          100000,
		MaxAuthors:          10,
		MaxKeywords:         35,
		MaxSummaryLen:       5000,
		MaxSummarySentences: 5,
		MinWordCount:        300,
		MinSentenceCount:    7,
		MaxDedupEntries:     20000,

		IgnoredContentTypes: map[string]string{},

		MinImageWidth:  300,
		MinImageHeight: 200,
		MaxImageAspect: 4.0,

		MinScore:            5,
		MinStopwordRatio:    0.05,
		MaxLinkDensity:      0.4,
		ParentDamping:       0.5,
		LinkDensityPenalty:  1.0,
		PositiveHintBonus:   0.5,
		NegativeHintPenalty: 0.5,
		MinTextDensity:      8,

		CleanerDenylist: append([]string(nil), DefaultCleanerDenylist...),
	}
}

// NewSettings applies opts over DefaultSettings. Keys must be Settings
// option names; durations accept Go duration strings or numbers of seconds.
func NewSettings(opts map[string]any) (Settings, error) {
	s := DefaultSettings()
	if err := s.Apply(opts); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Apply decodes opts onto s and validates the result. s is left unchanged
// when an error is returned.
func (s *Settings) Apply(opts map[string]any) error {
	next := s.Clone()
	if len(opts) > 0 {
		var md mapstructure.Metadata
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &next,
			Metadata:         &md,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				secondsToDurationHook,
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		})
		if err != nil {
			return fmt.Errorf("build settings decoder: %w", err)
		}
		if err := dec.Decode(opts); err != nil {
			return fmt.Errorf("decode settings: %w", err)
		}
		if len(md.Unused) > 0 {
			sort.Strings(md.Unused)
			return fmt.Errorf("%w: %s", ErrUnknownOption, strings.Join(md.Unused, ", "))
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

// Clone returns a deep copy so maps and slices are not shared.
func (s Settings) Clone() Settings {
	out := s
	out.Headers = cloneMap(s.Headers)
	out.IgnoredContentTypes = cloneMap(s.IgnoredContentTypes)
	out.CleanerDenylist = append([]string(nil), s.CleanerDenylist...)
	return out
}

// Validate checks ranges and the language code.
func (s Settings) Validate() error {
	if err := settingsValidator.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

var settingsValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("language", func(fl validator.FieldLevel) bool {
		return text.Supported(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}()

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook treats bare numbers as seconds, matching how the
// timeout is usually written in option maps.
func secondsToDurationHook(_, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
	}
	return data, nil
}

func cloneMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package language

import (
	"errors"
	"fmt"
	"strings"
)

// Profile binds a language tag to the locale used for recognition and the
// voice used for synthesis.
type Profile struct {
	Tag               string `json:"tag" yaml:"tag"`
	DisplayName       string `json:"display_name" yaml:"display_name"`
	RecognitionLocale string `json:"recognition_locale" yaml:"recognition_locale"`
	Voice             string `json:"voice" yaml:"voice"`
}

var ErrNoProfiles = errors.New("language table needs at least one profile")

// Table is a read-only set of profiles. The first profile is the default.
type Table struct {
	order    []string
	profiles map[string]Profile
}

func NewTable(profiles ...Profile) (*Table, error) {
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}
	t := &Table{
		order:    make([]string, 0, len(profiles)),
		profiles: make(map[string]Profile, len(profiles)),
	}
	for _, p := range profiles {
		p.Tag = strings.TrimSpace(p.Tag)
		if p.Tag == "" {
			return nil, fmt.Errorf("language profile %q: empty tag", p.DisplayName)
		}
		key := normalize(p.Tag)
		if _, dup := t.profiles[key]; dup {
			return nil, fmt.Errorf("duplicate language tag %q", p.Tag)
		}
		if strings.TrimSpace(p.RecognitionLocale) == "" {
			p.RecognitionLocale = p.Tag
		}
		if strings.TrimSpace(p.DisplayName) == "" {
			p.DisplayName = p.Tag
		}
		t.profiles[key] = p
		t.order = append(t.order, p.Tag)
	}
	return t, nil
}

// DefaultTable returns the built-in profiles with en-US as default.
func DefaultTable() *Table {
	t, err := NewTable(defaultProfiles...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup finds a profile by tag, ignoring case.
func (t *Table) Lookup(tag string) (Profile, bool) {
	p, ok := t.profiles[normalize(tag)]
	return p, ok
}

// List maps every tag to its display name.
func (t *Table) List() map[string]string {
	out := make(map[string]string, len(t.order))
	for _, tag := range t.order {
		out[tag] = t.profiles[normalize(tag)].DisplayName
	}
	return out
}

// Tags returns the tags in declaration order.
func (t *Table) Tags() []string {
	return append([]string(nil), t.order...)
}

func (t *Table) Default() Profile {
	return t.profiles[normalize(t.order[0])]
}

func normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

var defaultProfiles = []Profile{
	{Tag: "en-US", DisplayName: "English (US)", RecognitionLocale: "en-US", Voice: "en-US-JennyNeural"},
	{Tag: "en-GB", DisplayName: "English (UK)", RecognitionLocale: "en-GB", Voice: "en-GB-SoniaNeural"},
	{Tag: "es-ES", DisplayName: "Spanish (Spain)", RecognitionLocale: "es-ES", Voice: "es-ES-ElviraNeural"},
	{Tag: "fr-FR", DisplayName: "French (France)", RecognitionLocale: "fr-FR", Voice: "fr-FR-DeniseNeural"},
	{Tag: "de-DE", DisplayName: "German (Germany)", RecognitionLocale: "de-DE", Voice: "de-DE-KatjaNeural"},
	{Tag: "it-IT", DisplayName: "Italian (Italy)", RecognitionLocale: "it-IT", Voice: "it-IT-ElsaNeural"},
	{Tag: "pt-BR", DisplayName: "Portuguese (Brazil)", RecognitionLocale: "pt-BR", Voice: "pt-BR-FranciscaNeural"},
	{Tag: "ja-JP", DisplayName: "Japanese (Japan)", RecognitionLocale: "ja-JP", Voice: "ja-JP-NanamiNeural"},
	{Tag: "zh-CN", DisplayName: "Chinese (Mandarin)", RecognitionLocale: "zh-CN", Voice: "zh-CN-XiaoxiaoNeural"},
}

// Package i18n serves the interface strings in English, Hindi and Marathi.
package i18n

import (
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// SessionKey stores the chosen language on the session.
const SessionKey = "lang"

// Language is a selectable interface language.
type Language struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

type catalogFile struct {
	Default   string                       `yaml:"default"`
	Languages []Language                   `yaml:"languages"`
	Messages  map[string]map[string]string `yaml:"messages"`
}

// Catalog holds the message tables. Keys missing from a language fall
// back to the default language.
type Catalog struct {
	def       string
	languages []Language
	messages  map[string]map[string]string
	matcher   language.Matcher
}

// Load parses the catalog file name from fsys.
func Load(fsys fs.FS, name string) (*Catalog, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("i18n: read %s: %w", name, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("i18n: decode %s: %w", name, err)
	}
	return newCatalog(file)
}

func newCatalog(file catalogFile) (*Catalog, error) {
	if len(file.Languages) == 0 {
		return nil, errors.New("i18n: no languages defined")
	}
	base, ok := file.Messages[file.Default]
	if !ok {
		return nil, fmt.Errorf("i18n: default language %q has no messages", file.Default)
	}

	// The default goes first so the matcher falls back to it.
	ordered := []Language{}
	for _, l := range file.Languages {
		if l.Code == file.Default {
			ordered = append([]Language{l}, ordered...)
			continue
		}
		ordered = append(ordered, l)
	}
	tags := make([]language.Tag, 0, len(ordered))
	messages := make(map[string]map[string]string, len(ordered))
	for _, l := range ordered {
		tag, err := language.Parse(l.Code)
		if err != nil {
			return nil, fmt.Errorf("i18n: language %q: %w", l.Code, err)
		}
		tags = append(tags, tag)
		merged := make(map[string]string, len(base))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range file.Messages[l.Code] {
			merged[k] = v
		}
		messages[l.Code] = merged
	}
	return &Catalog{
		def:       file.Default,
		languages: file.Languages,
		messages:  messages,
		matcher:   language.NewMatcher(tags),
	}, nil
}

// Default returns the fallback language code.
func (c *Catalog) Default() string {
	return c.def
}

// Languages lists the selectable languages in file order.
func (c *Catalog) Languages() []Language {
	return append([]Language(nil), c.languages...)
}

// Supports reports whether code is a known language.
func (c *Catalog) Supports(code string) bool {
	_, ok := c.messages[code]
	return ok
}

// Messages returns a copy of the message table for code, or the default
// table when code is unknown.
func (c *Catalog) Messages(code string) map[string]string {
	table, ok := c.messages[code]
	if !ok {
		table = c.messages[c.def]
	}
	out := make(map[string]string, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}

// Translate returns the message for key in code, or key itself when no
// language defines it.
func (c *Catalog) Translate(code, key string) string {
	table, ok := c.messages[code]
	if !ok {
		table = c.messages[c.def]
	}
	if msg, ok := table[key]; ok {
		return msg
	}
	return key
}

// Negotiate picks the best supported language for an Accept-Language
// header value.
func (c *Catalog) Negotiate(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.def
	}
	_, index, confidence := c.matcher.Match(tags...)
	if confidence == language.No {
		return c.def
	}
	return c.codeAt(index)
}

func (c *Catalog) codeAt(index int) string {
	ordered := make([]string, 0, len(c.languages))
	ordered = append(ordered, c.def)
	for _, l := range c.languages {
		if l.Code != c.def {
			ordered = append(ordered, l.Code)
		}
	}
	if index < 0 || index >= len(ordered) {
		return c.def
	}
	return ordered[index]
}

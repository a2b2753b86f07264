// Package subject maps subject identifiers to the phrase templates and
// keyword tables used to flavor deterministic replies.
package subject

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/tutor-engine/internal/domain"
)

// DefaultKey is the entry used for unknown or absent subjects.
const DefaultKey = "default"

//go:embed subjects.yaml
var embeddedSubjects []byte

// Context is the resolved template set for one subject.
type Context struct {
	Name     string
	Phrases  map[domain.Emotion]string
	Keywords []string
}

// Phrase returns the phrase for e, or an empty string.
func (c Context) Phrase(e domain.Emotion) string {
	return c.Phrases[e]
}

type entry struct {
	Phrases  map[string]string `yaml:"phrases"`
	Keywords []string          `yaml:"keywords"`
}

// Resolver looks up subject contexts. It is read-only after construction
// and safe for concurrent use.
type Resolver struct {
	subjects map[string]Context
}

// Default returns a Resolver backed by the embedded subject table.
func Default() *Resolver {
	r, err := Parse(embeddedSubjects)
	if err != nil {
		panic("subject: embedded table is invalid: " + err.Error())
	}
	return r
}

// Load returns a Resolver for path, or the embedded table when path is empty.
func Load(path string) (*Resolver, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subjects file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Resolver from YAML. The document must contain a default
// entry with a phrase for every emotion.
func Parse(data []byte) (*Resolver, error) {
	var raw map[string]entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse subjects: %w", err)
	}

	subjects := make(map[string]Context, len(raw))
	for name, e := range raw {
		key := normalize(name)
		ctx := Context{
			Name:     key,
			Phrases:  make(map[domain.Emotion]string, len(e.Phrases)),
			Keywords: make([]string, 0, len(e.Keywords)),
		}
		for label, phrase := range e.Phrases {
			em, err := domain.ParseEmotion(label)
			if err != nil {
				return nil, fmt.Errorf("subject %q: %w", name, err)
			}
			ctx.Phrases[em] = strings.TrimSpace(phrase)
		}
		for _, kw := range e.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				ctx.Keywords = append(ctx.Keywords, kw)
			}
		}
		subjects[key] = ctx
	}

	def, ok := subjects[DefaultKey]
	if !ok {
		return nil, fmt.Errorf("parse subjects: missing %q entry", DefaultKey)
	}
	for _, em := range domain.AllEmotions {
		if def.Phrases[em] == "" {
			return nil, fmt.Errorf("parse subjects: default entry has no phrase for %s", em)
		}
	}

	// Subjects inherit missing phrases from the default entry.
	for key, ctx := range subjects {
		for _, em := range domain.AllEmotions {
			if ctx.Phrases[em] == "" {
				ctx.Phrases[em] = def.Phrases[em]
			}
		}
		subjects[key] = ctx
	}

	return &Resolver{subjects: subjects}, nil
}

// Resolve returns the context for subject. Unknown or empty subjects
// resolve to the default entry.
func (r *Resolver) Resolve(subject string) Context {
	if ctx, ok := r.subjects[normalize(subject)]; ok {
		return ctx
	}
	return r.subjects[DefaultKey]
}

// Known reports whether subject has a dedicated entry.
func (r *Resolver) Known(subject string) bool {
	key := normalize(subject)
	if key == DefaultKey {
		return false
	}
	_, ok := r.subjects[key]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

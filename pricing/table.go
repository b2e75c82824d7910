// Package pricing computes the monetary cost of GenAI calls from a versioned
// pricing table and keeps that table fresh.
//
// Tables are immutable snapshots. A Store replaces its snapshot on refresh
// and never mutates one in place, so readers need no locking.
package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ChatPrice is the price per 1K tokens of a chat or completion model.
type ChatPrice struct {
	PromptPrice     float64 `json:"promptPrice" yaml:"promptPrice" toml:"promptPrice"`
	CompletionPrice float64 `json:"completionPrice" yaml:"completionPrice" toml:"completionPrice"`
}

// Table is one pricing snapshot.
//
// Chat and Embeddings prices are per 1K tokens. Images are priced per image
// by model, quality and size. Audio is priced per input character.
type Table struct {
	Version   string    `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	FetchedAt time.Time `json:"-" yaml:"-" toml:"-"`

	Chat       map[string]ChatPrice                     `json:"chat,omitempty" yaml:"chat,omitempty" toml:"chat,omitempty"`
	Embeddings map[string]float64                       `json:"embeddings,omitempty" yaml:"embeddings,omitempty" toml:"embeddings,omitempty"`
	Images     map[string]map[string]map[string]float64 `json:"images,omitempty" yaml:"images,omitempty" toml:"images,omitempty"`
	Audio      map[string]float64                       `json:"audio,omitempty" yaml:"audio,omitempty" toml:"audio,omitempty"`
}

// Empty reports whether the table prices nothing.
func (t *Table) Empty() bool {
	return t == nil || len(t.Chat)+len(t.Embeddings)+len(t.Images)+len(t.Audio) == 0
}

// Supported table formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// FormatFromPath derives the table format from a file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// Parse decodes a pricing table in the given format.
func Parse(data []byte, format string) (*Table, error) {
	var t Table
	var err error

	switch format {
	case FormatJSON, "":
		err = json.NewDecoder(bytes.NewReader(data)).Decode(&t)
	case FormatYAML:
		err = yaml.Unmarshal(data, &t)
	case FormatTOML:
		_, err = toml.Decode(string(data), &t)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) validate() error {
	for model, p := range t.Chat {
		if p.PromptPrice < 0 || p.CompletionPrice < 0 {
			return fmt.Errorf("%w: negative chat price for %q", ErrInvalidTable, model)
		}
	}
	for model, p := range t.Embeddings {
		if p < 0 {
			return fmt.Errorf("%w: negative embedding price for %q", ErrInvalidTable, model)
		}
	}
	for model, p := range t.Audio {
		if p < 0 {
			return fmt.Errorf("%w: negative audio price for %q", ErrInvalidTable, model)
		}
	}
	for model, qualities := range t.Images {
		for _, sizes := range qualities {
			for _, p := range sizes {
				if p < 0 {
					return fmt.Errorf("%w: negative image price for %q", ErrInvalidTable, model)
				}
			}
		}
	}
	return nil
}

// Package frontmatter splits Markdown sources into YAML metadata and body text.
package frontmatter

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

const delim = "---"

// ErrMalformed is returned when the front matter block is not valid YAML
// or is not closed. It matches apperr.ErrParse.
var ErrMalformed = fmt.Errorf("%w: malformed front matter", apperr.ErrParse)

// MissingFieldError reports a required metadata field absent from the block.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("parse error: missing required field %q", e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == apperr.ErrParse }

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// rawMetadata keeps presence information that models.Metadata cannot carry.
type rawMetadata struct {
	Title       *string   `yaml:"title"`
	Author      *string   `yaml:"author"`
	Date        yaml.Node `yaml:"date"`
	Description *string   `yaml:"description"`
	Tags        []string  `yaml:"tags"`
	Draft       bool      `yaml:"draft"`
	Category    *string   `yaml:"category"`
	LastUpdated *string   `yaml:"last_updated"`
}

// Parse splits data into metadata and body. The source must open with a
// line holding only "---" and close the YAML block with another such line.
func Parse(data []byte) (models.Metadata, string, error) {
	block, body, err := split(data)
	if err != nil {
		return models.Metadata{}, "", err
	}

	var raw rawMetadata
	if err := yaml.Unmarshal(block, &raw); err != nil {
		return models.Metadata{}, "", fmt.Errorf("frontmatter: %w: %w", ErrMalformed, err)
	}

	meta, err := raw.toMetadata()
	if err != nil {
		return models.Metadata{}, "", err
	}
	return meta, body, nil
}

// Body returns only the text after the front matter block.
func Body(data []byte) (string, error) {
	_, body, err := split(data)
	return body, err
}

// Render serialises meta and body into a source file that Parse reads back
// to the same values.
func Render(meta models.Metadata, body string) ([]byte, error) {
	out := struct {
		Title       string   `yaml:"title"`
		Author      string   `yaml:"author"`
		Date        string   `yaml:"date"`
		Description string   `yaml:"description"`
		Tags        []string `yaml:"tags"`
		Draft       bool     `yaml:"draft"`
		Category    *string  `yaml:"category,omitempty"`
		LastUpdated *string  `yaml:"last_updated,omitempty"`
	}{
		Title:       meta.Title,
		Author:      meta.Author,
		Date:        meta.Date.UTC().Format(time.RFC3339Nano),
		Description: meta.Description,
		Tags:        meta.Tags,
		Draft:       meta.Draft,
		Category:    meta.Category,
		LastUpdated: meta.LastUpdated,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}

	fm, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: render: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(fm) + len(body) + 16)
	buf.WriteString(delim + "\n")
	buf.Write(fm)
	buf.WriteString(delim + "\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// split separates the YAML block from the body. Leading blank lines of the
// body are dropped.
func split(data []byte) ([]byte, string, error) {
	text := bytes.TrimPrefix(data, []byte("\ufeff"))

	nl := bytes.IndexByte(text, '\n')
	if nl < 0 || !isDelim(text[:nl]) {
		return nil, "", apperr.ErrMissingFrontMatter
	}
	rest := text[nl+1:]

	offset := 0
	for {
		var line []byte
		next := len(rest)
		i := bytes.IndexByte(rest[offset:], '\n')
		if i < 0 {
			line = rest[offset:]
		} else {
			line = rest[offset : offset+i]
			next = offset + i + 1
		}
		if isDelim(line) {
			body := strings.TrimLeft(string(rest[next:]), "\r\n")
			return rest[:offset], body, nil
		}
		if i < 0 {
			return nil, "", fmt.Errorf("frontmatter: %w: closing %q not found", ErrMalformed, delim)
		}
		offset = next
	}
}

func isDelim(line []byte) bool {
	return string(bytes.TrimRight(line, "\r")) == delim
}

func (r *rawMetadata) toMetadata() (models.Metadata, error) {
	switch {
	case r.Title == nil:
		return models.Metadata{}, &MissingFieldError{Field: "title"}
	case r.Author == nil:
		return models.Metadata{}, &MissingFieldError{Field: "author"}
	case r.Date.Kind == 0 || r.Date.Value == "":
		return models.Metadata{}, &MissingFieldError{Field: "date"}
	case r.Description == nil:
		return models.Metadata{}, &MissingFieldError{Field: "description"}
	}

	date, err := parseDate(r.Date.Value)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("frontmatter: %w: %w", ErrMalformed, err)
	}

	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}

	meta := models.Metadata{
		Title:       *r.Title,
		Author:      *r.Author,
		Date:        date,
		Description: *r.Description,
		Tags:        tags,
		Draft:       r.Draft,
		LastUpdated: r.LastUpdated,
	}
	if r.Category != nil && *r.Category != "" {
		meta.Category = r.Category
	}
	return meta, nil
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}

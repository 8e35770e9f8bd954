package exchange

import (
	"fmt"
	"io"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"gopkg.in/yaml.v3"
)

type textEntry struct {
	Successor    string            `yaml:"successor"`
	Predecessors []string          `yaml:"predecessors"`
	Split        []string          `yaml:"split,omitempty"`
	Op           string            `yaml:"op"`
	User         string            `yaml:"user"`
	Time         int64             `yaml:"time"`
	TZ           int               `yaml:"tz"`
	Extra        map[string]string `yaml:"extra,omitempty"`
}

type textDoc struct {
	Version int         `yaml:"version"`
	Entries []textEntry `yaml:"entries"`
}

// WriteYAML writes entries as a YAML document.
func WriteYAML(w io.Writer, entries []mutation.Entry) error {
	doc := textDoc{Version: 1, Entries: make([]textEntry, len(entries))}
	for i, e := range entries {
		doc.Entries[i] = textEntry{
			Successor:    e.Successor.String(),
			Predecessors: hexAll(e.Predecessors),
			Split:        hexAll(e.Split),
			Op:           string(e.Op),
			User:         e.User,
			Time:         e.Time,
			TZ:           e.TZ,
			Extra:        e.Extra,
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// ReadYAML parses a document written by WriteYAML.
func ReadYAML(r io.Reader) ([]mutation.Entry, error) {
	var doc textDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if doc.Version != 1 {
		return nil, fmt.Errorf("unsupported yaml version %d", doc.Version)
	}
	out := make([]mutation.Entry, len(doc.Entries))
	for i, te := range doc.Entries {
		succ, err := cas.ParseHash(te.Successor)
		if err != nil {
			return nil, fmt.Errorf("entry %d successor: %w", i, err)
		}
		preds, err := parseAll(te.Predecessors)
		if err != nil {
			return nil, fmt.Errorf("entry %d predecessors: %w", i, err)
		}
		split, err := parseAll(te.Split)
		if err != nil {
			return nil, fmt.Errorf("entry %d split: %w", i, err)
		}
		out[i] = mutation.Entry{
			Successor:    succ,
			Predecessors: preds,
			Split:        split,
			Op:           mutation.Op(te.Op),
			User:         te.User,
			Time:         te.Time,
			TZ:           te.TZ,
			Extra:        te.Extra,
		}
	}
	return out, nil
}

func hexAll(hs []cas.Hash) []string {
	if len(hs) == 0 {
		return nil
	}
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.String()
	}
	return out
}

func parseAll(ss []string) ([]cas.Hash, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]cas.Hash, len(ss))
	for i, s := range ss {
		h, err := cas.ParseHash(s)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

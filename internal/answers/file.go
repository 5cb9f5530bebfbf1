// internal/answers/file.go
package answers

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
)

// FileAnswers is the parsed user-maintained answers file: a JSON object
// mapping a field id, label, question, or name attribute to either a bare
// answer string or an object of the form
//
//	{"answer": "...", "display_name": "...", "source": "...", "approved_by": "..."}
//
// where "value" and "label" are accepted aliases for "answer" and
// "display_name". Entries that carry no usable answer are dropped.
type FileAnswers struct {
	path    string
	entries map[string]fileAnswer
	lower   map[string]fileAnswer
}

type fileAnswer struct {
	answer      string
	displayName string
	source      string
	approvedBy  string
}

// LoadFile parses the answers file at path. A missing or malformed file is a
// recoverable condition: the caller surfaces it as pending user input rather
// than a hard failure.
func LoadFile(path string) (*FileAnswers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("answers file %s: %w", path, err)
	}
	return parseFileAnswers(path, data)
}

func parseFileAnswers(path string, data []byte) (*FileAnswers, error) {
	iter := jsoniter.ParseBytes(json, data)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("answers file %s: top level must be a JSON object of key -> answer", path)
	}
	fa := &FileAnswers{
		path:    path,
		entries: make(map[string]fileAnswer),
		lower:   make(map[string]fileAnswer),
	}
	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		raw := iter.SkipAndReturnBytes()
		entry, ok := parseFileAnswer(raw)
		if !ok {
			continue
		}
		fa.entries[key] = entry
		// Later keys win on case collisions, matching file order.
		fa.lower[strings.ToLower(key)] = entry
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, fmt.Errorf("answers file %s: %w", path, iter.Error)
	}
	return fa, nil
}

func parseFileAnswer(raw []byte) (fileAnswer, bool) {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		// A JSON null also lands here as the empty string; neither is usable.
		if bare == "" {
			return fileAnswer{}, false
		}
		return fileAnswer{answer: bare}, true
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fileAnswer{}, false
	}
	answer, ok := scalarField(obj, "answer", "value")
	if !ok {
		return fileAnswer{}, false
	}
	display, _ := scalarField(obj, "display_name", "label")
	source, _ := scalarField(obj, "source")
	approvedBy, _ := scalarField(obj, "approved_by")
	return fileAnswer{answer: answer, displayName: display, source: source, approvedBy: approvedBy}, true
}

// scalarField returns the first present key coerced to a string. Empty
// strings count as absent so aliases get a chance.
func scalarField(obj map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v, true
			}
		case bool:
			return strconv.FormatBool(v), true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}

// Path returns the file path the answers were loaded from.
func (fa *FileAnswers) Path() string {
	return fa.path
}

// Len returns the number of usable entries.
func (fa *FileAnswers) Len() int {
	return len(fa.entries)
}

// Resolve finds the entry for a field, trying its id, label, question, and
// name attribute in that order, each as an exact key first and lowercased
// second.
func (fa *FileAnswers) Resolve(f *schemas.FieldDescriptor) (schemas.AnswerRecord, bool) {
	for _, candidate := range []string{f.FieldID, f.Label, f.Question, f.NameAttr} {
		if candidate == "" {
			continue
		}
		entry, ok := fa.entries[candidate]
		if !ok {
			entry, ok = fa.lower[strings.ToLower(candidate)]
		}
		if !ok {
			continue
		}
		display := entry.displayName
		if display == "" {
			display = displayNameFor(f)
		}
		source := entry.source
		if source == "" {
			source = "answers_file"
		}
		approvedBy := entry.approvedBy
		if approvedBy == "" {
			approvedBy = "AnswersFile"
		}
		return schemas.AnswerRecord{
			FieldID:     f.FieldID,
			Answer:      entry.answer,
			DisplayName: display,
			Source:      source,
			ApprovedBy:  approvedBy,
		}, true
	}
	return schemas.AnswerRecord{}, false
}

// Apply records an answer for every field the file resolves, overwriting
// prior records, and returns how many it applied.
func (fa *FileAnswers) Apply(store *Store, fields []schemas.FieldDescriptor) int {
	applied := 0
	for i := range fields {
		rec, ok := fa.Resolve(&fields[i])
		if !ok {
			continue
		}
		store.Put(rec)
		applied++
	}
	return applied
}

// displayNameFor picks the name an answer record is reported under: the
// visible label, then the question text, then the field id.
func displayNameFor(f *schemas.FieldDescriptor) string {
	if f.Label != "" {
		return f.Label
	}
	if f.Question != "" {
		return f.Question
	}
	return f.FieldID
}

// api/schemas/schemas.go
package schemas

import (
	"strings"
	"time"
)

// -- Field Kinds --

// Field kinds are the element's tag name, concatenated with the lowercased
// `type` attribute for inputs ("input:text", "input:radio"). Selects and
// textareas carry the bare tag. The constants below cover the kinds the
// dispatcher branches on; anything else is treated as free text.
const (
	KindSelect   = "select"
	KindTextarea = "textarea"
	KindText     = "input:text"
	KindRadio    = "input:radio"
	KindCheckbox = "input:checkbox"
	KindFile     = "input:file"
	KindEmail    = "input:email"
	KindTel      = "input:tel"
)

// Metadata keys captured at extraction time. The combobox classifier and the
// dispatcher read these back, so the spelling must stay in sync with the
// extractor.
const (
	MetaRole          = "role"
	MetaAriaLabel     = "aria-label"
	MetaAriaHaspopup  = "aria-haspopup"
	MetaAriaControls  = "aria-controls"
	MetaAriaOwns      = "aria-owns"
	MetaAriaAuto      = "aria-autocomplete"
	MetaDataQuestion  = "data-question"
	MetaDataUI        = "data-ui"
	MetaDataInputType = "data-input-type"
	MetaReadonly      = "readonly"
	MetaFormIndex     = "form_index"
	MetaGroupName     = "group_name"
)

// -- Core Records --

// ApplyMethod is one candidate affordance for entering or advancing the
// application flow. Clicked and Notes are mutated in place by whichever
// component attempts the affordance; records are never removed, so a failed
// candidate stays visible for audit.
type ApplyMethod struct {
	Label       string  `json:"label"`
	Selector    string  `json:"selector,omitempty"`
	ElementKind string  `json:"element_kind"`
	Href        string  `json:"href,omitempty"`
	Confidence  float64 `json:"confidence"`
	Clicked     bool    `json:"clicked"`
	Notes       string  `json:"notes,omitempty"`
}

// FieldDescriptor is one logical input control, normalized across native
// widgets and consolidated radio groups.
//
// Options and OptionValues are populated only for select and radio kinds.
// OptionSelectors is populated only for radio kinds; native selects are
// addressed by value or label, never by per-option selector. Metadata carries
// the ARIA/data attributes needed later for combobox classification.
type FieldDescriptor struct {
	FieldID         string            `json:"field_id"`
	Label           string            `json:"label"`
	Question        string            `json:"question"`
	Kind            string            `json:"kind"`
	StepIndex       int               `json:"step_index"`
	Required        bool              `json:"required"`
	Selector        string            `json:"selector,omitempty"`
	NameAttr        string            `json:"name,omitempty"`
	Placeholder     string            `json:"placeholder,omitempty"`
	Options         []string          `json:"options,omitempty"`
	OptionValues    map[string]string `json:"option_values,omitempty"`
	OptionSelectors map[string]string `json:"option_selectors,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// IsCheckbox reports whether the field dispatches as a checkbox.
func (f *FieldDescriptor) IsCheckbox() bool { return strings.Contains(f.Kind, "checkbox") }

// IsRadio reports whether the field is a consolidated radio group.
func (f *FieldDescriptor) IsRadio() bool { return strings.Contains(f.Kind, "radio") }

// IsFileUpload reports whether the field accepts a file path.
func (f *FieldDescriptor) IsFileUpload() bool { return strings.Contains(f.Kind, "file") }

// IsSelect reports whether the field is a native select element.
func (f *FieldDescriptor) IsSelect() bool { return strings.HasPrefix(f.Kind, KindSelect) }

// IsCombobox reports whether the field should be driven through the ARIA
// combobox interaction (open, match, type-to-filter) instead of its raw kind.
// A plain input masquerades as a rich picker when its captured metadata says
// so; the raw Kind tag is left untouched.
func (f *FieldDescriptor) IsCombobox() bool {
	if f.Metadata == nil {
		return false
	}
	if strings.EqualFold(f.Metadata[MetaRole], "combobox") {
		return true
	}
	if strings.EqualFold(f.Metadata[MetaAriaHaspopup], "listbox") {
		return true
	}
	if f.Metadata[MetaReadonly] == "true" && f.Metadata[MetaAriaControls] != "" {
		return true
	}
	if strings.EqualFold(f.Metadata[MetaDataInputType], KindSelect) {
		return true
	}
	return false
}

// DisplayLabel guarantees a non-empty label for UI purposes even when
// extraction found nothing semantic: label, else aria-label, else
// placeholder, else the field id itself.
func (f *FieldDescriptor) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	if f.Metadata != nil {
		if al := f.Metadata[MetaAriaLabel]; al != "" {
			return al
		}
	}
	if f.Placeholder != "" {
		return f.Placeholder
	}
	return f.FieldID
}

// NavigatorResult is the extraction output for one job posting. Fields spans
// every step encountered; StepCount is one greater than the maximum observed
// step index.
type NavigatorResult struct {
	JobURL       string            `json:"job_url"`
	JobName      string            `json:"job_name"`
	ApplyMethods []*ApplyMethod    `json:"apply_methods"`
	Fields       []FieldDescriptor `json:"fields"`
	SnapshotPath string            `json:"snapshot_path,omitempty"`
	StepCount    int               `json:"step_count"`
}

// HasApplyFlow holds iff both an apply affordance and at least one field were
// detected. A page missing either is not a valid apply target.
func (r *NavigatorResult) HasApplyFlow() bool {
	return r != nil && len(r.ApplyMethods) > 0 && len(r.Fields) > 0
}

// FieldByID returns the descriptor with the given field id, if present.
func (r *NavigatorResult) FieldByID(fieldID string) (FieldDescriptor, bool) {
	for _, f := range r.Fields {
		if f.FieldID == fieldID {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// AnswerRecord is one approved value for one field id, with provenance. The
// dispatcher treats the store of these as an opaque lookup table.
type AnswerRecord struct {
	FieldID     string    `json:"field_id"`
	Answer      string    `json:"answer"`
	DisplayName string    `json:"display_name,omitempty"`
	Source      string    `json:"source,omitempty"`
	ApprovedBy  string    `json:"approved_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PendingQuestion is a required field the engine could not answer. These are
// persisted so a human can fill them in and re-run the submission.
type PendingQuestion struct {
	FieldID  string   `json:"field_id"`
	Question string   `json:"question"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// SubmissionResult is the outcome of one dispatch run. Steps is the ordered
// log of per-field action strings, kept for audit and user-facing progress.
type SubmissionResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Steps   []string `json:"steps"`
}

// RunContext carries the state shared across one discovery-then-submission
// cycle for a single job. The browser session it refers to is exclusively
// owned by that cycle; no concurrent navigation is assumed.
type RunContext struct {
	RunID           string           `json:"run_id"`
	JobURL          string           `json:"job_url"`
	JobName         string           `json:"job_name"`
	Navigator       *NavigatorResult `json:"navigator,omitempty"`
	CVPath          string           `json:"cv_path,omitempty"`
	CoverLetterPath string           `json:"cover_letter_path,omitempty"`

	// Answers is the resolved answer set for Navigator's fields. It is
	// attached by the answer-resolution step and read by the dispatcher.
	Answers AnswerStore `json:"-"`
}

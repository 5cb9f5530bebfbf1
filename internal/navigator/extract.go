// internal/navigator/extract.go
package navigator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

// Extractor turns DOM snapshots into apply-method candidates and field
// descriptors. It never touches the live page; everything works off the
// serialized HTML.
type Extractor struct {
	heur   config.HeuristicsConfig
	logger *zap.Logger
}

// NewExtractor builds an extractor with the given heuristic tables.
func NewExtractor(heur config.HeuristicsConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Extractor{heur: heur, logger: logger}
}

// DetectApplyMethods scans buttons and anchors for apply-intent wording.
// Labels containing the word "apply" rank above generic flow words like
// "continue" or "next".
func (e *Extractor) DetectApplyMethods(html string) ([]*schemas.ApplyMethod, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse DOM: %w", err)
	}

	methods := make([]*schemas.ApplyMethod, 0, 4)
	doc.Find("button, a").Each(func(_ int, el *goquery.Selection) {
		label := CleanText(el.Text())
		if label == "" {
			return
		}
		lower := strings.ToLower(label)
		if !containsAny(lower, e.heur.ApplyKeywords) {
			return
		}
		confidence := 0.6
		if strings.Contains(lower, "apply") {
			confidence = 0.9
		}
		methods = append(methods, &schemas.ApplyMethod{
			Label:       label,
			Selector:    buildSelector(el, false),
			ElementKind: goquery.NodeName(el),
			Href:        el.AttrOr("href", ""),
			Confidence:  confidence,
		})
	})
	return methods, nil
}

type radioEntry struct {
	el      *goquery.Selection
	formIdx int
}

// ExtractFields walks every form on the page (or the whole document when no
// form tag exists) and builds one descriptor per answerable control. Radio
// inputs sharing a name collapse into a single group descriptor carrying
// per-option selectors.
func (e *Extractor) ExtractFields(html string, stepIndex int) ([]schemas.FieldDescriptor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse DOM: %w", err)
	}

	var roots []*goquery.Selection
	forms := doc.Find("form")
	if forms.Length() == 0 {
		roots = []*goquery.Selection{doc.Selection}
	} else {
		forms.Each(func(_ int, form *goquery.Selection) {
			roots = append(roots, form)
		})
	}

	fields := make([]schemas.FieldDescriptor, 0, 16)
	groups := make(map[string][]radioEntry)
	var groupOrder []string

	for formIdx, root := range roots {
		root.Find("input, textarea, select").Each(func(_ int, el *goquery.Selection) {
			lowerType := strings.ToLower(el.AttrOr("type", ""))
			if lowerType == "hidden" || lowerType == "submit" || lowerType == "button" {
				return
			}
			if goquery.NodeName(el) == "input" && lowerType == "radio" {
				key := firstAttr(el, "name", "id")
				if key == "" {
					key = "radio-" + uuid.NewString()
				}
				if _, seen := groups[key]; !seen {
					groupOrder = append(groupOrder, key)
				}
				groups[key] = append(groups[key], radioEntry{el: el, formIdx: formIdx})
				return
			}
			fields = append(fields, e.buildFieldDescriptor(doc, el, formIdx, stepIndex))
		})
	}

	for _, key := range groupOrder {
		if field, ok := e.buildRadioDescriptor(doc, key, groups[key], stepIndex); ok {
			fields = append(fields, field)
		}
	}
	return fields, nil
}

func (e *Extractor) buildFieldDescriptor(doc *goquery.Document, el *goquery.Selection, formIdx, stepIndex int) schemas.FieldDescriptor {
	fieldID := firstAttr(el, "name", "id", "data-ui")
	if fieldID == "" {
		fieldID = uuid.NewString()
	}

	labelText := NormalizeLabel(e.findLabel(doc, el, fieldID))
	placeholder := el.AttrOr("placeholder", "")
	ariaLabel := el.AttrOr("aria-label", "")

	question := labelText
	if question == "" {
		question = placeholder
	}
	if question == "" {
		question = ariaLabel
	}

	label := labelText
	if label == "" {
		label = ariaLabel
	}
	if label == "" {
		label = placeholder
	}
	if label == "" {
		label = fieldID
	}

	kind := goquery.NodeName(el)
	if kind == "input" {
		if t := strings.ToLower(el.AttrOr("type", "")); t != "" {
			kind += ":" + t
		}
	}

	options, optionValues := extractOptions(el)
	_, required := el.Attr("required")
	readonly := ""
	if _, ok := el.Attr("readonly"); ok {
		readonly = "true"
	}

	return schemas.FieldDescriptor{
		FieldID:         fieldID,
		Label:           label,
		Question:        question,
		Kind:            kind,
		StepIndex:       stepIndex,
		Required:        required,
		Selector:        buildSelector(el, false),
		NameAttr:        el.AttrOr("name", ""),
		Placeholder:     placeholder,
		Options:         options,
		OptionValues:    optionValues,
		OptionSelectors: map[string]string{},
		Metadata: map[string]string{
			schemas.MetaFormIndex:     strconv.Itoa(formIdx),
			schemas.MetaAriaLabel:     ariaLabel,
			schemas.MetaAriaHaspopup:  el.AttrOr("aria-haspopup", ""),
			schemas.MetaAriaControls:  el.AttrOr("aria-controls", ""),
			schemas.MetaAriaOwns:      el.AttrOr("aria-owns", ""),
			schemas.MetaAriaAuto:      el.AttrOr("aria-autocomplete", ""),
			schemas.MetaDataQuestion:  el.AttrOr("data-question", ""),
			schemas.MetaDataUI:        el.AttrOr("data-ui", ""),
			schemas.MetaDataInputType: el.AttrOr("data-input-type", ""),
			schemas.MetaRole:          el.AttrOr("role", ""),
			schemas.MetaReadonly:      readonly,
		},
	}
}

// buildRadioDescriptor consolidates one radio group into a single
// descriptor. Options keep their first selector when labels collide, so
// every option maps to exactly one clickable element.
func (e *Extractor) buildRadioDescriptor(doc *goquery.Document, groupKey string, entries []radioEntry, stepIndex int) (schemas.FieldDescriptor, bool) {
	if len(entries) == 0 {
		return schemas.FieldDescriptor{}, false
	}
	first := entries[0]

	question := e.findGroupLabel(doc, first.el)
	if question == "" {
		question = ariaReferenceText(doc, first.el)
	}
	if question == "" {
		question = e.findContainerHint(first.el)
	}
	question = NormalizeLabel(question)

	options := make([]string, 0, len(entries))
	optionValues := make(map[string]string, len(entries))
	optionSelectors := make(map[string]string, len(entries))
	required := false

	for _, entry := range entries {
		optionLabel := NormalizeLabel(e.findLabel(doc, entry.el, entry.el.AttrOr("id", "")))
		if optionLabel == "" {
			optionLabel = entry.el.AttrOr("value", "")
		}
		if optionLabel == "" {
			optionLabel = "Option"
		}
		selector := buildSelector(entry.el, true)
		if selector == "" {
			continue
		}
		if _, dup := optionSelectors[optionLabel]; dup {
			e.logger.Debug("Duplicate radio option label; keeping first occurrence",
				zap.String("group", groupKey), zap.String("option", optionLabel))
			continue
		}
		value := entry.el.AttrOr("value", "")
		if value == "" {
			value = optionLabel
		}
		options = append(options, optionLabel)
		optionValues[optionLabel] = value
		optionSelectors[optionLabel] = selector
		if _, req := entry.el.Attr("required"); req {
			required = true
		}
	}
	if len(options) == 0 {
		return schemas.FieldDescriptor{}, false
	}

	label := question
	if label == "" {
		label = options[0]
	}
	if question == "" {
		question = label
	}

	return schemas.FieldDescriptor{
		FieldID:         fmt.Sprintf("%s_%d", groupKey, stepIndex),
		Label:           label,
		Question:        question,
		Kind:            schemas.KindRadio,
		StepIndex:       stepIndex,
		Required:        required,
		NameAttr:        groupKey,
		Options:         options,
		OptionValues:    optionValues,
		OptionSelectors: optionSelectors,
		Metadata: map[string]string{
			schemas.MetaFormIndex: strconv.Itoa(first.formIdx),
			schemas.MetaGroupName: groupKey,
		},
	}, true
}

// -- Label resolution --

// findLabel resolves the human-readable label for a single control:
// aria-labelledby references, then an explicit label[for], then an
// enclosing label element, then styled-container hints.
func (e *Extractor) findLabel(doc *goquery.Document, el *goquery.Selection, fieldID string) string {
	if text := ariaReferenceText(doc, el); text != "" {
		return text
	}
	if fieldID != "" {
		if lab, ok := findLabelFor(doc, fieldID); ok {
			return CleanText(lab.Text())
		}
	}
	if parentLabel := el.ParentsFiltered("label").First(); parentLabel.Length() > 0 {
		return CleanText(parentLabel.Text())
	}
	if hint := e.findContainerHint(el); hint != "" {
		return hint
	}
	return ""
}

// findGroupLabel resolves a radio group's question: the enclosing
// fieldset's aria reference or legend, then a data-question ancestor, then
// an enclosing heading.
func (e *Extractor) findGroupLabel(doc *goquery.Document, el *goquery.Selection) string {
	if fieldset := el.ParentsFiltered("fieldset").First(); fieldset.Length() > 0 {
		if text := ariaReferenceText(doc, fieldset); text != "" {
			return text
		}
		if legend := fieldset.Find("legend").First(); legend.Length() > 0 {
			return CleanText(legend.Text())
		}
	}
	if holder := el.ParentsFiltered("[data-question]").First(); holder.Length() > 0 {
		if q := holder.AttrOr("data-question", ""); q != "" {
			return CleanText(q)
		}
	}
	if heading := el.ParentsFiltered("h1, h2, h3, h4").First(); heading.Length() > 0 {
		return CleanText(heading.Text())
	}
	return ""
}

// findContainerHint digs label text out of styled question containers.
// Inside a matching container, a strong element that is not a bare
// required-marker asterisk wins over the container's full text.
func (e *Extractor) findContainerHint(el *goquery.Selection) string {
	ancestor := firstAncestor(el, func(s *goquery.Selection) bool {
		for _, cls := range strings.Fields(s.AttrOr("class", "")) {
			for _, marker := range e.heur.LabelContainerClasses {
				if strings.Contains(cls, marker) {
					return true
				}
			}
		}
		return false
	})
	if ancestor != nil {
		var strongText string
		ancestor.Find("strong").EachWithBreak(func(_ int, st *goquery.Selection) bool {
			text := CleanText(st.Text())
			if text != "" && text != "*" {
				strongText = text
				return false
			}
			return true
		})
		if strongText != "" {
			return strongText
		}
		if text := CleanText(ancestor.Text()); text != "" {
			return text
		}
	}
	if holder := el.ParentsFiltered("[data-question]").First(); holder.Length() > 0 {
		if q := holder.AttrOr("data-question", ""); q != "" {
			return CleanText(q)
		}
	}
	return ""
}

// ariaReferenceText joins the text of every element referenced by the
// aria-labelledby attribute, in reference order.
func ariaReferenceText(doc *goquery.Document, el *goquery.Selection) string {
	refs := el.AttrOr("aria-labelledby", "")
	if refs == "" {
		return ""
	}
	pieces := make([]string, 0, 2)
	for _, ref := range strings.Fields(refs) {
		if node := findByID(doc, ref); node != nil {
			if text := CleanText(node.Text()); text != "" {
				pieces = append(pieces, text)
			}
		}
	}
	return strings.Join(pieces, " ")
}

// -- Selector construction --

// buildSelector derives the most stable CSS selector available for the
// element. preferUnique is used for radio options, which share a name and
// need the name+value pair or an id to stay unambiguous.
func buildSelector(el *goquery.Selection, preferUnique bool) string {
	name := el.AttrOr("name", "")
	if preferUnique {
		if value := el.AttrOr("value", ""); name != "" && value != "" {
			return fmt.Sprintf("input[name='%s'][value='%s']", name, value)
		}
		if id := el.AttrOr("id", ""); id != "" {
			return "#" + id
		}
	}
	if name != "" && !preferUnique {
		return fmt.Sprintf("[name='%s']", name)
	}
	if dataUI := el.AttrOr("data-ui", ""); dataUI != "" {
		return fmt.Sprintf("[data-ui='%s']", dataUI)
	}
	if testID := el.AttrOr("data-testid", ""); testID != "" {
		return fmt.Sprintf("[data-testid='%s']", testID)
	}
	if id := el.AttrOr("id", ""); id != "" {
		return "#" + id
	}
	if refs := strings.Fields(el.AttrOr("aria-labelledby", "")); len(refs) > 0 {
		return fmt.Sprintf("[aria-labelledby~='%s']", refs[0])
	}
	if classes := strings.Fields(el.AttrOr("class", "")); len(classes) > 0 {
		if len(classes) > 3 {
			classes = classes[:3]
		}
		return "." + strings.Join(classes, ".")
	}
	if placeholder := el.AttrOr("placeholder", ""); placeholder != "" {
		return fmt.Sprintf("[placeholder='%s']", placeholder)
	}
	if name != "" {
		return fmt.Sprintf("[name='%s']", name)
	}
	return ""
}

// extractOptions pulls the option labels and values out of a native
// select. Options without visible text are unanswerable and dropped.
func extractOptions(el *goquery.Selection) ([]string, map[string]string) {
	if goquery.NodeName(el) != "select" {
		return nil, nil
	}
	options := make([]string, 0, 8)
	values := make(map[string]string, 8)
	el.Find("option").Each(func(_ int, opt *goquery.Selection) {
		label := CleanText(opt.Text())
		if label == "" {
			return
		}
		value := opt.AttrOr("value", "")
		if value == "" {
			value = label
		}
		options = append(options, label)
		values[label] = value
	})
	return options, values
}

// -- Small query helpers --

func firstAttr(el *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := el.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// findByID locates an element by exact id, immune to CSS metacharacters in
// machine-generated ids.
func findByID(doc *goquery.Document, id string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.AttrOr("id", "") == id {
			found = s
			return false
		}
		return true
	})
	return found
}

func findLabelFor(doc *goquery.Document, fieldID string) (*goquery.Selection, bool) {
	var found *goquery.Selection
	doc.Find("label[for]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.AttrOr("for", "") == fieldID {
			found = s
			return false
		}
		return true
	})
	return found, found != nil
}

// firstAncestor walks up from el and returns the nearest ancestor matching
// the predicate, or nil.
func firstAncestor(el *goquery.Selection, match func(*goquery.Selection) bool) *goquery.Selection {
	var found *goquery.Selection
	el.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if match(p) {
			found = p
			return false
		}
		return true
	})
	return found
}

// internal/navigator/extract_test.go
package navigator

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
)

const applyPageHTML = `<!DOCTYPE html>
<html><body>
<div data-ui="careers-page-content">
  <h1>Senior Backend Engineer</h1>
  <a data-ui="apply-button" href="/jobs/senior-backend/apply">Apply now</a>
  <button class="btn primary">Continue</button>
  <button><svg></svg>SVGs not supported by this browser.</button>
  <form>
    <label for="firstname">First name *</label>
    <input id="firstname" name="firstname" type="text" required>

    <label for="email">Email</label>
    <input id="email" name="email" type="email" placeholder="you@example.com" required>

    <div class="styles--3aPac container">
      <strong>*</strong><strong>Years of experience</strong>
      <input data-ui="experience" type="text">
    </div>

    <textarea name="motivation" aria-label="Why do you want to work here?"></textarea>

    <label for="country">Country</label>
    <select id="country" name="country" required>
      <option value="">Choose...</option>
      <option value="IE">Ireland</option>
      <option value="UK">United Kingdom</option>
    </select>

    <fieldset>
      <legend>Do you have the right to work in the UK?</legend>
      <label for="rtw-yes">Yes</label>
      <input id="rtw-yes" type="radio" name="right_to_work" value="yes" required>
      <label for="rtw-no">No</label>
      <input id="rtw-no" type="radio" name="right_to_work" value="no">
    </fieldset>

    <input type="hidden" name="token" value="abc">
    <input type="submit" value="Send">
  </form>
</div>
</body></html>`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return NewExtractor(config.Default().Heuristics, zaptest.NewLogger(t))
}

func TestDetectApplyMethods(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	methods, err := ext.DetectApplyMethods(applyPageHTML)
	require.NoError(t, err)
	require.Len(t, methods, 2)

	apply := methods[0]
	assert.Equal(t, "Apply now", apply.Label)
	assert.Equal(t, "a", apply.ElementKind)
	assert.Equal(t, "[data-ui='apply-button']", apply.Selector)
	assert.Equal(t, "/jobs/senior-backend/apply", apply.Href)
	assert.InDelta(t, 0.9, apply.Confidence, 0.001)
	assert.False(t, apply.Clicked)

	cont := methods[1]
	assert.Equal(t, "Continue", cont.Label)
	assert.Equal(t, "button", cont.ElementKind)
	assert.Equal(t, ".btn.primary", cont.Selector)
	assert.InDelta(t, 0.6, cont.Confidence, 0.001)
}

func TestDetectApplyMethodsIgnoresUnrelatedText(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	methods, err := ext.DetectApplyMethods(`<html><body>
		<button>Learn more</button>
		<a href="/about">About the team</a>
	</body></html>`)
	require.NoError(t, err)
	assert.Empty(t, methods)
}

func TestExtractFieldsFullPage(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	fields, err := ext.ExtractFields(applyPageHTML, 0)
	require.NoError(t, err)
	require.Len(t, fields, 6)

	byID := make(map[string]schemas.FieldDescriptor, len(fields))
	for _, f := range fields {
		byID[f.FieldID] = f
	}

	first := byID["firstname"]
	assert.Equal(t, "First name *", first.Label)
	assert.Equal(t, "input:text", first.Kind)
	assert.True(t, first.Required)
	assert.Equal(t, "[name='firstname']", first.Selector)
	assert.Equal(t, "firstname", first.NameAttr)
	assert.Equal(t, "0", first.Metadata[schemas.MetaFormIndex])

	email := byID["email"]
	assert.Equal(t, "Email", email.Label)
	assert.Equal(t, "Email", email.Question)
	assert.Equal(t, "input:email", email.Kind)
	assert.Equal(t, "you@example.com", email.Placeholder)

	exp := byID["experience"]
	assert.Equal(t, "Years of experience", exp.Label)
	assert.Equal(t, "[data-ui='experience']", exp.Selector)
	assert.Empty(t, exp.NameAttr)

	motivation := byID["motivation"]
	assert.Equal(t, "textarea", motivation.Kind)
	assert.Equal(t, "Why do you want to work here?", motivation.Label)
	assert.Equal(t, "Why do you want to work here?", motivation.Question)

	country := byID["country"]
	assert.Equal(t, "select", country.Kind)
	assert.True(t, country.Required)
	assert.Equal(t, []string{"Choose...", "Ireland", "United Kingdom"}, country.Options)
	assert.Equal(t, "IE", country.OptionValues["Ireland"])
	assert.Equal(t, "Choose...", country.OptionValues["Choose..."])

	radio := byID["right_to_work_0"]
	assert.Equal(t, "input:radio", radio.Kind)
	assert.True(t, radio.IsRadio())
	assert.True(t, radio.Required)
	assert.Equal(t, "Do you have the right to work in the UK?", radio.Question)
	assert.Equal(t, []string{"Yes", "No"}, radio.Options)
	assert.Equal(t, "input[name='right_to_work'][value='yes']", radio.OptionSelectors["Yes"])
	assert.Equal(t, "input[name='right_to_work'][value='no']", radio.OptionSelectors["No"])
	assert.Equal(t, "yes", radio.OptionValues["Yes"])
	assert.Equal(t, "right_to_work", radio.NameAttr)
	assert.Equal(t, "right_to_work", radio.Metadata[schemas.MetaGroupName])

	// Hidden and submit inputs never become descriptors.
	assert.NotContains(t, byID, "token")

	// Every extracted control keeps a presentable label.
	for _, f := range fields {
		assert.NotEmpty(t, f.DisplayLabel(), "field %s has no display label", f.FieldID)
	}
}

func TestExtractFieldsStepIndexStamping(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	fields, err := ext.ExtractFields(applyPageHTML, 3)
	require.NoError(t, err)
	require.NotEmpty(t, fields)

	for _, f := range fields {
		assert.Equal(t, 3, f.StepIndex)
	}
	var radioID string
	for _, f := range fields {
		if f.IsRadio() {
			radioID = f.FieldID
		}
	}
	assert.Equal(t, "right_to_work_3", radioID)
}

func TestExtractFieldsWithoutFormTag(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	fields, err := ext.ExtractFields(`<html><body>
		<label for="nick">Nickname</label>
		<input id="nick" name="nick" type="text">
	</body></html>`, 0)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "Nickname", fields[0].Label)
	assert.Equal(t, "0", fields[0].Metadata[schemas.MetaFormIndex])
}

func TestExtractFieldsTracksFormIndexes(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	fields, err := ext.ExtractFields(`<html><body>
		<form><input name="a" type="text"></form>
		<form><input name="b" type="text"></form>
	</body></html>`, 0)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "0", fields[0].Metadata[schemas.MetaFormIndex])
	assert.Equal(t, "1", fields[1].Metadata[schemas.MetaFormIndex])
}

func TestExtractFieldsLabelPrecedence(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	cases := []struct {
		name string
		html string
		want string
	}{
		{
			name: "aria-labelledby beats explicit label",
			html: `<form>
				<span id="lbl-a">Salary</span><span id="lbl-b">expectations</span>
				<label for="salary">WRONG</label>
				<input id="salary" name="salary" aria-labelledby="lbl-a lbl-b" type="text">
			</form>`,
			want: "Salary expectations",
		},
		{
			name: "explicit label beats enclosing label",
			html: `<form>
				<label for="phone">Phone number</label>
				<label>WRONG <input id="phone" name="phone" type="tel"></label>
			</form>`,
			want: "Phone number",
		},
		{
			name: "enclosing label",
			html: `<form><label>Phone <input name="phone" type="tel"></label></form>`,
			want: "Phone",
		},
		{
			name: "data-question container",
			html: `<form><div data-question="Notice period?"><input name="notice" type="text"></div></form>`,
			want: "Notice period?",
		},
	}
	for _, tc := range cases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fields, err := ext.ExtractFields(tt.html, 0)
			require.NoError(t, err)
			require.Len(t, fields, 1)
			assert.Equal(t, tt.want, fields[0].Label)
		})
	}
}

func TestExtractFieldsComboboxMetadata(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	fields, err := ext.ExtractFields(`<form>
		<label for="nationality">Nationality</label>
		<input id="nationality" name="nationality" type="text" role="combobox"
			aria-haspopup="listbox" aria-controls="nationality-listbox"
			aria-autocomplete="list" readonly data-input-type="select">
	</form>`, 0)
	require.NoError(t, err)
	require.Len(t, fields, 1)

	f := fields[0]
	assert.Equal(t, "combobox", f.Metadata[schemas.MetaRole])
	assert.Equal(t, "listbox", f.Metadata[schemas.MetaAriaHaspopup])
	assert.Equal(t, "nationality-listbox", f.Metadata[schemas.MetaAriaControls])
	assert.Equal(t, "list", f.Metadata[schemas.MetaAriaAuto])
	assert.Equal(t, "true", f.Metadata[schemas.MetaReadonly])
	assert.Equal(t, "select", f.Metadata[schemas.MetaDataInputType])
	assert.True(t, f.IsCombobox())
}

func TestExtractFieldsRadioEdgeCases(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	t.Run("duplicate option labels keep the first selector", func(t *testing.T) {
		t.Parallel()
		fields, err := ext.ExtractFields(`<form><fieldset><legend>Sponsorship?</legend>
			<label for="q1-a">Yes</label><input id="q1-a" type="radio" name="q1" value="yes">
			<label for="q1-b">Yes</label><input id="q1-b" type="radio" name="q1" value="yes2">
		</fieldset></form>`, 0)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, []string{"Yes"}, fields[0].Options)
		assert.Equal(t, "input[name='q1'][value='yes']", fields[0].OptionSelectors["Yes"])
		assert.Equal(t, "yes", fields[0].OptionValues["Yes"])
	})

	t.Run("radio without name groups by id", func(t *testing.T) {
		t.Parallel()
		fields, err := ext.ExtractFields(`<form><input id="standalone" type="radio" value="v"></form>`, 0)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "standalone_0", fields[0].FieldID)
		assert.Equal(t, "#standalone", fields[0].OptionSelectors["v"])
	})

	t.Run("anonymous radio gets a generated group", func(t *testing.T) {
		t.Parallel()
		fields, err := ext.ExtractFields(`<form><input type="radio" value="solo" class="opt"></form>`, 0)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.True(t, strings.HasPrefix(fields[0].FieldID, "radio-"))
		assert.Equal(t, []string{"solo"}, fields[0].Options)
		assert.Equal(t, ".opt", fields[0].OptionSelectors["solo"])
	})

	t.Run("unselectable radios drop the whole group", func(t *testing.T) {
		t.Parallel()
		fields, err := ext.ExtractFields(`<form><input type="radio" value="ghost"></form>`, 0)
		require.NoError(t, err)
		assert.Empty(t, fields)
	})

	t.Run("question falls back through data-question and container", func(t *testing.T) {
		t.Parallel()
		fields, err := ext.ExtractFields(`<form><div data-question="Remote or onsite?">
			<input type="radio" name="loc" value="remote">
			<input type="radio" name="loc" value="onsite">
		</div></form>`, 0)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "Remote or onsite?", fields[0].Question)
		assert.Equal(t, []string{"remote", "onsite"}, fields[0].Options)
	})
}

func TestBuildSelectorPriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		html         string
		preferUnique bool
		want         string
	}{
		{"name wins", `<input name="email" id="e1" data-ui="x">`, false, "[name='email']"},
		{"data-ui after name", `<input id="e1" data-ui="field-x" data-testid="t">`, false, "[data-ui='field-x']"},
		{"data-testid next", `<input id="e1" data-testid="email-input">`, false, "[data-testid='email-input']"},
		{"id next", `<input id="e1" class="a b">`, false, "#e1"},
		{"aria-labelledby first token", `<input aria-labelledby="l1 l2" class="a">`, false, "[aria-labelledby~='l1']"},
		{"classes capped at three", `<input class="a b c d">`, false, ".a.b.c"},
		{"placeholder fallback", `<input placeholder="Search roles">`, false, "[placeholder='Search roles']"},
		{"nothing usable", `<input type="text">`, false, ""},
		{"unique pair for radio", `<input type="radio" name="q" value="yes" id="r1">`, true, "input[name='q'][value='yes']"},
		{"unique id when no value", `<input type="radio" name="q" id="r1">`, true, "#r1"},
		{"unique falls back to name last", `<input type="radio" name="q">`, true, "[name='q']"},
	}
	for _, tc := range cases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := goquery.NewDocumentFromReader(strings.NewReader("<form>" + tt.html + "</form>"))
			require.NoError(t, err)
			el := doc.Find("input").First()
			require.Positive(t, el.Length())
			assert.Equal(t, tt.want, buildSelector(el, tt.preferUnique))
		})
	}
}

// TestExtractFieldsCompleteDescriptors pins every populated field of two
// descriptors, including the metadata attributes the targeted tests above
// leave unasserted.
func TestExtractFieldsCompleteDescriptors(t *testing.T) {
	t.Parallel()
	ext := newTestExtractor(t)

	fields, err := ext.ExtractFields(`<form>
		<label for="phone">Phone number</label>
		<input type="tel" id="phone" name="phone" placeholder="+44 7700 900000" required>
		<select name="notice_period" aria-label="Notice period" data-ui="notice-period">
			<option value="">Select...</option>
			<option value="1m">One month</option>
			<option value="3m">Three months</option>
		</select>
	</form>`, 2)
	require.NoError(t, err)

	want := []schemas.FieldDescriptor{
		{
			FieldID:         "phone",
			Label:           "Phone number",
			Question:        "Phone number",
			Kind:            "input:tel",
			StepIndex:       2,
			Required:        true,
			Selector:        "[name='phone']",
			NameAttr:        "phone",
			Placeholder:     "+44 7700 900000",
			OptionSelectors: map[string]string{},
			Metadata: map[string]string{
				schemas.MetaFormIndex:     "0",
				schemas.MetaAriaLabel:     "",
				schemas.MetaAriaHaspopup:  "",
				schemas.MetaAriaControls:  "",
				schemas.MetaAriaOwns:      "",
				schemas.MetaAriaAuto:      "",
				schemas.MetaDataQuestion:  "",
				schemas.MetaDataUI:        "",
				schemas.MetaDataInputType: "",
				schemas.MetaRole:          "",
				schemas.MetaReadonly:      "",
			},
		},
		{
			FieldID:   "notice_period",
			Label:     "Notice period",
			Question:  "Notice period",
			Kind:      "select",
			StepIndex: 2,
			Selector:  "[name='notice_period']",
			NameAttr:  "notice_period",
			Options:   []string{"Select...", "One month", "Three months"},
			OptionValues: map[string]string{
				"Select...":    "Select...",
				"One month":    "1m",
				"Three months": "3m",
			},
			OptionSelectors: map[string]string{},
			Metadata: map[string]string{
				schemas.MetaFormIndex:     "0",
				schemas.MetaAriaLabel:     "Notice period",
				schemas.MetaAriaHaspopup:  "",
				schemas.MetaAriaControls:  "",
				schemas.MetaAriaOwns:      "",
				schemas.MetaAriaAuto:      "",
				schemas.MetaDataQuestion:  "",
				schemas.MetaDataUI:        "notice-period",
				schemas.MetaDataInputType: "",
				schemas.MetaRole:          "",
				schemas.MetaReadonly:      "",
			},
		},
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("extracted descriptors mismatch (-want +got):\n%s", diff)
	}
}

// -- Fuzz Testing --

// FuzzExtractor feeds arbitrary markup through both extraction passes. The
// goal is survival without panicking plus the structural guarantees every
// descriptor must carry.
func FuzzExtractor(f *testing.F) {
	f.Add([]byte(applyPageHTML))
	f.Add([]byte(`<form><input name="a"><input type="radio" name="r" value="1"></form>`))
	f.Add([]byte(""))
	f.Add([]byte("<<<<not html>>>>"))

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		html, err := consumer.GetString()
		if err != nil {
			return
		}
		stepIndex, err := consumer.GetInt()
		if err != nil {
			stepIndex = 0
		}

		ext := NewExtractor(config.Default().Heuristics, zap.NewNop())
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("panic during extraction: %v", r)
			}
		}()

		fields, ferr := ext.ExtractFields(html, stepIndex)
		if ferr == nil {
			for _, field := range fields {
				if field.FieldID == "" {
					t.Errorf("descriptor with empty field id: %+v", field)
				}
				if field.DisplayLabel() == "" {
					t.Errorf("descriptor with empty display label: %+v", field)
				}
				if field.IsRadio() && len(field.Options) != len(field.OptionSelectors) {
					t.Errorf("radio options and selectors disagree: %+v", field)
				}
			}
		}
		_, _ = ext.DetectApplyMethods(html)
	})
}

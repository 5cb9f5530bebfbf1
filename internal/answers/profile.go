// internal/answers/profile.go
package answers

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

// -- Profile document --

// Profile mirrors the meta block of the user profile document. Everything
// the heuristics consume lives under "meta".
type Profile struct {
	Meta ProfileMeta `json:"meta"`
}

// ProfileMeta carries contact details, work-authorization statements keyed by
// region ("uk", "eu"), a free-form location string, and a postal code.
type ProfileMeta struct {
	Contact           map[string]string `json:"contact"`
	WorkAuthorization map[string]string `json:"work_authorization"`
	Location          string            `json:"location"`
	PostalCode        string            `json:"postal_code"`
}

// keyword tables for the built-in heuristics
var (
	cityKeywords    = []string{"city", "town", "locality"}
	countryKeywords = []string{"country", "nation"}
	postalKeywords  = []string{"postcode", "postal", "zip"}

	countryNames = map[string]string{
		"uk":             "United Kingdom",
		"u.k.":           "United Kingdom",
		"united kingdom": "United Kingdom",
		"gb":             "United Kingdom",
		"great britain":  "United Kingdom",
		"usa":            "United States",
		"us":             "United States",
	}
)

// -- Resolver --

// ProfileResolver answers common application questions from the user profile
// and the configured document paths. It matches on keywords in the field's
// label and question text, with no semantic understanding: the answers file
// always wins over these heuristics.
type ProfileResolver struct {
	profile        Profile
	cvPath         string
	coverPath      string
	coverText      string
	resumeKeywords []string
	coverKeywords  []string
	location       locationParts
	logger         *zap.Logger
}

// NewProfileResolver loads the profile document named by cfg.Profile (an
// empty path means no profile, leaving only the document-path heuristics)
// and reads the cover letter text for non-file cover letter fields.
func NewProfileResolver(cfg config.AnswersConfig, heur config.HeuristicsConfig, logger *zap.Logger) (*ProfileResolver, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	r := &ProfileResolver{
		cvPath:         cfg.CVPath,
		coverPath:      cfg.CoverLetterPath,
		resumeKeywords: heur.ResumeKeywords,
		coverKeywords:  heur.CoverLetterKeywords,
		logger:         logger.With(zap.String("component", "answers")),
	}
	if cfg.Profile != "" {
		data, err := os.ReadFile(cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("profile file %s: %w", cfg.Profile, err)
		}
		if err := json.Unmarshal(data, &r.profile); err != nil {
			return nil, fmt.Errorf("profile file %s: %w", cfg.Profile, err)
		}
	}
	if cfg.CoverLetterPath != "" {
		text, err := os.ReadFile(cfg.CoverLetterPath)
		if err != nil {
			r.logger.Warn("Cover letter not readable; text fields will stay unanswered",
				zap.String("path", cfg.CoverLetterPath), zap.Error(err))
		} else {
			r.coverText = strings.TrimSpace(string(text))
		}
	}
	r.location = deriveLocationParts(r.profile.Meta)
	return r, nil
}

// Apply records an answer for every field a heuristic can serve, skipping
// field ids that already have records.
func (r *ProfileResolver) Apply(store *Store, fields []schemas.FieldDescriptor) {
	contact := r.profile.Meta.Contact
	workAuth := r.profile.Meta.WorkAuthorization
	for i := range fields {
		f := &fields[i]
		if store.Has(f.FieldID) {
			continue
		}
		descriptor := fieldDescriptorText(f)
		if descriptor == "" {
			continue
		}
		switch {
		case r.isResumeField(descriptor, f):
			r.record(store, f, r.cvPath, "auto_resume")
		case containsAny(descriptor, r.coverKeywords):
			answer := r.coverText
			if f.IsFileUpload() {
				answer = r.coverPath
			}
			r.record(store, f, answer, "auto_cover_letter")
		case strings.Contains(descriptor, "phone") && contact["phone"] != "":
			r.record(store, f, contact["phone"], "profile.phone")
		case strings.Contains(descriptor, "email") && contact["email"] != "":
			r.record(store, f, contact["email"], "profile.email")
		case containsAny(descriptor, cityKeywords):
			r.record(store, f, r.location.city, "profile.location")
		case containsAny(descriptor, countryKeywords):
			if r.location.countryFull != "" {
				answer := matchOption(f, r.location.countryFull)
				if answer == "" {
					answer = r.location.countryFull
				}
				r.record(store, f, answer, "profile.location")
			}
		case containsAny(descriptor, postalKeywords):
			r.record(store, f, r.location.postal, "profile.location")
		case strings.Contains(descriptor, "address") && r.location.full != "":
			r.record(store, f, r.location.full, "profile.location")
		case strings.Contains(descriptor, "right to work") || strings.Contains(descriptor, "work author"):
			preference := workAuth["uk"]
			if preference == "" {
				preference = workAuth["eu"]
			}
			r.record(store, f, matchOption(f, preference), "profile.work_authorization")
		}
	}
}

func (r *ProfileResolver) isResumeField(descriptor string, f *schemas.FieldDescriptor) bool {
	if containsAny(descriptor, r.resumeKeywords) {
		return true
	}
	return f.IsFileUpload() &&
		(strings.Contains(descriptor, "apply") || strings.Contains(descriptor, "attachment"))
}

func (r *ProfileResolver) record(store *Store, f *schemas.FieldDescriptor, answer, source string) {
	if answer == "" {
		return
	}
	store.Put(schemas.AnswerRecord{
		FieldID:     f.FieldID,
		Answer:      answer,
		DisplayName: displayNameFor(f),
		Source:      source,
		ApprovedBy:  "AutoHeuristics",
	})
	r.logger.Debug("Auto-answered field",
		zap.String("field_id", f.FieldID), zap.String("source", source))
}

// fieldDescriptorText is the lowercased text the keyword heuristics match
// against: label plus question, falling back to the name attribute and then
// the field id.
func fieldDescriptorText(f *schemas.FieldDescriptor) string {
	descriptor := strings.TrimSpace(strings.ToLower(f.Label) + " " + strings.ToLower(f.Question))
	if descriptor == "" {
		descriptor = strings.ToLower(f.NameAttr)
	}
	if descriptor == "" {
		descriptor = strings.ToLower(f.FieldID)
	}
	return descriptor
}

// -- Location parsing --

type locationParts struct {
	full        string
	city        string
	country     string
	countryFull string
	postal      string
}

// deriveLocationParts splits a free-form location like "London, UK" on
// commas and slashes: the first segment is the city, the last the country.
func deriveLocationParts(meta ProfileMeta) locationParts {
	location := strings.TrimSpace(meta.Location)
	var parts []string
	for _, part := range strings.FieldsFunc(location, func(r rune) bool { return r == ',' || r == '/' }) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	lp := locationParts{full: location, postal: strings.TrimSpace(meta.PostalCode)}
	if len(parts) > 0 {
		lp.city = parts[0]
		lp.country = parts[len(parts)-1]
	}
	lp.countryFull = normalizeCountryName(lp.country)
	if lp.countryFull == "" {
		lp.countryFull = lp.country
	}
	return lp
}

func normalizeCountryName(name string) string {
	if mapped, ok := countryNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return mapped
	}
	return strings.TrimSpace(name)
}

// -- Option matching --

// matchOption picks the field option that best matches the preference:
// exact or substring match in either direction first, then any whitespace
// token of the preference appearing in an option. Fields without options
// accept the preference verbatim.
func matchOption(f *schemas.FieldDescriptor, preference string) string {
	if preference == "" {
		return ""
	}
	if len(f.Options) == 0 {
		return preference
	}
	prefLower := strings.ToLower(preference)
	for _, option := range f.Options {
		optLower := strings.ToLower(option)
		if optLower == prefLower ||
			strings.Contains(optLower, prefLower) ||
			strings.Contains(prefLower, optLower) {
			return option
		}
	}
	for _, option := range f.Options {
		optLower := strings.ToLower(option)
		for _, token := range strings.Fields(prefLower) {
			if strings.Contains(optLower, token) {
				return option
			}
		}
	}
	return ""
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

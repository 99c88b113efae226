// Package normalize maps raw backend profile documents onto the canonical
// output schema. Normalization is total: absent or malformed fields become
// null, never errors.
package normalize

import "time"

// Record is the canonical output schema. Every field except ScrapedAt is
// independently nullable; values keep whatever JSON type the backend sent.
type Record struct {
	// Identity.
	Name          any `json:"name"`
	Email         any `json:"email"`
	Mobile        any `json:"mobile"`
	Gender        any `json:"gender"`
	DateOfBirth   any `json:"dateOfBirth"`
	MaritalStatus any `json:"maritalStatus"`

	// Location.
	CurrentLocation    any `json:"currentLocation"`
	PermanentAddress   any `json:"permanentAddress"`
	PreferredLocations any `json:"preferredLocations"`

	// Current employment.
	CurrentDesignation any `json:"currentDesignation"`
	CurrentCompany     any `json:"currentCompany"`
	CurrentRole        any `json:"currentRole"`
	FunctionalArea     any `json:"functionalArea"`
	IndustryType       any `json:"industryType"`
	EmploymentType     any `json:"employmentType"`

	// Previous employment.
	PreviousDesignation any `json:"previousDesignation"`
	PreviousCompany     any `json:"previousCompany"`

	// Experience and compensation.
	TotalExperience any `json:"totalExperience"`
	CurrentCTC      any `json:"currentCTC"`
	ExpectedCTC     any `json:"expectedCTC"`
	NoticePeriod    any `json:"noticePeriod"`

	// Education, sliced positionally from the raw list. The first entry
	// maps to the ug* tier and the second to pg*; this is a heuristic,
	// the backend does not tag entries by tier.
	UGDegree         any `json:"ugDegree"`
	UGSpecialization any `json:"ugSpecialization"`
	UGInstitute      any `json:"ugInstitute"`
	UGYear           any `json:"ugYear"`
	PGDegree         any `json:"pgDegree"`
	PGSpecialization any `json:"pgSpecialization"`
	PGInstitute      any `json:"pgInstitute"`
	PGYear           any `json:"pgYear"`

	// Skills and profile.
	KeySkills      any `json:"keySkills"`
	JobTitle       any `json:"jobTitle"`
	ProfileSummary any `json:"profileSummary"`

	// Profile stats.
	ProfileViews     any `json:"profileViews"`
	ProfileDownloads any `json:"profileDownloads"`

	// CV.
	CVAttached any `json:"cvAttached"`
	TextCV     any `json:"textCv"`

	// Metadata.
	ProfileLastModified any    `json:"profileLastModified"`
	ProfileLastActive   any    `json:"profileLastActive"`
	ScrapedAt           string `json:"scrapedAt"`
}

// Normalizer converts raw detail documents into Records.
type Normalizer struct {
	now func() time.Time
}

// New creates a normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock creates a normalizer with an injected clock.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize maps a raw detail document onto the canonical schema. It never
// fails; alternate source field names are tried in priority order.
func (n *Normalizer) Normalize(raw map[string]any) *Record {
	edu := educations(raw)

	return &Record{
		Name:          field(raw, "name"),
		Email:         field(raw, "email"),
		Mobile:        field(raw, "mobile"),
		Gender:        field(raw, "gender"),
		DateOfBirth:   field(raw, "dateOfBirth", "birthDate"),
		MaritalStatus: field(raw, "maritalStatus"),

		CurrentLocation:    field(raw, "currentLocation", "mailCity"),
		PermanentAddress:   field(raw, "permanentAddress"),
		PreferredLocations: field(raw, "preferredLocations"),

		CurrentDesignation: field(raw, "currentDesignation"),
		CurrentCompany:     field(raw, "currentCompany"),
		CurrentRole:        field(raw, "currentRole"),
		FunctionalArea:     field(raw, "functionalArea"),
		IndustryType:       field(raw, "industryType"),
		EmploymentType:     field(raw, "employmentType"),

		PreviousDesignation: field(raw, "previousDesignation"),
		PreviousCompany:     field(raw, "previousCompany"),

		TotalExperience: field(raw, "totalExperience"),
		CurrentCTC:      field(raw, "currentCTC"),
		ExpectedCTC:     field(raw, "expectedCTC"),
		NoticePeriod:    field(raw, "noticePeriod"),

		UGDegree:         eduField(edu, 0, "degree"),
		UGSpecialization: eduField(edu, 0, "specialization"),
		UGInstitute:      eduField(edu, 0, "institute"),
		UGYear:           eduField(edu, 0, "year"),
		PGDegree:         eduField(edu, 1, "degree"),
		PGSpecialization: eduField(edu, 1, "specialization"),
		PGInstitute:      eduField(edu, 1, "institute"),
		PGYear:           eduField(edu, 1, "year"),

		KeySkills:      field(raw, "mergedKeySkill", "keywords"),
		JobTitle:       field(raw, "jobTitle"),
		ProfileSummary: field(raw, "profileSummary", "summary"),

		ProfileViews:     field(raw, "profileViews"),
		ProfileDownloads: field(raw, "profileDownloads"),

		CVAttached: field(raw, "cvAttached"),
		TextCV:     field(raw, "textCv"),

		ProfileLastModified: field(raw, "profileLastModified"),
		ProfileLastActive:   field(raw, "profileLastActive"),
		ScrapedAt:           n.now().UTC().Format(time.RFC3339),
	}
}

// field returns the first non-nil value among the given keys.
func field(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// educations extracts the raw education list, tolerating absent or
// non-list values.
func educations(raw map[string]any) []map[string]any {
	list, ok := raw["educations"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func eduField(edu []map[string]any, idx int, key string) any {
	if idx >= len(edu) {
		return nil
	}
	return field(edu[idx], key)
}

package transfer

import (
	"strings"
	"unicode"

	"controlroom/internal/store"
)

// Field is a canonical control attribute a column can map to.
type Field string

const (
	FieldID                    Field = "id"
	FieldName                  Field = "name"
	FieldDescription           Field = "description"
	FieldCategory              Field = "category"
	FieldStatus                Field = "status"
	FieldType                  Field = "type"
	FieldOwner                 Field = "owner"
	FieldOwnerEmail            Field = "ownerEmail"
	FieldFrameworks            Field = "frameworks"
	FieldLastTested            Field = "lastTested"
	FieldNextReview            Field = "nextReview"
	FieldTestFrequency         Field = "testFrequency"
	FieldImplementationDetails Field = "implementationDetails"
	FieldFailureReason         Field = "failureReason"
)

// CSVHeader is the fixed column order written by exports.
var CSVHeader = []string{
	"ID", "Name", "Description", "Category", "Status", "Type", "Owner", "Owner Email",
	"Frameworks", "Last Tested", "Next Review", "Test Frequency", "Implementation Details", "Failure Reason",
}

// headerAliases maps normalised header spellings to fields.
var headerAliases = map[string]Field{
	"id": FieldID, "controlid": FieldID, "ctrlid": FieldID, "ctrlno": FieldID, "ctrl": FieldID,
	"controlno": FieldID, "controlnumber": FieldID, "controlref": FieldID, "ref": FieldID, "reference": FieldID,

	"name": FieldName, "controlname": FieldName, "title": FieldName, "controltitle": FieldName,

	"description": FieldDescription, "desc": FieldDescription, "controldescription": FieldDescription, "summary": FieldDescription,

	"category": FieldCategory, "controlcategory": FieldCategory, "domain": FieldCategory, "controldomain": FieldCategory,

	"status": FieldStatus, "controlstatus": FieldStatus, "state": FieldStatus, "reviewstatus": FieldStatus,

	"type": FieldType, "controltype": FieldType, "automation": FieldType,

	"owner": FieldOwner, "controlowner": FieldOwner, "ownername": FieldOwner, "responsible": FieldOwner,

	"owneremail": FieldOwnerEmail, "email": FieldOwnerEmail, "ownermail": FieldOwnerEmail, "contactemail": FieldOwnerEmail,

	"frameworks": FieldFrameworks, "framework": FieldFrameworks, "frameworkids": FieldFrameworks, "standards": FieldFrameworks,

	"lasttested": FieldLastTested, "lasttestdate": FieldLastTested, "lasttest": FieldLastTested, "tested": FieldLastTested,

	"nextreview": FieldNextReview, "nextreviewdate": FieldNextReview, "reviewdate": FieldNextReview, "nextreviewdue": FieldNextReview,

	"testfrequency": FieldTestFrequency, "frequency": FieldTestFrequency, "testingfrequency": FieldTestFrequency,

	"implementationdetails": FieldImplementationDetails, "implementation": FieldImplementationDetails, "details": FieldImplementationDetails,

	"failurereason": FieldFailureReason, "failure": FieldFailureReason, "reason": FieldFailureReason, "exception": FieldFailureReason,
}

// MatchHeader maps a column title such as "Control ID" or "Ctrl #" to its
// field. Matching ignores case, spacing and punctuation; "#" reads as "no".
func MatchHeader(title string) (Field, bool) {
	field, ok := headerAliases[normalizeHeader(title)]
	return field, ok
}

func normalizeHeader(title string) string {
	title = strings.ReplaceAll(strings.ToLower(title), "#", "no")
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// columnMap resolves each header cell to a field. The first column matching a
// field wins; unknown columns are ignored.
func columnMap(header []string) (map[Field]int, error) {
	columns := make(map[Field]int)
	for i, title := range header {
		field, ok := MatchHeader(title)
		if !ok {
			continue
		}
		if _, taken := columns[field]; !taken {
			columns[field] = i
		}
	}
	if _, ok := columns[FieldID]; !ok {
		return nil, ErrMissingIDColumn
	}
	return columns, nil
}

// record is one imported row keyed by field.
type record map[Field]string

func rowRecord(row []string, columns map[Field]int) record {
	rec := make(record, len(columns))
	for field, idx := range columns {
		if idx < len(row) {
			rec[field] = strings.TrimSpace(row[idx])
		}
	}
	return rec
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// toControl coerces a row into a control. Unknown status, category and type
// fall back to Needs Review, Access Control and Manual; a missing ID is an
// error. Evidence links never come from tabular formats.
func (rec record) toControl() (store.Control, error) {
	id := rec[FieldID]
	if id == "" {
		return store.Control{}, ErrMissingID
	}
	return store.Control{
		ID:                    id,
		Name:                  rec[FieldName],
		Description:           rec[FieldDescription],
		Category:              CoerceCategory(rec[FieldCategory]),
		Status:                CoerceStatus(rec[FieldStatus]),
		Type:                  CoerceType(rec[FieldType]),
		Owner:                 rec[FieldOwner],
		OwnerEmail:            rec[FieldOwnerEmail],
		Frameworks:            SplitFrameworks(rec[FieldFrameworks]),
		EvidenceIDs:           []string{},
		LastTested:            rec[FieldLastTested],
		NextReview:            rec[FieldNextReview],
		TestFrequency:         rec[FieldTestFrequency],
		ImplementationDetails: rec[FieldImplementationDetails],
		FailureReason:         rec[FieldFailureReason],
	}, nil
}

func CoerceStatus(value string) store.ControlStatus {
	if status, ok := store.ParseControlStatus(value); ok {
		return status
	}
	return store.StatusNeedsReview
}

func CoerceCategory(value string) store.Category {
	if category, ok := store.ParseCategory(value); ok {
		return category
	}
	return store.CategoryAccessControl
}

func CoerceType(value string) store.ControlType {
	if controlType, ok := store.ParseControlType(value); ok {
		return controlType
	}
	return store.ControlManual
}

// SplitFrameworks reads a ";" separated list, also accepting ",".
func SplitFrameworks(value string) []string {
	out := make([]string, 0)
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ';' || r == ',' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func controlRow(control store.Control) []string {
	return []string{
		control.ID,
		control.Name,
		control.Description,
		string(control.Category),
		string(control.Status),
		string(control.Type),
		control.Owner,
		control.OwnerEmail,
		strings.Join(control.Frameworks, ";"),
		control.LastTested,
		control.NextReview,
		control.TestFrequency,
		control.ImplementationDetails,
		control.FailureReason,
	}
}

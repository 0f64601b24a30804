package store

import "time"

type Control struct {
	ID                    string        `json:"id"`
	Name                  string        `json:"name"`
	Description           string        `json:"description"`
	Category              Category      `json:"category"`
	Status                ControlStatus `json:"status"`
	Type                  ControlType   `json:"type"`
	Owner                 string        `json:"owner"`
	OwnerEmail            string        `json:"ownerEmail"`
	Frameworks            []string      `json:"frameworks"`
	EvidenceIDs           []string      `json:"evidenceIds"`
	LastTested            string        `json:"lastTested"`
	NextReview            string        `json:"nextReview"`
	TestFrequency         string        `json:"testFrequency"`
	ImplementationDetails string        `json:"implementationDetails"`
	FailureReason         string        `json:"failureReason,omitempty"`
}

type Framework struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	// Readiness is curated reference data; only the live framework is computed from controls.
	Readiness  int                 `json:"readiness"`
	Categories []FrameworkCategory `json:"categories"`
}

type FrameworkCategory struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Requirements []Requirement `json:"requirements"`
}

type Requirement struct {
	ID                string            `json:"id"`
	Code              string            `json:"code"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Status            RequirementStatus `json:"status"`
	MappedControlIDs  []string          `json:"mappedControlIds"`
	MappedEvidenceIDs []string          `json:"mappedEvidenceIds"`
}

type Evidence struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Type           EvidenceType   `json:"type"`
	Status         EvidenceStatus `json:"status"`
	ControlIDs     []string       `json:"controlIds"`
	UploadedBy     string         `json:"uploadedBy"`
	UploadDate     string         `json:"uploadDate"`
	ExpirationDate string         `json:"expirationDate,omitempty"`
	FileSize       string         `json:"fileSize"`
	MimeType       string         `json:"mimeType"`
	ObjectKey      string         `json:"objectKey,omitempty"`
	Digest         string         `json:"digest,omitempty"`
}

type ControlMessage struct {
	ID             string         `json:"id"`
	ControlID      string         `json:"controlId"`
	Type           MessageType    `json:"type"`
	Author         string         `json:"author"`
	AuthorRole     string         `json:"authorRole"`
	Content        string         `json:"content"`
	Mentions       []string       `json:"mentions,omitempty"`
	PreviousStatus *ControlStatus `json:"previousStatus,omitempty"`
	NewStatus      *ControlStatus `json:"newStatus,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

type ControlTask struct {
	ID            string     `json:"id"`
	ControlID     string     `json:"controlId"`
	ControlName   string     `json:"controlName"`
	RequestedBy   string     `json:"requestedBy"`
	RequesterRole string     `json:"requesterRole"`
	Message       string     `json:"message"`
	Status        TaskStatus `json:"status"`
	AssignedTo    string     `json:"assignedTo,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type Audit struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	FrameworkID string      `json:"frameworkId"`
	Auditor     string      `json:"auditor"`
	Status      AuditStatus `json:"status"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
}

type Settings struct {
	OrganizationName     string `json:"organizationName"`
	PrimaryFrameworkID   string `json:"primaryFrameworkId"`
	ReviewReminderDays   int    `json:"reviewReminderDays"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}

// Clone returns a copy whose slices do not alias c.
func (c Control) Clone() Control {
	c.Frameworks = CloneStrings(c.Frameworks)
	c.EvidenceIDs = CloneStrings(c.EvidenceIDs)
	return c
}

func (e Evidence) Clone() Evidence {
	e.ControlIDs = CloneStrings(e.ControlIDs)
	return e
}

// CloneStrings copies values and never returns nil, so empty lists persist as [].
func CloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

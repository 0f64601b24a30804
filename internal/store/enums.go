package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ControlStatus string

const (
	StatusNeedsReview              ControlStatus = "Needs Review"
	StatusAdditionalEvidenceNeeded ControlStatus = "Additional Evidence Needed"
	StatusAccepted                 ControlStatus = "Accepted"
	StatusNotApplicable            ControlStatus = "Not Applicable"
)

var ControlStatuses = []ControlStatus{
	StatusNeedsReview,
	StatusAdditionalEvidenceNeeded,
	StatusAccepted,
	StatusNotApplicable,
}

type Category string

const (
	CategoryAccessControl      Category = "Access Control"
	CategoryAssetManagement    Category = "Asset Management"
	CategoryBusinessContinuity Category = "Business Continuity"
	CategoryChangeManagement   Category = "Change Management"
	CategoryCryptography       Category = "Cryptography"
	CategoryDataProtection     Category = "Data Protection"
	CategoryHumanResources     Category = "Human Resources"
	CategoryIncidentResponse   Category = "Incident Response"
	CategoryNetworkSecurity    Category = "Network Security"
	CategoryPhysicalSecurity   Category = "Physical Security"
	CategoryRiskManagement     Category = "Risk Management"
	CategoryVendorManagement   Category = "Vendor Management"
)

var Categories = []Category{
	CategoryAccessControl,
	CategoryAssetManagement,
	CategoryBusinessContinuity,
	CategoryChangeManagement,
	CategoryCryptography,
	CategoryDataProtection,
	CategoryHumanResources,
	CategoryIncidentResponse,
	CategoryNetworkSecurity,
	CategoryPhysicalSecurity,
	CategoryRiskManagement,
	CategoryVendorManagement,
}

type ControlType string

const (
	ControlAutomated ControlType = "Automated"
	ControlManual    ControlType = "Manual"
)

var ControlTypes = []ControlType{ControlAutomated, ControlManual}

type RequirementStatus string

const (
	RequirementSatisfied          RequirementStatus = "Satisfied"
	RequirementPartiallySatisfied RequirementStatus = "Partially Satisfied"
	RequirementNotSatisfied       RequirementStatus = "Not Satisfied"
	RequirementNotApplicable      RequirementStatus = "Not Applicable"
)

var RequirementStatuses = []RequirementStatus{
	RequirementSatisfied,
	RequirementPartiallySatisfied,
	RequirementNotSatisfied,
	RequirementNotApplicable,
}

type EvidenceType string

const (
	EvidenceScreenshot  EvidenceType = "Screenshot"
	EvidenceDocument    EvidenceType = "Document"
	EvidenceReport      EvidenceType = "Report"
	EvidenceCertificate EvidenceType = "Certificate"
	EvidenceAPI         EvidenceType = "API"
	EvidenceAutomated   EvidenceType = "Automated"
	EvidencePopulation  EvidenceType = "Population"
)

var EvidenceTypes = []EvidenceType{
	EvidenceScreenshot,
	EvidenceDocument,
	EvidenceReport,
	EvidenceCertificate,
	EvidenceAPI,
	EvidenceAutomated,
	EvidencePopulation,
}

type EvidenceStatus string

const (
	EvidenceCurrent       EvidenceStatus = "Current"
	EvidenceExpiringSoon  EvidenceStatus = "Expiring Soon"
	EvidenceExpired       EvidenceStatus = "Expired"
	EvidencePendingReview EvidenceStatus = "Pending Review"
)

var EvidenceStatuses = []EvidenceStatus{
	EvidenceCurrent,
	EvidenceExpiringSoon,
	EvidenceExpired,
	EvidencePendingReview,
}

type MessageType string

const (
	MessageComment         MessageType = "comment"
	MessageStatusChange    MessageType = "status_change"
	MessageEvidenceRequest MessageType = "evidence_request"
)

var MessageTypes = []MessageType{MessageComment, MessageStatusChange, MessageEvidenceRequest}

type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskResolved   TaskStatus = "resolved"
)

var TaskStatuses = []TaskStatus{TaskOpen, TaskInProgress, TaskResolved}

type AuditStatus string

const (
	AuditPlanned    AuditStatus = "Planned"
	AuditInProgress AuditStatus = "In Progress"
	AuditCompleted  AuditStatus = "Completed"
)

var AuditStatuses = []AuditStatus{AuditPlanned, AuditInProgress, AuditCompleted}

func (s ControlStatus) Valid() bool     { return contains(ControlStatuses, s) }
func (c Category) Valid() bool          { return contains(Categories, c) }
func (t ControlType) Valid() bool       { return contains(ControlTypes, t) }
func (s RequirementStatus) Valid() bool { return contains(RequirementStatuses, s) }
func (t EvidenceType) Valid() bool      { return contains(EvidenceTypes, t) }
func (s EvidenceStatus) Valid() bool    { return contains(EvidenceStatuses, s) }
func (t MessageType) Valid() bool       { return contains(MessageTypes, t) }
func (s TaskStatus) Valid() bool        { return contains(TaskStatuses, s) }
func (s AuditStatus) Valid() bool       { return contains(AuditStatuses, s) }

// ParseControlStatus matches value case-insensitively against the known statuses.
func ParseControlStatus(value string) (ControlStatus, bool) { return parse(ControlStatuses, value) }

// ParseCategory matches value case-insensitively against the twelve control domains.
func ParseCategory(value string) (Category, bool) { return parse(Categories, value) }

func ParseControlType(value string) (ControlType, bool)   { return parse(ControlTypes, value) }
func ParseEvidenceType(value string) (EvidenceType, bool) { return parse(EvidenceTypes, value) }
func ParseTaskStatus(value string) (TaskStatus, bool)     { return parse(TaskStatuses, value) }

func (s *ControlStatus) UnmarshalJSON(data []byte) error     { return unmarshalEnum(data, ControlStatuses, s) }
func (c *Category) UnmarshalJSON(data []byte) error          { return unmarshalEnum(data, Categories, c) }
func (t *ControlType) UnmarshalJSON(data []byte) error       { return unmarshalEnum(data, ControlTypes, t) }
func (s *RequirementStatus) UnmarshalJSON(data []byte) error { return unmarshalEnum(data, RequirementStatuses, s) }
func (t *EvidenceType) UnmarshalJSON(data []byte) error      { return unmarshalEnum(data, EvidenceTypes, t) }
func (s *EvidenceStatus) UnmarshalJSON(data []byte) error    { return unmarshalEnum(data, EvidenceStatuses, s) }
func (t *MessageType) UnmarshalJSON(data []byte) error       { return unmarshalEnum(data, MessageTypes, t) }
func (s *TaskStatus) UnmarshalJSON(data []byte) error        { return unmarshalEnum(data, TaskStatuses, s) }
func (s *AuditStatus) UnmarshalJSON(data []byte) error       { return unmarshalEnum(data, AuditStatuses, s) }

func contains[T ~string](values []T, value T) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}

func parse[T ~string](values []T, raw string) (T, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, candidate := range values {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, true
		}
	}
	var zero T
	return zero, false
}

func unmarshalEnum[T ~string](data []byte, values []T, target *T) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value := T(raw)
	if !contains(values, value) {
		return fmt.Errorf("unknown value %q", raw)
	}
	*target = value
	return nil
}

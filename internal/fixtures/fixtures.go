// Package fixtures holds the seed data used whenever nothing has been persisted yet.
// Every function returns a fresh copy.
package fixtures

import "controlroom/internal/store"

const LiveFrameworkID = "soc2"

func Controls() []store.Control {
	return []store.Control{
		{
			ID: "CTL-001", Name: "Multi-Factor Authentication",
			Description: "MFA is enforced for all workforce access to production systems and the identity provider.",
			Category:    store.CategoryAccessControl, Status: store.StatusAccepted, Type: store.ControlAutomated,
			Owner: "Sarah Chen", OwnerEmail: "sarah.chen@acme.io",
			Frameworks: []string{"soc2", "iso27001", "hipaa"}, EvidenceIDs: []string{"EV-001", "EV-002"},
			LastTested: "2024-05-02", NextReview: "2024-08-02", TestFrequency: "Quarterly",
			ImplementationDetails: "Okta enforces WebAuthn or TOTP for every application in the production tile.",
		},
		{
			ID: "CTL-002", Name: "Quarterly Access Reviews",
			Description: "System owners review user access to in-scope systems every quarter.",
			Category:    store.CategoryAccessControl, Status: store.StatusAdditionalEvidenceNeeded, Type: store.ControlManual,
			Owner: "Marcus Webb", OwnerEmail: "marcus.webb@acme.io",
			Frameworks: []string{"soc2", "iso27001"}, EvidenceIDs: []string{"EV-003"},
			LastTested: "2024-04-15", NextReview: "2024-07-15", TestFrequency: "Quarterly",
			ImplementationDetails: "Reviews run in the GRC ticket queue; revocations are tracked to closure.",
			FailureReason:         "Q1 review is missing sign-off for the billing database.",
		},
		{
			ID: "CTL-003", Name: "Encryption at Rest",
			Description: "Customer data stores are encrypted at rest with AES-256 managed keys.",
			Category:    store.CategoryCryptography, Status: store.StatusAccepted, Type: store.ControlAutomated,
			Owner: "Priya Patel", OwnerEmail: "priya.patel@acme.io",
			Frameworks: []string{"soc2", "hipaa", "gdpr"}, EvidenceIDs: []string{"EV-004"},
			LastTested: "2024-05-10", NextReview: "2024-11-10", TestFrequency: "Semi-Annually",
			ImplementationDetails: "RDS, S3 and EBS default encryption enabled through organization SCPs.",
		},
		{
			ID: "CTL-004", Name: "Change Approval",
			Description: "Production changes require peer review and approval before deployment.",
			Category:    store.CategoryChangeManagement, Status: store.StatusNeedsReview, Type: store.ControlAutomated,
			Owner: "David Kim", OwnerEmail: "david.kim@acme.io",
			Frameworks: []string{"soc2", "iso27001"}, EvidenceIDs: []string{"EV-005"},
			LastTested: "2024-03-28", NextReview: "2024-06-28", TestFrequency: "Quarterly",
			ImplementationDetails: "Branch protection requires one approving review and passing CI on main.",
		},
		{
			ID: "CTL-005", Name: "Security Awareness Training",
			Description: "All personnel complete security awareness training at hire and annually.",
			Category:    store.CategoryHumanResources, Status: store.StatusNeedsReview, Type: store.ControlManual,
			Owner: "Lisa Thompson", OwnerEmail: "lisa.thompson@acme.io",
			Frameworks: []string{"soc2", "hipaa", "iso27001"}, EvidenceIDs: []string{"EV-006"},
			LastTested: "2024-01-20", NextReview: "2025-01-20", TestFrequency: "Annually",
			ImplementationDetails: "Training assigned through the LMS with completion tracked by HR.",
		},
		{
			ID: "CTL-006", Name: "Incident Response Plan",
			Description: "A documented incident response plan is maintained and tested annually.",
			Category:    store.CategoryIncidentResponse, Status: store.StatusAccepted, Type: store.ControlManual,
			Owner: "James Rodriguez", OwnerEmail: "james.rodriguez@acme.io",
			Frameworks: []string{"soc2", "hipaa", "iso27001", "gdpr"}, EvidenceIDs: []string{"EV-007"},
			LastTested: "2024-02-12", NextReview: "2025-02-12", TestFrequency: "Annually",
			ImplementationDetails: "Tabletop exercise run each February; plan stored in the policy library.",
		},
		{
			ID: "CTL-007", Name: "Network Segmentation",
			Description: "Production networks are segmented from corporate and development networks.",
			Category:    store.CategoryNetworkSecurity, Status: store.StatusNeedsReview, Type: store.ControlAutomated,
			Owner: "Priya Patel", OwnerEmail: "priya.patel@acme.io",
			Frameworks: []string{"soc2", "iso27001"}, EvidenceIDs: []string{},
			LastTested: "2024-04-02", NextReview: "2024-10-02", TestFrequency: "Semi-Annually",
			ImplementationDetails: "Separate VPCs per environment with deny-by-default security groups.",
		},
		{
			ID: "CTL-008", Name: "Vendor Risk Assessments",
			Description: "Critical vendors are assessed before onboarding and reviewed annually.",
			Category:    store.CategoryVendorManagement, Status: store.StatusAdditionalEvidenceNeeded, Type: store.ControlManual,
			Owner: "Marcus Webb", OwnerEmail: "marcus.webb@acme.io",
			Frameworks: []string{"soc2", "gdpr"}, EvidenceIDs: []string{"EV-008"},
			LastTested: "2024-03-05", NextReview: "2025-03-05", TestFrequency: "Annually",
			ImplementationDetails: "Questionnaires and SOC reports collected in the vendor inventory.",
			FailureReason:         "Two critical vendors lack a current SOC 2 report.",
		},
		{
			ID: "CTL-009", Name: "Backup and Restore Testing",
			Description: "Production backups run daily and restores are tested quarterly.",
			Category:    store.CategoryBusinessContinuity, Status: store.StatusNeedsReview, Type: store.ControlAutomated,
			Owner: "David Kim", OwnerEmail: "david.kim@acme.io",
			Frameworks: []string{"soc2", "hipaa"}, EvidenceIDs: []string{"EV-009", "EV-404"},
			LastTested: "2024-04-30", NextReview: "2024-07-30", TestFrequency: "Quarterly",
			ImplementationDetails: "Point-in-time recovery enabled; restore drill results logged in runbooks.",
		},
		{
			ID: "CTL-010", Name: "Risk Assessment",
			Description: "An enterprise risk assessment is performed and reviewed by leadership annually.",
			Category:    store.CategoryRiskManagement, Status: store.StatusAccepted, Type: store.ControlManual,
			Owner: "Sarah Chen", OwnerEmail: "sarah.chen@acme.io",
			Frameworks: []string{"soc2", "iso27001"}, EvidenceIDs: []string{"EV-010"},
			LastTested: "2024-01-31", NextReview: "2025-01-31", TestFrequency: "Annually",
			ImplementationDetails: "Risk register maintained with likelihood and impact scoring.",
		},
		{
			ID: "CTL-011", Name: "Asset Inventory",
			Description: "Hardware and software assets are inventoried with assigned owners.",
			Category:    store.CategoryAssetManagement, Status: store.StatusNotApplicable, Type: store.ControlAutomated,
			Owner: "Lisa Thompson", OwnerEmail: "lisa.thompson@acme.io",
			Frameworks: []string{"iso27001"}, EvidenceIDs: []string{},
			LastTested: "2024-02-28", NextReview: "2024-08-28", TestFrequency: "Semi-Annually",
			ImplementationDetails: "MDM and cloud inventory feeds reconcile nightly.",
		},
		{
			ID: "CTL-012", Name: "Data Retention and Disposal",
			Description: "Customer data is retained and disposed of according to the retention schedule.",
			Category:    store.CategoryDataProtection, Status: store.StatusNeedsReview, Type: store.ControlManual,
			Owner: "James Rodriguez", OwnerEmail: "james.rodriguez@acme.io",
			Frameworks: []string{"gdpr", "hipaa"}, EvidenceIDs: []string{},
			LastTested: "2024-03-15", NextReview: "2024-09-15", TestFrequency: "Semi-Annually",
			ImplementationDetails: "Lifecycle policies purge deleted tenant data after 30 days.",
		},
	}
}

func Evidence() []store.Evidence {
	return []store.Evidence{
		{ID: "EV-001", Name: "Okta MFA Policy Export", Description: "Export of the global session policy requiring MFA.", Type: store.EvidenceScreenshot, Status: store.EvidenceCurrent, ControlIDs: []string{"CTL-001"}, UploadedBy: "Sarah Chen", UploadDate: "2024-05-02", FileSize: "1.2 MB", MimeType: "image/png"},
		{ID: "EV-002", Name: "MFA Enrollment Population", Description: "All active users with enrolled factors.", Type: store.EvidencePopulation, Status: store.EvidenceCurrent, ControlIDs: []string{"CTL-001"}, UploadedBy: "Sarah Chen", UploadDate: "2024-05-02", FileSize: "84 kB", MimeType: "text/csv"},
		{ID: "EV-003", Name: "Q1 Access Review Tickets", Description: "Completed review tickets for Q1.", Type: store.EvidenceReport, Status: store.EvidencePendingReview, ControlIDs: []string{"CTL-002"}, UploadedBy: "Marcus Webb", UploadDate: "2024-04-15", FileSize: "640 kB", MimeType: "application/pdf"},
		{ID: "EV-004", Name: "KMS Configuration", Description: "Key policies and rotation configuration.", Type: store.EvidenceAPI, Status: store.EvidenceCurrent, ControlIDs: []string{"CTL-003"}, UploadedBy: "Priya Patel", UploadDate: "2024-05-10", FileSize: "22 kB", MimeType: "application/json"},
		{ID: "EV-005", Name: "Branch Protection Settings", Description: "Repository rules for the main branch.", Type: store.EvidenceAutomated, Status: store.EvidenceCurrent, ControlIDs: []string{"CTL-004"}, UploadedBy: "David Kim", UploadDate: "2024-03-28", FileSize: "12 kB", MimeType: "application/json"},
		{ID: "EV-006", Name: "Training Completion Report", Description: "LMS completion export for all staff.", Type: store.EvidenceReport, Status: store.EvidenceExpiringSoon, ControlIDs: []string{"CTL-005"}, UploadedBy: "Lisa Thompson", UploadDate: "2024-01-20", ExpirationDate: "2024-07-20", FileSize: "310 kB", MimeType: "application/pdf"},
		{ID: "EV-007", Name: "Incident Response Plan v3", Description: "Current incident response plan.", Type: store.EvidenceDocument, Status: store.EvidenceCurrent, ControlIDs: []string{"CTL-006"}, UploadedBy: "James Rodriguez", UploadDate: "2024-02-12", FileSize: "2.4 MB", MimeType: "application/pdf"},
		{ID: "EV-008", Name: "Vendor SOC 2 Reports", Description: "Collected vendor attestation reports.", Type: store.EvidenceCertificate, Status: store.EvidenceExpired, ControlIDs: []string{"CTL-008"}, UploadedBy: "Marcus Webb", UploadDate: "2023-03-05", ExpirationDate: "2024-03-05", FileSize: "5.8 MB", MimeType: "application/zip"},
		{ID: "EV-009", Name: "Restore Drill Log", Description: "Quarterly restore drill results.", Type: store.EvidenceDocument, Status: store.EvidenceCurrent, ControlIDs: []string{"CTL-009"}, UploadedBy: "David Kim", UploadDate: "2024-04-30", FileSize: "96 kB", MimeType: "text/markdown"},
		{ID: "EV-010", Name: "2024 Risk Register", Description: "Risk register with leadership sign-off.", Type: store.EvidenceDocument, Status: store.EvidenceCurrent, ControlIDs: []string{"CTL-010"}, UploadedBy: "Sarah Chen", UploadDate: "2024-01-31", FileSize: "420 kB", MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	}
}

func Audits() []store.Audit {
	return []store.Audit{
		{ID: "AUD-001", Name: "SOC 2 Type II 2024", FrameworkID: "soc2", Auditor: "Bellwether Assurance", Status: store.AuditInProgress, StartDate: "2024-04-01", EndDate: "2024-09-30"},
		{ID: "AUD-002", Name: "ISO 27001 Surveillance", FrameworkID: "iso27001", Auditor: "Northgate Certification", Status: store.AuditPlanned, StartDate: "2024-10-15", EndDate: "2024-10-18"},
		{ID: "AUD-003", Name: "HIPAA Security Rule Assessment", FrameworkID: "hipaa", Auditor: "Bellwether Assurance", Status: store.AuditCompleted, StartDate: "2023-11-01", EndDate: "2023-12-15"},
	}
}

func Settings() store.Settings {
	return store.Settings{
		OrganizationName:     "Acme Corp",
		PrimaryFrameworkID:   LiveFrameworkID,
		ReviewReminderDays:   14,
		NotificationsEnabled: true,
	}
}

func Tasks() []store.ControlTask {
	return []store.ControlTask{}
}

func Messages() []store.ControlMessage {
	return []store.ControlMessage{}
}

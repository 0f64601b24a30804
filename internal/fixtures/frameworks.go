package fixtures

import "controlroom/internal/store"

func req(code, title string, status store.RequirementStatus, controls []string, evidence []string) store.Requirement {
	return store.Requirement{
		ID:                code,
		Code:              code,
		Title:             title,
		Status:            status,
		MappedControlIDs:  controls,
		MappedEvidenceIDs: evidence,
	}
}

func Frameworks() []store.Framework {
	return []store.Framework{
		{
			ID:          "soc2",
			Name:        "SOC 2",
			Description: "AICPA Trust Services Criteria for security, availability and confidentiality.",
			Readiness:   72,
			Categories: []store.FrameworkCategory{
				{ID: "soc2-cc1", Name: "Control Environment", Requirements: []store.Requirement{
					req("CC1.1", "Commitment to integrity and ethical values", store.RequirementSatisfied, []string{"CTL-005"}, []string{"EV-006"}),
					req("CC1.4", "Commitment to competence", store.RequirementPartiallySatisfied, []string{"CTL-005"}, nil),
				}},
				{ID: "soc2-cc2", Name: "Communication and Information", Requirements: []store.Requirement{
					req("CC2.1", "Quality information supports internal control", store.RequirementSatisfied, []string{"CTL-011"}, nil),
					req("CC2.2", "Internal communication of objectives", store.RequirementSatisfied, []string{"CTL-005", "CTL-006"}, []string{"EV-007"}),
				}},
				{ID: "soc2-cc3", Name: "Risk Assessment", Requirements: []store.Requirement{
					req("CC3.1", "Objectives are specified", store.RequirementSatisfied, []string{"CTL-010"}, []string{"EV-010"}),
					req("CC3.2", "Risks are identified and analyzed", store.RequirementSatisfied, []string{"CTL-010"}, []string{"EV-010"}),
				}},
				{ID: "soc2-cc4", Name: "Monitoring Activities", Requirements: []store.Requirement{
					req("CC4.1", "Ongoing and separate evaluations", store.RequirementPartiallySatisfied, []string{"CTL-002"}, []string{"EV-003"}),
				}},
				{ID: "soc2-cc5", Name: "Control Activities", Requirements: []store.Requirement{
					req("CC5.2", "General controls over technology", store.RequirementSatisfied, []string{"CTL-004", "CTL-007"}, []string{"EV-005"}),
				}},
				{ID: "soc2-cc6", Name: "Logical and Physical Access Controls", Requirements: []store.Requirement{
					req("CC6.1", "Logical access security software and architecture", store.RequirementSatisfied, []string{"CTL-001", "CTL-003", "CTL-007"}, []string{"EV-001", "EV-004"}),
					req("CC6.2", "User registration and authorization", store.RequirementPartiallySatisfied, []string{"CTL-001", "CTL-002"}, []string{"EV-002"}),
					req("CC6.3", "Role-based access and removal", store.RequirementNotSatisfied, []string{"CTL-002"}, []string{"EV-003"}),
					req("CC6.6", "Boundary protection", store.RequirementSatisfied, []string{"CTL-007", "CTL-001"}, nil),
					req("CC6.7", "Restriction of data transmission", store.RequirementSatisfied, []string{"CTL-003"}, []string{"EV-004"}),
				}},
				{ID: "soc2-cc7", Name: "System Operations", Requirements: []store.Requirement{
					req("CC7.3", "Security events are evaluated", store.RequirementSatisfied, []string{"CTL-006"}, []string{"EV-007"}),
					req("CC7.4", "Incident response", store.RequirementSatisfied, []string{"CTL-006"}, []string{"EV-007"}),
					req("CC7.5", "Recovery from incidents", store.RequirementPartiallySatisfied, []string{"CTL-009"}, []string{"EV-009"}),
				}},
				{ID: "soc2-cc8", Name: "Change Management", Requirements: []store.Requirement{
					req("CC8.1", "Changes are authorized, tested and approved", store.RequirementSatisfied, []string{"CTL-004"}, []string{"EV-005"}),
				}},
				{ID: "soc2-cc9", Name: "Risk Mitigation", Requirements: []store.Requirement{
					req("CC9.1", "Business disruption risk mitigation", store.RequirementPartiallySatisfied, []string{"CTL-009", "CTL-010"}, nil),
					req("CC9.2", "Vendor and business partner risk", store.RequirementNotSatisfied, []string{"CTL-008", "CTL-099"}, []string{"EV-008"}),
				}},
			},
		},
		{
			ID:          "hipaa",
			Name:        "HIPAA",
			Description: "HIPAA Security Rule administrative, physical and technical safeguards.",
			Readiness:   64,
			Categories: []store.FrameworkCategory{
				{ID: "hipaa-admin", Name: "Administrative Safeguards", Requirements: []store.Requirement{
					req("164.308(a)(1)", "Security management process", store.RequirementPartiallySatisfied, []string{"CTL-010"}, nil),
					req("164.308(a)(5)", "Security awareness and training", store.RequirementSatisfied, []string{"CTL-005"}, []string{"EV-006"}),
					req("164.308(a)(6)", "Security incident procedures", store.RequirementSatisfied, []string{"CTL-006"}, []string{"EV-007"}),
				}},
				{ID: "hipaa-technical", Name: "Technical Safeguards", Requirements: []store.Requirement{
					req("164.312(a)(1)", "Access control", store.RequirementSatisfied, []string{"CTL-001"}, []string{"EV-001"}),
					req("164.312(a)(2)(iv)", "Encryption and decryption", store.RequirementSatisfied, []string{"CTL-003"}, []string{"EV-004"}),
				}},
			},
		},
		{
			ID:          "iso27001",
			Name:        "ISO 27001",
			Description: "ISO/IEC 27001:2022 Annex A controls.",
			Readiness:   58,
			Categories: []store.FrameworkCategory{
				{ID: "iso27001-a5", Name: "Organizational Controls", Requirements: []store.Requirement{
					req("A.5.9", "Inventory of information and other associated assets", store.RequirementNotApplicable, []string{"CTL-011"}, nil),
					req("A.5.15", "Access control", store.RequirementPartiallySatisfied, []string{"CTL-001", "CTL-002"}, nil),
				}},
				{ID: "iso27001-a8", Name: "Technological Controls", Requirements: []store.Requirement{
					req("A.8.22", "Segregation of networks", store.RequirementSatisfied, []string{"CTL-007"}, nil),
					req("A.8.32", "Change management", store.RequirementSatisfied, []string{"CTL-004"}, []string{"EV-005"}),
				}},
			},
		},
		{
			ID:          "gdpr",
			Name:        "GDPR",
			Description: "EU General Data Protection Regulation obligations for processors.",
			Readiness:   81,
			Categories: []store.FrameworkCategory{
				{ID: "gdpr-art32", Name: "Security of Processing", Requirements: []store.Requirement{
					req("Art.32(1)(a)", "Pseudonymisation and encryption", store.RequirementSatisfied, []string{"CTL-003"}, []string{"EV-004"}),
				}},
				{ID: "gdpr-art5", Name: "Principles", Requirements: []store.Requirement{
					req("Art.5(1)(e)", "Storage limitation", store.RequirementPartiallySatisfied, []string{"CTL-012"}, nil),
				}},
			},
		},
	}
}

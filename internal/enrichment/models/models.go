package models

import (
	"time"

	company "bizreg/internal/company/models"
)

// Fields that can degrade independently in a detail response.
const (
	FieldDetail       = "detail"
	FieldStakeholders = "stakeholders"
)

// Detail is supplementary company data from the detail provider.
type Detail struct {
	Identifier string     `json:"identifier"`
	FoundedOn  *time.Time `json:"founded_on,omitempty"`
	SizeClass  string     `json:"size_class,omitempty"`
	Employees  *int       `json:"employees,omitempty"`
	Website    string     `json:"website,omitempty"`
}

// Stakeholder is a person or entity holding a role in a company.
type Stakeholder struct {
	Name  string     `json:"name"`
	Role  string     `json:"role"`
	Since *time.Time `json:"since,omitempty"`
}

// Result is a company with whatever enrichment could be fetched.
// Unavailable lists the fields whose provider failed.
type Result struct {
	Company      company.Company `json:"company"`
	Detail       *Detail         `json:"detail"`
	Stakeholders []Stakeholder   `json:"stakeholders"`
	Unavailable  []string        `json:"unavailable"`
}

// Degraded reports whether any field could not be fetched.
func (r Result) Degraded() bool {
	return len(r.Unavailable) > 0
}

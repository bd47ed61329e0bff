package providers

import (
	"fmt"
	"time"

	"bizreg/internal/enrichment/models"
)

const dateLayout = "2006-01-02"

type detailResponse struct {
	FoundedOn string `json:"founded_on"`
	SizeClass string `json:"size_class"`
	Employees *int   `json:"employees"`
	Website   string `json:"website"`
}

func (r detailResponse) toModel(identifier string) (*models.Detail, error) {
	founded, err := parseDate(r.FoundedOn)
	if err != nil {
		return nil, fmt.Errorf("founded_on: %w", err)
	}
	return &models.Detail{
		Identifier: identifier,
		FoundedOn:  founded,
		SizeClass:  r.SizeClass,
		Employees:  r.Employees,
		Website:    r.Website,
	}, nil
}

type stakeholdersResponse struct {
	Stakeholders []stakeholderResponse `json:"stakeholders"`
}

type stakeholderResponse struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Since string `json:"since"`
}

func (r stakeholderResponse) toModel() (models.Stakeholder, error) {
	if r.Name == "" {
		return models.Stakeholder{}, fmt.Errorf("missing name")
	}
	since, err := parseDate(r.Since)
	if err != nil {
		return models.Stakeholder{}, fmt.Errorf("since: %w", err)
	}
	return models.Stakeholder{Name: r.Name, Role: r.Role, Since: since}, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package remote

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/crm"
)

type directoryRepository struct {
	client *crm.Client
	cfg    Config
}

// ListOffices implements attendance.Directory.
func (r *directoryRepository) ListOffices(ctx context.Context) ([]attendance.Office, error) {
	docs, err := r.client.GetList(ctx, r.cfg.OfficeType, crm.ListQuery{
		Fields:  []string{"name", "branch", "latitude", "longitude"},
		OrderBy: "name asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list offices: %w", err)
	}

	offices := make([]attendance.Office, 0, len(docs))
	for _, d := range docs {
		id := docString(d, "name")
		label := docString(d, "branch")
		if label == "" {
			label = id
		}
		offices = append(offices, attendance.Office{
			ID:        id,
			Name:      label,
			Latitude:  docFloat(d, "latitude"),
			Longitude: docFloat(d, "longitude"),
		})
	}
	return offices, nil
}

// ListEmployees implements attendance.Directory.
func (r *directoryRepository) ListEmployees(ctx context.Context, officeID string) ([]attendance.Employee, error) {
	docs, err := r.client.GetList(ctx, r.cfg.EmployeeType, crm.ListQuery{
		Filters: []crm.Filter{crm.Eq("status", "Active"), crm.Eq("branch", officeID)},
		Fields:  []string{"name", "employee_name", "branch"},
		OrderBy: "employee_name asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}

	employees := make([]attendance.Employee, 0, len(docs))
	for _, d := range docs {
		id := docString(d, "name")
		name := docString(d, "employee_name")
		if name == "" {
			name = id
		}
		employees = append(employees, attendance.Employee{
			ID:       id,
			Name:     name,
			OfficeID: docString(d, "branch"),
		})
	}
	return employees, nil
}

func NewDirectoryRepository(client *crm.Client, cfg Config) attendance.Directory {
	return &directoryRepository{
		client: client,
		cfg:    cfg.withDefaults(),
	}
}

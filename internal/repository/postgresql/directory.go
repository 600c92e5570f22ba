package postgresql

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/database"
)

type directoryRepository struct {
	db *database.DB
}

func NewDirectoryRepository(db *database.DB) attendance.Directory {
	return &directoryRepository{db: db}
}

// ListOffices implements attendance.Directory.
func (d *directoryRepository) ListOffices(ctx context.Context) ([]attendance.Office, error) {
	q := GetQuerier(ctx, d.db)

	rows, err := q.Query(ctx, `SELECT id, name, latitude, longitude FROM offices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list offices: %w", err)
	}
	defer rows.Close()

	offices := make([]attendance.Office, 0)
	for rows.Next() {
		var o attendance.Office
		if err := rows.Scan(&o.ID, &o.Name, &o.Latitude, &o.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan office: %w", err)
		}
		offices = append(offices, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list offices: %w", err)
	}
	return offices, nil
}

// ListEmployees implements attendance.Directory.
func (d *directoryRepository) ListEmployees(ctx context.Context, officeID string) ([]attendance.Employee, error) {
	q := GetQuerier(ctx, d.db)

	query := `
		SELECT id, name, office_id
		FROM employees
		WHERE office_id = $1 AND status = 'active'
		ORDER BY name`

	rows, err := q.Query(ctx, query, officeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	employees := make([]attendance.Employee, 0)
	for rows.Next() {
		var e attendance.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.OfficeID); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	return employees, nil
}

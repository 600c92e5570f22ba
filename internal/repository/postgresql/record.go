package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// actionColumns maps an action to its timestamp and selfie columns.
var actionColumns = map[attendance.Action]string{
	attendance.ActionCheckIn:    "check_in",
	attendance.ActionLunchStart: "lunch_out",
	attendance.ActionLunchEnd:   "lunch_in",
	attendance.ActionCheckOut:   "check_out",
}

const recordColumns = `
	id, employee_id, COALESCE(office_id, ''), date::text,
	check_in, lunch_out, lunch_in, check_out,
	latitude, longitude, address,
	check_in_selfie, check_in_selfie_name,
	lunch_out_selfie, lunch_out_selfie_name,
	lunch_in_selfie, lunch_in_selfie_name,
	check_out_selfie, check_out_selfie_name,
	created_at, updated_at`

type recordRepository struct {
	db  *database.DB
	loc *time.Location
}

// NewRecordRepository stores day records in postgres. (employee_id, date) is
// unique and every action column is written at most once, so a lost race
// surfaces as attendance.ErrAlreadyDone.
func NewRecordRepository(db *database.DB, loc *time.Location) attendance.RecordStore {
	if loc == nil {
		loc = time.UTC
	}
	return &recordRepository{db: db, loc: loc}
}

// FindLatest implements attendance.RecordStore.
func (r *recordRepository) FindLatest(ctx context.Context, employeeID string, date string) (*attendance.DayRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE employee_id = $1 AND date = $2
		ORDER BY created_at DESC
		LIMIT 1`

	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	rec, err := r.scan(q.QueryRow(ctx, query, employeeID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find attendance record: %w", err)
	}
	return &rec, nil
}

// Create implements attendance.RecordStore.
func (r *recordRepository) Create(ctx context.Context, record attendance.DayRecord) (attendance.DayRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO attendance_records (
			id, employee_id, office_id, date,
			check_in, lunch_out, lunch_in, check_out,
			latitude, longitude, address,
			check_in_selfie, check_in_selfie_name,
			lunch_out_selfie, lunch_out_selfie_name,
			lunch_in_selfie, lunch_in_selfie_name,
			check_out_selfie, check_out_selfie_name
		) VALUES (
			$1, $2, NULLIF($3, ''), $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (employee_id, date) DO NOTHING
		RETURNING ` + recordColumns

	day, err := parseDate(record.Date)
	if err != nil {
		return attendance.DayRecord{}, err
	}

	args := []interface{}{
		uuid.New(), record.EmployeeID, record.OfficeID, day,
		record.CheckInAt, record.LunchOutAt, record.LunchInAt, record.CheckOutAt,
		record.Latitude, record.Longitude, record.Address,
	}
	for _, a := range attendance.Actions {
		ref, name := selfieColumns(record.SelfieOf(a))
		args = append(args, ref, name)
	}

	created, err := r.scan(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.DayRecord{}, attendance.ErrAlreadyDone
		}
		return attendance.DayRecord{}, fmt.Errorf("failed to create attendance record: %w", err)
	}
	return created, nil
}

// Update implements attendance.RecordStore. Only the action's columns and
// the location are written, and only while the action column is empty.
func (r *recordRepository) Update(ctx context.Context, record attendance.DayRecord, action attendance.Action) (attendance.DayRecord, error) {
	column, ok := actionColumns[action]
	if !ok {
		return attendance.DayRecord{}, attendance.ErrInvalidAction
	}
	if record.ID == "" {
		return attendance.DayRecord{}, attendance.ErrRecordNotFound
	}

	var updated attendance.DayRecord
	err := WithTransaction(ctx, r.db, func(ctx context.Context) error {
		q := GetQuerier(ctx, r.db)

		query := fmt.Sprintf(`
			UPDATE attendance_records
			SET %[1]s = $2, %[1]s_selfie = $3, %[1]s_selfie_name = $4,
				latitude = $5, longitude = $6, address = $7,
				office_id = COALESCE(office_id, NULLIF($8, '')),
				updated_at = NOW()
			WHERE id = $1 AND %[1]s IS NULL
			RETURNING %[2]s`, column, recordColumns)

		ref, name := selfieColumns(record.SelfieOf(action))
		var err error
		updated, err = r.scan(q.QueryRow(ctx, query,
			record.ID, record.TimestampOf(action), ref, name,
			record.Latitude, record.Longitude, record.Address, record.OfficeID,
		))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to update attendance record: %w", err)
		}

		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attendance_records WHERE id = $1)`, record.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check attendance record: %w", err)
		}
		if exists {
			return attendance.ErrAlreadyDone
		}
		return attendance.ErrRecordNotFound
	})
	if err != nil {
		return attendance.DayRecord{}, err
	}
	return updated, nil
}

func (r *recordRepository) scan(row pgx.Row) (attendance.DayRecord, error) {
	var (
		rec        attendance.DayRecord
		selfieRefs [4]*string
		selfieName [4]*string
	)
	err := row.Scan(
		&rec.ID, &rec.EmployeeID, &rec.OfficeID, &rec.Date,
		&rec.CheckInAt, &rec.LunchOutAt, &rec.LunchInAt, &rec.CheckOutAt,
		&rec.Latitude, &rec.Longitude, &rec.Address,
		&selfieRefs[0], &selfieName[0],
		&selfieRefs[1], &selfieName[1],
		&selfieRefs[2], &selfieName[2],
		&selfieRefs[3], &selfieName[3],
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return attendance.DayRecord{}, err
	}

	for _, ts := range []**time.Time{&rec.CheckInAt, &rec.LunchOutAt, &rec.LunchInAt, &rec.CheckOutAt} {
		if *ts != nil {
			local := (*ts).In(r.loc)
			*ts = &local
		}
	}
	rec.CheckInSelfie = selfieRef(selfieRefs[0], selfieName[0])
	rec.LunchOutSelfie = selfieRef(selfieRefs[1], selfieName[1])
	rec.LunchInSelfie = selfieRef(selfieRefs[2], selfieName[2])
	rec.CheckOutSelfie = selfieRef(selfieRefs[3], selfieName[3])
	return rec, nil
}

func parseDate(date string) (time.Time, error) {
	day, err := time.Parse(attendance.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid attendance date %q: %w", date, err)
	}
	return day, nil
}

// selfieColumns flattens a reference: the attachment id, or the inline data
// URI when no attachment was uploaded.
func selfieColumns(ref *attendance.SelfieRef) (*string, *string) {
	if ref.IsZero() {
		return nil, nil
	}
	value := ref.AttachmentID
	if value == "" {
		value = ref.Inline
	}
	var name *string
	if ref.Name != "" {
		name = &ref.Name
	}
	return &value, name
}

func selfieRef(value, name *string) *attendance.SelfieRef {
	if value == nil || *value == "" {
		return nil
	}
	ref := &attendance.SelfieRef{}
	if strings.HasPrefix(*value, "data:") {
		ref.Inline = *value
	} else {
		ref.AttachmentID = *value
	}
	if name != nil {
		ref.Name = *name
	}
	return ref
}

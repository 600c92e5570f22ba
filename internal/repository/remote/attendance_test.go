package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/crm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*3600)

func newTestClient(t *testing.T, h http.HandlerFunc) *crm.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return crm.NewClient(crm.Config{BaseURL: srv.URL, APIKey: "k:s"})
}

func testConfig() Config {
	return Config{Location: wib}
}

func TestAttendanceRepository_FindLatest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/resource/Attendance", r.URL.Path)
		assert.Equal(t, `[["employee","=","EMP-1"],["date","=","2025-03-14"]]`, r.URL.Query().Get("filters"))
		assert.Equal(t, "creation desc", r.URL.Query().Get("order_by"))
		assert.Equal(t, "1", r.URL.Query().Get("limit_page_length"))

		w.Write([]byte(`{"data":[{
			"name":"ATT-1","employee":"EMP-1","office":"HQ","date":"2025-03-14",
			"check_in":"2025-03-14 08:01:02.000000","lunch_out":null,
			"latitude":"-6.2","longitude":106.8,"address":"Jl. Sudirman",
			"check_in_selfie":"/files/in.jpg","check_in_selfie_name":"in.jpg",
			"lunch_out_selfie":"data:image/jpeg;base64,AAAA"
		}]}`))
	})
	repo := NewAttendanceRepository(client, testConfig())

	rec, err := repo.FindLatest(context.Background(), "EMP-1", "2025-03-14")

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ATT-1", rec.ID)
	assert.Equal(t, "HQ", rec.OfficeID)
	require.NotNil(t, rec.CheckInAt)
	assert.Equal(t, time.Date(2025, 3, 14, 8, 1, 2, 0, wib), *rec.CheckInAt)
	assert.Nil(t, rec.LunchOutAt)
	assert.Equal(t, -6.2, *rec.Latitude)
	assert.Equal(t, 106.8, *rec.Longitude)
	assert.Equal(t, &attendance.SelfieRef{AttachmentID: "/files/in.jpg", Name: "in.jpg"}, rec.CheckInSelfie)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", rec.LunchOutSelfie.Inline)
	assert.Equal(t, attendance.StateCheckedIn, attendance.StateOf(rec))
}

func TestAttendanceRepository_FindLatestNone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	repo := NewAttendanceRepository(client, testConfig())

	rec, err := repo.FindLatest(context.Background(), "EMP-1", "2025-03-14")

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAttendanceRepository_Create(t *testing.T) {
	var sent map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))

		resp := map[string]interface{}{}
		for k, v := range sent {
			resp[k] = v
		}
		resp["name"] = "ATT-7"
		json.NewEncoder(w).Encode(map[string]interface{}{"data": resp})
	})
	repo := NewAttendanceRepository(client, testConfig())

	rec := attendance.DayRecord{EmployeeID: "EMP-1", OfficeID: "HQ", Date: "2025-03-14"}
	rec.Stamp(attendance.ActionCheckIn, time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC),
		attendance.Location{Latitude: -6.2, Longitude: 106.8, Address: "Jl. Sudirman"},
		attendance.SelfieRef{AttachmentID: "/files/in.jpg", Name: "in.jpg"})

	created, err := repo.Create(context.Background(), rec)

	require.NoError(t, err)
	assert.Equal(t, "ATT-7", created.ID)
	assert.Equal(t, attendance.StateCheckedIn, attendance.StateOf(&created))

	assert.Equal(t, "EMP-1", sent["employee"])
	assert.Equal(t, "HQ", sent["office"])
	assert.Equal(t, "2025-03-14", sent["date"])
	assert.Equal(t, "2025-03-14 08:00:00", sent["check_in"])
	assert.Equal(t, "/files/in.jpg", sent["check_in_selfie"])
	assert.Equal(t, "in.jpg", sent["check_in_selfie_name"])
	assert.Equal(t, -6.2, sent["latitude"])
	assert.Equal(t, "Jl. Sudirman", sent["address"])
	assert.NotContains(t, sent, "check_out")
}

func TestAttendanceRepository_UpdateSendsOnlyActionFields(t *testing.T) {
	var sent map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/resource/Attendance/ATT-7", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))

		w.Write([]byte(`{"data":{"name":"ATT-7","employee":"EMP-1","date":"2025-03-14",
			"check_in":"2025-03-14 08:00:00","check_out":"2025-03-14 17:00:00"}}`))
	})
	repo := NewAttendanceRepository(client, testConfig())

	in := time.Date(2025, 3, 14, 8, 0, 0, 0, wib)
	rec := attendance.DayRecord{ID: "ATT-7", EmployeeID: "EMP-1", Date: "2025-03-14", CheckInAt: &in}
	rec.Stamp(attendance.ActionCheckOut, time.Date(2025, 3, 14, 17, 0, 0, 0, wib),
		attendance.Location{Latitude: -6.2, Longitude: 106.8},
		attendance.SelfieRef{Inline: "data:image/jpeg;base64,BBBB"})

	updated, err := repo.Update(context.Background(), rec, attendance.ActionCheckOut)

	require.NoError(t, err)
	assert.Equal(t, attendance.StateCompleted, attendance.StateOf(&updated))
	assert.Equal(t, "2025-03-14 17:00:00", sent["check_out"])
	assert.Equal(t, "data:image/jpeg;base64,BBBB", sent["check_out_selfie"])
	assert.NotContains(t, sent, "check_in")
	assert.NotContains(t, sent, "employee")
}

func TestAttendanceRepository_UpdateRequiresID(t *testing.T) {
	repo := NewAttendanceRepository(crm.NewClient(crm.Config{BaseURL: "http://127.0.0.1:0", APIKey: "k"}), testConfig())

	_, err := repo.Update(context.Background(), attendance.DayRecord{}, attendance.ActionCheckOut)
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestAttachmentUploader_Upload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Attendance", r.PostForm.Get("doctype"))
		assert.Equal(t, "check_in_selfie", r.PostForm.Get("fieldname"))
		w.Write([]byte(`{"message":{"name":"abc","file_name":"selfie.jpg","file_url":"/files/selfie.jpg"}}`))
	})
	up := NewAttachmentUploader(client, testConfig())

	ref, err := up.Upload(context.Background(), attendance.Attachment{
		FileName:  "selfie.jpg",
		Base64:    "AAAA",
		FieldName: "check_in_selfie",
	})

	require.NoError(t, err)
	assert.Equal(t, attendance.SelfieRef{AttachmentID: "/files/selfie.jpg", Name: "selfie.jpg"}, ref)
}

func TestAttachmentUploader_EmptyReference(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{}}`))
	})
	up := NewAttachmentUploader(client, testConfig())

	_, err := up.Upload(context.Background(), attendance.Attachment{FileName: "selfie.jpg", Base64: "AAAA"})
	assert.ErrorIs(t, err, attendance.ErrAttachmentMissing)
}

func TestDirectoryRepository(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/resource/Branch":
			assert.Equal(t, "0", r.URL.Query().Get("limit_page_length"))
			w.Write([]byte(`{"data":[{"name":"HQ","branch":"Head Office","latitude":-6.2,"longitude":106.8},{"name":"BDG"}]}`))
		case "/api/resource/Employee":
			assert.Equal(t, `[["status","=","Active"],["branch","=","HQ"]]`, r.URL.Query().Get("filters"))
			w.Write([]byte(`{"data":[{"name":"EMP-1","employee_name":"Sari","branch":"HQ"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	dir := NewDirectoryRepository(client, testConfig())

	offices, err := dir.ListOffices(context.Background())
	require.NoError(t, err)
	require.Len(t, offices, 2)
	assert.Equal(t, "Head Office", offices[0].Name)
	assert.Equal(t, -6.2, *offices[0].Latitude)
	assert.Equal(t, "BDG", offices[1].Name)
	assert.Nil(t, offices[1].Latitude)

	employees, err := dir.ListEmployees(context.Background(), "HQ")
	require.NoError(t, err)
	assert.Equal(t, []attendance.Employee{{ID: "EMP-1", Name: "Sari", OfficeID: "HQ"}}, employees)
}

package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/purposesproject7/vista-sub001/internal/appstate"
	"github.com/purposesproject7/vista-sub001/internal/importer"
	"github.com/purposesproject7/vista-sub001/internal/logger"
	"github.com/purposesproject7/vista-sub001/internal/model"
	"github.com/purposesproject7/vista-sub001/internal/store"
)

type fakeMaster struct {
	mu          sync.Mutex
	data        *model.MasterData
	err         error
	invalidated int
}

func (f *fakeMaster) MasterData(ctx context.Context) (*model.MasterData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.err
}

func (f *fakeMaster) Invalidate() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func (f *fakeMaster) Age() (time.Duration, bool) {
	return time.Second, f.data != nil
}

type fakePanels struct {
	academic model.AcademicContext
}

func (f *fakePanels) AutoAssignPanels(ctx context.Context, academic model.AcademicContext, options map[string]any) (map[string]any, error) {
	f.academic = academic
	return map[string]any{"assigned": 12}, nil
}

func (f *fakePanels) AutoCreatePanels(ctx context.Context, academic model.AcademicContext, options map[string]any) (map[string]any, error) {
	return nil, errors.New("not supported")
}

type countingCreator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCreator) BulkCreate(ctx context.Context, entity string, records []map[string]any) (model.SubmitResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return model.SubmitResult{Created: len(records)}, nil
}

func sampleMasterData() *model.MasterData {
	return &model.MasterData{
		Schools: []model.School{
			{Code: "SCOPE", Name: "School of Computer Science and Engineering"},
			{Code: "SENSE", Name: "School of Electronics Engineering"},
		},
		Programmes: []model.Programme{
			{Code: "BCE", Name: "B.Tech CSE", School: "SCOPE"},
			{Code: "BEC", Name: "B.Tech ECE", School: "SENSE"},
		},
		AcademicYears: []model.AcademicYear{{ID: "y1", Year: "2024-25"}, {ID: "y2", Year: "2025-26"}},
	}
}

type testEnv struct {
	router *gin.Engine
	master *fakeMaster
	state  *appstate.Manager
	store  *store.Store
}

func newTestEnv(t *testing.T, panels PanelAutomation) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "vista.db"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	state, err := appstate.NewManager(dir, appstate.Options{SaveDelay: time.Hour})
	if err != nil {
		t.Fatalf("init state: %v", err)
	}
	if err := state.Load(); err != nil {
		t.Fatalf("load state: %v", err)
	}

	master := &fakeMaster{data: sampleMasterData()}
	coordinator := importer.NewCoordinator(importer.Options{
		Creator: &countingCreator{},
		Log:     st,
		Logger:  logger.Discard(),
	})

	h := NewHandler(Deps{
		Master:  master,
		Panels:  panels,
		Uploads: coordinator,
		Logs:    st,
		State:   state,
		Logger:  logger.Discard(),
	})
	t.Cleanup(h.Close)

	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	return &testEnv{router: r, master: master, state: state, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) model.Envelope[T] {
	t.Helper()
	var env model.Envelope[T]
	if err := sonic.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func TestFilterSessionFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/filters", `{"fields":3,"adminId":"admin-1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	created := decode[FilterView](t, w)
	id := created.Payload.ID
	if !created.OK || id == "" || len(created.Payload.State.Options[model.FieldSchool]) != 2 {
		t.Fatalf("created=%+v", created)
	}
	if len(created.Payload.State.Options[model.FieldProgramme]) != 0 {
		t.Fatalf("programme options must be empty before a school is chosen")
	}

	steps := []struct{ field, value string }{
		{"school", "SCOPE"},
		{"programme", "BCE"},
		{"year", "2024-25"},
	}
	var last model.Envelope[FilterView]
	for _, s := range steps {
		w = env.do(t, http.MethodPatch, "/api/filters/"+id, `{"field":"`+s.field+`","value":"`+s.value+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("set %s status=%d body=%s", s.field, w.Code, w.Body.String())
		}
		last = decode[FilterView](t, w)
	}
	if !last.Payload.State.Complete || last.Payload.State.Completions != 1 {
		t.Fatalf("state=%+v", last.Payload.State)
	}
	if programmes := last.Payload.State.Options[model.FieldProgramme]; len(programmes) != 1 || programmes[0].Value != "BCE" {
		t.Fatalf("programme options=%+v", programmes)
	}

	saved, ok, err := env.state.Context("admin-1")
	if err != nil || !ok || saved.Year != "2024-25" {
		t.Fatalf("saved=%+v ok=%v err=%v", saved, ok, err)
	}

	// 其他学院的专业不在可选项中
	w = env.do(t, http.MethodPatch, "/api/filters/"+id, `{"field":"programme","value":"BEC"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", w.Code)
	}
	if e := decode[any](t, w); e.OK || e.Error == nil || e.Error.Code != codeInvalidInput {
		t.Fatalf("env=%+v", e)
	}

	w = env.do(t, http.MethodPost, "/api/filters/"+id+"/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reset status=%d body=%s", w.Code, w.Body.String())
	}
	reset := decode[FilterView](t, w).Payload.State
	if reset.Context != (model.AcademicContext{}) || reset.Complete || len(reset.Options[model.FieldSchool]) != 2 || len(reset.Options[model.FieldProgramme]) != 0 {
		t.Fatalf("state after reset=%+v", reset)
	}

	w = env.do(t, http.MethodDelete, "/api/filters/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status=%d", w.Code)
	}
	if w = env.do(t, http.MethodGet, "/api/filters/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", w.Code)
	}
	if w = env.do(t, http.MethodPost, "/api/filters/"+id+"/reset", ""); w.Code != http.StatusNotFound {
		t.Fatalf("reset after delete status=%d", w.Code)
	}
}

func TestFilterRestoreSavedContext(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.state.SetContext("admin-2", model.AcademicContext{School: "SENSE", Programme: "BEC"}); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/filters", `{"adminId":"admin-2","restore":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	got := decode[FilterView](t, w).Payload.State
	if got.Context.School != "SENSE" || got.Context.Programme != "BEC" || got.Complete {
		t.Fatalf("state=%+v", got)
	}
}

func TestFilterMasterDataFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.master.mu.Lock()
	env.master.data, env.master.err = nil, errors.New("backend down")
	env.master.mu.Unlock()

	w := env.do(t, http.MethodPost, "/api/filters", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	view := decode[FilterView](t, w).Payload
	if view.LoadError == "" || view.State.Loaded || len(view.State.Options[model.FieldSchool]) != 0 {
		t.Fatalf("view=%+v", view)
	}

	w = env.do(t, http.MethodPost, "/api/filters", `{"fields":5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
}

func TestMasterDataEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/master-data", "")
	got := decode[model.MasterData](t, w)
	if w.Code != http.StatusOK || len(got.Payload.Schools) != 2 || len(got.Payload.Semesters) != 2 {
		t.Fatalf("status=%d env=%+v", w.Code, got)
	}

	if w = env.do(t, http.MethodPost, "/api/master-data/invalidate", ""); w.Code != http.StatusOK {
		t.Fatalf("invalidate status=%d", w.Code)
	}
	if env.master.invalidated != 1 {
		t.Fatalf("invalidated=%d", env.master.invalidated)
	}
}

func TestDownloadTemplate(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/templates/faculty", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("status=%d headers=%v", w.Code, w.Header())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "faculty_template.xlsx") {
		t.Fatalf("content-disposition=%q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open template: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Faculty")
	if err != nil || len(rows) < 3 || rows[0][0] != "Employee ID" {
		t.Fatalf("rows=%v err=%v", rows, err)
	}

	if w = env.do(t, http.MethodGet, "/api/templates/rubrics", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
}

func facultyWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"Employee ID", "Name", "Email", "Department"},
		{"50392", "Dr. Anita Rao", "anita.rao@vit.ac.in", "Software Systems"},
		{"50418", "Dr. Karthik S", "karthik.s@vit.ac.in", "Networking"},
		{"50501", "Prof. Meera Nair", "not-an-email", "Information Security"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

var uploadFields = map[string]string{
	"school":    "SCOPE",
	"programme": "BCE",
	"year":      "2024-25",
	"adminId":   "admin-1",
}

func uploadRequest(t *testing.T, path, fileName string, data []byte) *http.Request {
	t.Helper()
	return uploadRequestWith(t, path, fileName, data, uploadFields)
}

func uploadRequestWith(t *testing.T, path, fileName string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if data != nil {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadPreviewAndSubmit(t *testing.T) {
	env := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "/api/uploads/faculty", "faculty.xlsx", facultyWorkbook(t)))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	batch := decode[model.UploadBatch](t, w).Payload
	if batch.Status != model.BatchPreviewing || len(batch.Rows) != 3 || batch.InvalidRows != 1 || batch.Rows[2].Valid {
		t.Fatalf("batch=%+v", batch)
	}
	if batch.Context.School != "SCOPE" {
		t.Fatalf("context=%+v", batch.Context)
	}

	w = env.do(t, http.MethodPost, "/api/batches/"+batch.ID+"/submit?policy=all_or_nothing", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("all_or_nothing status=%d, want 409", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/batches/"+batch.ID+"/submit", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("submit status=%d headers=%v", w.Code, w.Header())
	}
	stream := w.Body.String()
	if !strings.Contains(stream, "data: ") || !strings.Contains(stream, `"type":"done"`) {
		t.Fatalf("stream=%s", stream)
	}

	w = env.do(t, http.MethodGet, "/api/batches/"+batch.ID, "")
	final := decode[model.UploadBatch](t, w).Payload
	if final.Status != model.BatchSuccess || final.Result == nil || final.Result.Created != 2 {
		t.Fatalf("final=%+v", final)
	}

	w = env.do(t, http.MethodGet, "/api/uploads?entity=faculty", "")
	logs := decode[[]store.UploadLog](t, w).Payload
	if len(logs) != 1 || logs[0].Status != model.BatchSuccess || logs[0].Created != 2 {
		t.Fatalf("logs=%+v", logs)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	env := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "/api/uploads/students", "", nil))
	batch := decode[model.UploadBatch](t, w).Payload
	if w.Code != http.StatusOK || batch.Status != model.BatchError || batch.Errors[0] != "No file selected" {
		t.Fatalf("status=%d batch=%+v", w.Code, batch)
	}

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "/api/uploads/rubrics", "r.xlsx", []byte("x")))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}

	if w = env.do(t, http.MethodGet, "/api/batches/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
}

func TestUploadRejectsIncompleteContext(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name   string
		fields map[string]string
		want   string
	}{
		{"year only", map[string]string{"year": "2024-25", "adminId": "admin-1"}, "School is required"},
		{"semester without year", map[string]string{"school": "SCOPE", "programme": "BCE", "semester": "Fall"}, "Semester is set but Year is not"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, uploadRequestWith(t, "/api/uploads/faculty", "faculty.xlsx", facultyWorkbook(t), tt.fields))
			batch := decode[model.UploadBatch](t, w).Payload
			if w.Code != http.StatusOK || batch.Status != model.BatchError || len(batch.Rows) != 0 {
				t.Fatalf("status=%d batch=%+v", w.Code, batch)
			}
			found := false
			for _, msg := range batch.Errors {
				if msg == tt.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("errors=%q, want %q", batch.Errors, tt.want)
			}

			if w = env.do(t, http.MethodPost, "/api/batches/"+batch.ID+"/submit", ""); w.Code != http.StatusConflict {
				t.Fatalf("submit status=%d, want 409", w.Code)
			}
		})
	}
}

func TestPanelAutomation(t *testing.T) {
	panels := &fakePanels{}
	env := newTestEnv(t, panels)

	w := env.do(t, http.MethodPost, "/api/panels/auto-assign", `{"school":"SCOPE","programme":"BCE","year":"2024-25","options":{"buffer":2}}`)
	if w.Code != http.StatusOK || panels.academic.School != "SCOPE" {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w = env.do(t, http.MethodPost, "/api/panels/auto-assign", `{"school":"SCOPE"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	if w = env.do(t, http.MethodPost, "/api/panels/auto-create", `{"school":"SCOPE","programme":"BCE","year":"2024-25"}`); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", w.Code)
	}

	noBackend := newTestEnv(t, nil)
	if w = noBackend.do(t, http.MethodPost, "/api/panels/auto-assign", `{}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", w.Code)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/status", "")
	status := decode[StatusResponse](t, w).Payload
	if w.Code != http.StatusOK || status.Database != "ok" || !status.MasterDataCache || status.BackendReady {
		t.Fatalf("status=%+v", status)
	}
}

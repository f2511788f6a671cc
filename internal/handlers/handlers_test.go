package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dataload-service/internal/dataload"
	"dataload-service/internal/models"
	"dataload-service/internal/repository"
	"dataload-service/internal/services"
)

// MockUploadService is a mock implementation of UploadServiceAPI
type MockUploadService struct {
	mock.Mock
}

func (m *MockUploadService) Submit(ctx context.Context, in services.SubmitInput) (*models.UploadSession, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UploadSession), args.Error(1)
}

func (m *MockUploadService) GetSession(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UploadSession), args.Error(1)
}

func (m *MockUploadService) ListSessions(ctx context.Context, tenantID string, filter repository.SessionFilter) ([]models.UploadSession, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.UploadSession), args.Get(1).(int64), args.Error(2)
}

func (m *MockUploadService) GetErrors(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, []models.RowError, error) {
	args := m.Called(ctx, tenantID, id)
	var session *models.UploadSession
	if s := args.Get(0); s != nil {
		session = s.(*models.UploadSession)
	}
	var rowErrors []models.RowError
	if e := args.Get(1); e != nil {
		rowErrors = e.([]models.RowError)
	}
	return session, rowErrors, args.Error(2)
}

var _ UploadServiceAPI = (*MockUploadService)(nil)

func setupRouter(svc UploadServiceAPI, maxUploadBytes int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	h := NewUploadHandler(svc, maxUploadBytes, logger)
	t := NewTemplateHandler()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("tenant_id", "tenant-1")
		c.Set("user_id", "user-1")
		c.Next()
	})
	r.POST("/uploads", h.Upload)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.GET("/sessions/:id/errors", h.GetSessionErrors)
	r.GET("/templates/:loadType", t.GetTemplate)
	return r
}

func multipartUpload(t *testing.T, loadType, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if loadType != "" {
		require.NoError(t, w.WriteField("load_type", loadType))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUpload_Accepted(t *testing.T) {
	svc := new(MockUploadService)
	router := setupRouter(svc, 1<<20)
	session := &models.UploadSession{ID: uuid.New(), TenantID: "tenant-1", LoadType: models.LoadTypeBrand, Status: models.SessionPending}

	svc.On("Submit", mock.Anything, mock.MatchedBy(func(in services.SubmitInput) bool {
		return in.TenantID == "tenant-1" && in.LoadType == "brand" && in.Filename == "brands.csv" &&
			in.SubmittedBy == "user-1" && in.Size == 10
	})).Return(session, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "brand", "brands.csv", "name,logo\n"))

	assert.Equal(t, http.StatusAccepted, w.Code)
	var body struct {
		Success bool                 `json:"success"`
		Data    models.UploadSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, session.ID, body.Data.ID)
	svc.AssertExpectations(t)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		loadType   string
		filename   string
		submitErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "missing file", loadType: "brand", wantStatus: http.StatusBadRequest, wantCode: "FILE_REQUIRED"},
		{name: "missing load type", filename: "brands.csv", wantStatus: http.StatusBadRequest, wantCode: "LOAD_TYPE_REQUIRED"},
		{name: "too large", loadType: "brand", filename: "big.csv", wantStatus: http.StatusRequestEntityTooLarge, wantCode: "FILE_TOO_LARGE"},
		{name: "unknown load type", loadType: "widget", filename: "w.csv", submitErr: services.ErrUnknownLoadType, wantStatus: http.StatusBadRequest, wantCode: "INVALID_LOAD_TYPE"},
		{name: "bad format", loadType: "brand", filename: "b.pdf", submitErr: services.ErrUnsupportedFormat, wantStatus: http.StatusBadRequest, wantCode: "INVALID_FORMAT"},
		{name: "out of order", loadType: "product_price", filename: "p.csv", submitErr: fmt.Errorf("%w: load product before product_price", services.ErrPrerequisiteMissing), wantStatus: http.StatusConflict, wantCode: "PREREQUISITE_MISSING"},
		{name: "storage down", loadType: "brand", filename: "b.csv", submitErr: errors.New("s3 down"), wantStatus: http.StatusInternalServerError, wantCode: "UPLOAD_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockUploadService)
			limit := int64(1 << 20)
			content := "name,logo\n"
			if tt.wantStatus == http.StatusRequestEntityTooLarge {
				limit = 4
			}
			if tt.submitErr != nil {
				svc.On("Submit", mock.Anything, mock.Anything).Return(nil, tt.submitErr)
			}
			router := setupRouter(svc, limit)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartUpload(t, tt.loadType, tt.filename, content))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.submitErr == nil {
				svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	svc := new(MockUploadService)
	router := setupRouter(svc, 0)
	id := uuid.New()
	missing := uuid.New()

	svc.On("GetSession", mock.Anything, "tenant-1", id).Return(&models.UploadSession{ID: id, Status: models.SessionProcessing, RecordCount: 40}, nil)
	svc.On("GetSession", mock.Anything, "tenant-1", missing).Return(nil, services.ErrSessionNotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"processing"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+missing.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSessions_Pagination(t *testing.T) {
	svc := new(MockUploadService)
	router := setupRouter(svc, 0)

	svc.On("ListSessions", mock.Anything, "tenant-1", repository.SessionFilter{
		Status:   models.SessionCompleted,
		LoadType: models.LoadTypeProduct,
		Limit:    10,
		Offset:   10,
	}).Return([]models.UploadSession{{ID: uuid.New()}}, int64(25), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions?status=completed&load_type=products&page=2&limit=10", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 3, resp.Pagination.TotalPages)
	assert.True(t, resp.Pagination.HasNext)
	assert.True(t, resp.Pagination.HasPrevious)
	svc.AssertExpectations(t)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions?load_type=widgets", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionErrors(t *testing.T) {
	svc := new(MockUploadService)
	router := setupRouter(svc, 0)
	id := uuid.New()
	session := &models.UploadSession{ID: id, Status: models.SessionCompletedWithErrors}
	rowErrors := []models.RowError{
		models.NewRowError(3, "brand_name", models.ErrorKindReference, `brand "Nope" not found`, "Nope"),
		models.NewRowError(7, "", models.ErrorKindConflict, "write timed out", ""),
	}
	svc.On("GetErrors", mock.Anything, "tenant-1", id).Return(session, rowErrors, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+id.String()+"/errors", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.SessionErrorsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.ErrorCount)
	assert.Equal(t, 3, resp.Errors[0].RowNumber)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+id.String()+"/errors?format=csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"row_number", "field_name", "error_kind", "error_message", "offending_value"}, records[0])
	assert.Equal(t, []string{"3", "brand_name", "REFERENCE", `brand "Nope" not found`, "Nope"}, records[1])
	assert.Equal(t, []string{"7", "", "CONFLICT", "write timed out", ""}, records[2])
}

func TestGetSessionErrors_NotFinished(t *testing.T) {
	svc := new(MockUploadService)
	router := setupRouter(svc, 0)
	id := uuid.New()
	svc.On("GetErrors", mock.Anything, "tenant-1", id).Return(&models.UploadSession{ID: id}, nil, services.ErrSessionNotFinished)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+id.String()+"/errors", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetTemplate(t *testing.T) {
	router := setupRouter(new(MockUploadService), 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/templates/brands", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"keyField":"name"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/templates/widgets", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTemplate_EveryLoadType(t *testing.T) {
	router := setupRouter(new(MockUploadService), 0)

	for _, lt := range models.LoadTypes {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/templates/"+string(lt)+"?format=csv", nil))
		require.Equal(t, http.StatusOK, w.Code, lt)

		table, err := dataload.ReadTable(bytes.NewReader(w.Body.Bytes()), dataload.FormatCSV)
		require.NoError(t, err)
		schema, err := dataload.SchemaFor(lt)
		require.NoError(t, err)
		assert.NoError(t, schema.CheckHeader(table.Headers), lt)
	}
}

func TestGetTemplate_FilesAreLoadable(t *testing.T) {
	router := setupRouter(new(MockUploadService), 0)

	for _, format := range []dataload.Format{dataload.FormatCSV, dataload.FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/templates/brand?format="+string(format), nil))
			require.Equal(t, http.StatusOK, w.Code)

			table, err := dataload.ReadTable(bytes.NewReader(w.Body.Bytes()), format)
			require.NoError(t, err)
			schema, err := dataload.SchemaFor(models.LoadTypeBrand)
			require.NoError(t, err)
			require.NoError(t, schema.CheckHeader(table.Headers))
			require.Len(t, table.Rows, 1)
			assert.Equal(t, "Acme", table.Rows[0].Get("name"))
		})
	}
}

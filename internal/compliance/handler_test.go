package compliance_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace-backend/internal/bootstrap"
	"marketplace-backend/internal/shared/config"
	"marketplace-backend/internal/shared/util"
)

type actor struct {
	id, role, company string
}

var (
	seller = actor{id: "seller-1", role: "seller", company: "company-1"}
	admin  = actor{id: "admin-1", role: "admin"}
)

func newTestApp(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestAppWithStore(t, t.TempDir())
}

func newTestAppWithStore(t *testing.T, storeDir string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	app, err := bootstrap.Build(config.Config{
		Port:             "0",
		CORSAllowOrigin:  []string{"http://localhost:5173"},
		LocalStoreDir:    storeDir,
		PublicBaseURL:    "http://localhost:8080",
		Env:              "dev",
		LogLevel:         "error",
		ObjectStoreType:  "local",
		ListingHoldDays:  90,
		DevSeedCompanies: []string{"company-1", "company-2"},
	})
	if err != nil {
		t.Fatalf("bootstrap build: %v", err)
	}
	return app.Router
}

func do(t *testing.T, router *gin.Engine, who actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who.id != "" {
		req.Header.Set("X-Actor-Id", who.id)
		req.Header.Set("X-Actor-Role", who.role)
		req.Header.Set("X-Company-Id", who.company)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", resp.Body.String(), err)
	}
}

func submitJSON(t *testing.T, router *gin.Engine, docType string) string {
	t.Helper()
	expiry := time.Now().UTC().AddDate(1, 0, 0).Format(time.RFC3339)
	resp := do(t, router, seller, http.MethodPost, "/api/v1/companies/company-1/compliance/documents", map[string]any{
		"type":     docType,
		"expiryAt": expiry,
		"fileMetadata": map[string]any{
			"fileName":   docType + ".pdf",
			"mimeType":   "application/pdf",
			"storageKey": util.HashNamespace("company-1") + "/" + docType + ".pdf",
			"sizeBytes":  1024,
		},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("submit %s: expected 201, got %d: %s", docType, resp.Code, resp.Body.String())
	}
	var doc struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, resp, &doc)
	if doc.Status != "submitted" {
		t.Fatalf("expected submitted, got %s", doc.Status)
	}
	return doc.ID
}

func TestComplianceHTTPFlow(t *testing.T) {
	router := newTestApp(t)

	if resp := do(t, router, actor{}, http.MethodGet, "/api/v1/health", nil); resp.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.Code)
	}

	var ids []string
	for _, docType := range []string{"general_liability_insurance", "workers_compensation_insurance", "business_license"} {
		ids = append(ids, submitJSON(t, router, docType))
	}

	if resp := do(t, router, seller, http.MethodPost, "/api/v1/compliance/documents/"+ids[0]+"/review", map[string]any{"decision": "approve"}); resp.Code != http.StatusForbidden {
		t.Fatalf("seller review: expected 403, got %d", resp.Code)
	}

	for _, id := range ids {
		resp := do(t, router, admin, http.MethodPost, "/api/v1/compliance/documents/"+id+"/review", map[string]any{"decision": "approve"})
		if resp.Code != http.StatusOK {
			t.Fatalf("review: expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
	}

	resp := do(t, router, seller, http.MethodGet, "/api/v1/companies/company-1/compliance", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", resp.Code)
	}
	var summary struct {
		Application struct {
			Status            string  `json:"status"`
			ComplianceScore   float64 `json:"complianceScore"`
			RequiredDocuments []struct {
				Type   string `json:"type"`
				Status string `json:"status"`
			} `json:"requiredDocuments"`
		} `json:"application"`
		Documents []struct {
			ID          string `json:"id"`
			DownloadURL string `json:"downloadUrl"`
		} `json:"documents"`
	}
	decode(t, resp, &summary)
	if summary.Application.Status != "approved" || summary.Application.ComplianceScore != 100 {
		t.Fatalf("unexpected application: %+v", summary.Application)
	}
	if len(summary.Documents) != 3 || !strings.HasPrefix(summary.Documents[0].DownloadURL, "http://localhost:8080/files/") {
		t.Fatalf("unexpected documents: %+v", summary.Documents)
	}

	resp = do(t, router, seller, http.MethodGet, "/api/v1/companies/company-1/compliance/eligibility?requireBadge=true", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("eligibility without badge: expected 409, got %d", resp.Code)
	}
	var errBody struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decode(t, resp, &errBody)
	if errBody.Error.Code != "conflict" || errBody.Error.Message != "insured seller badge is not visible" {
		t.Fatalf("unexpected error body: %+v", errBody)
	}

	if resp := do(t, router, seller, http.MethodPost, "/api/v1/companies/company-1/compliance/badge", map[string]any{"visible": true}); resp.Code != http.StatusOK {
		t.Fatalf("badge: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(t, router, seller, http.MethodGet, "/api/v1/companies/company-1/compliance/eligibility?requireBadge=true", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("eligibility: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var eligible struct {
		Eligible bool `json:"eligible"`
		Snapshot struct {
			Status string `json:"status"`
		} `json:"snapshot"`
	}
	decode(t, resp, &eligible)
	if !eligible.Eligible || eligible.Snapshot.Status != "approved" {
		t.Fatalf("unexpected eligibility: %+v", eligible)
	}

	resp = do(t, router, actor{}, http.MethodGet, "/metrics", nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "compliance_evaluations_total") {
		t.Fatalf("metrics: expected compliance counters, got %d", resp.Code)
	}
}

func TestComplianceSuspendAndReinstate(t *testing.T) {
	router := newTestApp(t)

	resp := do(t, router, seller, http.MethodPost, "/api/v1/companies/company-1/compliance/suspend", map[string]any{"reason": "fraud"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("seller suspend: expected 403, got %d", resp.Code)
	}

	resp = do(t, router, admin, http.MethodPost, "/api/v1/companies/company-1/compliance/suspend", map[string]any{"reason": ""})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("empty reason: expected 400, got %d", resp.Code)
	}

	resp = do(t, router, admin, http.MethodPost, "/api/v1/companies/company-1/compliance/suspend", map[string]any{"reason": "fraud"})
	if resp.Code != http.StatusOK {
		t.Fatalf("suspend: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(t, router, seller, http.MethodPost, "/api/v1/companies/company-1/compliance/evaluate", nil)
	var app struct {
		Status string `json:"status"`
	}
	decode(t, resp, &app)
	if app.Status != "suspended" {
		t.Fatalf("expected suspension to stick, got %s", app.Status)
	}

	resp = do(t, router, admin, http.MethodPost, "/api/v1/companies/company-1/compliance/reinstate", map[string]any{"reason": "cleared"})
	if resp.Code != http.StatusOK {
		t.Fatalf("reinstate: expected 200, got %d", resp.Code)
	}
	decode(t, resp, &app)
	if app.Status != "pending_documents" {
		t.Fatalf("expected pending_documents after reinstatement, got %s", app.Status)
	}
}

func TestComplianceAccessAndErrors(t *testing.T) {
	router := newTestApp(t)

	if resp := do(t, router, actor{}, http.MethodGet, "/api/v1/companies/company-1/compliance", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", resp.Code)
	}
	if resp := do(t, router, seller, http.MethodGet, "/api/v1/companies/company-2/compliance", nil); resp.Code != http.StatusForbidden {
		t.Fatalf("other company: expected 403, got %d", resp.Code)
	}
	if resp := do(t, router, admin, http.MethodGet, "/api/v1/companies/unknown/compliance", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown company: expected 404, got %d", resp.Code)
	}
	resp := do(t, router, seller, http.MethodPost, "/api/v1/companies/company-1/compliance/documents", map[string]any{
		"type":         "passport",
		"fileMetadata": map[string]any{"storageKey": "k", "sizeBytes": 1},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unsupported type: expected 400, got %d", resp.Code)
	}
	if resp := do(t, router, admin, http.MethodPost, "/api/v1/compliance/documents/missing/review", map[string]any{"decision": "approve"}); resp.Code != http.StatusNotFound {
		t.Fatalf("missing document: expected 404, got %d", resp.Code)
	}
	if resp := do(t, router, seller, http.MethodPost, "/api/v1/companies/company-1/compliance/badge", map[string]any{"visible": true}); resp.Code != http.StatusConflict {
		t.Fatalf("badge before approval: expected 409, got %d", resp.Code)
	}
}

func TestComplianceMultipartUploadIsDownloadable(t *testing.T) {
	router := newTestApp(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("type", "business_license")
	_ = writer.WriteField("expiryAt", time.Now().UTC().AddDate(0, 6, 0).Format(time.RFC3339))
	fileWriter, err := writer.CreateFormFile("file", "license.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte("%PDF-1.4 license")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/companies/company-1/compliance/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Actor-Id", seller.id)
	req.Header.Set("X-Company-Id", seller.company)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var doc struct {
		FileMetadata struct {
			StorageKey string `json:"storageKey"`
			SizeBytes  int64  `json:"sizeBytes"`
		} `json:"fileMetadata"`
	}
	decode(t, resp, &doc)
	if doc.FileMetadata.StorageKey == "" || doc.FileMetadata.SizeBytes != int64(len("%PDF-1.4 license")) {
		t.Fatalf("unexpected file metadata: %+v", doc.FileMetadata)
	}

	fileURL := "/files/" + (&url.URL{Path: doc.FileMetadata.StorageKey}).EscapedPath()
	resp = do(t, router, actor{}, http.MethodGet, fileURL, nil)
	if resp.Code != http.StatusOK || resp.Body.String() != "%PDF-1.4 license" {
		t.Fatalf("download: got %d %q", resp.Code, resp.Body.String())
	}
}

func TestComplianceSubmitRejectsForeignStorageKey(t *testing.T) {
	router := newTestApp(t)

	resp := do(t, router, seller, http.MethodPost, "/api/v1/companies/company-1/compliance/documents", map[string]any{
		"type":     "general_liability_insurance",
		"expiryAt": time.Now().UTC().AddDate(1, 0, 0).Format(time.RFC3339),
		"fileMetadata": map[string]any{
			"fileName":   "secret-coi.pdf",
			"mimeType":   "application/pdf",
			"storageKey": util.HashNamespace("company-2") + "/secret-coi.pdf",
			"sizeBytes":  1024,
		},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("foreign key: expected 400, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(t, router, seller, http.MethodGet, "/api/v1/companies/company-1/compliance", nil)
	var summary struct {
		Documents []struct {
			DownloadURL string `json:"downloadUrl"`
		} `json:"documents"`
	}
	decode(t, resp, &summary)
	if len(summary.Documents) != 0 {
		t.Fatalf("expected no stored documents, got %+v", summary.Documents)
	}
}

func TestComplianceMultipartPastExpiryStoresNothing(t *testing.T) {
	storeDir := t.TempDir()
	router := newTestAppWithStore(t, storeDir)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("type", "business_license")
	_ = writer.WriteField("expiryAt", time.Now().UTC().AddDate(0, 0, -1).Format(time.RFC3339))
	fileWriter, err := writer.CreateFormFile("file", "license.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte("%PDF-1.4 license")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/companies/company-1/compliance/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Actor-Id", seller.id)
	req.Header.Set("X-Company-Id", seller.company)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("past expiry: expected 400, got %d: %s", resp.Code, resp.Body.String())
	}

	entries, err := os.ReadDir(storeDir)
	if err != nil {
		t.Fatalf("read store dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no stored objects, found %d entries", len(entries))
	}
}

func TestComplianceReinstateBody(t *testing.T) {
	router := newTestApp(t)

	if resp := do(t, router, admin, http.MethodPost, "/api/v1/companies/company-1/compliance/suspend", map[string]any{"reason": "fraud"}); resp.Code != http.StatusOK {
		t.Fatalf("suspend: expected 200, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/companies/company-1/compliance/reinstate", strings.NewReader(`{"reason":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", admin.id)
	req.Header.Set("X-Actor-Role", admin.role)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", resp.Code)
	}

	resp = do(t, router, seller, http.MethodPost, "/api/v1/companies/company-1/compliance/evaluate", nil)
	var app struct {
		Status string `json:"status"`
	}
	decode(t, resp, &app)
	if app.Status != "suspended" {
		t.Fatalf("malformed reinstate must not lift suspension, got %s", app.Status)
	}

	if resp := do(t, router, admin, http.MethodPost, "/api/v1/companies/company-1/compliance/reinstate", nil); resp.Code != http.StatusOK {
		t.Fatalf("empty body: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

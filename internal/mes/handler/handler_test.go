package handler

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/sse"
	"github.com/bitfantasy/nimo-mes/internal/mes/storage"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/xuri/excelize/v2"
)

func setupHandlerTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	router := testutil.SetupRouter()

	store, err := storage.NewLocalStorage(t.TempDir(), "/uploads/drawings")
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	hub := sse.NewHub(nil)
	repos := repository.NewRepositories(db)
	svc := service.NewServices(repos, store, service.NewBroadcastNotifier(hub, nil, "", nil), service.EnglishVocabulary, nil)
	handlers := NewHandlers(svc, hub, 1<<20, nil)

	api := testutil.AuthGroup(router, "/api/v1")
	handlers.RegisterRoutes(api)

	testutil.SeedTestUser(t, db, "test-user-001", "Test Admin", "admin")
	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

func TestImportEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	testutil.SeedDefaultRoute(t, env.DB)
	token := testutil.DefaultTestToken()

	csv := strings.Join([]string{
		"Batch #3",
		"Designation,Name,Qty,Size,Operations,Material",
		"A1,,,,,",
		"P1,Pin,2,M6,\"Turning, Milling\",Steel",
	}, "\n")

	w := testutil.DoUpload(env.Router, "POST", "/api/v1/parts/import", "file", "batch.csv", []byte(csv), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["added"] != float64(2) {
		t.Errorf("Expected added=2, got %v", data["added"])
	}
	if data["skipped"] != float64(0) {
		t.Errorf("Expected skipped=0, got %v", data["skipped"])
	}

	var p1 entity.Part
	if err := env.DB.First(&p1, "part_id = ?", "P1").Error; err != nil {
		t.Fatalf("P1 not stored: %v", err)
	}
	if p1.ParentID == nil || *p1.ParentID != "A1" {
		t.Errorf("Expected P1 parent A1, got %v", p1.ParentID)
	}

	// 重复导入全部跳过
	w = testutil.DoUpload(env.Router, "POST", "/api/v1/parts/import", "file", "batch.csv", []byte(csv), nil, token)
	data = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["added"] != float64(0) || data["skipped"] != float64(2) {
		t.Errorf("Expected 0/2 on re-import, got %v/%v", data["added"], data["skipped"])
	}
}

func TestImportEndpointErrors(t *testing.T) {
	env := setupHandlerTest(t)
	token := testutil.DefaultTestToken()

	cases := []struct {
		name     string
		filename string
		content  string
		status   int
		message  string
	}{
		{"unsupported", "parts.txt", "x", http.StatusBadRequest, service.ErrUnsupportedFormat.Error()},
		{"corrupt", "parts.xlsx", "not a zip", http.StatusBadRequest, service.ErrUnreadableFile.Error()},
		{"no header", "parts.csv", "a,b\nc,d", http.StatusBadRequest, service.ErrHeaderNotFound.Error()},
		{"no default", "parts.csv", "Designation,Name\nP1,Pin", http.StatusBadRequest, service.ErrNoDefaultRoute.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := testutil.DoUpload(env.Router, "POST", "/api/v1/parts/import", "file", tc.filename, []byte(tc.content), nil, token)
			if w.Code != tc.status {
				t.Fatalf("Expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if tc.message != "" {
				resp := testutil.ParseResponse(w)
				msg, _ := resp["message"].(string)
				if !strings.HasPrefix(msg, tc.message) {
					t.Errorf("Expected message %q, got %q", tc.message, msg)
				}
			}
		})
	}

	// 缺少文件字段
	w := testutil.DoUpload(env.Router, "POST", "/api/v1/parts/import", "file", "", nil, map[string]string{"x": "y"}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without file, got %d", w.Code)
	}

	// 未登录
	w = testutil.DoUpload(env.Router, "POST", "/api/v1/parts/import", "file", "a.csv", []byte("x"), nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}

func TestImportTemplateDownload(t *testing.T) {
	env := setupHandlerTest(t)
	w := testutil.DoRequest(env.Router, "GET", "/api/v1/parts/import/template", nil, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("template is not a valid xlsx: %v", err)
	}
	defer f.Close()
	v, _ := f.GetCellValue("Parts", "A2")
	if v != "Designation" {
		t.Errorf("Expected header Designation, got %q", v)
	}
}

func TestPartLifecycleEndpoints(t *testing.T) {
	env := setupHandlerTest(t)
	testutil.SeedDefaultRoute(t, env.DB)
	route := testutil.SeedRoute(t, env.DB, "Turning -> Milling", "Turning", "Milling")
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"part_id":           "D-1",
		"name":              "Shaft",
		"quantity_total":    4,
		"route_template_id": route.ID,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"part_id": "D-1",
		"name":    "Shaft",
	}, token)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts/D-1/stages", map[string]interface{}{
		"stage":    "Turning",
		"quantity": 3,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["quantity_completed"] != float64(3) {
		t.Errorf("Expected completed 3, got %v", data["quantity_completed"])
	}

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts/D-1/stages", map[string]interface{}{
		"stage":    "Milling",
		"quantity": 2,
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for overflow, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/D-1/history", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	history := testutil.ParseResponse(w)["data"].(map[string]interface{})["status_history"].([]interface{})
	if len(history) != 1 {
		t.Fatalf("Expected 1 history record, got %d", len(history))
	}
	historyID := history[0].(map[string]interface{})["id"].(float64)

	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/stage-records/"+formatID(historyID), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on cancel, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/D-1/qr", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for qr, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/audit-logs?part_id=D-1", nil, token)
	logs := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(logs) != 4 {
		t.Errorf("Expected 4 audit logs (create, stage, cancel, qr), got %d", len(logs))
	}

	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/parts/D-1", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/D-1", nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestCreatePartWithDrawing(t *testing.T) {
	env := setupHandlerTest(t)
	testutil.SeedDefaultRoute(t, env.DB)
	token := testutil.DefaultTestToken()

	w := testutil.DoUpload(env.Router, "POST", "/api/v1/parts", "drawing", "shaft.pdf", []byte("%PDF-1.4"),
		map[string]string{"part_id": "D-7", "name": "Shaft", "quantity_total": "2"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/D-7/drawing", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Body.String() != "%PDF-1.4" {
		t.Errorf("Unexpected drawing body %q", w.Body.String())
	}
}

func TestRouteEndpointsRequireTechnologist(t *testing.T) {
	env := setupHandlerTest(t)
	operator := testutil.GenerateTestToken("op-1", "Operator", "operator")
	tech := testutil.GenerateTestToken("tech-1", "Technologist", RoleTechnologist)

	body := map[string]interface{}{"stages": []string{"Cutting", "Welding"}}
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/routes", body, operator)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for operator, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/routes", body, tech)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["name"] != "Cutting -> Welding" {
		t.Errorf("Expected derived name, got %v", data["name"])
	}
	id := formatID(data["id"].(float64))

	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/routes/"+id+"/default", nil, tech)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/routes", nil, operator)
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 || items[0].(map[string]interface{})["is_default"] != true {
		t.Errorf("Expected one default route, got %v", items)
	}

	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/routes/abc", nil, tech)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/routes/"+id, nil, tech)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", w.Code)
	}
}

func formatID(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	JWTSecret = "nimo-mes-test-secret"
	JWTIssuer = "nimo-mes"

	DefaultRouteName = "Stock"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// SetupTestDB 每个测试一个独立的内存 SQLite 库
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(entity.AllModels()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, role string) string {
	token, _ := middleware.GenerateToken(JWTSecret, JWTIssuer, userID, name, role, 24*time.Hour)
	return token
}

// DefaultTestToken returns a token for the seeded admin user
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", "Test Admin", middleware.AdminRole)
}

// DoRequest executes a JSON request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// DoUpload 以 multipart/form-data 上传文件，fields 为附加表单字段
func DoUpload(r *gin.Engine, method, path, field, filename string, content []byte, fields map[string]string, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		fw, _ := mw.CreateFormFile(field, filename)
		io.Copy(fw, bytes.NewReader(content))
	}
	mw.Close()

	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedTestUser creates a test user in the database
func SeedTestUser(t *testing.T, db *gorm.DB, id, name, role string) *entity.User {
	t.Helper()
	user := &entity.User{
		ID:       id,
		Username: "user_" + id,
		Name:     name,
		Role:     role,
		Status:   "active",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed test user: %v", err)
	}
	return user
}

// SeedRoute 创建路线模板及工序，按给定顺序
func SeedRoute(t *testing.T, db *gorm.DB, name string, stages ...string) *entity.RouteTemplate {
	t.Helper()
	route := &entity.RouteTemplate{Name: name}
	if err := db.Omit("Stages").Create(route).Error; err != nil {
		t.Fatalf("seed route: %v", err)
	}
	for i, stageName := range stages {
		stage := entity.Stage{Name: stageName}
		if err := db.Where("name_key = ?", entity.StageKey(stageName)).FirstOrCreate(&stage).Error; err != nil {
			t.Fatalf("seed stage %q: %v", stageName, err)
		}
		rs := &entity.RouteStage{TemplateID: route.ID, StageID: stage.ID, Order: i}
		if err := db.Omit("Stage").Create(rs).Error; err != nil {
			t.Fatalf("seed route stage: %v", err)
		}
	}
	return route
}

// SeedDefaultRoute 创建默认路线 "Stock"
func SeedDefaultRoute(t *testing.T, db *gorm.DB) *entity.RouteTemplate {
	t.Helper()
	route := SeedRoute(t, db, DefaultRouteName, "Warehouse")
	setting := &entity.SystemSetting{ID: entity.SystemSettingID, DefaultRouteID: &route.ID}
	if err := db.Create(setting).Error; err != nil {
		t.Fatalf("seed default route: %v", err)
	}
	route.IsDefault = true
	return route
}

// SeedPart 直接写入一个零件
func SeedPart(t *testing.T, db *gorm.DB, part *entity.Part) *entity.Part {
	t.Helper()
	if part.QuantityTotal == 0 {
		part.QuantityTotal = 1
	}
	if part.CurrentStatus == "" {
		part.CurrentStatus = entity.PartStatusInStock
	}
	if part.Name == "" {
		part.Name = "Part " + part.PartID
	}
	if err := db.Omit("RouteTemplate", "Responsible", "Children").Create(part).Error; err != nil {
		t.Fatalf("seed part %s: %v", part.PartID, err)
	}
	return part
}

// CountRows 表的行数
func CountRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.WithContext(context.Background()).Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

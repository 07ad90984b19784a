package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/model"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/upload"
	"github.com/KarinaMilko/Fullstack-ClassWork/internal/store"
)

// newFlowServer 用内存库和临时目录组装一个真实依赖的服务端。
func newFlowServer(t *testing.T) (*gin.Engine, *gorm.DB, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	dir := t.TempDir()
	_, r := newTestServer(store.NewUserStore(db), store.NewTaskStore(db), upload.NewSaver(dir))
	return r, db, dir
}

func countUploadedFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("read upload dir: %v", err)
	}
	return len(entries)
}

func flowUserFields(i int) map[string]string {
	return map[string]string{
		"nickname": fmt.Sprintf("user%02d", i),
		"email":    fmt.Sprintf("user%02d@example.com", i),
		"tel":      fmt.Sprintf("+38050%07d", i),
		"password": "secret123",
		"birthday": "2000-05-10",
	}
}

func TestFlow_PutCreatesThenUpdates(t *testing.T) {
	r, _, dir := newFlowServer(t)

	body, contentType := multipartBody(t, validUserFields(), "photo", "me.png", "image/png", []byte("png-bytes"))
	w := doRequest(r, http.MethodPut, "/users/999", contentType, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"id":999`) {
		t.Errorf("path id should become the row id: %s", w.Body.String())
	}
	if countUploadedFiles(t, dir) != 1 {
		t.Errorf("expected exactly one stored file, dir has %d", countUploadedFiles(t, dir))
	}

	w = doRequest(r, http.MethodGet, "/users/999", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after create, got %d", w.Code)
	}

	form := url.Values{}
	form.Set("nickname", "renamed")
	w = doRequest(r, http.MethodPut, "/users/999", "application/x-www-form-urlencoded", bytes.NewBufferString(form.Encode()))
	if w.Code != http.StatusOK {
		t.Fatalf("second PUT should update, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/users/999", "", nil)
	resp := w.Body.String()
	if !strings.Contains(resp, `"nickname":"renamed"`) {
		t.Errorf("nickname should change: %s", resp)
	}
	// 未提交的字段不许丢
	for _, want := range []string{`"email":"alice@example.com"`, `"tel":"+380501234567"`, `"birthday":"2000-05-10"`} {
		if !strings.Contains(resp, want) {
			t.Errorf("untouched field lost, missing %s: %s", want, resp)
		}
	}
	if strings.Contains(strings.ToLower(resp), "password") {
		t.Errorf("response leaked the password hash: %s", resp)
	}
}

func TestFlow_RejectedUploadPersistsNothing(t *testing.T) {
	r, db, dir := newFlowServer(t)

	body, contentType := multipartBody(t, validUserFields(), "photo", "payload.txt", "text/plain", []byte("not an image"))
	w := doRequest(r, http.MethodPost, "/users", contentType, body)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d: %s", w.Code, w.Body.String())
	}
	var total int64
	db.Model(&model.User{}).Count(&total)
	if total != 0 {
		t.Errorf("no row may be written, found %d", total)
	}
	if countUploadedFiles(t, dir) != 0 {
		t.Errorf("no file may be written, dir has %d", countUploadedFiles(t, dir))
	}
}

func TestFlow_DuplicateEmailOnSecondCreate(t *testing.T) {
	r, _, _ := newFlowServer(t)

	fields := flowUserFields(1)
	body, contentType := multipartBody(t, fields, "", "", "", nil)
	w := doRequest(r, http.MethodPost, "/users", contentType, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("first create failed: %d %s", w.Code, w.Body.String())
	}

	fields["nickname"] = "someone-else"
	fields["tel"] = "+380509999999"
	body, contentType = multipartBody(t, fields, "", "", "", nil)
	w = doRequest(r, http.MethodPost, "/users", contentType, body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"field":"email"`) {
		t.Errorf("expected the duplicate to name the email field: %s", w.Body.String())
	}
}

func TestFlow_PaginationAcrossPages(t *testing.T) {
	r, db, _ := newFlowServer(t)

	for i := 1; i <= 25; i++ {
		u := model.User{
			Nickname:     fmt.Sprintf("user%02d", i),
			Email:        fmt.Sprintf("user%02d@example.com", i),
			Tel:          fmt.Sprintf("+38050%07d", i),
			PasswordHash: "stored-hash",
			Birthday:     time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user %d: %v", i, err)
		}
	}

	w := doRequest(r, http.MethodGet, "/users?page=2&results=10", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := w.Body.String()
	for _, want := range []string{`"nickname":"user11"`, `"nickname":"user20"`, `"total":25`, `"page":2`, `"pageSize":10`} {
		if !strings.Contains(resp, want) {
			t.Errorf("page 2 missing %s: %s", want, resp)
		}
	}
	if strings.Contains(resp, `"nickname":"user10"`) || strings.Contains(resp, `"nickname":"user21"`) {
		t.Errorf("page 2 leaked rows from neighbouring pages: %s", resp)
	}

	w = doRequest(r, http.MethodGet, "/users?page=9&results=10", "", nil)
	resp = w.Body.String()
	if !strings.Contains(resp, `"items":[]`) || !strings.Contains(resp, `"total":25`) {
		t.Errorf("out-of-range page should be empty but keep the total: %s", resp)
	}
}

func TestFlow_TasksJoinAndCascade(t *testing.T) {
	r, _, _ := newFlowServer(t)

	for i := 1; i <= 2; i++ {
		body, contentType := multipartBody(t, flowUserFields(i), "", "", "", nil)
		w := doRequest(r, http.MethodPost, "/users", contentType, body)
		if w.Code != http.StatusCreated {
			t.Fatalf("create user %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	deadline := time.Now().AddDate(0, 0, 7).Format(model.DateLayout)
	for i, owner := range []int{1, 2, 1} {
		payload := fmt.Sprintf(`{"body":"task %d","deadline":"%s","userId":%d}`, i+1, deadline, owner)
		w := doRequest(r, http.MethodPost, "/tasks", "application/json", bytes.NewBufferString(payload))
		if w.Code != http.StatusCreated {
			t.Fatalf("create task %d: %d %s", i+1, w.Code, w.Body.String())
		}
	}

	w := doRequest(r, http.MethodGet, "/tasks", "", nil)
	resp := w.Body.String()
	if strings.Count(resp, `"nickname":"user01"`) != 2 || strings.Count(resp, `"nickname":"user02"`) != 1 {
		t.Errorf("owner nicknames wrong: %s", resp)
	}

	w = doRequest(r, http.MethodDelete, "/users/1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete user: %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/tasks", "", nil)
	resp = w.Body.String()
	if strings.Contains(resp, `"nickname":"user01"`) {
		t.Errorf("cascade should remove the owner's tasks: %s", resp)
	}
	if !strings.Contains(resp, `"nickname":"user02"`) {
		t.Errorf("other users' tasks must survive: %s", resp)
	}

	w = doRequest(r, http.MethodGet, "/users/1/tasks", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("tasks of a deleted user should 404, got %d", w.Code)
	}
}

func TestFlow_PatchImageCleansOldFile(t *testing.T) {
	r, _, dir := newFlowServer(t)

	body, contentType := multipartBody(t, flowUserFields(1), "photo", "one.png", "image/png", []byte("first"))
	w := doRequest(r, http.MethodPost, "/users", contentType, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if countUploadedFiles(t, dir) != 1 {
		t.Fatalf("expected 1 file after create, got %d", countUploadedFiles(t, dir))
	}

	body, contentType = multipartBody(t, nil, "photo", "two.png", "image/png", []byte("second"))
	w = doRequest(r, http.MethodPatch, "/users/1/images", contentType, body)
	if w.Code != http.StatusOK {
		t.Fatalf("patch image: %d %s", w.Code, w.Body.String())
	}
	// 旧头像文件必须被回收
	if countUploadedFiles(t, dir) != 1 {
		t.Errorf("expected the old file to be replaced, dir has %d", countUploadedFiles(t, dir))
	}
}

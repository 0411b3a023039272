package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/binary"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/schema"
	"github.com/kasuganosora/syncbase/internal/sync"
)

const (
	testAPIKey    = "test-api-key-12345"
	testAPISecret = "test-secret-abcdef0123456789abcdef0123456789"
)

// testEnv holds shared test infrastructure: a real access.Client over an
// in-memory sqlite database plus the mux/store wiring server.go builds.
type testEnv struct {
	db          *access.Client
	sqlDB       *sql.DB
	configDir   string
	binaryRoot  string
	sessions    SessionStore
	mux         http.Handler
	clientStore *ClientStore
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = sqlDB.Exec(`
		CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, version INTEGER DEFAULT 1);
	`)
	require.NoError(t, err)

	cat := schema.New(&schema.SQLiteReflector{DB: sqlDB})
	_, err = cat.Load()
	require.NoError(t, err)

	db := access.New(sqlDB, query.SQLiteDialect{}, cat)

	syncSrv := sync.NewServer(db, sync.Config{Tables: []string{"widgets"}})

	binaryRoot := t.TempDir()
	binEngine := binary.NewEngine(db, binary.Config{Root: binaryRoot, PathPattern: binary.DefaultPathPattern})

	sessions := NewInMemorySessionStore(map[string]string{"alice": "wonderland"})

	configDir := t.TempDir()
	writeAPIClients(t, configDir, APIClient{
		Name: "test_client", APIKey: testAPIKey, APISecret: testAPISecret, Enabled: true,
	})

	api := &API{DB: db, SyncSrv: syncSrv, Binary: binEngine, Sessions: sessions}
	clientStore := NewClientStore(configDir)

	authedMux := http.NewServeMux()
	authedMux.HandleFunc("GET "+basePath+"/schema", api.handleSchema)
	authedMux.HandleFunc("POST "+basePath+"/{table}", api.handleTable)
	authedMux.HandleFunc("PUT "+basePath+"/{table}/{pk...}", api.handleTable)
	authedMux.HandleFunc("DELETE "+basePath+"/{table}/{pk...}", api.handleTable)
	authedMux.HandleFunc("GET "+basePath+"/{table}", api.handleTable)
	authedMux.HandleFunc("GET "+basePath+"/{table}/{pk...}", api.handleTable)
	authedMux.HandleFunc("POST "+basePath+"/multiread", api.handleMultiread)
	authedMux.HandleFunc("POST "+basePath+"/transactionalChanges", api.handleTransactionalChanges)
	authedMux.HandleFunc("POST "+basePath+"/syncGetTime", api.handleSyncGetTime)
	authedMux.HandleFunc("POST "+basePath+"/sync", api.handleSync)
	authedMux.HandleFunc("POST "+basePath+"/saveBinary", api.handleSaveBinary)
	authedMux.HandleFunc("GET "+basePath+"/readBinary/{action}/{uid}/{filename...}", api.handleReadBinary)
	authedMux.HandleFunc("POST "+basePath+"/auth/user", api.handleAuthUser)
	authedMux.HandleFunc("POST "+basePath+"/logout", api.handleLogout)

	top := http.NewServeMux()
	top.HandleFunc("GET "+basePath+"/health", handleHealth)
	top.Handle(basePath+"/", AuthMiddleware(clientStore)(authedMux))

	handler := RecoveryMiddleware(CORSMiddleware(LoggingMiddleware(SessionMiddleware(sessions)(top))))

	return &testEnv{
		db:          db,
		sqlDB:       sqlDB,
		configDir:   configDir,
		binaryRoot:  binaryRoot,
		sessions:    sessions,
		mux:         handler,
		clientStore: clientStore,
	}
}

func writeAPIClients(t *testing.T, configDir string, clients ...APIClient) {
	t.Helper()
	data, err := json.MarshalIndent(clients, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, apiClientsFileName), data, 0600))
}

func signRequest(method, path, body, apiSecret string) (timestamp, nonce, signature string) {
	timestamp = strconv.FormatInt(time.Now().Unix(), 10)
	nonce = "test-nonce-123"
	message := method + path + timestamp + nonce + body
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(message))
	signature = hex.EncodeToString(mac.Sum(nil))
	return
}

func authedRequest(t *testing.T, method, url, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	path := req.URL.Path
	ts, nonce, sig := signRequest(method, path, body, testAPISecret)
	req.Header.Set(headerAPIKey, testAPIKey)
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerNonce, nonce)
	req.Header.Set(headerSignature, sig)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.mux)
	defer server.Close()

	resp, err := http.Get(server.URL + basePath + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestTableEndpoint_NoAuth(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.mux)
	defer server.Close()

	resp, err := http.Get(server.URL + basePath + "/widgets")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInsertGetUpdateRemove(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.mux)
	defer server.Close()
	client := server.Client()

	insertBody := `{"name":"widget-a"}`
	req := authedRequest(t, http.MethodPost, server.URL+basePath+"/widgets", insertBody)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var inserted model.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inserted))
	id := fmt.Sprintf("%v", inserted["id"])

	getReq := authedRequest(t, http.MethodGet, server.URL+basePath+"/widgets/"+id, "")
	getResp, err := client.Do(getReq)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	var got model.Record
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	assert.Equal(t, "widget-a", got["name"])

	updateBody := `{"name":"widget-b"}`
	updReq := authedRequest(t, http.MethodPut, server.URL+basePath+"/widgets/"+id, updateBody)
	updResp, err := client.Do(updReq)
	require.NoError(t, err)
	defer updResp.Body.Close()
	assert.Equal(t, http.StatusOK, updResp.StatusCode)

	delReq := authedRequest(t, http.MethodDelete, server.URL+basePath+"/widgets/"+id, "")
	delResp, err := client.Do(delReq)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	getReq2 := authedRequest(t, http.MethodGet, server.URL+basePath+"/widgets/"+id, "")
	getResp2, err := client.Do(getReq2)
	require.NoError(t, err)
	defer getResp2.Body.Close()
	assert.Equal(t, http.StatusOK, getResp2.StatusCode)
	var empty model.Record
	require.NoError(t, json.NewDecoder(getResp2.Body).Decode(&empty))
	assert.Nil(t, empty)
}

func TestSchemaEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.mux)
	defer server.Close()

	req := authedRequest(t, http.MethodGet, server.URL+basePath+"/schema", "")
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]*model.TableSchema
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	_, ok := out["widgets"]
	assert.True(t, ok)
}

func TestSyncGetTime(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.mux)
	defer server.Close()

	clientTime := time.Now().Add(-2 * time.Second).Format(time.RFC3339Nano)
	req := authedRequest(t, http.MethodPost, server.URL+basePath+"/syncGetTime", clientTime)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	skewMs, err := strconv.ParseInt(buf.String(), 10, 64)
	require.NoError(t, err)
	assert.Greater(t, skewMs, int64(1000))
}

func TestAuthUserAndLogout(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.mux)
	defer server.Close()

	body := `{"username":"alice","password":"wonderland"}`
	req := authedRequest(t, http.MethodPost, server.URL+basePath+"/auth/user", body)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookieFound bool
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			cookieFound = true
		}
	}
	assert.True(t, cookieFound)

	logoutReq := authedRequest(t, http.MethodPost, server.URL+basePath+"/logout", "")
	logoutResp, err := server.Client().Do(logoutReq)
	require.NoError(t, err)
	defer logoutResp.Body.Close()
	assert.Equal(t, http.StatusOK, logoutResp.StatusCode)
}

func TestSaveAndReadBinary(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.mux)
	defer server.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("record", `{"table":"widgets","tableUid":"1"}`))
	fw, err := mw.CreateFormFile("contents", "hello.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, server.URL+basePath+"/saveBinary", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	ts, nonce, sig := signRequest(http.MethodPost, req.URL.Path, body.String(), testAPISecret)
	req.Header.Set(headerAPIKey, testAPIKey)
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerNonce, nonce)
	req.Header.Set(headerSignature, sig)

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var meta model.BinaryMeta
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.NotEmpty(t, meta.UID)

	readReq := authedRequest(t, http.MethodGet, server.URL+basePath+"/readBinary/download/"+meta.UID+"/hello.txt", "")
	readResp, err := server.Client().Do(readReq)
	require.NoError(t, err)
	defer readResp.Body.Close()
	require.Equal(t, http.StatusOK, readResp.StatusCode)

	got := new(bytes.Buffer)
	_, err = got.ReadFrom(readResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.String())
}

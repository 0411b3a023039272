package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/binary"
	"github.com/kasuganosora/syncbase/internal/model"
	"github.com/kasuganosora/syncbase/internal/sync"
)

// API groups every dependency the wire handlers call into: the access
// client for table CRUD/search, the sync server for upload apply, the
// binary engine for blob save/read, and the session store for
// auth/user+logout.
type API struct {
	DB       *access.Client
	SyncSrv  *sync.Server
	Binary   *binary.Engine
	Sessions SessionStore
}

// ---------------------------------------------------------------------------
// GET {base}/schema
// ---------------------------------------------------------------------------

func (a *API) handleSchema(w http.ResponseWriter, r *http.Request) {
	names, err := a.DB.Tables()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]*model.TableSchema, len(names))
	for _, name := range names {
		ts, err := a.DB.TableSchema(name)
		if err != nil {
			writeError(w, err)
			return
		}
		out[name] = ts
	}
	writeJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// {base}/{table} and {base}/{table}/{pk...}
// ---------------------------------------------------------------------------

// handleTable dispatches the five table-path operations: POST insert, PUT
// update (pk from URL overwrites body), DELETE remove, GET by pk, and GET
// with ?search=/?searchFirst= query parameters.
func (a *API) handleTable(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	if table == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing table name", Code: http.StatusBadRequest})
		return
	}
	pkPath := r.PathValue("pk")

	switch r.Method {
	case http.MethodPost:
		a.insertRecord(w, r, table)
	case http.MethodPut:
		a.updateRecord(w, r, table, pkPath)
	case http.MethodDelete:
		a.removeRecord(w, r, table, pkPath)
	case http.MethodGet:
		if pkPath != "" {
			a.getByPk(w, r, table, pkPath)
			return
		}
		a.searchTable(w, r, table)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
	}
}

// singleMutationTimeout bounds the transaction each single-record
// insert/update/remove opens to commit its mutation and the history rows
// the tracker hooks write for it atomically.
const singleMutationTimeout = 30 * time.Second

func (a *API) insertRecord(w http.ResponseWriter, r *http.Request, table string) {
	var rec model.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: http.StatusBadRequest})
		return
	}
	var out model.Record
	err := a.DB.Transaction(r.Context(), singleMutationTimeout, func(tx *access.Client, done func(error)) error {
		inserted, err := tx.Insert(r.Context(), table, rec)
		if err != nil {
			done(err)
			return err
		}
		out = inserted
		done(nil)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) updateRecord(w http.ResponseWriter, r *http.Request, table, pkPath string) {
	var rec model.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: http.StatusBadRequest})
		return
	}
	if pkPath != "" {
		pk, err := a.resolvePK(table, pkPath)
		if err != nil {
			writeError(w, err)
			return
		}
		for col, val := range pk {
			rec[col] = val // pk columns in the URL overwrite the body
		}
	}
	var out model.Record
	err := a.DB.Transaction(r.Context(), singleMutationTimeout, func(tx *access.Client, done func(error)) error {
		updated, err := tx.Update(r.Context(), table, rec)
		if err != nil {
			done(err)
			return err
		}
		out = updated
		done(nil)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) removeRecord(w http.ResponseWriter, r *http.Request, table, pkPath string) {
	pk, err := a.resolvePK(table, pkPath)
	if err != nil {
		writeError(w, err)
		return
	}
	err = a.DB.Transaction(r.Context(), singleMutationTimeout, func(tx *access.Client, done func(error)) error {
		if err := tx.Remove(r.Context(), table, pk); err != nil {
			done(err)
			return err
		}
		done(nil)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (a *API) getByPk(w http.ResponseWriter, r *http.Request, table, pkPath string) {
	pk, err := a.resolvePK(table, pkPath)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.DB.GetByPk(r.Context(), table, pk, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) searchTable(w http.ResponseWriter, r *http.Request, table string) {
	if raw := r.URL.Query().Get("searchFirst"); raw != "" {
		var spec searchSpec
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid searchFirst: " + err.Error(), Code: http.StatusBadRequest})
			return
		}
		rec, err := a.DB.SearchFirst(r.Context(), spec.toSelectSpec(table))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	raw := r.URL.Query().Get("search")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing search or searchFirst query parameter", Code: http.StatusBadRequest})
		return
	}
	var spec searchSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid search: " + err.Error(), Code: http.StatusBadRequest})
		return
	}
	rows, err := a.DB.Search(r.Context(), spec.toSelectSpec(table))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// resolvePK zips a "/"-joined URL path segment against the table's
// primary-key column order's "{base}/{table}/{pk…}".
func (a *API) resolvePK(table, pkPath string) (model.Record, error) {
	ts, err := a.DB.TableSchema(table)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(pkPath, "/")
	if len(parts) != len(ts.PrimaryKey) {
		return nil, model.NewConfigurationError("table %s expects %d primary key segment(s), got %d", table, len(ts.PrimaryKey), len(parts))
	}
	pk := make(model.Record, len(parts))
	for i, col := range ts.PrimaryKey {
		pk[col] = parts[i]
	}
	return pk, nil
}

// ---------------------------------------------------------------------------
// POST {base}/multiread
// ---------------------------------------------------------------------------

func (a *API) handleMultiread(w http.ResponseWriter, r *http.Request) {
	var req map[string]multireadEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: http.StatusBadRequest})
		return
	}

	specs := make(map[string]access.ReadSpec, len(req))
	for name, entry := range req {
		spec := access.ReadSpec{Table: entry.Table}
		switch {
		case entry.PK != nil:
			spec.PK = entry.PK
		case entry.Search != nil:
			s := entry.Search.toSelectSpec(entry.Table)
			spec.Search = &s
		case entry.SearchFirst != nil:
			s := entry.SearchFirst.toSelectSpec(entry.Table)
			spec.SearchFirst = &s
		default:
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "multiread entry " + name + " specifies neither pk, search nor searchFirst", Code: http.StatusBadRequest})
			return
		}
		specs[name] = spec
	}

	out, err := a.DB.Multiread(r.Context(), specs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// POST {base}/transactionalChanges
// ---------------------------------------------------------------------------

func (a *API) handleTransactionalChanges(w http.ResponseWriter, r *http.Request) {
	var req []changeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: http.StatusBadRequest})
		return
	}

	ops := make([]access.ChangeOp, len(req))
	for i, d := range req {
		ch := d.toChange()
		ops[i] = access.ChangeOp{Action: ch.Action, Table: ch.Table, Record: ch.Record, Conditions: combineConditions(ch.Conditions)}
	}

	var results []model.Record
	err := a.DB.Transaction(r.Context(), 30*time.Second, func(tx *access.Client, done func(error)) error {
		out, err := tx.Changes(r.Context(), ops)
		if err != nil {
			done(err)
			return err
		}
		results = out
		done(nil)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func combineConditions(preds []model.Predicate) model.Predicate {
	if len(preds) == 0 {
		return model.Predicate{}
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return model.Predicate{Op: model.OpAnd, And: preds}
}

// ---------------------------------------------------------------------------
// POST /syncGetTime
// ---------------------------------------------------------------------------

// handleSyncGetTime implements time-skew negotiation's server half (spec
// 4.5.1): the body is the client's current timestamp (RFC3339 text); the
// response is the server's skew relative to it, in milliseconds, as
// plain text — serverNow - clientTime, which a sync.TimeServer-driven
// client folds into its running delta across NegotiateSkew's attempts.
func (a *API) handleSyncGetTime(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read request body", Code: http.StatusBadRequest})
		return
	}
	clientTime, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(body)))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid client timestamp: " + err.Error(), Code: http.StatusBadRequest})
		return
	}

	skewMs := time.Since(clientTime).Milliseconds()
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strconv.FormatInt(skewMs, 10)))
}

// ---------------------------------------------------------------------------
// POST /sync — multipart{changes: json}
// ---------------------------------------------------------------------------

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid multipart body: " + err.Error(), Code: http.StatusBadRequest})
		return
	}
	raw := r.FormValue("changes")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing changes field", Code: http.StatusBadRequest})
		return
	}

	var dto changeSetDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid changes JSON: " + err.Error(), Code: http.StatusBadRequest})
		return
	}

	clientDate, err := time.Parse(time.RFC3339, dto.ClientDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid clientDate: " + err.Error(), Code: http.StatusBadRequest})
		return
	}

	cs := model.ChangeSet{UUID: dto.UUID, ClientDate: clientDate, TimeSkewMs: dto.TimeSkewMs}
	for _, c := range dto.Changes {
		cs.Changes = append(cs.Changes, c.toChange())
	}

	shouldRefresh, err := a.SyncSrv.Apply(r.Context(), cs)
	if err != nil {
		writeError(w, err)
		return
	}
	if shouldRefresh {
		writeJSON(w, http.StatusOK, map[string]interface{}{"shouldRefresh": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// ---------------------------------------------------------------------------
// POST /saveBinary — multipart{record, contents}
// ---------------------------------------------------------------------------

func (a *API) handleSaveBinary(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid multipart body: " + err.Error(), Code: http.StatusBadRequest})
		return
	}

	var rec model.Record
	if raw := r.FormValue("record"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid record JSON: " + err.Error(), Code: http.StatusBadRequest})
			return
		}
	}

	file, header, err := r.FormFile("contents")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing contents file: " + err.Error(), Code: http.StatusBadRequest})
		return
	}
	defer file.Close()

	in := binary.SaveInput{
		UID:      stringField(rec, "uid"),
		Table:    stringField(rec, "table"),
		TableUID: stringField(rec, "tableUid"),
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Contents: file,
	}
	if desc, ok := rec["description"].(string); ok {
		in.Description = desc
	}

	meta, err := a.Binary.Save(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func stringField(rec model.Record, key string) string {
	if rec == nil {
		return ""
	}
	s, _ := rec[key].(string)
	return s
}

// ---------------------------------------------------------------------------
// GET /readBinary/{action}/{uid}/{filename?}
// ---------------------------------------------------------------------------

func (a *API) handleReadBinary(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	uid := r.PathValue("uid")
	filename := r.PathValue("filename")

	if action != "download" && action != "inline" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "action must be download or inline", Code: http.StatusBadRequest})
		return
	}

	rc, meta, err := a.Binary.Open(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	name := filename
	if name == "" {
		name = meta.Filename
	}
	disposition := "inline"
	if action == "download" {
		disposition = "attachment"
	}
	if meta.MimeType != "" {
		w.Header().Set("Content-Type", meta.MimeType)
	}
	w.Header().Set("Content-Disposition", disposition+`; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

// ---------------------------------------------------------------------------
// POST /auth/user, POST /logout
// ---------------------------------------------------------------------------

func (a *API) handleAuthUser(w http.ResponseWriter, r *http.Request) {
	var creds credentialsDTO
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: http.StatusBadRequest})
		return
	}

	userUID, err := a.Sessions.Authenticate(r.Context(), creds.Username, creds.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: http.StatusUnauthorized})
		return
	}
	sess, err := a.Sessions.Create(r.Context(), userUID)
	if err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.SID,
		Path:     "/",
		HttpOnly: true,
		Expires:  sess.Expire,
	})
	writeJSON(w, http.StatusOK, map[string]string{"userUid": userUID})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		a.Sessions.Delete(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// ---------------------------------------------------------------------------
// health
// ---------------------------------------------------------------------------

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: "1.0.0"})
}

// getClientIP extracts the client IP from the request, used by
// LoggingMiddleware-adjacent diagnostics.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

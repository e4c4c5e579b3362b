package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/leadflow/internal/tenancy"
)

func newAutomationRouter(f *executorFixture) http.Handler {
	r := chi.NewRouter()
	r.Use(tenancy.RequireOrgID)
	NewHandler(f.exec, f.repo, nil).RegisterRoutes(r)
	return r
}

func serveAs(router http.Handler, orgID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(tenancy.OrgHeader, orgID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlerListWorkflows(t *testing.T) {
	f := newExecutorFixture(t, []Workflow{welcome})
	w := serveAs(newAutomationRouter(f), "org-1", http.MethodGet, "/automation/workflows", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Workflows []Workflow `json:"workflows"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Workflows, 1)
	assert.Equal(t, "welcome", resp.Workflows[0].ID)
}

func TestHandlerStartGetAndCancelRun(t *testing.T) {
	disabled := welcome
	disabled.ID = "off"
	disabled.Enabled = false
	f := newExecutorFixture(t, []Workflow{welcome, disabled})
	lead := f.createLead(t)
	router := newAutomationRouter(f)

	w := serveAs(router, "org-1", http.MethodPost, "/automation/workflows/off/runs", `{"lead_id":"`+lead.ID+`"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var run Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	assert.Equal(t, RunWaiting, run.Status)
	assert.Equal(t, EventManual, run.Event)

	w = serveAs(router, "org-1", http.MethodGet, "/automation/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serveAs(router, "org-2", http.MethodGet, "/automation/runs/"+run.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "other orgs cannot see the run")

	w = serveAs(router, "org-1", http.MethodDelete, "/automation/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	assert.Equal(t, RunCancelled, run.Status)

	w = serveAs(router, "org-1", http.MethodGet, "/leads/"+lead.ID+"/automation/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list.Runs, 1)
}

func TestHandlerStartRunErrors(t *testing.T) {
	f := newExecutorFixture(t, []Workflow{welcome})
	lead := f.createLead(t)
	router := newAutomationRouter(f)

	w := serveAs(router, "org-1", http.MethodPost, "/automation/workflows/nope/runs", `{"lead_id":"`+lead.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serveAs(router, "org-1", http.MethodPost, "/automation/workflows/welcome/runs", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serveAs(router, "org-1", http.MethodPost, "/automation/workflows/welcome/runs", `{"lead_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	lead.MarkDead("inactive", baseTime)
	require.NoError(t, f.repo.Update(context.Background(), lead))
	w = serveAs(router, "org-1", http.MethodPost, "/automation/workflows/welcome/runs", `{"lead_id":"`+lead.ID+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandlerListLeadRunsEmpty(t *testing.T) {
	f := newExecutorFixture(t, []Workflow{welcome})
	w := serveAs(newAutomationRouter(f), "org-1", http.MethodGet, "/leads/none/automation/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":[]}`, w.Body.String())
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-cli/internal/campaign"
	"github.com/sells-group/campaign-cli/internal/config"
	"github.com/sells-group/campaign-cli/internal/coverage"
	"github.com/sells-group/campaign-cli/internal/enrich"
	"github.com/sells-group/campaign-cli/internal/model"
	"github.com/sells-group/campaign-cli/internal/store"
)

type stubTables struct{}

func (stubTables) TableFor(region string) (*coverage.Table, error) {
	return &coverage.Table{Region: region, Units: []coverage.Entry{
		{UnitID: "90012", Density: model.DensityHigh, ExpectedBusinesses: 10},
	}}, nil
}

type stubDiscovery struct{}

func (stubDiscovery) Discover(context.Context, enrich.DiscoveryQuery) ([]model.Lead, error) {
	return []model.Lead{{PlaceID: "p1", Name: "Biz", Website: "https://biz.example.com"}}, nil
}

type stubStage struct {
	target model.LeadStage
	cap    string
}

func (s stubStage) Name() string            { return string(s.target) }
func (s stubStage) Capability() string      { return s.cap }
func (s stubStage) Target() model.LeadStage { return s.target }
func (s stubStage) Run(_ context.Context, lead *model.Lead) error {
	lead.Stage = s.target
	return nil
}

func testRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	eng := campaign.NewEngine(campaign.Options{
		Store:     st,
		Tables:    stubTables{},
		Discovery: stubDiscovery{},
		Stages: []enrich.Stage{
			stubStage{target: model.StageResearched, cap: enrich.CapResearch},
			stubStage{target: model.StageSummarized, cap: enrich.CapSummarize},
			stubStage{target: model.StageVerified, cap: enrich.CapVerify},
		},
		Limits: map[string]config.CapabilityLimit{
			"discovery": {MinIntervalMS: 1, MaxInFlight: 1},
			"research":  {MinIntervalMS: 1, MaxInFlight: 2},
			"summarize": {MinIntervalMS: 1, MaxInFlight: 2},
			"verify":    {MinIntervalMS: 1, MaxInFlight: 2},
		},
		Engine: config.EngineConfig{WorkersPerUnit: 1, HeartbeatSecs: 60, MaxResultsPerPage: 200},
	})
	return newRouter(context.Background(), eng, st), st
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h, _ := testRouter(t)

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCreateCampaignEndpoint(t *testing.T) {
	t.Parallel()
	h, st := testRouter(t)

	rec := postJSON(t, h, "/campaigns", `{
		"name": "la-plumbers",
		"location": "Los Angeles",
		"keywords": ["plumber"],
		"cost_ceiling_usd": 25
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var c model.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, model.CampaignStatusPending, c.Status)
	assert.Equal(t, 1, c.UnitsPlanned)

	got, err := st.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "la-plumbers", got.Name)
}

func TestCreateCampaignValidationError(t *testing.T) {
	t.Parallel()
	h, _ := testRouter(t)

	rec := postJSON(t, h, "/campaigns", `{"name": "x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateCampaignBadJSON(t *testing.T) {
	t.Parallel()
	h, _ := testRouter(t)

	rec := postJSON(t, h, "/campaigns", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusNotFound(t *testing.T) {
	t.Parallel()
	h, _ := testRouter(t)

	rec := get(t, h, "/campaigns/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartRunsCampaign(t *testing.T) {
	t.Parallel()
	h, st := testRouter(t)

	rec := postJSON(t, h, "/campaigns", `{"name":"c","location":"LA","keywords":["k"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var c model.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	rec = postJSON(t, h, "/campaigns/"+c.ID+"/start", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Execution is detached; poll for the terminal state.
	deadline := time.After(5 * time.Second)
	for {
		got, err := st.GetCampaign(context.Background(), c.ID)
		require.NoError(t, err)
		if got.Status == model.CampaignStatusCompleted {
			assert.Equal(t, 1, got.UnitsProcessed)
			break
		}
		select {
		case <-deadline:
			t.Fatalf("campaign never completed, status %s", got.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}

	rec = get(t, h, "/campaigns/"+c.ID+"/results")
	require.Equal(t, http.StatusOK, rec.Code)
	var leads []model.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &leads))
	require.Len(t, leads, 1)
	assert.Equal(t, model.StageVerified, leads[0].Stage)
}

func TestCancelEndpoint(t *testing.T) {
	t.Parallel()
	h, st := testRouter(t)

	rec := postJSON(t, h, "/campaigns", `{"name":"c","location":"LA","keywords":["k"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var c model.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	rec = postJSON(t, h, "/campaigns/"+c.ID+"/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := st.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusFailed, got.Status)
	assert.Equal(t, model.ReasonCancelled, got.CompletionReason)
}

func TestListCampaignsEndpoint(t *testing.T) {
	t.Parallel()
	h, _ := testRouter(t)

	rec := postJSON(t, h, "/campaigns", `{"name":"a","location":"LA","keywords":["k"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = get(t, h, "/campaigns")
	require.Equal(t, http.StatusOK, rec.Code)
	var campaigns []model.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &campaigns))
	assert.Len(t, campaigns, 1)
}

func TestRatesFromConfig(t *testing.T) {
	t.Parallel()

	rates := ratesFromConfig(config.BudgetConfig{
		Discovery: config.CapabilityLimit{CostPerThousand: 5.0},
	})
	assert.InDelta(t, 5.0, rates.Services["discovery"].CostPerThousand, 1e-9)
	// Unconfigured capabilities keep their defaults.
	assert.InDelta(t, 0.20, rates.Services["research"].CostPerThousand, 1e-9)
}

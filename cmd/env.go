package main

import (
	"context"
	"os"
	"strings"
	"time"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/campaign-cli/internal/campaign"
	"github.com/sells-group/campaign-cli/internal/config"
	"github.com/sells-group/campaign-cli/internal/cost"
	"github.com/sells-group/campaign-cli/internal/coverage"
	"github.com/sells-group/campaign-cli/internal/enrich"
	"github.com/sells-group/campaign-cli/internal/providers"
	"github.com/sells-group/campaign-cli/internal/store"
	"github.com/sells-group/campaign-cli/pkg/anthropic"
	"github.com/sells-group/campaign-cli/pkg/apify"
	"github.com/sells-group/campaign-cli/pkg/bouncer"
	"github.com/sells-group/campaign-cli/pkg/jina"
	sfpkg "github.com/sells-group/campaign-cli/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "campaigns.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// fileTables loads the curated density table from disk. A missing or
// mismatched table yields nil, which makes the engine fall back to a
// single-unit plan.
type fileTables struct {
	path string
}

func (f fileTables) TableFor(region string) (*coverage.Table, error) {
	if f.path == "" {
		return nil, nil
	}
	if _, err := os.Stat(f.path); err != nil {
		return nil, nil
	}
	t, err := coverage.LoadTable(f.path)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(t.Region, region) {
		return nil, nil
	}
	return t, nil
}

// ratesFromConfig overlays the configured per-capability prices on the
// default pricing table, so the estimator and the scheduler agree.
func ratesFromConfig(b config.BudgetConfig) cost.Rates {
	r := cost.DefaultRates()
	for name, lim := range b.Limits() {
		if lim.CostPerThousand > 0 {
			sr := r.Services[name]
			sr.CostPerThousand = lim.CostPerThousand
			r.Services[name] = sr
		}
	}
	return r
}

// initEngine wires the full execution engine: store, coverage tables,
// discovery, and the three enrichment stages.
func initEngine(ctx context.Context) (*campaign.Engine, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}

	apifyClient := apify.NewClient(cfg.Apify.Token,
		apify.WithBaseURL(cfg.Apify.BaseURL),
		apify.WithActorID(cfg.Apify.ActorID),
	)
	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	anthropicClient := anthropic.NewClient(cfg.Anthropic.Key)
	bouncerClient := bouncer.NewClient(cfg.Bouncer.Key, bouncer.WithBaseURL(cfg.Bouncer.BaseURL))

	researchStage := enrich.NewResearchStage(
		providers.NewJinaFetcher(jinaClient),
		enrich.ResearchConfig{
			MaxLinks:    cfg.Research.MaxLinks,
			MaxBytes:    cfg.Research.MaxBytes,
			PageTimeout: time.Duration(cfg.Research.TimeoutSecs) * time.Second,
		},
	)
	summarizeStage := enrich.NewSummarizeStage(providers.NewAnthropicSummarizer(
		anthropicClient,
		cfg.Anthropic.SummaryModel,
		cfg.Anthropic.ComposeModel,
		cfg.Anthropic.MaxTokens,
	))
	verifyStage := enrich.NewVerifyStage(providers.NewBouncerVerifier(bouncerClient))

	eng := campaign.NewEngine(campaign.Options{
		Store:      st,
		Tables:     fileTables{path: cfg.Coverage.TablePath},
		Discovery:  providers.NewApifyDiscovery(apifyClient),
		Stages:     []enrich.Stage{researchStage, summarizeStage, verifyStage},
		Estimator:  cost.NewEstimator(ratesFromConfig(cfg.Budget)),
		Limits:     cfg.Budget.Limits(),
		Engine:     cfg.Engine,
		Coverage:   cfg.Coverage,
		MaxPerUnit: cfg.Apify.MaxPerUnit,
	})
	return eng, st, nil
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (CAMPAIGN_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := gosf.Init(gosf.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}

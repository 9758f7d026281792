// Package handoff pushes finished leads to the review and CRM surfaces:
// summarized leads go to a Notion database for human review, verified leads
// sync into Salesforce.
package handoff

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-cli/internal/model"
	"github.com/sells-group/campaign-cli/internal/store"
	"github.com/sells-group/campaign-cli/pkg/notion"
	"github.com/sells-group/campaign-cli/pkg/salesforce"
)

// Result tallies one hand-off run.
type Result struct {
	Pushed  int `json:"pushed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// NotionPusher sends leads to the review database.
type NotionPusher struct {
	client notion.Client
	dbID   string
	log    *zap.Logger
}

func NewNotionPusher(client notion.Client, dbID string) *NotionPusher {
	return &NotionPusher{
		client: client,
		dbID:   dbID,
		log:    zap.L().With(zap.String("component", "handoff.notion")),
	}
}

// PushCampaign pushes every lead of the campaign that has at least a
// summary. Failed and unsummarized leads are skipped; individual push
// failures are logged and counted, not fatal.
func (p *NotionPusher) PushCampaign(ctx context.Context, st store.Store, campaignID string) (*Result, error) {
	c, err := st.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	offset := 0
	const page = 100
	for {
		leads, err := st.ListLeads(ctx, campaignID, store.LeadFilter{Limit: page, Offset: offset})
		if err != nil {
			return nil, err
		}
		if len(leads) == 0 {
			break
		}

		for _, l := range leads {
			if l.Stage == model.StageFailed || !l.Stage.AtOrPast(model.StageSummarized) {
				res.Skipped++
				continue
			}
			_, err := notion.PushLead(ctx, p.client, p.dbID, notion.LeadPage{
				PlaceID:         l.PlaceID,
				Campaign:        c.Name,
				Name:            l.Name,
				Category:        l.Category,
				Website:         l.Website,
				Email:           l.Email,
				Phone:           l.Phone,
				Address:         l.Address,
				Summary:         l.Summary,
				Outreach:        l.OutreachMessage,
				EmailConfidence: l.EmailConfidence,
			})
			if err != nil {
				if ctx.Err() != nil {
					return res, eris.Wrap(err, "handoff: push interrupted")
				}
				res.Failed++
				p.log.Warn("notion push failed",
					zap.String("place_id", l.PlaceID),
					zap.Error(err),
				)
				continue
			}
			res.Pushed++
		}

		offset += len(leads)
	}

	p.log.Info("notion hand-off done",
		zap.String("campaign_id", campaignID),
		zap.Int("pushed", res.Pushed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// SalesforceSyncer upserts verified leads into the CRM.
type SalesforceSyncer struct {
	client salesforce.Client
	log    *zap.Logger
}

func NewSalesforceSyncer(client salesforce.Client) *SalesforceSyncer {
	return &SalesforceSyncer{
		client: client,
		log:    zap.L().With(zap.String("component", "handoff.salesforce")),
	}
}

// minSyncConfidence gates which verified leads are worth a CRM record.
const minSyncConfidence = 0.5

// SyncCampaign upserts the campaign's verified leads with a usable email.
func (s *SalesforceSyncer) SyncCampaign(ctx context.Context, st store.Store, campaignID string) (*Result, error) {
	c, err := st.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var batch []salesforce.LeadRecord
	offset := 0
	const page = 100
	for {
		leads, err := st.ListLeads(ctx, campaignID, store.LeadFilter{
			Stage:  model.StageVerified,
			Limit:  page,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		if len(leads) == 0 {
			break
		}

		for _, l := range leads {
			if l.Email == "" || l.EmailConfidence < minSyncConfidence {
				res.Skipped++
				continue
			}
			batch = append(batch, salesforce.LeadRecord{
				PlaceID:         l.PlaceID,
				Company:         l.Name,
				Website:         l.Website,
				Email:           l.Email,
				Phone:           l.Phone,
				Street:          l.Address,
				Description:     l.Summary,
				EmailConfidence: l.EmailConfidence,
				Campaign:        c.Name,
			})
		}

		offset += len(leads)
	}

	if len(batch) == 0 {
		s.log.Info("no verified leads to sync", zap.String("campaign_id", campaignID))
		return res, nil
	}

	sr, err := salesforce.SyncLeads(ctx, s.client, batch)
	if err != nil {
		return nil, eris.Wrap(err, "handoff: salesforce sync")
	}
	res.Pushed = sr.Succeeded
	res.Failed = sr.Failed

	s.log.Info("salesforce sync done",
		zap.String("campaign_id", campaignID),
		zap.Int("synced", res.Pushed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

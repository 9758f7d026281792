package salesforce

import (
	"context"

	"github.com/rotisserie/eris"
)

// LeadRecord is the provider-neutral shape of one lead to sync.
type LeadRecord struct {
	PlaceID         string
	Company         string
	Website         string
	Email           string
	Phone           string
	Street          string
	Description     string
	EmailConfidence float64
	Campaign        string
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Succeeded int
	Failed    int
	Errors    []string
}

// SyncLeads upserts leads into the Lead object keyed by the external
// Place_ID__c field, so repeated syncs of the same campaign are idempotent.
func SyncLeads(ctx context.Context, c Client, leads []LeadRecord) (*SyncResult, error) {
	if len(leads) == 0 {
		return &SyncResult{}, nil
	}

	records := make([]map[string]any, 0, len(leads))
	for _, l := range leads {
		if l.PlaceID == "" || l.Company == "" {
			continue
		}
		rec := map[string]any{
			"Place_ID__c": l.PlaceID,
			"Company":     l.Company,
			"LastName":    l.Company, // Lead requires LastName; company stands in
			"LeadSource":  "Campaign Engine",
		}
		if l.Website != "" {
			rec["Website"] = l.Website
		}
		if l.Email != "" {
			rec["Email"] = l.Email
		}
		if l.Phone != "" {
			rec["Phone"] = l.Phone
		}
		if l.Street != "" {
			rec["Street"] = l.Street
		}
		if l.Description != "" {
			rec["Description"] = l.Description
		}
		if l.EmailConfidence > 0 {
			rec["Email_Confidence__c"] = l.EmailConfidence
		}
		if l.Campaign != "" {
			rec["Campaign_Name__c"] = l.Campaign
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, eris.New("sf: no syncable leads in batch")
	}

	results, err := c.UpsertCollection(ctx, "Lead", "Place_ID__c", records)
	if err != nil {
		return nil, err
	}

	out := &SyncResult{}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
			continue
		}
		out.Failed++
		out.Errors = append(out.Errors, r.Errors...)
	}
	return out, nil
}

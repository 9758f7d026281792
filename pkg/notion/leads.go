package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// LeadPage is the provider-neutral shape of one lead review page.
type LeadPage struct {
	PlaceID         string
	Campaign        string
	Name            string
	Category        string
	Website         string
	Email           string
	Phone           string
	Address         string
	Summary         string
	Outreach        string
	EmailConfidence float64
}

// PushLead creates or updates the review page for one lead, keyed by its
// Place ID property. Re-pushing after a campaign resume overwrites the page
// instead of duplicating it.
func PushLead(ctx context.Context, c Client, dbID string, lead LeadPage) (*notionapi.Page, error) {
	if lead.PlaceID == "" {
		return nil, eris.New("notion: lead has no place id")
	}

	existing, err := findLeadPage(ctx, c, dbID, lead.PlaceID)
	if err != nil {
		return nil, err
	}

	props := leadProperties(lead)
	if existing != "" {
		page, err := c.UpdatePage(ctx, existing, &notionapi.PageUpdateRequest{Properties: props})
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("notion: update lead %s", lead.PlaceID))
		}
		return page, nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(dbID)},
		Properties: props,
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: create lead %s", lead.PlaceID))
	}
	return page, nil
}

// findLeadPage returns the page ID holding the given place id, or empty when
// the lead has not been pushed yet.
func findLeadPage(ctx context.Context, c Client, dbID, placeID string) (string, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Place ID",
			RichText: &notionapi.TextFilterCondition{Equals: placeID},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: find lead %s", placeID))
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

func leadProperties(lead LeadPage) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: lead.Name}}},
		},
		"Place ID": richText(lead.PlaceID),
		"Campaign": richText(lead.Campaign),
		"Status": notionapi.StatusProperty{
			Status: notionapi.Option{Name: "Review"},
		},
	}
	if lead.Category != "" {
		props["Category"] = notionapi.SelectProperty{Select: notionapi.Option{Name: lead.Category}}
	}
	if lead.Website != "" {
		props["Website"] = notionapi.URLProperty{URL: lead.Website}
	}
	if lead.Email != "" {
		props["Email"] = notionapi.EmailProperty{Email: lead.Email}
	}
	if lead.Phone != "" {
		props["Phone"] = notionapi.PhoneNumberProperty{PhoneNumber: lead.Phone}
	}
	if lead.Address != "" {
		props["Address"] = richText(lead.Address)
	}
	if lead.Summary != "" {
		props["Summary"] = richText(clamp(lead.Summary, 2000))
	}
	if lead.Outreach != "" {
		props["Outreach"] = richText(clamp(lead.Outreach, 2000))
	}
	if lead.EmailConfidence > 0 {
		props["Email Confidence"] = notionapi.NumberProperty{Number: lead.EmailConfidence}
	}
	return props
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: s}}},
	}
}

// clamp trims a string to Notion's per-rich-text limit.
func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	queryResp  *notionapi.DatabaseQueryResponse
	created    *notionapi.PageCreateRequest
	updatedID  string
	updatedReq *notionapi.PageUpdateRequest
}

func (f *fakeClient) QueryDatabase(_ context.Context, _ string, _ *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if f.queryResp != nil {
		return f.queryResp, nil
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (f *fakeClient) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.created = req
	return &notionapi.Page{ID: "new-page"}, nil
}

func (f *fakeClient) UpdatePage(_ context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	f.updatedID = pageID
	f.updatedReq = req
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func TestPushLeadCreatesWhenMissing(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	page, err := PushLead(context.Background(), fc, "db-1", LeadPage{
		PlaceID:  "place-1",
		Campaign: "la-plumbers",
		Name:     "Joe's Plumbing",
		Website:  "https://joes.example.com",
		Email:    "joe@joes.example.com",
		Summary:  "Family plumbing business.",
	})
	require.NoError(t, err)
	assert.EqualValues(t, "new-page", page.ID)

	require.NotNil(t, fc.created)
	props := fc.created.Properties
	title := props["Name"].(notionapi.TitleProperty)
	assert.Equal(t, "Joe's Plumbing", title.Title[0].Text.Content)
	assert.Equal(t, "https://joes.example.com", props["Website"].(notionapi.URLProperty).URL)
	assert.Equal(t, "joe@joes.example.com", props["Email"].(notionapi.EmailProperty).Email)
	_, hasPhone := props["Phone"]
	assert.False(t, hasPhone)
}

func TestPushLeadUpdatesExisting(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{
		queryResp: &notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "existing-page"}},
		},
	}
	_, err := PushLead(context.Background(), fc, "db-1", LeadPage{
		PlaceID: "place-1",
		Name:    "Joe's Plumbing",
	})
	require.NoError(t, err)
	assert.Equal(t, "existing-page", fc.updatedID)
	assert.Nil(t, fc.created)
}

func TestPushLeadRequiresPlaceID(t *testing.T) {
	t.Parallel()

	_, err := PushLead(context.Background(), &fakeClient{}, "db-1", LeadPage{Name: "x"})
	require.Error(t, err)
}

func TestClampLongSummary(t *testing.T) {
	t.Parallel()

	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	props := leadProperties(LeadPage{PlaceID: "p", Name: "n", Summary: string(long)})
	rt := props["Summary"].(notionapi.RichTextProperty)
	assert.Len(t, rt.RichText[0].Text.Content, 2000)
}

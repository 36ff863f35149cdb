package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"order-agent/internal/domain"
	"order-agent/internal/integrations/paramstore"
)

type fakeModels struct {
	resp       *genai.GenerateContentResponse
	err        error
	lastModel  string
	lastPrompt string
	lastConfig *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.lastModel = model
	f.lastConfig = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.lastPrompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(s, genai.RoleModel)}},
	}
}

func TestComplete_HappyPath(t *testing.T) {
	api := &fakeModels{resp: textResponse(`{"message":"ok"}`)}
	c, err := newClient(api, WithModel("gemini-test"))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "the prompt", 256)
	require.NoError(t, err)
	require.Equal(t, `{"message":"ok"}`, out)
	require.Equal(t, "gemini-test", api.lastModel)
	require.Equal(t, "the prompt", api.lastPrompt)
	require.Equal(t, int32(256), api.lastConfig.MaxOutputTokens)
	require.Equal(t, "application/json", api.lastConfig.ResponseMIMEType)
}

func TestComplete_QuotaErrors(t *testing.T) {
	cases := []genai.APIError{
		{Code: 429, Message: "too many requests"},
		{Code: 400, Status: "RESOURCE_EXHAUSTED", Message: "quota"},
	}
	for _, apiErr := range cases {
		c, err := newClient(&fakeModels{err: apiErr})
		require.NoError(t, err)
		_, err = c.Complete(context.Background(), "p", 10)
		require.ErrorIs(t, err, domain.ErrQuotaExceeded)

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, apiErr.Code, statusErr.HTTPStatusCode())
	}
}

func TestComplete_OtherErrors(t *testing.T) {
	c, err := newClient(&fakeModels{err: genai.APIError{Code: 503, Status: "UNAVAILABLE"}})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "p", 10)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrQuotaExceeded)

	c, err = newClient(&fakeModels{err: errors.New("dial tcp: refused")})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "p", 10)
	require.ErrorContains(t, err, "refused")
}

func TestComplete_EmptyResponses(t *testing.T) {
	c, err := newClient(&fakeModels{resp: &genai.GenerateContentResponse{}})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "p", 10)
	require.ErrorContains(t, err, "no candidates")

	c, err = newClient(&fakeModels{resp: textResponse("  ")})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "p", 10)
	require.ErrorContains(t, err, "empty response")

	_, err = c.Complete(context.Background(), " ", 10)
	require.ErrorContains(t, err, "prompt")
}

func TestNew_Validation(t *testing.T) {
	_, err := newClient(nil)
	require.ErrorContains(t, err, "must not be nil")

	_, err = New(context.Background(), paramstore.Static{}, "")
	require.ErrorContains(t, err, "prefix")

	_, err = New(context.Background(), paramstore.Static{}, "/order-agent")
	require.ErrorContains(t, err, "not found")
}

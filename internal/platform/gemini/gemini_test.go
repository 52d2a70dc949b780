package gemini

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewClient_ValidatesInputs(t *testing.T) {
	_, err := NewClient(context.Background(), "", "gemini-2.0-flash")
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	_, err = NewClient(context.Background(), "key", "")
	assert.ErrorIs(t, err, ErrEmptyModelName)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"passed": true}`, `{"passed": true}`},
		{"fenced", "```json\n{\"passed\": true}\n```", `{"passed": true}`},
		{"fenced without language", "```\n{\"passed\": true}\n```", `{"passed": true}`},
		{"surrounding whitespace", "\n  {\"passed\": true}  \n", `{"passed": true}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSON(tc.in))
		})
	}
}

func TestReplyText_ConcatenatesTextParts(t *testing.T) {
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(`{"passed": `),
		genai.NewPartFromBytes([]byte{0x89, 0x50}, "image/png"),
		genai.NewPartFromText(`true}`),
	}, genai.RoleModel)

	assert.Equal(t, `{"passed": true}`, replyText(content))
}

func TestVerdictParsing(t *testing.T) {
	var verdict qcVerdict
	require.NoError(t, json.Unmarshal([]byte(`{"passed": false, "reason": "subject cropped"}`), &verdict))
	assert.False(t, verdict.Passed)
	assert.Equal(t, "subject cropped", verdict.Reason)
}

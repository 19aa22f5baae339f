package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResponse() *LLMResponse {
	return &LLMResponse{
		Version: "v3",
		Evidence: []EvidenceRef{
			{ThreadID: "thread-1", MessageIDs: []string{"m1", "m2"}, Quote: "прошу проверить"},
		},
		Summary: []SummaryItem{
			{Title: "Проверить отчет", Detail: "до 15 марта"},
		},
	}
}

func TestValidateLLMResponse(t *testing.T) {
	require.NoError(t, ValidateLLMResponse(validResponse()))

	t.Run("nil response", func(t *testing.T) {
		require.Error(t, ValidateLLMResponse(nil))
	})

	t.Run("empty summary", func(t *testing.T) {
		r := validResponse()
		r.Summary = nil
		require.Error(t, ValidateLLMResponse(r))
	})

	t.Run("evidence without message ids", func(t *testing.T) {
		r := validResponse()
		r.Evidence[0].MessageIDs = nil
		require.Error(t, ValidateLLMResponse(r))
	})

	t.Run("empty message id", func(t *testing.T) {
		r := validResponse()
		r.Evidence[0].MessageIDs = []string{"m1", ""}
		require.Error(t, ValidateLLMResponse(r))
	})

	t.Run("summary item without title", func(t *testing.T) {
		r := validResponse()
		r.Summary[0].Title = ""
		require.Error(t, ValidateLLMResponse(r))
	})
}

func validV3() *V3 {
	return &V3{
		SchemaVersion: SchemaV3,
		DigestDate:    "2026-03-10",
		TraceID:       "trace-1",
		Sections: []Section{
			{
				Title: "actions",
				Items: []Item{
					{
						Title:        "Проверить отчет",
						OwnersMasked: []string{"participant-a1b2c3d4"},
						Due:          "15 марта",
						EvidenceID:   "ev-0000",
						Confidence:   0.9,
						SourceRef:    "thread-1/m1",
					},
				},
			},
		},
	}
}

func TestValidateV3(t *testing.T) {
	consumed := map[string]bool{"ev-0000": true}
	require.NoError(t, ValidateV3(validV3(), consumed))

	tests := []struct {
		name   string
		mutate func(d *V3)
	}{
		{"wrong schema tag", func(d *V3) { d.SchemaVersion = SchemaV2 }},
		{"missing digest date", func(d *V3) { d.DigestDate = "" }},
		{"missing trace id", func(d *V3) { d.TraceID = "" }},
		{"section without title", func(d *V3) { d.Sections[0].Title = "" }},
		{"item without title", func(d *V3) { d.Sections[0].Items[0].Title = "" }},
		{"confidence above one", func(d *V3) { d.Sections[0].Items[0].Confidence = 1.5 }},
		{"confidence negative", func(d *V3) { d.Sections[0].Items[0].Confidence = -0.1 }},
		{"missing evidence id", func(d *V3) { d.Sections[0].Items[0].EvidenceID = "" }},
		{"dangling evidence id", func(d *V3) { d.Sections[0].Items[0].EvidenceID = "ev-9999" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validV3()
			tt.mutate(d)
			err := ValidateV3(d, consumed)
			require.Error(t, err)

			var sv *SchemaViolationError
			assert.ErrorAs(t, err, &sv)
		})
	}
}

func validV2() *V2 {
	return &V2{
		SchemaVersion: SchemaV2,
		PromptVersion: FallbackPromptVersion,
		DigestDate:    "2026-03-10",
		TraceID:       "trace-1",
		Reason:        "disabled",
		MyActions: []V2Item{
			{Text: "прошу проверить отчет", EvidenceID: "ev-0000", SourceRef: "thread-1/m1", Score: 3},
		},
	}
}

func TestValidateV2(t *testing.T) {
	consumed := map[string]bool{"ev-0000": true}
	require.NoError(t, ValidateV2(validV2(), consumed))

	tests := []struct {
		name   string
		mutate func(d *V2)
	}{
		{"wrong schema tag", func(d *V2) { d.SchemaVersion = SchemaV3 }},
		{"wrong prompt version", func(d *V2) { d.PromptVersion = "v3" }},
		{"missing reason", func(d *V2) { d.Reason = "" }},
		{"item without text", func(d *V2) { d.MyActions[0].Text = "" }},
		{"dangling evidence id", func(d *V2) { d.MyActions[0].EvidenceID = "ev-0042" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validV2()
			tt.mutate(d)
			err := ValidateV2(d, consumed)
			require.Error(t, err)

			var sv *SchemaViolationError
			assert.ErrorAs(t, err, &sv)
		})
	}

	t.Run("empty lists are valid", func(t *testing.T) {
		d := validV2()
		d.MyActions = nil
		require.NoError(t, ValidateV2(d, consumed))
	})
}

func TestValidateDispatch(t *testing.T) {
	consumed := map[string]bool{"ev-0000": true}
	require.NoError(t, Validate(validV3(), consumed))
	require.NoError(t, Validate(validV2(), consumed))

	bad := validV3()
	bad.TraceID = ""
	require.Error(t, Validate(bad, consumed))
}

func TestSchemaTags(t *testing.T) {
	assert.Equal(t, "3.0", validV3().Schema())
	assert.Equal(t, "2.0", validV2().Schema())
	assert.Equal(t, "trace-1", validV3().Trace())
	assert.Equal(t, "trace-1", validV2().Trace())
}

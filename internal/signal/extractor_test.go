package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends under test. Both engines must produce identical observable
// results for the whole lexicon.
func testBackends(t *testing.T) map[string]Backend {
	t.Helper()
	return map[string]Backend{
		"standard": StandardBackend{},
		"enhanced": EnhancedBackend{},
	}
}

func TestExtractDates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "absolute day and month",
			text: "Отчет нужен 15 марта, не забудьте",
			want: []string{"15 марта"},
		},
		{
			name: "deadline marker with day and month",
			text: "сдать до 15 марта",
			want: []string{"до 15 марта"},
		},
		{
			name: "ne pozdnee marker",
			text: "не позднее 3 февраля",
			want: []string{"не позднее 3 февраля"},
		},
		{
			name: "numeric date with marker",
			text: "жду до 15.03",
			want: []string{"до 15.03"},
		},
		{
			name: "numeric date with year",
			text: "к 01.09.2026 все должно быть готово",
			want: []string{"к 01.09.2026"},
		},
		{
			name: "relative term",
			text: "давай обсудим завтра",
			want: []string{"завтра"},
		},
		{
			name: "relative term english",
			text: "let's sync tomorrow",
			want: []string{"tomorrow"},
		},
		{
			name: "marker before relative term",
			text: "до завтра",
			want: []string{"завтра"},
		},
		{
			name: "no substring false positive",
			text: "завтрак в девять",
			want: []string{},
		},
		{
			name: "multiple in text order",
			text: "сегодня созвон, отчет до 20 мая",
			want: []string{"сегодня", "до 20 мая"},
		},
		{
			name: "case insensitive",
			text: "ЗАВТРА дедлайн",
			want: []string{"ЗАВТРА"},
		},
		{
			name: "neutral prose",
			text: "обычное письмо без дат и просьб",
			want: []string{},
		},
	}

	for backendName, backend := range testBackends(t) {
		t.Run(backendName, func(t *testing.T) {
			e, err := NewExtractor(backend)
			require.NoError(t, err)

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got := e.ExtractDates(tt.text)
					if len(tt.want) == 0 {
						assert.Empty(t, got)
						return
					}
					assert.Equal(t, tt.want, got)
				})
			}
		})
	}
}

func TestExtractActionVerbs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single imperative",
			text: "Проверьте отчет, пожалуйста",
			want: []string{"проверьте"},
		},
		{
			name: "modal plus infinitive sorted",
			text: "нужно согласовать бюджет",
			want: []string{"нужно", "согласовать"},
		},
		{
			name: "deduplicated",
			text: "срочно, срочно, СРОЧНО",
			want: []string{"срочно"},
		},
		{
			name: "no partial word hit",
			text: "надоело ждать",
			want: nil,
		},
		{
			name: "neutral prose",
			text: "вчера было солнечно",
			want: nil,
		},
	}

	for backendName, backend := range testBackends(t) {
		t.Run(backendName, func(t *testing.T) {
			e, err := NewExtractor(backend)
			require.NoError(t, err)

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					assert.Equal(t, tt.want, e.ExtractActionVerbs(tt.text))
				})
			}
		})
	}
}

func TestIsHeaderLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"ВАЖНО: сдать отчет", true},
		{"TODO: review", true},
		{"привет: как дела", false},
		{"ВАЖНО:без пробела", false},
		{"просто текст", false},
	}

	for backendName, backend := range testBackends(t) {
		t.Run(backendName, func(t *testing.T) {
			e, err := NewExtractor(backend)
			require.NoError(t, err)

			for _, tt := range tests {
				assert.Equal(t, tt.want, e.IsHeaderLine(tt.line), "line %q", tt.line)
			}
		})
	}
}

func TestBackendEquivalence(t *testing.T) {
	std, err := NewExtractor(StandardBackend{})
	require.NoError(t, err)
	enh, err := NewExtractor(EnhancedBackend{})
	require.NoError(t, err)

	texts := []string{
		"Прошу подготовить отчет до 15 марта",
		"встречаемся завтра, не позднее 10 апреля финал",
		"ВАЖНО: ответьте сегодня",
		"завтрак и ужин, ничего срочного кроме слова срочно",
		"deadline к 01.09, see you tomorrow",
		"",
	}
	for _, text := range texts {
		assert.Equal(t, std.ExtractDates(text), enh.ExtractDates(text), "dates for %q", text)
		assert.Equal(t, std.ExtractActionVerbs(text), enh.ExtractActionVerbs(text), "verbs for %q", text)
		assert.Equal(t, std.IsHeaderLine(text), enh.IsHeaderLine(text), "header for %q", text)
	}
}

func TestDefaultBackend(t *testing.T) {
	backend := DefaultBackend()
	require.NotNil(t, backend)

	// Whatever the probe selected must compile the whole lexicon.
	for _, expr := range lexiconPatterns() {
		_, err := backend.Compile(expr)
		require.NoError(t, err)
	}
}

func TestIsUrgentDate(t *testing.T) {
	assert.True(t, IsUrgentDate("завтра"))
	assert.True(t, IsUrgentDate("Сегодня"))
	assert.True(t, IsUrgentDate("tomorrow"))
	assert.False(t, IsUrgentDate("послезавтра"))
	assert.False(t, IsUrgentDate("до 15 марта"))
	assert.False(t, IsUrgentDate("вчера"))
}

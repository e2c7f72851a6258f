package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubCompleter struct {
	text  string
	err   error
	delay time.Duration
}

func (s stubCompleter) Name() string { return "stub" }

func (s stubCompleter) Complete(ctx context.Context, _ string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func TestParseList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"json array", `["CrumbCraft","ArtisanLoaf","FlourPower"]`, 10, []string{"CrumbCraft", "ArtisanLoaf", "FlourPower"}},
		{"json truncated", `["a1a","b2b","c3c"]`, 2, []string{"a1a", "b2b"}},
		{"fenced", "Here you go:\n```json\n[\"One\", \"Two\"]\n```", 5, []string{"One", "Two"}},
		{"embedded", `Sure! ["Alpha", "Beta"] hope this helps`, 5, []string{"Alpha", "Beta"}},
		{"lines", "1. CrumbCraft\n- \"ArtisanLoaf\",\n\nab\n* FlourPower", 10, []string{"CrumbCraft", "ArtisanLoaf", "FlourPower"}},
		{"no limit", "one\ntwo\nthree", 0, []string{"one", "two", "three"}},
		{"empty", "   ", 3, nil},
		{"empty json", "[]", 3, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ParseList(tt.text, tt.max))
		})
	}
}

func TestClientGenerateStructured(t *testing.T) {
	t.Parallel()

	c := New(stubCompleter{text: `["x1x","y2y","z3z"]`}, time.Second)
	got, err := c.Generate(context.Background(), Request{Prompt: "p", MaxResults: 2, Format: FormatStructured})
	require.NoError(t, err)
	require.Equal(t, []string{"x1x", "y2y"}, got)
	require.Equal(t, "stub", c.Backend())
}

func TestClientGenerateText(t *testing.T) {
	t.Parallel()

	c := New(stubCompleter{text: "  Focus on retention.\nAnd margins.  "}, time.Second)
	got, err := c.Generate(context.Background(), Request{Prompt: "p", Format: FormatText})
	require.NoError(t, err)
	require.Equal(t, []string{"Focus on retention.\nAnd margins."}, got)

}

func TestClientGenerateBlankOutputIsFailure(t *testing.T) {
	t.Parallel()

	for _, format := range []Format{FormatText, FormatStructured} {
		c := New(stubCompleter{text: " \n\t "}, time.Second)
		got, err := c.Generate(context.Background(), Request{Prompt: "p", MaxResults: 3, Format: format})
		require.ErrorIs(t, err, ErrEmptyOutput, "format %s", format)
		require.ErrorIs(t, err, ErrGenerationFailed, "format %s", format)
		require.Nil(t, got)
	}
}

func TestClientGenerateNormalizesFailures(t *testing.T) {
	t.Parallel()

	c := New(stubCompleter{err: errors.New("status 500")}, time.Second)
	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.NotErrorIs(t, err, ErrTimeout)

	c = New(stubCompleter{delay: time.Second}, 20*time.Millisecond)
	_, err = c.Generate(context.Background(), Request{Prompt: "p"})
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, ErrGenerationFailed)
}

func TestWithTimeoutPassesThroughNormalizedErrors(t *testing.T) {
	t.Parallel()

	err := WithTimeout(context.Background(), time.Second, func(context.Context) error {
		return ErrTimeout
	})
	require.Equal(t, ErrTimeout, err)
	require.NoError(t, WithTimeout(context.Background(), time.Second, func(context.Context) error { return nil }))
}

func TestGenerateRecordsFailedSpan(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	c := New(stubCompleter{err: errors.New("boom")}, time.Second)
	_, err := c.Generate(context.Background(), Request{Prompt: "p", MaxResults: 1, Format: FormatText})
	require.ErrorIs(t, err, ErrGenerationFailed)

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() == "provider.generate" {
			found = true
			require.Equal(t, codes.Error, span.Status().Code)
		}
	}
	require.True(t, found)
}

package fetch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "empty body", body: "", want: true},
		{name: "react root marker", body: `<html><body><div id="root"></div></body></html>`, want: true},
		{name: "next marker", body: `<html><body><div class="__next"></div></body></html>`, want: true},
		{
			name: "small script shell",
			body: `<html><head><script>window.app=1;bootstrap();render();hydrate();</script></head><body>x</body></html>`,
			want: true,
		},
		{
			name: "plain document",
			body: "<html><body><table><tr><td>" + strings.Repeat("opinion text ", 200) + "</td></tr></table></body></html>",
			want: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.ShouldPromote([]byte(tc.body)))
		})
	}
}

func TestScriptHeavyIgnoresLargeDocuments(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(64)
	body := "<html><head><script>window.app=1;</script></head><body>" +
		strings.Repeat("long static content ", 50) + "</body></html>"
	require.False(t, h.ShouldPromote([]byte(body)))
}

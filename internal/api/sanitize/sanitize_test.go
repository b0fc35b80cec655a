package sanitize

import "testing"

func TestText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "  Gaming Channel ", want: "Gaming Channel"},
		{name: "script stripped", input: `Streamer<script>alert(1)</script>`, want: "Streamer"},
		{name: "tags stripped", input: `<b>Bold</b> & <i>Co</i>`, want: "Bold & Co"},
		{name: "control chars", input: "Name\x00\x07", want: "Name"},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Text(tc.input); got != tc.want {
				t.Fatalf("Text(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestURL(t *testing.T) {
	t.Parallel()

	ok := "https://twitch.tv/streamer"
	if got := URL(&ok); got == nil || *got != ok {
		t.Fatalf("expected url to be kept, got %v", got)
	}

	for _, raw := range []string{"javascript:alert(1)", "data:text/html,x", "/relative", "ftp://host/x"} {
		raw := raw
		if got := URL(&raw); got != nil {
			t.Fatalf("expected %q to be dropped, got %q", raw, *got)
		}
	}
}

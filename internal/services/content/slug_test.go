package content

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Best VPN For Streaming", "best-vpn-for-streaming"},
		{"  leading and trailing spaces  ", "leading-and-trailing-spaces"},
		{"already-a-slug", "already-a-slug"},
		{"Multiple---Dashes!!!", "multiple-dashes"},
		{"---", "untitled"},
		{"", "untitled"},
		{"100% Free?!", "100-free"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugify_Idempotent(t *testing.T) {
	inputs := []string{"Best VPN For Streaming!!", "  weird   spacing  ", "Already-Slugged-Text", ""}
	for _, in := range inputs {
		once := Slugify(in)
		twice := Slugify(once)
		if once != twice {
			t.Errorf("Slugify not idempotent for %q: Slugify(x)=%q, Slugify(Slugify(x))=%q", in, once, twice)
		}
	}
}

func TestStripEmDashes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"this is—a test", "this is-a test"},
		{"en dash–here", "en dash-here"},
		{"no dashes here", "no dashes here"},
		{"multiple—em–dashes", "multiple-em-dashes"},
	}
	for _, tc := range cases {
		if got := StripEmDashes(tc.in); got != tc.want {
			t.Errorf("StripEmDashes(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWordCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"one two three", 3},
		{"  extra   whitespace   between  words  ", 4},
		{"\ttabs\nand\nnewlines\t", 3},
	}
	for _, tc := range cases {
		if got := WordCount(tc.in); got != tc.want {
			t.Errorf("WordCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

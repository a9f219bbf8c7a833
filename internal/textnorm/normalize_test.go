package textnorm

import "testing"

func TestName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"ETHDenver!!":              "ethdenver",
		"  Devcon's   Side-Event ": "devcons side event",
		"`Token2049` — Singapore":  "token2049 singapore",
		"Camp_BUIDL":               "camp_buidl",
		"São Paulo":                "são paulo",
		"":                         "",
		"   \t\n":                  "",
		"!!!":                      "",
	}
	for input, want := range cases {
		if got := Name(input); got != want {
			t.Fatalf("unexpected normalized name for %q: got %q want %q", input, got, want)
		}
	}
}

func TestNameIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"ETHDenver!!",
		"Devcon’s Side Event",
		"café meetup",
		"İstanbul Blockchain Week",
		"  mixed\tWHITESPACE\n",
		"ǅemal's ｆｕｌｌｗｉｄｔｈ",
	}
	for _, input := range inputs {
		once := Name(input)
		if twice := Name(once); twice != once {
			t.Fatalf("normalization not idempotent for %q: once=%q twice=%q", input, once, twice)
		}
	}
}

func TestURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.Lu.ma/ETHDenver/?utm_source=x": "lu.ma/ethdenver",
		"http://example.com":                        "example.com",
		"https://example.com/a/b/#tickets":          "example.com/a/b",
		"lu.ma/Camp-Buidl/?ref=abc":                 "lu.ma/camp-buidl",
		"not a url/":                                "not a url",
		"  ":                                        "",
	}
	for input, want := range cases {
		if got := URL(input); got != want {
			t.Fatalf("unexpected normalized url for %q: got %q want %q", input, got, want)
		}
	}
}

func TestMergeName(t *testing.T) {
	t.Parallel()

	if got, want := MergeName("ETHDenver 2026"), MergeName("ETHDenver Events"); got != want || got != "ethdenver" {
		t.Fatalf("expected both names to group as %q, got %q and %q", "ethdenver", got, want)
	}
	if got := MergeName("ETHDenver 2026 Events"); got != "ethdenver" {
		t.Fatalf("unexpected merge name: %q", got)
	}
	if got := MergeName("2026"); got != "2026" {
		t.Fatalf("expected lone year to survive, got %q", got)
	}
	if got := MergeName("Event"); got != "event" {
		t.Fatalf("expected lone event word to survive, got %q", got)
	}
}

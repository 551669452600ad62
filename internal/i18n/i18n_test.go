package i18n

import "testing"

func TestMatch(t *testing.T) {
	cases := map[string]string{
		"":                        English,
		"ms":                      Malay,
		"ms-MY":                   Malay,
		"MS":                      Malay,
		"en-GB":                   English,
		"de":                      English,
		"en-US,en;q=0.9,ms;q=0.5": English,
		";;;":                     English,
	}
	for in, want := range cases {
		if got := Match(in); got != want {
			t.Errorf("Match(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountryLocale(t *testing.T) {
	if CountryLocale("my") != Malay || CountryLocale("US") != English || CountryLocale("") != English {
		t.Fatal("unexpected country locale mapping")
	}
}

func TestFindReportsSupport(t *testing.T) {
	if got, ok := Find("ms-MY"); got != Malay || !ok {
		t.Fatalf("Find(ms-MY) = %q, %v", got, ok)
	}
	if _, ok := Find("de"); ok {
		t.Fatal("Find(de) should not be supported")
	}
	if _, ok := Find(""); ok {
		t.Fatal("Find(empty) should not be supported")
	}
}

func TestRegion(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"en":                "",
		"ms-BN":             "BN",
		"en-GB,en;q=0.9":    "GB",
		"en,ms-MY;q=0.8":    "MY",
		"not a language!!!": "",
	}
	for raw, want := range cases {
		if got := Region(raw); got != want {
			t.Errorf("Region(%q) = %q, want %q", raw, got, want)
		}
	}
}

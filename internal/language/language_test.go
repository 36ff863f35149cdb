package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Lang
	}{
		{name: "english markers", text: "Yes please, remove the chairs", want: English},
		{name: "french markers", text: "Oui merci, retirer les chaises de ma commande", want: French},
		{name: "empty", text: "", want: French},
		{name: "ascii tie", text: "12 Baker Street", want: English},
		{name: "accented tie", text: "été à l'hôtel", want: French},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Detect(tc.text))
		})
	}
}

func TestDecisive(t *testing.T) {
	_, ok := Decisive("12 Baker Street")
	require.False(t, ok)

	lang, ok := Decisive("merci beaucoup")
	require.True(t, ok)
	require.Equal(t, French, lang)
}

func TestScore_SubstringMatching(t *testing.T) {
	en, fr := Score("NON")
	// "non" contains "no" as well.
	require.Equal(t, 1, en)
	require.Equal(t, 1, fr)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, English, Normalize("en-US", French))
	require.Equal(t, French, Normalize(" FR ", English))
	require.Equal(t, French, Normalize("", French))
	require.Equal(t, English, Normalize("de", English))
}

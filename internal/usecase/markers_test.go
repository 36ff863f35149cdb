package usecase

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"order-agent/internal/domain"
	"order-agent/internal/language"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want intent
	}{
		{"Yes", intentConfirm},
		{"oui c'est bon", intentConfirm},
		{"D’accord, parfait !", intentConfirm},
		{"No", intentDeny},
		{"non, pas correct", intentDeny},
		{"yes but remove the chairs", intentOther},
		{"yes 2 tables", intentOther},
		{"please cancel", intentOther},
		{"yes I think this is all completely fine", intentOther},
		{"hmm", intentOther},
		{"", intentOther},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, classify(tc.text), tc.text)
	}
}

func TestYesNoIgnoresChangeVocabulary(t *testing.T) {
	require.Equal(t, intentConfirm, yesNo("yes cancel it"))
	require.Equal(t, intentOther, yesNo("10 rue de la Paix"))
}

func TestStrictYesNo(t *testing.T) {
	cases := []struct {
		text string
		want intent
	}{
		{"Yes", intentConfirm},
		{"yes please", intentConfirm},
		{"Oui, c'est bien ça", intentConfirm},
		{"that's right, thanks", intentConfirm},
		{"No", intentDeny},
		{"non merci", intentDeny},
		{"Great North Road, Barnet", intentOther},
		{"Good Street 4", intentOther},
		{"12 rue du Bon Marché", intentOther},
		{"yes no", intentOther},
		{"", intentOther},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, strictYesNo(tc.text), tc.text)
	}
}

func TestOnlyWant(t *testing.T) {
	o := furnitureOrder()

	name, qty, ok := onlyWant("I only want 1 table", o)
	require.True(t, ok)
	require.Equal(t, "Table", name)
	require.Equal(t, 1, qty)

	name, _, ok = onlyWant("Je veux seulement les tables", o)
	require.True(t, ok)
	require.Equal(t, "Table", name)

	_, _, ok = onlyWant("I only want the sofa", o)
	require.False(t, ok)

	_, _, ok = onlyWant("only the table and the chairs", o)
	require.False(t, ok)
}

func TestBuildPrompt_HistoryWindow(t *testing.T) {
	state := domain.NewConversation("order-1", "en", time.Now())
	for i := 0; i < 12; i++ {
		state.Append(domain.RoleUser, "message", time.Now())
	}
	prompt := buildPrompt(promptContext{
		order:   furnitureOrder(),
		step:    domain.StepConfirmingItems,
		history: state.Turns,
		lang:    language.English,
		text:    "remove  the\nchairs",
	})

	require.Contains(t, prompt, "[conversation started 12 messages ago]")
	require.Equal(t, historyWindow, strings.Count(prompt, "Customer: message"))
	require.Contains(t, prompt, "- Table x2 (20.00€ each)")
	require.Contains(t, prompt, "Total: 60.00€")
	require.Contains(t, prompt, "Customer Message:\nremove the chairs")
	require.Contains(t, prompt, "Always reply in English.")
}

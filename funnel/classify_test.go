package funnel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyText(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Kind
	}{
		{"program keyword", "расскажи про программа тренировок", KindProgramQuery},
		{"program uppercase", "ПРОГРАММА", KindProgramQuery},
		{"program inside word", "мне нужна программа", KindProgramQuery},
		{"referral keyword", "где мой реферал", KindReferralQuery},
		{"referral uppercase", "Реферал", KindReferralQuery},
		{"plain text", "привет", KindText},
		{"empty", "", KindText},
		{"program wins over referral", "программа и реферал", KindProgramQuery},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyText(tc.text))
		})
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "start", KindStart.String())
	require.Equal(t, "material", KindMaterial.String())
	require.Equal(t, "other", KindOther.String())
}

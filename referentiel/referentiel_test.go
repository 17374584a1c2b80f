package referentiel_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodeca/contentieux-engine/referentiel"
)

func TestKindValid(t *testing.T) {
	for _, k := range referentiel.Kinds() {
		assert.True(t, k.Valid(), "%s should be valid", k)
	}
	assert.False(t, referentiel.Kind("plaques").Valid())
	assert.False(t, referentiel.Kind("").Valid())
}

func TestFicheValidate(t *testing.T) {
	require.NoError(t, referentiel.Fiche{Code: "BQ01", Libelle: "banque"}.Validate())

	err := referentiel.Fiche{Code: "BQ01"}.Validate()
	require.ErrorIs(t, err, referentiel.ErrFicheIncomplete)

	err = referentiel.Fiche{Libelle: "banque"}.Validate()
	require.ErrorIs(t, err, referentiel.ErrFicheIncomplete)
}

func TestEntryCodeable(t *testing.T) {
	// A contravention entry carries its base fine amount.
	fine := referentiel.Entry{
		Kind:        referentiel.KindContravention,
		Fiche:       referentiel.Fiche{Code: "C042", Libelle: "exces de vitesse", Actif: true},
		MontantBase: decimal.NewFromInt(3000),
	}
	c, ok := fine.Codeable().(referentiel.Contravention)
	require.True(t, ok)
	assert.Equal(t, "C042", c.GetCode())
	assert.True(t, c.MontantBase.Equal(decimal.NewFromInt(3000)))
	assert.True(t, c.IsActif())

	// The amount is reachable through the Tarifee capability without
	// touching the concrete type.
	tarifee, ok := fine.Codeable().(referentiel.Tarifee)
	require.True(t, ok)
	assert.True(t, tarifee.GetMontantBase().Equal(decimal.NewFromInt(3000)))

	// Other kinds materialize their own type and carry no amount.
	bank := referentiel.Entry{
		Kind:  referentiel.KindBanque,
		Fiche: referentiel.Fiche{Code: "BQ01", Libelle: "Banque Atlantique"},
	}
	_, ok = bank.Codeable().(referentiel.Banque)
	require.True(t, ok)
	assert.Equal(t, "Banque Atlantique", bank.Codeable().GetLibelle())
	_, ok = bank.Codeable().(referentiel.Tarifee)
	assert.False(t, ok)
}

package contentieux_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodeca/contentieux-engine/contentieux"
)

func enc(montant string, statut contentieux.StatutEncaissement) contentieux.Encaissement {
	return contentieux.Encaissement{
		Reference: "ENC-test",
		Montant:   dec(montant),
		Statut:    statut,
	}
}

// =============================================================================
// STATUS DERIVATION
// =============================================================================

func TestDeriveStatut(t *testing.T) {
	soldee := contentieux.ComputeBalance(dec("100"), decs("100"))
	ouverte := contentieux.ComputeBalance(dec("100"), decs("40"))

	// Settlement always wins.
	assert.Equal(t, contentieux.AffaireSoldee, contentieux.DeriveStatut(contentieux.AffaireOuverte, soldee))
	assert.Equal(t, contentieux.AffaireSoldee, contentieux.DeriveStatut(contentieux.AffaireEnCours, soldee))

	// Unsettled keeps the current status; empty defaults to OUVERTE.
	assert.Equal(t, contentieux.AffaireOuverte, contentieux.DeriveStatut("", ouverte))
	assert.Equal(t, contentieux.AffaireOuverte, contentieux.DeriveStatut(contentieux.AffaireOuverte, ouverte))

	// EN_COURS is a legacy synonym of OUVERTE: preserved, never produced.
	assert.Equal(t, contentieux.AffaireEnCours, contentieux.DeriveStatut(contentieux.AffaireEnCours, ouverte))
}

func TestSoldeAffaire_OnlyValidePaymentsSettle(t *testing.T) {
	// GIVEN: a 1000 case with a VALIDE 400, an EN_ATTENTE 600 and a REJETE 1000
	affaire := contentieux.Affaire{MontantTotal: dec("1000")}
	encs := []contentieux.Encaissement{
		enc("400", contentieux.EncaissementValide),
		enc("600", contentieux.EncaissementEnAttente),
		enc("1000", contentieux.EncaissementRejete),
	}

	// THEN: only the VALIDE payment counts toward settlement
	b := contentieux.SoldeAffaire(affaire, encs)
	assert.True(t, b.Encaisse.Equal(dec("400")), "encaisse = %s", b.Encaisse)
	assert.False(t, b.Soldee)

	// AND: the pending payment still holds the balance for overdraw checks
	retenus := contentieux.MontantsRetenus(encs)
	require.Len(t, retenus, 2)
}

// =============================================================================
// ENCAISSEMENT TRANSITIONS
// =============================================================================

func TestEncaissementValider(t *testing.T) {
	t.Run("pending becomes valide", func(t *testing.T) {
		e := enc("100", contentieux.EncaissementEnAttente)
		require.NoError(t, e.Valider())
		assert.Equal(t, contentieux.EncaissementValide, e.Statut)
	})

	t.Run("valide is immutable", func(t *testing.T) {
		e := enc("100", contentieux.EncaissementValide)
		err := e.Valider()
		require.ErrorIs(t, err, contentieux.ErrEncaissementImmuable)
	})

	t.Run("rejete cannot be revived", func(t *testing.T) {
		e := enc("100", contentieux.EncaissementRejete)
		err := e.Valider()
		require.ErrorIs(t, err, contentieux.ErrEtatInvalide)

		var ee *contentieux.EtatError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, string(contentieux.EncaissementRejete), ee.Depuis)
	})
}

func TestEncaissementRejeter(t *testing.T) {
	t.Run("pending becomes rejete", func(t *testing.T) {
		e := enc("100", contentieux.EncaissementEnAttente)
		require.NoError(t, e.Rejeter())
		assert.Equal(t, contentieux.EncaissementRejete, e.Statut)
	})

	t.Run("valide is immutable", func(t *testing.T) {
		e := enc("100", contentieux.EncaissementValide)
		require.ErrorIs(t, e.Rejeter(), contentieux.ErrEncaissementImmuable)
	})

	t.Run("double rejection refused", func(t *testing.T) {
		e := enc("100", contentieux.EncaissementRejete)
		require.ErrorIs(t, e.Rejeter(), contentieux.ErrEtatInvalide)
	})
}

// =============================================================================
// DATES AND PERIODS
// =============================================================================

func TestPeriodeContains(t *testing.T) {
	p := contentieux.Periode{
		Debut: contentieux.NewDate(2024, 1, 1),
		Fin:   contentieux.NewDate(2024, 12, 31),
	}

	// Bounds are inclusive.
	assert.True(t, p.Contains(contentieux.NewDate(2024, 1, 1)))
	assert.True(t, p.Contains(contentieux.NewDate(2024, 12, 31)))
	assert.True(t, p.Contains(contentieux.NewDate(2024, 6, 15)))

	assert.False(t, p.Contains(contentieux.NewDate(2023, 12, 31)))
	assert.False(t, p.Contains(contentieux.NewDate(2025, 1, 1)))
}

func TestParseDate(t *testing.T) {
	d, err := contentieux.ParseDate("2024-02-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05", d.String())
	assert.Equal(t, 2024, d.Year())

	_, err = contentieux.ParseDate("05/02/2024")
	require.Error(t, err)
}

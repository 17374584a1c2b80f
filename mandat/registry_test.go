package mandat_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodeca/contentieux-engine/contentieux"
	"github.com/sodeca/contentieux-engine/mandat"
	"github.com/sodeca/contentieux-engine/store/memory"
)

func newRegistry(t *testing.T) (*mandat.Registry, *memory.Memory) {
	t.Helper()
	store := memory.New()
	return mandat.NewRegistry(store), store
}

func draft(t *testing.T, r *mandat.Registry, year int) mandat.Mandat {
	t.Helper()
	m, err := r.Create(context.Background(), mandat.Mandat{
		Libelle:   "exercice",
		DateDebut: contentieux.NewDate(year, time.January, 1),
		DateFin:   contentieux.NewDate(year, time.December, 31),
	})
	require.NoError(t, err)
	return m
}

// =============================================================================
// CREATION
// =============================================================================

func TestCreate_DefaultsToBrouillon(t *testing.T) {
	r, _ := newRegistry(t)

	m := draft(t, r, 2024)
	assert.Equal(t, mandat.StatutBrouillon, m.Statut)
	assert.NotEmpty(t, m.Numero)
	assert.Contains(t, m.Numero, "MND-2024-")
}

func TestCreate_RejectsInvertedPeriod(t *testing.T) {
	r, _ := newRegistry(t)

	_, err := r.Create(context.Background(), mandat.Mandat{
		DateDebut: contentieux.NewDate(2024, time.December, 31),
		DateFin:   contentieux.NewDate(2024, time.January, 1),
	})
	require.ErrorIs(t, err, mandat.ErrPeriodeInvalide)
}

// =============================================================================
// ACTIVATION - at most one ACTIF
// =============================================================================

func TestActivate_SwapsActiveMandate(t *testing.T) {
	// GIVEN: mandate A active
	// WHEN: mandate B is activated
	// THEN: B is the single active mandate and A went back to BROUILLON
	r, _ := newRegistry(t)
	ctx := context.Background()

	a := draft(t, r, 2023)
	b := draft(t, r, 2024)

	_, err := r.Activate(ctx, a.Numero)
	require.NoError(t, err)

	_, err = r.Activate(ctx, b.Numero)
	require.NoError(t, err)

	active, err := r.ActiveMandat(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, b.Numero, active.Numero)

	previous, err := r.Store.GetMandat(ctx, a.Numero)
	require.NoError(t, err)
	assert.Equal(t, mandat.StatutBrouillon, previous.Statut)
}

func TestActivate_ClosedMandateRefused(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	m := draft(t, r, 2024)
	_, err := r.Activate(ctx, m.Numero)
	require.NoError(t, err)
	_, err = r.Close(ctx, m.Numero)
	require.NoError(t, err)

	_, err = r.Activate(ctx, m.Numero)
	require.ErrorIs(t, err, contentieux.ErrEtatInvalide)
}

func TestActivate_UnknownMandate(t *testing.T) {
	r, _ := newRegistry(t)

	_, err := r.Activate(context.Background(), "MND-2024-missing")
	require.ErrorIs(t, err, mandat.ErrMandatInconnu)
}

func TestActivate_Idempotent(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	m := draft(t, r, 2024)
	_, err := r.Activate(ctx, m.Numero)
	require.NoError(t, err)
	_, err = r.Activate(ctx, m.Numero)
	require.NoError(t, err)

	active, err := r.ActiveMandat(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, m.Numero, active.Numero)
}

// =============================================================================
// CLOSING
// =============================================================================

func TestClose_ActiveOnly(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	m := draft(t, r, 2024)

	// BROUILLON cannot be closed directly.
	_, err := r.Close(ctx, m.Numero)
	require.ErrorIs(t, err, contentieux.ErrEtatInvalide)

	_, err = r.Activate(ctx, m.Numero)
	require.NoError(t, err)

	closed, err := r.Close(ctx, m.Numero)
	require.NoError(t, err)
	assert.Equal(t, mandat.StatutCloture, closed.Statut)

	// No active mandate remains.
	active, err := r.ActiveMandat(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

// =============================================================================
// PERIOD CHECK
// =============================================================================

func TestCheckPaymentPeriod(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	t.Run("no active mandate warns", func(t *testing.T) {
		w, err := r.CheckPaymentPeriod(ctx, contentieux.NewDate(2024, time.March, 1))
		require.NoError(t, err)
		require.NotNil(t, w)
		assert.Equal(t, contentieux.WarningCheval, w.Code)
	})

	m := draft(t, r, 2024)
	_, err := r.Activate(ctx, m.Numero)
	require.NoError(t, err)

	t.Run("inside window is silent", func(t *testing.T) {
		w, err := r.CheckPaymentPeriod(ctx, contentieux.NewDate(2024, time.June, 15))
		require.NoError(t, err)
		assert.Nil(t, w)
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		w, err := r.CheckPaymentPeriod(ctx, contentieux.NewDate(2024, time.December, 31))
		require.NoError(t, err)
		assert.Nil(t, w)
	})

	t.Run("outside window warns", func(t *testing.T) {
		w, err := r.CheckPaymentPeriod(ctx, contentieux.NewDate(2025, time.January, 2))
		require.NoError(t, err)
		require.NotNil(t, w)
		assert.Equal(t, contentieux.WarningCheval, w.Code)
	})
}

func TestIsWithinActiveMandat(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	ok, err := r.IsWithinActiveMandat(ctx, contentieux.NewDate(2024, time.March, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	m := draft(t, r, 2024)
	_, err = r.Activate(ctx, m.Numero)
	require.NoError(t, err)

	ok, err = r.IsWithinActiveMandat(ctx, contentieux.NewDate(2024, time.March, 1))
	require.NoError(t, err)
	assert.True(t, ok)
}

// =============================================================================
// STATISTICS
// =============================================================================

func TestStatistiques_CountsWindowedActivity(t *testing.T) {
	// GIVEN: a 2024 mandate, two cases opened inside it (one settled) and
	//        one case opened in 2023
	r, store := newRegistry(t)
	ctx := context.Background()

	m := draft(t, r, 2024)
	_, err := r.Activate(ctx, m.Numero)
	require.NoError(t, err)

	service := contentieux.NewAffaireService(store, nil)
	service.Now = func() contentieux.Date { return contentieux.NewDate(2024, time.June, 1) }

	mk := func(date contentieux.Date, total, premier string) {
		_, err := service.CreateAffaire(ctx, contentieux.NouvelleAffaire{
			DateCreation:     date,
			CodeContrevenant: "CTV-001",
			Contraventions: []contentieux.LigneContravention{
				{Libelle: "infraction", Montant: mustDec(total)},
			},
			PremierEncaissement: contentieux.NouvelEncaissement{Montant: mustDec(premier)},
		})
		require.NoError(t, err)
	}

	mk(contentieux.NewDate(2024, time.February, 1), "1000", "1000") // settled
	mk(contentieux.NewDate(2024, time.March, 1), "2000", "500")     // open
	mk(contentieux.NewDate(2023, time.June, 1), "9000", "100")      // outside window

	stats, err := r.Statistiques(ctx, m.Numero)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.NbAffaires)
	assert.Equal(t, 1, stats.NbSoldees)
	assert.True(t, stats.TotalEncaisse.Equal(mustDec("1500")), "total = %s", stats.TotalEncaisse)
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

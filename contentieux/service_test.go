package contentieux_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodeca/contentieux-engine/contentieux"
	"github.com/sodeca/contentieux-engine/mandat"
	"github.com/sodeca/contentieux-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fixedToday pins the service clock so future-date checks are stable.
var fixedToday = contentieux.NewDate(2024, time.February, 10)

func newTestService(t *testing.T) (*contentieux.AffaireService, *memory.Memory, *mandat.Registry) {
	t.Helper()
	store := memory.New()
	registry := mandat.NewRegistry(store)
	service := contentieux.NewAffaireService(store, registry)
	service.Now = func() contentieux.Date { return fixedToday }
	return service, store, registry
}

func creationInput(total, premier string) contentieux.NouvelleAffaire {
	return contentieux.NouvelleAffaire{
		CodeContrevenant: "CTV-001",
		Contraventions: []contentieux.LigneContravention{
			{Libelle: "stationnement interdit", Montant: dec(total)},
		},
		PremierEncaissement: contentieux.NouvelEncaissement{
			Montant: dec(premier),
		},
	}
}

func activeMandat(t *testing.T, registry *mandat.Registry, debut, fin contentieux.Date) mandat.Mandat {
	t.Helper()
	ctx := context.Background()
	m, err := registry.Create(ctx, mandat.Mandat{DateDebut: debut, DateFin: fin})
	require.NoError(t, err)
	m, err = registry.Activate(ctx, m.Numero)
	require.NoError(t, err)
	return m
}

// =============================================================================
// CASE CREATION
// =============================================================================

func TestCreateAffaire_PartialFirstPayment(t *testing.T) {
	// GIVEN: a 5000 fine with a first payment of 1500
	// WHEN: the case is created
	// THEN: it is persisted OUVERTE with solde 3500
	service, store, _ := newTestService(t)
	ctx := context.Background()

	result, err := service.CreateAffaire(ctx, creationInput("5000", "1500"))
	require.NoError(t, err)

	assert.Equal(t, contentieux.AffaireOuverte, result.Affaire.Statut)
	assert.True(t, result.Balance.Solde.Equal(dec("3500")), "solde = %s", result.Balance.Solde)
	assert.False(t, result.Balance.Soldee)

	stored, err := store.GetAffaire(ctx, result.Affaire.Numero)
	require.NoError(t, err)
	assert.Equal(t, contentieux.AffaireOuverte, stored.Statut)

	encs, err := store.ListEncaissements(ctx, result.Affaire.Numero)
	require.NoError(t, err)
	require.Len(t, encs, 1)
	assert.Equal(t, contentieux.EncaissementValide, encs[0].Statut)
}

func TestCreateAffaire_PersistsActeurAssignments(t *testing.T) {
	// GIVEN: a creation input with one acteur per role
	// THEN: the assignments round-trip through the store unchanged
	service, store, _ := newTestService(t)
	ctx := context.Background()

	input := creationInput("5000", "1500")
	input.Acteurs = []contentieux.Acteur{
		{CodeAgent: "AG-01", Role: contentieux.RoleSaisissant},
		{CodeAgent: "AG-02", Role: contentieux.RoleChef},
		{CodeAgent: "AG-03", Role: contentieux.RoleIndicateur},
	}

	result, err := service.CreateAffaire(ctx, input)
	require.NoError(t, err)

	stored, err := store.GetAffaire(ctx, result.Affaire.Numero)
	require.NoError(t, err)
	require.Len(t, stored.Acteurs, 3)
	roles := map[string]contentieux.RoleActeur{}
	for _, a := range stored.Acteurs {
		roles[a.CodeAgent] = a.Role
	}
	assert.Equal(t, contentieux.RoleSaisissant, roles["AG-01"])
	assert.Equal(t, contentieux.RoleChef, roles["AG-02"])
	assert.Equal(t, contentieux.RoleIndicateur, roles["AG-03"])
}

func TestCreateAffaire_FullFirstPaymentSettlesImmediately(t *testing.T) {
	// GIVEN: the first payment covers the whole fine
	// THEN: the case is born SOLDEE
	service, _, _ := newTestService(t)

	result, err := service.CreateAffaire(context.Background(), creationInput("5000", "5000"))
	require.NoError(t, err)

	assert.Equal(t, contentieux.AffaireSoldee, result.Affaire.Statut)
	assert.True(t, result.Balance.Soldee)
	assert.True(t, result.Balance.Solde.IsZero())
}

func TestCreateAffaire_TotalDefaultsToLineSum(t *testing.T) {
	service, _, _ := newTestService(t)

	input := contentieux.NouvelleAffaire{
		CodeContrevenant: "CTV-001",
		Contraventions: []contentieux.LigneContravention{
			{Libelle: "exces de vitesse", Montant: dec("3000")},
			{Libelle: "feu rouge grille", Montant: dec("2000")},
		},
		PremierEncaissement: contentieux.NouvelEncaissement{Montant: dec("1000")},
	}

	result, err := service.CreateAffaire(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, result.Affaire.MontantTotal.Equal(dec("5000")))
}

func TestCreateAffaire_ValidationCollectsAllFailuresAndPersistsNothing(t *testing.T) {
	// GIVEN: a creation missing the contrevenant, the lines AND the payment
	// WHEN: creation is attempted
	// THEN: every failure is reported and the store stays empty
	service, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.CreateAffaire(ctx, contentieux.NouvelleAffaire{})
	require.Error(t, err)

	assert.ErrorIs(t, err, contentieux.ErrChampRequis)
	assert.ErrorIs(t, err, contentieux.ErrPremierEncaissementManquant)

	var ve *contentieux.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.GreaterOrEqual(t, len(ve.Violations), 3)

	affaires, err := store.ListAffaires(ctx)
	require.NoError(t, err)
	assert.Empty(t, affaires)
}

func TestCreateAffaire_FirstPaymentAboveTotalRefused(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.CreateAffaire(context.Background(), creationInput("5000", "6000"))
	require.ErrorIs(t, err, contentieux.ErrMontantSuperieurTotal)
}

func TestCreateAffaire_FuturePaymentDateRefused(t *testing.T) {
	service, _, _ := newTestService(t)

	input := creationInput("5000", "1000")
	input.PremierEncaissement.Date = fixedToday.AddDays(3)

	_, err := service.CreateAffaire(context.Background(), input)
	require.ErrorIs(t, err, contentieux.ErrDateFuture)
}

func TestCreateAffaire_ChequeRequiresBankReferences(t *testing.T) {
	service, _, _ := newTestService(t)

	input := creationInput("5000", "1000")
	input.PremierEncaissement.Mode = contentieux.ModeCheque

	_, err := service.CreateAffaire(context.Background(), input)
	require.ErrorIs(t, err, contentieux.ErrReferenceBancaireManquante)

	input.PremierEncaissement.CodeBanque = "BQ01"
	input.PremierEncaissement.NumeroCheque = "0042317"
	_, err = service.CreateAffaire(context.Background(), input)
	require.NoError(t, err)
}

// =============================================================================
// PAYMENT RECORDING
// =============================================================================

func TestRecordEncaissement_SettlesCase(t *testing.T) {
	// GIVEN: a 1000 case with 800 already collected
	// WHEN: recording the exact 200 remainder
	// THEN: the case flips to SOLDEE
	service, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateAffaire(ctx, creationInput("1000", "800"))
	require.NoError(t, err)

	result, err := service.RecordEncaissement(ctx, created.Affaire.Numero, contentieux.NouvelEncaissement{
		Montant: dec("200"),
	})
	require.NoError(t, err)

	assert.Equal(t, contentieux.AffaireSoldee, result.Affaire.Statut)
	assert.True(t, result.Balance.Soldee)

	stored, err := store.GetAffaire(ctx, created.Affaire.Numero)
	require.NoError(t, err)
	assert.Equal(t, contentieux.AffaireSoldee, stored.Statut)
}

func TestRecordEncaissement_OverdrawRefused(t *testing.T) {
	// GIVEN: a 1000 case with 800 already collected
	// WHEN: recording 300
	// THEN: refused, nothing persisted
	service, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateAffaire(ctx, creationInput("1000", "800"))
	require.NoError(t, err)

	_, err = service.RecordEncaissement(ctx, created.Affaire.Numero, contentieux.NouvelEncaissement{
		Montant: dec("300"),
	})
	require.ErrorIs(t, err, contentieux.ErrDepassementSolde)

	encs, err := store.ListEncaissements(ctx, created.Affaire.Numero)
	require.NoError(t, err)
	assert.Len(t, encs, 1)
}

func TestRecordEncaissement_UnknownCase(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.RecordEncaissement(context.Background(), "AFF-2024-missing", contentieux.NouvelEncaissement{
		Montant: dec("100"),
	})
	require.ErrorIs(t, err, contentieux.ErrAffaireInconnue)
}

func TestRecordEncaissement_PendingHoldsBalance(t *testing.T) {
	// GIVEN: a 1000 case with 500 VALIDE and a 400 cheque EN_ATTENTE
	// WHEN: recording another 200
	// THEN: refused, the pending cheque reserves its amount
	service, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateAffaire(ctx, creationInput("1000", "500"))
	require.NoError(t, err)

	_, err = service.RecordEncaissement(ctx, created.Affaire.Numero, contentieux.NouvelEncaissement{
		Montant:      dec("400"),
		Mode:         contentieux.ModeCheque,
		CodeBanque:   "BQ01",
		NumeroCheque: "0098",
		Statut:       contentieux.EncaissementEnAttente,
	})
	require.NoError(t, err)

	_, err = service.RecordEncaissement(ctx, created.Affaire.Numero, contentieux.NouvelEncaissement{
		Montant: dec("200"),
	})
	require.ErrorIs(t, err, contentieux.ErrDepassementSolde)
}

func TestRecordEncaissement_PendingDoesNotSettle(t *testing.T) {
	// GIVEN: the remainder arrives as an EN_ATTENTE cheque
	// THEN: the case stays OUVERTE until the cheque clears
	service, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateAffaire(ctx, creationInput("1000", "800"))
	require.NoError(t, err)

	result, err := service.RecordEncaissement(ctx, created.Affaire.Numero, contentieux.NouvelEncaissement{
		Montant:      dec("200"),
		Mode:         contentieux.ModeCheque,
		CodeBanque:   "BQ01",
		NumeroCheque: "0099",
		Statut:       contentieux.EncaissementEnAttente,
	})
	require.NoError(t, err)

	assert.Equal(t, contentieux.AffaireOuverte, result.Affaire.Statut)
	assert.False(t, result.Balance.Soldee)
}

// =============================================================================
// PAYMENT VALIDATION / REJECTION
// =============================================================================

func TestValiderEncaissement_SettlesOnClearance(t *testing.T) {
	// GIVEN: the pending remainder of a 1000 case
	// WHEN: the cheque clears
	// THEN: the payment is VALIDE and the case SOLDEE
	service, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateAffaire(ctx, creationInput("1000", "800"))
	require.NoError(t, err)

	pending, err := service.RecordEncaissement(ctx, created.Affaire.Numero, contentieux.NouvelEncaissement{
		Montant:      dec("200"),
		Mode:         contentieux.ModeCheque,
		CodeBanque:   "BQ01",
		NumeroCheque: "0100",
		Statut:       contentieux.EncaissementEnAttente,
	})
	require.NoError(t, err)

	result, err := service.ValiderEncaissement(ctx, pending.Encaissement.Reference)
	require.NoError(t, err)

	assert.Equal(t, contentieux.EncaissementValide, result.Encaissement.Statut)
	assert.Equal(t, contentieux.AffaireSoldee, result.Affaire.Statut)
	assert.True(t, result.Balance.Soldee)

	stored, err := store.GetEncaissement(ctx, pending.Encaissement.Reference)
	require.NoError(t, err)
	assert.Equal(t, contentieux.EncaissementValide, stored.Statut)
}

func TestRejeterEncaissement_ReleasesHold(t *testing.T) {
	// GIVEN: a bounced pending cheque
	// WHEN: it is rejected
	// THEN: its amount is freed and can be re-collected
	service, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateAffaire(ctx, creationInput("1000", "800"))
	require.NoError(t, err)

	pending, err := service.RecordEncaissement(ctx, created.Affaire.Numero, contentieux.NouvelEncaissement{
		Montant:      dec("200"),
		Mode:         contentieux.ModeCheque,
		CodeBanque:   "BQ01",
		NumeroCheque: "0101",
		Statut:       contentieux.EncaissementEnAttente,
	})
	require.NoError(t, err)

	result, err := service.RejeterEncaissement(ctx, pending.Encaissement.Reference)
	require.NoError(t, err)
	assert.Equal(t, contentieux.EncaissementRejete, result.Encaissement.Statut)
	assert.False(t, result.Balance.Soldee)

	// The freed 200 can now be collected in cash.
	settled, err := service.RecordEncaissement(ctx, created.Affaire.Numero, contentieux.NouvelEncaissement{
		Montant: dec("200"),
	})
	require.NoError(t, err)
	assert.Equal(t, contentieux.AffaireSoldee, settled.Affaire.Statut)
}

func TestValiderEncaissement_ValideIsImmuable(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateAffaire(ctx, creationInput("1000", "800"))
	require.NoError(t, err)

	_, err = service.ValiderEncaissement(ctx, created.Encaissement.Reference)
	require.ErrorIs(t, err, contentieux.ErrEncaissementImmuable)
}

// =============================================================================
// MANDATE PERIOD WARNINGS
// =============================================================================

func TestPaymentWithinActiveMandate_NoWarning(t *testing.T) {
	service, _, registry := newTestService(t)
	activeMandat(t, registry,
		contentieux.NewDate(2024, time.January, 1),
		contentieux.NewDate(2024, time.December, 31))

	result, err := service.CreateAffaire(context.Background(), creationInput("1000", "500"))
	require.NoError(t, err)
	assert.Nil(t, result.Warning)
}

func TestPaymentOutsideActiveMandate_WarnsButSucceeds(t *testing.T) {
	// GIVEN: the active mandate covers January 2024 only
	// WHEN: a payment dated February 5 settles the case
	// THEN: the operation succeeds, SOLDEE, with the straddle warning
	service, _, registry := newTestService(t)
	activeMandat(t, registry,
		contentieux.NewDate(2024, time.January, 1),
		contentieux.NewDate(2024, time.January, 31))

	input := creationInput("1000", "1000")
	input.DateCreation = contentieux.NewDate(2024, time.February, 5)

	result, err := service.CreateAffaire(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, contentieux.AffaireSoldee, result.Affaire.Statut)
	require.NotNil(t, result.Warning)
	assert.Equal(t, contentieux.WarningCheval, result.Warning.Code)
}

func TestNoActiveMandate_WarnsButSucceeds(t *testing.T) {
	service, _, _ := newTestService(t)

	result, err := service.CreateAffaire(context.Background(), creationInput("1000", "500"))
	require.NoError(t, err)
	require.NotNil(t, result.Warning)
}

func TestNilPeriodChecker_NoWarning(t *testing.T) {
	store := memory.New()
	service := contentieux.NewAffaireService(store, nil)
	service.Now = func() contentieux.Date { return fixedToday }

	result, err := service.CreateAffaire(context.Background(), creationInput("1000", "500"))
	require.NoError(t, err)
	assert.Nil(t, result.Warning)
}

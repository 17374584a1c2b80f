package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodeca/contentieux-engine/contentieux"
	"github.com/sodeca/contentieux-engine/store/memory"
)

func affaire(numero string) contentieux.Affaire {
	return contentieux.Affaire{
		Numero:           numero,
		DateCreation:     contentieux.NewDate(2024, time.March, 5),
		MontantTotal:     decimal.NewFromInt(1000),
		Statut:           contentieux.AffaireOuverte,
		CodeContrevenant: "CTV-001",
	}
}

func TestWithTx_RollbackRestoresState(t *testing.T) {
	// The in-memory store must mirror the SQLite transaction semantics:
	// a failed group leaves no trace.
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.SaveAffaire(ctx, affaire("AFF-keep")))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(st contentieux.Store) error {
		if err := st.SaveAffaire(ctx, affaire("AFF-doomed")); err != nil {
			return err
		}
		if err := st.UpdateAffaireStatut(ctx, "AFF-keep", contentieux.AffaireSoldee); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The doomed case is gone and the status change was undone.
	_, err = store.GetAffaire(ctx, "AFF-doomed")
	require.ErrorIs(t, err, contentieux.ErrAffaireInconnue)

	kept, err := store.GetAffaire(ctx, "AFF-keep")
	require.NoError(t, err)
	assert.Equal(t, contentieux.AffaireOuverte, kept.Statut)
}

func TestWithTx_CommitIsVisible(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	err := store.WithTx(ctx, func(st contentieux.Store) error {
		if err := st.SaveAffaire(ctx, affaire("AFF-tx")); err != nil {
			return err
		}
		return st.SaveEncaissement(ctx, contentieux.Encaissement{
			Reference:        "ENC-tx",
			NumeroAffaire:    "AFF-tx",
			DateEncaissement: contentieux.NewDate(2024, time.March, 5),
			Montant:          decimal.NewFromInt(400),
			Mode:             contentieux.ModeEspeces,
			Statut:           contentieux.EncaissementValide,
		})
	})
	require.NoError(t, err)

	encs, err := store.ListEncaissements(ctx, "AFF-tx")
	require.NoError(t, err)
	require.Len(t, encs, 1)

	// Reads inside a later transaction see committed state.
	err = store.WithTx(ctx, func(st contentieux.Store) error {
		got, err := st.GetAffaire(ctx, "AFF-tx")
		if err != nil {
			return err
		}
		assert.Equal(t, "AFF-tx", got.Numero)
		return nil
	})
	require.NoError(t, err)
}

func TestListAffaires_MostRecentFirst(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	older := affaire("AFF-old")
	older.DateCreation = contentieux.NewDate(2024, time.January, 1)
	newer := affaire("AFF-new")
	newer.DateCreation = contentieux.NewDate(2024, time.June, 1)

	require.NoError(t, store.SaveAffaire(ctx, older))
	require.NoError(t, store.SaveAffaire(ctx, newer))

	all, err := store.ListAffaires(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "AFF-new", all[0].Numero)
}

/*
store.go - Persistence boundary for affaires and encaissements

PURPOSE:
  Defines the interface between the domain rules and the database.
  The engine itself is pure; everything transactional lives behind
  these interfaces.

ATOMICITY CONTRACT:
  "Create affaire + first encaissement" and "record payment + update
  status" are single transactions: if the payment write fails, the case
  write must roll back. TxStore.WithTx provides that boundary. This is
  what makes the "pas d'affaire sans encaissement" rule hold in the
  stored data, not just at validation time.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - store/memory: in-memory store for tests and dev

SEE ALSO:
  - service.go: the only consumer of these interfaces
*/
package contentieux

import "context"

// =============================================================================
// STORE - Affaire / encaissement persistence
// =============================================================================

type Store interface {
	// SaveAffaire inserts a new affaire with its contravention lines and
	// actor assignments.
	SaveAffaire(ctx context.Context, a Affaire) error

	// GetAffaire returns an affaire by numero, or ErrAffaireInconnue.
	GetAffaire(ctx context.Context, numero string) (Affaire, error)

	// ListAffaires returns all affaires ordered by creation date descending.
	ListAffaires(ctx context.Context) ([]Affaire, error)

	// UpdateAffaireStatut sets the status of an affaire.
	UpdateAffaireStatut(ctx context.Context, numero string, statut StatutAffaire) error

	// SaveEncaissement inserts a new encaissement.
	SaveEncaissement(ctx context.Context, e Encaissement) error

	// GetEncaissement returns a payment by reference, or ErrEncaissementInconnu.
	GetEncaissement(ctx context.Context, reference string) (Encaissement, error)

	// ListEncaissements returns the payments of an affaire ordered by date.
	ListEncaissements(ctx context.Context, numeroAffaire string) ([]Encaissement, error)

	// UpdateEncaissementStatut sets the status of a payment.
	UpdateEncaissementStatut(ctx context.Context, reference string, statut StatutEncaissement) error

	// SaveContrevenant upserts an offender record.
	SaveContrevenant(ctx context.Context, c Contrevenant) error

	// GetContrevenant returns an offender by code, or ErrContrevenantInconnu.
	GetContrevenant(ctx context.Context, code string) (Contrevenant, error)
}

// TxStore wraps Store with transaction support. If fn returns an error the
// whole group is rolled back; otherwise it is committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

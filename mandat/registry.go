/*
registry.go - Mandate registry operations

PURPOSE:
  Create, activate and close mandates, and answer the date-membership
  query the payment path depends on. The registry holds no state of its
  own; the zero-or-one-ACTIF invariant lives in the Store.

SEE ALSO:
  - mandat.go: types and invariants
  - contentieux/service.go: consumes CheckPaymentPeriod
*/
package mandat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sodeca/contentieux-engine/contentieux"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMandatInconnu is returned when a mandate lookup finds nothing.
	ErrMandatInconnu = errors.New("mandat inconnu")

	// ErrPeriodeInvalide is returned when DateFin precedes DateDebut.
	ErrPeriodeInvalide = errors.New("periode invalide: fin avant debut")

	// ErrAucunMandatActif is returned by ActiveMandat when no mandate
	// is currently ACTIF.
	ErrAucunMandatActif = errors.New("aucun mandat actif")
)

// =============================================================================
// STORE - Mandate persistence
// =============================================================================

type Store interface {
	// SaveMandat inserts a new mandate.
	SaveMandat(ctx context.Context, m Mandat) error

	// GetMandat returns a mandate by numero, or ErrMandatInconnu.
	GetMandat(ctx context.Context, numero string) (Mandat, error)

	// ListMandats returns all mandates ordered by start date descending.
	ListMandats(ctx context.Context) ([]Mandat, error)

	// ActiveMandat returns the single ACTIF mandate, or ErrAucunMandatActif.
	ActiveMandat(ctx context.Context) (Mandat, error)

	// ActivateMandat atomically deactivates the current ACTIF mandate
	// (back to BROUILLON) and activates the target. The zero-or-one-ACTIF
	// invariant must hold even under concurrent calls.
	ActivateMandat(ctx context.Context, numero string) error

	// CloseMandat marks a mandate CLOTURE.
	CloseMandat(ctx context.Context, numero string) error

	// StatistiquesMandat computes the aggregates for a mandate window.
	StatistiquesMandat(ctx context.Context, m Mandat) (Statistiques, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the injected mandate dependency. It replaces the source
// system's MandatService.getInstance() singleton.
type Registry struct {
	Store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{Store: store}
}

// Create validates and persists a new BROUILLON mandate. A numero is
// generated when none is supplied.
func (r *Registry) Create(ctx context.Context, m Mandat) (Mandat, error) {
	if m.Numero == "" {
		m.Numero = NouveauNumero(m.DateDebut)
	}
	if m.Statut == "" {
		m.Statut = StatutBrouillon
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := m.Validate(); err != nil {
		return Mandat{}, err
	}
	if err := r.Store.SaveMandat(ctx, m); err != nil {
		return Mandat{}, err
	}
	return m, nil
}

// ActiveMandat returns the currently ACTIF mandate, or nil when none is.
func (r *Registry) ActiveMandat(ctx context.Context) (*Mandat, error) {
	m, err := r.Store.ActiveMandat(ctx)
	if errors.Is(err, ErrAucunMandatActif) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// IsWithinActiveMandat returns true iff an ACTIF mandate exists and the
// date falls within its inclusive window.
func (r *Registry) IsWithinActiveMandat(ctx context.Context, date contentieux.Date) (bool, error) {
	m, err := r.ActiveMandat(ctx)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	return m.Periode().Contains(date), nil
}

// Activate deactivates the previously active mandate (if any) and
// activates the target. Fails on a CLOTURE target.
func (r *Registry) Activate(ctx context.Context, numero string) (Mandat, error) {
	m, err := r.Store.GetMandat(ctx, numero)
	if err != nil {
		return Mandat{}, err
	}
	if m.Statut == StatutCloture {
		return Mandat{}, &contentieux.EtatError{Sujet: m.Numero, Depuis: string(StatutCloture), Vers: string(StatutActif)}
	}
	if err := r.Store.ActivateMandat(ctx, numero); err != nil {
		return Mandat{}, err
	}
	m.Statut = StatutActif
	return m, nil
}

// Close is the terminal transition. Only the currently ACTIF mandate can
// be closed.
func (r *Registry) Close(ctx context.Context, numero string) (Mandat, error) {
	m, err := r.Store.GetMandat(ctx, numero)
	if err != nil {
		return Mandat{}, err
	}
	if m.Statut != StatutActif {
		return Mandat{}, &contentieux.EtatError{Sujet: m.Numero, Depuis: string(m.Statut), Vers: string(StatutCloture)}
	}
	if err := r.Store.CloseMandat(ctx, numero); err != nil {
		return Mandat{}, err
	}
	m.Statut = StatutCloture
	return m, nil
}

// Statistiques computes the dashboard aggregates for a mandate.
func (r *Registry) Statistiques(ctx context.Context, numero string) (Statistiques, error) {
	m, err := r.Store.GetMandat(ctx, numero)
	if err != nil {
		return Statistiques{}, err
	}
	return r.Store.StatistiquesMandat(ctx, m)
}

// =============================================================================
// PERIOD SOFT CHECK
// =============================================================================

// CheckPaymentPeriod implements contentieux.PeriodChecker. The result is
// advisory only: a payment outside the active window (or with no active
// mandate at all) still saves, the caller just relays the warning.
func (r *Registry) CheckPaymentPeriod(ctx context.Context, date contentieux.Date) (*contentieux.Warning, error) {
	m, err := r.ActiveMandat(ctx)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return &contentieux.Warning{
			Code:    contentieux.WarningCheval,
			Message: "aucun mandat actif: encaissement hors periode",
		}, nil
	}
	if !m.Periode().Contains(date) {
		return &contentieux.Warning{
			Code: contentieux.WarningCheval,
			Message: fmt.Sprintf("affaire a cheval: %s hors du mandat %s %s",
				date, m.Numero, m.Periode()),
		}, nil
	}
	return nil, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

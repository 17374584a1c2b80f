/*
Package mandat manages fiscal mandates: the date-bounded periods every
affaire and encaissement is implicitly scoped to.

PURPOSE:
  Single source of truth for "which fiscal period are we operating in".
  At most one mandate is ACTIF system-wide at any time; the invariant is
  enforced at the data layer (a partial unique index in the SQLite store,
  an atomic swap in the memory store), not by a singleton object.

LIFECYCLE:
  BROUILLON -> ACTIF (deactivating any prior active mandate) -> CLOTURE.
  CLOTURE is terminal; a closed mandate is immutable.

PERIOD CHECK:
  A payment dated outside the active mandate window produces a
  non-blocking "affaire à cheval" warning. It never prevents the save.

SEE ALSO:
  - registry.go: the Registry operations
  - store/sqlite: the persistent implementation
*/
package mandat

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sodeca/contentieux-engine/contentieux"
)

// =============================================================================
// MANDAT - A fiscal period
// =============================================================================

type Statut string

const (
	StatutBrouillon Statut = "BROUILLON"
	StatutActif     Statut = "ACTIF"
	StatutCloture   Statut = "CLOTURE"
)

type Mandat struct {
	Numero    string
	Libelle   string
	DateDebut contentieux.Date
	DateFin   contentieux.Date
	Statut    Statut
	CreatedAt time.Time
}

// Periode returns the inclusive [DateDebut, DateFin] window.
func (m Mandat) Periode() contentieux.Periode {
	return contentieux.Periode{Debut: m.DateDebut, Fin: m.DateFin}
}

// Validate checks the structural invariants of a mandate.
func (m Mandat) Validate() error {
	if m.Numero == "" {
		return fmt.Errorf("%w: numero de mandat", contentieux.ErrChampRequis)
	}
	if !m.Periode().Valide() {
		return fmt.Errorf("mandat %s: %w", m.Numero, ErrPeriodeInvalide)
	}
	return nil
}

// NouveauNumero generates a mandate number of the form MND-2024-1a2b3c4d.
func NouveauNumero(debut contentieux.Date) string {
	return fmt.Sprintf("MND-%d-%s", debut.Year(), shortID())
}

// =============================================================================
// STATISTICS - Aggregates shown on the mandate dashboard
// =============================================================================

// Statistiques are the per-mandate aggregates: how many cases were opened
// in the window, how many are settled, and the total collected. They are
// computed from the stored data and refreshed by the scheduler.
type Statistiques struct {
	NumeroMandat  string
	NbAffaires    int
	NbSoldees     int
	TotalEncaisse decimal.Decimal
	RefreshedAt   time.Time
}

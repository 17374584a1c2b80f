/*
Package referentiel holds the closed set of reference-data types an
affaire points at: services, bureaux, centres, banques and the
contravention catalogue.

PURPOSE:
  Every reference record carries the same four fields (code, libelle,
  description, actif). The Codeable interface dispatches over them
  polymorphically; there are no type-switch chains over the concrete
  types anywhere in the engine.

SEE ALSO:
  - contentieux/types.go: affaires reference these records by code
  - store/sqlite: persistence keyed by Kind
*/
package referentiel

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CODEABLE - Common shape of all reference data
// =============================================================================

// Codeable is implemented by every reference-data type.
type Codeable interface {
	GetCode() string
	GetLibelle() string
	GetDescription() string
	IsActif() bool
}

// Fiche is the common record embedded by each concrete type.
type Fiche struct {
	Code        string
	Libelle     string
	Description string
	Actif       bool
}

func (f Fiche) GetCode() string        { return f.Code }
func (f Fiche) GetLibelle() string     { return f.Libelle }
func (f Fiche) GetDescription() string { return f.Description }
func (f Fiche) IsActif() bool          { return f.Actif }

// Validate checks the structural requirement shared by all kinds.
func (f Fiche) Validate() error {
	if f.Code == "" || f.Libelle == "" {
		return ErrFicheIncomplete
	}
	return nil
}

// =============================================================================
// CONCRETE TYPES - The closed set
// =============================================================================

type Service struct{ Fiche }

type Bureau struct {
	Fiche
	CodeService string // owning service
}

type Centre struct{ Fiche }

type Banque struct{ Fiche }

// Contravention is a catalogue entry: an infraction type with its
// standard fine amount. Case lines copy the amount at creation time.
type Contravention struct {
	Fiche
	MontantBase decimal.Decimal
}

// Tarifee is implemented by reference records that carry a standard
// amount. Callers probe for it the way they probe for fmt.Stringer.
type Tarifee interface {
	GetMontantBase() decimal.Decimal
}

func (c Contravention) GetMontantBase() decimal.Decimal { return c.MontantBase }

// =============================================================================
// KINDS & STORE
// =============================================================================

// Kind identifies a reference-data family in the store and the API.
type Kind string

const (
	KindService       Kind = "services"
	KindBureau        Kind = "bureaux"
	KindCentre        Kind = "centres"
	KindBanque        Kind = "banques"
	KindContravention Kind = "contraventions"
)

// Kinds lists every valid kind.
func Kinds() []Kind {
	return []Kind{KindService, KindBureau, KindCentre, KindBanque, KindContravention}
}

// Valid reports whether k is one of the closed set.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

var (
	ErrFicheIncomplete = errors.New("code et libelle requis")
	ErrFicheInconnue   = errors.New("fiche de referentiel inconnue")
	ErrKindInconnu     = errors.New("type de referentiel inconnu")
)

// Entry is the stored form of any reference record. MontantBase is only
// meaningful for KindContravention and zero elsewhere.
type Entry struct {
	Kind        Kind
	Fiche       Fiche
	MontantBase decimal.Decimal
}

// Store persists reference data by kind.
type Store interface {
	// SaveEntry upserts a record (same kind + code replaces).
	SaveEntry(ctx context.Context, e Entry) error

	// GetEntry returns a record, or ErrFicheInconnue.
	GetEntry(ctx context.Context, kind Kind, code string) (Entry, error)

	// ListEntries returns all records of a kind, ordered by code.
	ListEntries(ctx context.Context, kind Kind) ([]Entry, error)
}

// Codeable materializes the typed record for an entry. All call sites
// dispatch through the interface; none inspect the concrete type.
func (e Entry) Codeable() Codeable {
	switch e.Kind {
	case KindContravention:
		return Contravention{Fiche: e.Fiche, MontantBase: e.MontantBase}
	case KindBureau:
		return Bureau{Fiche: e.Fiche}
	case KindService:
		return Service{Fiche: e.Fiche}
	case KindCentre:
		return Centre{Fiche: e.Fiche}
	case KindBanque:
		return Banque{Fiche: e.Fiche}
	default:
		return e.Fiche
	}
}

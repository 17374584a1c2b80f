/*
Package contentieux provides the core case/payment reconciliation engine.

PURPOSE:
  This package contains the domain types and pure rules for managing
  "affaires" (case files built on fines) and their "encaissements"
  (payments): balance calculation, payment validation, and the case
  settlement lifecycle. It performs no I/O; persistence is behind the
  Store interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Affaire: a case file with a total fine amount and a status
  - Encaissement: an immutable-once-validated payment against a case
  - Contrevenant: the offending party a case is filed against
  - Acteur: an agent assigned to a case with a role

DESIGN PRINCIPLES:
  1. Precision: all monetary values use decimal.Decimal (FCFA, no floats)
  2. Status is derived: an affaire's status is a function of its payments
  3. Validate-then-persist: nothing is saved until every check passes

SEE ALSO:
  - balance.go: balance computation and payment validation
  - lifecycle.go: status derivation and encaissement transitions
  - service.go: orchestration over the Store boundary
*/
package contentieux

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUSES
// =============================================================================

// StatutAffaire is the lifecycle status of a case.
// OUVERTE and EN_COURS are both "not yet settled": no observed rule moves a
// case between them independently of payment state, so EN_COURS is accepted
// as a stored value but never produced by a transition.
type StatutAffaire string

const (
	AffaireOuverte StatutAffaire = "OUVERTE"
	AffaireEnCours StatutAffaire = "EN_COURS"
	AffaireSoldee  StatutAffaire = "SOLDEE"
)

// Soldee reports whether the status is the terminal fully-paid state.
func (s StatutAffaire) Soldee() bool { return s == AffaireSoldee }

// StatutEncaissement is the lifecycle status of a payment.
// EN_ATTENTE -> VALIDE or EN_ATTENTE -> REJETE, via an explicit action.
// A VALIDE encaissement is immutable.
type StatutEncaissement string

const (
	EncaissementEnAttente StatutEncaissement = "EN_ATTENTE"
	EncaissementValide    StatutEncaissement = "VALIDE"
	EncaissementRejete    StatutEncaissement = "REJETE"
)

// ModeReglement is how a payment was made.
type ModeReglement string

const (
	ModeEspeces  ModeReglement = "ESPECES"
	ModeCheque   ModeReglement = "CHEQUE"
	ModeVirement ModeReglement = "VIREMENT"
)

// RequiertBanque reports whether the mode needs a bank reference
// (bank code + instrument number).
func (m ModeReglement) RequiertBanque() bool { return m == ModeCheque }

// RoleActeur is the role an agent plays on a case.
type RoleActeur string

const (
	RoleSaisissant RoleActeur = "SAISISSANT"
	RoleChef       RoleActeur = "CHEF"
	RoleIndicateur RoleActeur = "INDICATEUR"
)

// =============================================================================
// AFFAIRE - A case file
// =============================================================================

// Affaire is a case file built on one or more contraventions against a
// contrevenant. The numero is generated at creation and immutable.
// Affaires are never hard-deleted; only the status changes.
type Affaire struct {
	Numero       string
	DateCreation Date

	// Total fine amount. Defaults to the sum of the contravention lines
	// when not set explicitly. Always >= 0.
	MontantTotal decimal.Decimal

	Statut StatutAffaire

	// Reference-data codes (referentiel package holds the definitions).
	CodeContrevenant string
	CodeBureau       string
	CodeService      string

	Contraventions []LigneContravention
	Acteurs        []Acteur

	CreatedAt time.Time
}

// LigneContravention is a single fine attached to a case.
type LigneContravention struct {
	CodeContravention string
	Libelle           string
	Montant           decimal.Decimal
}

// TotalContraventions returns the sum of the contravention line amounts.
func (a Affaire) TotalContraventions() decimal.Decimal {
	total := decimal.Zero
	for _, l := range a.Contraventions {
		total = total.Add(l.Montant)
	}
	return total
}

// Acteur is an agent assignment on a case.
type Acteur struct {
	CodeAgent string
	Role      RoleActeur
}

// =============================================================================
// ENCAISSEMENT - A payment against a case
// =============================================================================

type Encaissement struct {
	Reference     string
	NumeroAffaire string

	DateEncaissement Date
	Montant          decimal.Decimal
	Mode             ModeReglement

	// Required iff Mode.RequiertBanque().
	CodeBanque   string
	NumeroCheque string

	Statut    StatutEncaissement
	CreatedAt time.Time
}

// CompteDansSolde reports whether this payment counts toward the case
// balance. REJETE payments never affect the balance; EN_ATTENTE payments
// hold the balance so a concurrent payment cannot overdraw the case.
func (e Encaissement) CompteDansSolde() bool {
	return e.Statut != EncaissementRejete
}

// =============================================================================
// CONTREVENANT - The offending party
// =============================================================================

type TypeContrevenant string

const (
	PersonnePhysique TypeContrevenant = "PHYSIQUE"
	PersonneMorale   TypeContrevenant = "MORALE"
)

type Contrevenant struct {
	Code      string
	Nom       string
	Type      TypeContrevenant
	Telephone string
	Adresse   string
	CreatedAt time.Time
}

// =============================================================================
// IDENTIFIER GENERATION
// =============================================================================

// NouveauNumeroAffaire generates a case number of the form AFF-2024-1a2b3c4d.
// The year comes from the creation date so numbers sort by mandate year.
func NouveauNumeroAffaire(creation Date) string {
	return fmt.Sprintf("AFF-%d-%s", creation.Year(), shortID())
}

// NouvelleReferenceEncaissement generates a payment reference (ENC-1a2b3c4d).
func NouvelleReferenceEncaissement() string {
	return "ENC-" + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

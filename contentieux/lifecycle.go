/*
lifecycle.go - Case status derivation and encaissement transitions

PURPOSE:
  Drives the status of an affaire from its balance, and the
  EN_ATTENTE -> VALIDE / REJETE transitions of an encaissement.

STATUS RULE:
  statut := SOLDEE if balance.Soldee, else the current status
  (defaulting to OUVERTE at creation). Only VALIDE payments settle a
  case; REJETE payments never affect the balance. EN_COURS is treated
  as a synonym of OUVERTE (not settled) and is preserved, never produced.

SEE ALSO:
  - balance.go: the Balance the status is derived from
  - service.go: recomputes the status after each validated payment
*/
package contentieux

import "github.com/shopspring/decimal"

// =============================================================================
// STATUS DERIVATION
// =============================================================================

// DeriveStatut returns the case status implied by the balance.
func DeriveStatut(current StatutAffaire, b Balance) StatutAffaire {
	if b.Soldee {
		return AffaireSoldee
	}
	if current == "" {
		return AffaireOuverte
	}
	return current
}

// MontantsValides returns the amounts of the VALIDE payments.
// These are the only payments that settle a case.
func MontantsValides(encaissements []Encaissement) []decimal.Decimal {
	var montants []decimal.Decimal
	for _, e := range encaissements {
		if e.Statut == EncaissementValide {
			montants = append(montants, e.Montant)
		}
	}
	return montants
}

// MontantsRetenus returns the amounts that hold the balance for overdraw
// checks: VALIDE plus EN_ATTENTE. A pending payment reserves its amount
// so a second payment cannot overdraw the case while it awaits validation.
func MontantsRetenus(encaissements []Encaissement) []decimal.Decimal {
	var montants []decimal.Decimal
	for _, e := range encaissements {
		if e.CompteDansSolde() {
			montants = append(montants, e.Montant)
		}
	}
	return montants
}

// SoldeAffaire computes the settlement balance of a case from its payments.
func SoldeAffaire(a Affaire, encaissements []Encaissement) Balance {
	return ComputeBalance(a.MontantTotal, MontantsValides(encaissements))
}

// =============================================================================
// ENCAISSEMENT TRANSITIONS
// =============================================================================

// Valider moves an EN_ATTENTE payment to VALIDE.
func (e *Encaissement) Valider() error {
	switch e.Statut {
	case EncaissementEnAttente:
		e.Statut = EncaissementValide
		return nil
	case EncaissementValide:
		return ErrEncaissementImmuable
	default:
		return &EtatError{Sujet: e.Reference, Depuis: string(e.Statut), Vers: string(EncaissementValide)}
	}
}

// Rejeter moves an EN_ATTENTE payment to REJETE. A rejected payment
// releases its hold on the case balance.
func (e *Encaissement) Rejeter() error {
	switch e.Statut {
	case EncaissementEnAttente:
		e.Statut = EncaissementRejete
		return nil
	case EncaissementValide:
		return ErrEncaissementImmuable
	default:
		return &EtatError{Sujet: e.Reference, Depuis: string(e.Statut), Vers: string(EncaissementRejete)}
	}
}

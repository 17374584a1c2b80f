/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator struct tags checked with
  go-playground/validator before any domain logic runs. Domain-level
  rules (balance overdraw, period checks) stay in the domain packages;
  the tags only catch malformed payloads early.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sodeca/contentieux-engine/contentieux"
	"github.com/sodeca/contentieux-engine/mandat"
	"github.com/sodeca/contentieux-engine/referentiel"
)

// =============================================================================
// AFFAIRE TYPES
// =============================================================================

// CreateAffaireRequest is the request to open a case with its first payment.
type CreateAffaireRequest struct {
	DateCreation     string                    `json:"date_creation,omitempty"`
	MontantTotal     string                    `json:"montant_total,omitempty"`
	CodeContrevenant string                    `json:"code_contrevenant" validate:"required"`
	CodeBureau       string                    `json:"code_bureau,omitempty"`
	CodeService      string                    `json:"code_service,omitempty"`
	Contraventions   []ContraventionLineDTO    `json:"contraventions" validate:"required,min=1,dive"`
	Acteurs          []ActeurDTO               `json:"acteurs,omitempty" validate:"omitempty,dive"`
	PremierPaiement  CreateEncaissementRequest `json:"premier_paiement" validate:"required"`
}

// ContraventionLineDTO is one fine line on a case.
type ContraventionLineDTO struct {
	CodeContravention string `json:"code_contravention,omitempty"`
	Libelle           string `json:"libelle" validate:"required"`
	Montant           string `json:"montant" validate:"required"`
}

// ActeurDTO is an agent assignment on a case.
type ActeurDTO struct {
	CodeAgent string `json:"code_agent" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=SAISISSANT CHEF INDICATEUR"`
}

// AffaireDTO represents a case in API responses.
type AffaireDTO struct {
	Numero           string                 `json:"numero"`
	DateCreation     string                 `json:"date_creation"`
	MontantTotal     string                 `json:"montant_total"`
	Statut           string                 `json:"statut"`
	CodeContrevenant string                 `json:"code_contrevenant"`
	CodeBureau       string                 `json:"code_bureau,omitempty"`
	CodeService      string                 `json:"code_service,omitempty"`
	Contraventions   []ContraventionLineDTO `json:"contraventions,omitempty"`
	Acteurs          []ActeurDTO            `json:"acteurs,omitempty"`
	CreatedAt        string                 `json:"created_at,omitempty"`
}

// BalanceDTO is the financial position of a case.
type BalanceDTO struct {
	MontantTotal string `json:"montant_total"`
	Encaisse     string `json:"encaisse"`
	Solde        string `json:"solde"`
	Progression  string `json:"progression"`
	Soldee       bool   `json:"soldee"`
}

// AffaireDetailDTO bundles a case with its payments and balance.
type AffaireDetailDTO struct {
	Affaire       AffaireDTO        `json:"affaire"`
	Balance       BalanceDTO        `json:"balance"`
	Encaissements []EncaissementDTO `json:"encaissements"`
}

// CreateAffaireResponse is returned after opening a case.
type CreateAffaireResponse struct {
	Affaire      AffaireDTO       `json:"affaire"`
	Encaissement EncaissementDTO  `json:"encaissement"`
	Balance      BalanceDTO       `json:"balance"`
	Warning      *WarningDTO      `json:"warning,omitempty"`
}

// =============================================================================
// ENCAISSEMENT TYPES
// =============================================================================

// CreateEncaissementRequest is a payment to record against a case.
type CreateEncaissementRequest struct {
	Date         string `json:"date,omitempty"`
	Montant      string `json:"montant" validate:"required"`
	Mode         string `json:"mode,omitempty" validate:"omitempty,oneof=ESPECES CHEQUE VIREMENT"`
	CodeBanque   string `json:"code_banque,omitempty"`
	NumeroCheque string `json:"numero_cheque,omitempty"`
	Statut       string `json:"statut,omitempty" validate:"omitempty,oneof=VALIDE EN_ATTENTE"`
}

// EncaissementDTO represents a payment in API responses.
type EncaissementDTO struct {
	Reference     string `json:"reference"`
	NumeroAffaire string `json:"numero_affaire"`
	Date          string `json:"date"`
	Montant       string `json:"montant"`
	Mode          string `json:"mode"`
	CodeBanque    string `json:"code_banque,omitempty"`
	NumeroCheque  string `json:"numero_cheque,omitempty"`
	Statut        string `json:"statut"`
}

// RecordEncaissementResponse is returned after recording a payment.
type RecordEncaissementResponse struct {
	Encaissement EncaissementDTO `json:"encaissement"`
	Affaire      AffaireDTO      `json:"affaire"`
	Balance      BalanceDTO      `json:"balance"`
	Warning      *WarningDTO     `json:"warning,omitempty"`
}

// =============================================================================
// MANDAT TYPES
// =============================================================================

// CreateMandatRequest is the request to create a fiscal mandate.
type CreateMandatRequest struct {
	Libelle   string `json:"libelle,omitempty"`
	DateDebut string `json:"date_debut" validate:"required"`
	DateFin   string `json:"date_fin" validate:"required"`
}

// MandatDTO represents a mandate in API responses.
type MandatDTO struct {
	Numero    string `json:"numero"`
	Libelle   string `json:"libelle,omitempty"`
	DateDebut string `json:"date_debut"`
	DateFin   string `json:"date_fin"`
	Statut    string `json:"statut"`
}

// StatistiquesDTO is the aggregate view of a mandate window.
type StatistiquesDTO struct {
	NumeroMandat  string `json:"numero_mandat"`
	NbAffaires    int    `json:"nb_affaires"`
	NbSoldees     int    `json:"nb_soldees"`
	TotalEncaisse string `json:"total_encaisse"`
	RefreshedAt   string `json:"refreshed_at"`
}

// =============================================================================
// CONTREVENANT / REFERENTIEL TYPES
// =============================================================================

// CreateContrevenantRequest registers an offender.
type CreateContrevenantRequest struct {
	Code      string `json:"code" validate:"required"`
	Nom       string `json:"nom" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=PHYSIQUE MORALE"`
	Telephone string `json:"telephone,omitempty"`
	Adresse   string `json:"adresse,omitempty"`
}

// ContrevenantDTO represents an offender in API responses.
type ContrevenantDTO struct {
	Code      string `json:"code"`
	Nom       string `json:"nom"`
	Type      string `json:"type"`
	Telephone string `json:"telephone,omitempty"`
	Adresse   string `json:"adresse,omitempty"`
}

// SaveFicheRequest upserts a reference-data entry.
type SaveFicheRequest struct {
	Code        string `json:"code" validate:"required"`
	Libelle     string `json:"libelle" validate:"required"`
	Description string `json:"description,omitempty"`
	Actif       *bool  `json:"actif,omitempty"`
	MontantBase string `json:"montant_base,omitempty"`
}

// FicheDTO represents a reference-data entry in API responses.
type FicheDTO struct {
	Code        string `json:"code"`
	Libelle     string `json:"libelle"`
	Description string `json:"description,omitempty"`
	Actif       bool   `json:"actif"`
	MontantBase string `json:"montant_base,omitempty"`
}

// =============================================================================
// SHARED TYPES
// =============================================================================

// WarningDTO is a non-blocking advisory attached to a successful response.
type WarningDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAffaireDTO(a contentieux.Affaire) AffaireDTO {
	dto := AffaireDTO{
		Numero:           a.Numero,
		DateCreation:     a.DateCreation.String(),
		MontantTotal:     a.MontantTotal.String(),
		Statut:           string(a.Statut),
		CodeContrevenant: a.CodeContrevenant,
		CodeBureau:       a.CodeBureau,
		CodeService:      a.CodeService,
	}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	for _, l := range a.Contraventions {
		dto.Contraventions = append(dto.Contraventions, ContraventionLineDTO{
			CodeContravention: l.CodeContravention,
			Libelle:           l.Libelle,
			Montant:           l.Montant.String(),
		})
	}
	for _, act := range a.Acteurs {
		dto.Acteurs = append(dto.Acteurs, ActeurDTO{
			CodeAgent: act.CodeAgent,
			Role:      string(act.Role),
		})
	}
	return dto
}

func toEncaissementDTO(e contentieux.Encaissement) EncaissementDTO {
	return EncaissementDTO{
		Reference:     e.Reference,
		NumeroAffaire: e.NumeroAffaire,
		Date:          e.DateEncaissement.String(),
		Montant:       e.Montant.String(),
		Mode:          string(e.Mode),
		CodeBanque:    e.CodeBanque,
		NumeroCheque:  e.NumeroCheque,
		Statut:        string(e.Statut),
	}
}

func toBalanceDTO(b contentieux.Balance) BalanceDTO {
	return BalanceDTO{
		MontantTotal: b.MontantTotal.String(),
		Encaisse:     b.Encaisse.String(),
		Solde:        b.Solde.String(),
		Progression:  b.ProgressionAffichee().String(),
		Soldee:       b.Soldee,
	}
}

func toMandatDTO(m mandat.Mandat) MandatDTO {
	return MandatDTO{
		Numero:    m.Numero,
		Libelle:   m.Libelle,
		DateDebut: m.DateDebut.String(),
		DateFin:   m.DateFin.String(),
		Statut:    string(m.Statut),
	}
}

func toStatistiquesDTO(s mandat.Statistiques) StatistiquesDTO {
	return StatistiquesDTO{
		NumeroMandat:  s.NumeroMandat,
		NbAffaires:    s.NbAffaires,
		NbSoldees:     s.NbSoldees,
		TotalEncaisse: s.TotalEncaisse.String(),
		RefreshedAt:   s.RefreshedAt.Format(time.RFC3339),
	}
}

func toContrevenantDTO(c contentieux.Contrevenant) ContrevenantDTO {
	return ContrevenantDTO{
		Code:      c.Code,
		Nom:       c.Nom,
		Type:      string(c.Type),
		Telephone: c.Telephone,
		Adresse:   c.Adresse,
	}
}

func toFicheDTO(e referentiel.Entry) FicheDTO {
	c := e.Codeable()
	dto := FicheDTO{
		Code:        c.GetCode(),
		Libelle:     c.GetLibelle(),
		Description: c.GetDescription(),
		Actif:       c.IsActif(),
	}
	if t, ok := c.(referentiel.Tarifee); ok && !t.GetMontantBase().IsZero() {
		dto.MontantBase = t.GetMontantBase().String()
	}
	return dto
}

func toWarningDTO(w *contentieux.Warning) *WarningDTO {
	if w == nil {
		return nil
	}
	return &WarningDTO{Code: w.Code, Message: w.Message}
}

func parseMontant(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

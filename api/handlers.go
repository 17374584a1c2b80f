/*
handlers.go - HTTP API handlers for the litigation collection engine

PURPOSE:
  Exposes the affaire/encaissement engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Affaires:
    GET    /api/affaires                         List all cases
    POST   /api/affaires                         Open a case (with first payment)
    GET    /api/affaires/{numero}                Case detail with balance
    GET    /api/affaires/{numero}/balance        Balance only
    GET    /api/affaires/{numero}/encaissements  Payment history
    POST   /api/affaires/{numero}/encaissements  Record a payment

  Encaissements:
    GET    /api/encaissements/{reference}          Payment detail
    POST   /api/encaissements/{reference}/valider  Confirm a pending payment
    POST   /api/encaissements/{reference}/rejeter  Reject a pending payment

  Mandats:
    GET    /api/mandats                          List mandates
    POST   /api/mandats                          Create mandate (BROUILLON)
    GET    /api/mandats/actif                    Current active mandate
    GET    /api/mandats/actif/statistiques       Stats for active mandate
    POST   /api/mandats/{numero}/activer         Activate (deactivates previous)
    POST   /api/mandats/{numero}/cloturer        Close an active mandate
    GET    /api/mandats/{numero}/statistiques    Stats for any mandate

  Contrevenants:
    POST   /api/contrevenants                    Register offender
    GET    /api/contrevenants/{code}             Offender detail

  Referentiels:
    GET    /api/referentiels/{kind}              List entries of a kind
    POST   /api/referentiels/{kind}              Upsert an entry
    GET    /api/referentiels/{kind}/{code}       Entry detail

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input (full violation list in details)
  - 404: Unknown affaire/encaissement/mandat/fiche
  - 409: Illegal state transitions
  - 500: Internal errors
  Warnings (e.g. payment dated outside the active mandate) never fail a
  request; they travel in the success body.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sodeca/contentieux-engine/contentieux"
	"github.com/sodeca/contentieux-engine/mandat"
	"github.com/sodeca/contentieux-engine/referentiel"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service      *contentieux.AffaireService
	Store        contentieux.TxStore
	Mandats      *mandat.Registry
	Referentiels referentiel.Store
	Stats        *StatsCache

	validate *validator.Validate
}

// NewHandler wires the handler with its dependencies.
func NewHandler(service *contentieux.AffaireService, store contentieux.TxStore, mandats *mandat.Registry, refs referentiel.Store) *Handler {
	return &Handler{
		Service:      service,
		Store:        store,
		Mandats:      mandats,
		Referentiels: refs,
		validate:     validator.New(),
	}
}

// =============================================================================
// AFFAIRE HANDLERS
// =============================================================================

// ListAffaires returns all cases.
func (h *Handler) ListAffaires(w http.ResponseWriter, r *http.Request) {
	affaires, err := h.Store.ListAffaires(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	dtos := make([]AffaireDTO, len(affaires))
	for i, a := range affaires {
		dtos[i] = toAffaireDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAffaire opens a case together with its mandatory first payment.
func (h *Handler) CreateAffaire(w http.ResponseWriter, r *http.Request) {
	var req CreateAffaireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "requete invalide", validationDetails(err))
		return
	}

	input, ok := h.buildNouvelleAffaire(w, req)
	if !ok {
		return
	}

	result, err := h.Service.CreateAffaire(r.Context(), input)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateAffaireResponse{
		Affaire:      toAffaireDTO(result.Affaire),
		Encaissement: toEncaissementDTO(result.Encaissement),
		Balance:      toBalanceDTO(result.Balance),
		Warning:      toWarningDTO(result.Warning),
	})
}

// GetAffaire returns a case with its payments and financial position.
func (h *Handler) GetAffaire(w http.ResponseWriter, r *http.Request) {
	numero := chi.URLParam(r, "numero")

	affaire, err := h.Store.GetAffaire(r.Context(), numero)
	if err != nil {
		h.handleError(w, err)
		return
	}
	encs, err := h.Store.ListEncaissements(r.Context(), numero)
	if err != nil {
		h.handleError(w, err)
		return
	}

	detail := AffaireDetailDTO{
		Affaire:       toAffaireDTO(affaire),
		Balance:       toBalanceDTO(contentieux.SoldeAffaire(affaire, encs)),
		Encaissements: make([]EncaissementDTO, len(encs)),
	}
	for i, e := range encs {
		detail.Encaissements[i] = toEncaissementDTO(e)
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetBalance returns only the financial position of a case.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	numero := chi.URLParam(r, "numero")

	balance, err := h.Service.BalanceAffaire(r.Context(), numero)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// ListEncaissements returns the payment history of a case.
func (h *Handler) ListEncaissements(w http.ResponseWriter, r *http.Request) {
	numero := chi.URLParam(r, "numero")

	// 404 on unknown case, not an empty list.
	if _, err := h.Store.GetAffaire(r.Context(), numero); err != nil {
		h.handleError(w, err)
		return
	}
	encs, err := h.Store.ListEncaissements(r.Context(), numero)
	if err != nil {
		h.handleError(w, err)
		return
	}

	dtos := make([]EncaissementDTO, len(encs))
	for i, e := range encs {
		dtos[i] = toEncaissementDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordEncaissement records a payment against an existing case.
func (h *Handler) RecordEncaissement(w http.ResponseWriter, r *http.Request) {
	numero := chi.URLParam(r, "numero")

	var req CreateEncaissementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "requete invalide", validationDetails(err))
		return
	}

	input, ok := h.buildNouvelEncaissement(w, req)
	if !ok {
		return
	}

	result, err := h.Service.RecordEncaissement(r.Context(), numero, input)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RecordEncaissementResponse{
		Encaissement: toEncaissementDTO(result.Encaissement),
		Affaire:      toAffaireDTO(result.Affaire),
		Balance:      toBalanceDTO(result.Balance),
		Warning:      toWarningDTO(result.Warning),
	})
}

// =============================================================================
// ENCAISSEMENT HANDLERS
// =============================================================================

// GetEncaissement returns a single payment.
func (h *Handler) GetEncaissement(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	enc, err := h.Store.GetEncaissement(r.Context(), reference)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEncaissementDTO(enc))
}

// ValiderEncaissement confirms a pending payment.
func (h *Handler) ValiderEncaissement(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	result, err := h.Service.ValiderEncaissement(r.Context(), reference)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordEncaissementResponse{
		Encaissement: toEncaissementDTO(result.Encaissement),
		Affaire:      toAffaireDTO(result.Affaire),
		Balance:      toBalanceDTO(result.Balance),
	})
}

// RejeterEncaissement rejects a pending payment.
func (h *Handler) RejeterEncaissement(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	result, err := h.Service.RejeterEncaissement(r.Context(), reference)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordEncaissementResponse{
		Encaissement: toEncaissementDTO(result.Encaissement),
		Affaire:      toAffaireDTO(result.Affaire),
		Balance:      toBalanceDTO(result.Balance),
	})
}

// =============================================================================
// MANDAT HANDLERS
// =============================================================================

// ListMandats returns all mandates, most recent first.
func (h *Handler) ListMandats(w http.ResponseWriter, r *http.Request) {
	mandats, err := h.Mandats.Store.ListMandats(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	dtos := make([]MandatDTO, len(mandats))
	for i, m := range mandats {
		dtos[i] = toMandatDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMandat creates a mandate in BROUILLON state.
func (h *Handler) CreateMandat(w http.ResponseWriter, r *http.Request) {
	var req CreateMandatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "requete invalide", validationDetails(err))
		return
	}

	debut, err := contentieux.ParseDate(req.DateDebut)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date_debut invalide (format YYYY-MM-DD)", nil)
		return
	}
	fin, err := contentieux.ParseDate(req.DateFin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date_fin invalide (format YYYY-MM-DD)", nil)
		return
	}

	created, err := h.Mandats.Create(r.Context(), mandat.Mandat{
		Libelle:   req.Libelle,
		DateDebut: debut,
		DateFin:   fin,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMandatDTO(created))
}

// GetActiveMandat returns the single active mandate, 404 when none.
func (h *Handler) GetActiveMandat(w http.ResponseWriter, r *http.Request) {
	m, err := h.Mandats.ActiveMandat(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "aucun mandat actif", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMandatDTO(*m))
}

// ActiverMandat activates a mandate, deactivating any previous one.
func (h *Handler) ActiverMandat(w http.ResponseWriter, r *http.Request) {
	numero := chi.URLParam(r, "numero")

	m, err := h.Mandats.Activate(r.Context(), numero)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMandatDTO(m))
}

// CloturerMandat closes an active mandate.
func (h *Handler) CloturerMandat(w http.ResponseWriter, r *http.Request) {
	numero := chi.URLParam(r, "numero")

	m, err := h.Mandats.Close(r.Context(), numero)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMandatDTO(m))
}

// GetStatistiques returns aggregates for a mandate window.
func (h *Handler) GetStatistiques(w http.ResponseWriter, r *http.Request) {
	numero := chi.URLParam(r, "numero")

	stats, err := h.Mandats.Statistiques(r.Context(), numero)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatistiquesDTO(stats))
}

// GetActiveStatistiques returns aggregates for the active mandate. Served
// from the scheduler's cache when fresh, computed live otherwise.
func (h *Handler) GetActiveStatistiques(w http.ResponseWriter, r *http.Request) {
	if h.Stats != nil {
		if stats, ok := h.Stats.Current(); ok {
			writeJSON(w, http.StatusOK, toStatistiquesDTO(stats))
			return
		}
	}

	m, err := h.Mandats.ActiveMandat(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "aucun mandat actif", nil)
		return
	}
	stats, err := h.Mandats.Statistiques(r.Context(), m.Numero)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatistiquesDTO(stats))
}

// =============================================================================
// CONTREVENANT HANDLERS
// =============================================================================

// CreateContrevenant registers (or updates) an offender.
func (h *Handler) CreateContrevenant(w http.ResponseWriter, r *http.Request) {
	var req CreateContrevenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "requete invalide", validationDetails(err))
		return
	}

	c := contentieux.Contrevenant{
		Code:      req.Code,
		Nom:       req.Nom,
		Type:      contentieux.TypeContrevenant(req.Type),
		Telephone: req.Telephone,
		Adresse:   req.Adresse,
	}
	if err := h.Store.SaveContrevenant(r.Context(), c); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContrevenantDTO(c))
}

// GetContrevenant returns a single offender.
func (h *Handler) GetContrevenant(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	c, err := h.Store.GetContrevenant(r.Context(), code)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContrevenantDTO(c))
}

// =============================================================================
// REFERENTIEL HANDLERS
// =============================================================================

// ListFiches returns all reference entries of a kind.
func (h *Handler) ListFiches(w http.ResponseWriter, r *http.Request) {
	kind := referentiel.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, "referentiel inconnu", nil)
		return
	}

	entries, err := h.Referentiels.ListEntries(r.Context(), kind)
	if err != nil {
		h.handleError(w, err)
		return
	}

	dtos := make([]FicheDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toFicheDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveFiche creates or updates a reference entry.
func (h *Handler) SaveFiche(w http.ResponseWriter, r *http.Request) {
	kind := referentiel.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, "referentiel inconnu", nil)
		return
	}

	var req SaveFicheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "requete invalide", validationDetails(err))
		return
	}

	entry := referentiel.Entry{
		Kind: kind,
		Fiche: referentiel.Fiche{
			Code:        req.Code,
			Libelle:     req.Libelle,
			Description: req.Description,
			Actif:       true,
		},
	}
	if req.Actif != nil {
		entry.Fiche.Actif = *req.Actif
	}
	if req.MontantBase != "" {
		montant, ok := parseMontant(req.MontantBase)
		if !ok {
			writeError(w, http.StatusBadRequest, "montant_base invalide", nil)
			return
		}
		entry.MontantBase = montant
	}

	if err := h.Referentiels.SaveEntry(r.Context(), entry); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFicheDTO(entry))
}

// GetFiche returns a single reference entry.
func (h *Handler) GetFiche(w http.ResponseWriter, r *http.Request) {
	kind := referentiel.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, "referentiel inconnu", nil)
		return
	}

	entry, err := h.Referentiels.GetEntry(r.Context(), kind, chi.URLParam(r, "code"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFicheDTO(entry))
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// REQUEST BUILDERS
// =============================================================================

// buildNouvelleAffaire converts the API payload into the service input.
// Returns false after writing an error response.
func (h *Handler) buildNouvelleAffaire(w http.ResponseWriter, req CreateAffaireRequest) (contentieux.NouvelleAffaire, bool) {
	var input contentieux.NouvelleAffaire

	if req.DateCreation != "" {
		d, err := contentieux.ParseDate(req.DateCreation)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date_creation invalide (format YYYY-MM-DD)", nil)
			return input, false
		}
		input.DateCreation = d
	}
	if req.MontantTotal != "" {
		montant, ok := parseMontant(req.MontantTotal)
		if !ok {
			writeError(w, http.StatusBadRequest, "montant_total invalide", nil)
			return input, false
		}
		input.MontantTotal = montant
	}

	input.CodeContrevenant = req.CodeContrevenant
	input.CodeBureau = req.CodeBureau
	input.CodeService = req.CodeService

	for _, l := range req.Contraventions {
		montant, ok := parseMontant(l.Montant)
		if !ok {
			writeError(w, http.StatusBadRequest, "montant de contravention invalide", nil)
			return input, false
		}
		input.Contraventions = append(input.Contraventions, contentieux.LigneContravention{
			CodeContravention: l.CodeContravention,
			Libelle:           l.Libelle,
			Montant:           montant,
		})
	}
	for _, a := range req.Acteurs {
		input.Acteurs = append(input.Acteurs, contentieux.Acteur{
			CodeAgent: a.CodeAgent,
			Role:      contentieux.RoleActeur(a.Role),
		})
	}

	premier, ok := h.buildNouvelEncaissement(w, req.PremierPaiement)
	if !ok {
		return input, false
	}
	input.PremierEncaissement = premier
	return input, true
}

func (h *Handler) buildNouvelEncaissement(w http.ResponseWriter, req CreateEncaissementRequest) (contentieux.NouvelEncaissement, bool) {
	var input contentieux.NouvelEncaissement

	if req.Date != "" {
		d, err := contentieux.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date invalide (format YYYY-MM-DD)", nil)
			return input, false
		}
		input.Date = d
	}
	montant, ok := parseMontant(req.Montant)
	if !ok {
		writeError(w, http.StatusBadRequest, "montant invalide", nil)
		return input, false
	}
	input.Montant = montant
	input.Mode = contentieux.ModeReglement(req.Mode)
	input.CodeBanque = req.CodeBanque
	input.NumeroCheque = req.NumeroCheque
	input.Statut = contentieux.StatutEncaissement(req.Statut)
	return input, true
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// handleError translates domain errors into HTTP responses.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	var ve *contentieux.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "validation echouee", msgsOf(ve))
		return
	}

	switch {
	case contentieux.IsNotFound(err),
		errors.Is(err, mandat.ErrMandatInconnu),
		errors.Is(err, mandat.ErrAucunMandatActif),
		errors.Is(err, referentiel.ErrFicheInconnue),
		errors.Is(err, referentiel.ErrKindInconnu):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case contentieux.IsStateError(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case contentieux.IsClientError(err),
		errors.Is(err, mandat.ErrPeriodeInvalide),
		errors.Is(err, referentiel.ErrFicheIncomplete):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "erreur interne", nil)
	}
}

func msgsOf(ve *contentieux.ValidationError) []string {
	msgs := make([]string, len(ve.Violations))
	for i, v := range ve.Violations {
		msgs[i] = v.Message
	}
	return msgs
}

// validationDetails flattens validator.ValidationErrors into messages.
func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	details := make([]string, len(verrs))
	for i, fe := range verrs {
		details[i] = fe.Namespace() + ": " + fe.Tag()
	}
	return details
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, details []string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

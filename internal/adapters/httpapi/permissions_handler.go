package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/replicore/permcore/internal/permissions/application"
	"github.com/replicore/permcore/internal/permissions/domain"
)

// PermissionsHandler exposes the permissions core's operations over
// HTTP for interactive and operational use. This is not the replication
// transport - it is an exercise surface for the same service the
// transport would call.
type PermissionsHandler struct {
	*BaseHandler
	service *application.Service
}

// NewPermissionsHandler creates a new permissions handler
func NewPermissionsHandler(base *BaseHandler, service *application.Service) *PermissionsHandler {
	return &PermissionsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// relationDTO is the wire form of a qualified table name.
type relationDTO struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

func (d relationDTO) toDomain() domain.Relation {
	return domain.Relation{Schema: d.Schema, Name: d.Name}
}

func relationFromDomain(r domain.Relation) relationDTO {
	return relationDTO{Schema: r.Schema, Name: r.Name}
}

// changeDTO is the wire form of one row mutation.
type changeDTO struct {
	Kind     string         `json:"kind"` // insert | update | delete
	Relation relationDTO    `json:"relation"`
	ID       any            `json:"id"`
	Record   map[string]any `json:"record,omitempty"`
	Before   map[string]any `json:"before,omitempty"`
	Columns  []string       `json:"columns,omitempty"`
}

func (d changeDTO) toDomain() (domain.Change, error) {
	rel := d.Relation.toDomain()
	switch d.Kind {
	case "insert":
		return domain.NewInsert(rel, d.ID, d.Record), nil
	case "update":
		return domain.NewUpdate(rel, d.ID, d.Before, d.Record, d.Columns), nil
	case "delete":
		return domain.NewDelete(rel, d.ID, d.Record), nil
	default:
		return domain.Change{}, fmt.Errorf("unknown change kind %q", d.Kind)
	}
}

func changeFromDomain(c domain.Change) changeDTO {
	return changeDTO{
		Kind:     c.Kind.String(),
		Relation: relationFromDomain(c.Relation),
		ID:       c.ID,
		Record:   c.Record,
		Before:   c.Before,
		Columns:  c.Columns,
	}
}

// transactionDTO is the wire form of an ordered change batch.
type transactionDTO struct {
	LSN     int64       `json:"lsn"`
	Changes []changeDTO `json:"changes"`
}

func (d transactionDTO) toDomain() (domain.Transaction, error) {
	tx := domain.Transaction{LSN: d.LSN, Changes: make([]domain.Change, 0, len(d.Changes))}
	for i, c := range d.Changes {
		change, err := c.toDomain()
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("change %d: %w", i, err)
		}
		tx.Changes = append(tx.Changes, change)
	}
	return tx, nil
}

type moveOutDTO struct {
	Relation  relationDTO `json:"relation"`
	ID        any         `json:"id"`
	ScopePath any         `json:"scope_path,omitempty"`
	Change    changeDTO   `json:"change"`
}

type roleDTO struct {
	Kind     string    `json:"kind"`
	AssignID string    `json:"assign_id,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Name     string    `json:"name"`
	Scope    *scopeDTO `json:"scope,omitempty"`
}

type scopeDTO struct {
	Relation relationDTO `json:"relation"`
	ID       any         `json:"id"`
}

// ValidateWrite handles POST /v1/tx/validate: the whole transaction is
// accepted (204) or rejected with the formatted permissions error.
func (h *PermissionsHandler) ValidateWrite(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	if err := h.service.ValidateWrite(r.Context(), h.AuthFromContext(r), tx); err != nil {
		h.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FilterRead handles POST /v1/tx/filter: returns the filtered
// transaction plus any move-outs.
func (h *PermissionsHandler) FilterRead(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	filtered, moveOuts, err := h.service.FilterRead(r.Context(), h.AuthFromContext(r), tx)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	resp := struct {
		Transaction transactionDTO `json:"transaction"`
		MoveOuts    []moveOutDTO   `json:"move_outs"`
	}{
		Transaction: transactionDTO{LSN: filtered.LSN, Changes: changesFromDomain(filtered.Changes)},
		MoveOuts:    make([]moveOutDTO, 0, len(moveOuts)),
	}
	for _, mo := range moveOuts {
		resp.MoveOuts = append(resp.MoveOuts, moveOutDTO{
			Relation:  relationFromDomain(mo.Relation),
			ID:        mo.ID,
			ScopePath: mo.ScopePath,
			Change:    changeFromDomain(mo.Change),
		})
	}

	h.WriteJSONResponse(w, r, resp, http.StatusOK)
}

// ReceiveTransaction handles POST /v1/tx/receive: the session's own
// transaction has looped back from upstream.
func (h *PermissionsHandler) ReceiveTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	if err := h.service.ReceiveTransaction(r.Context(), h.AuthFromContext(r), tx); err != nil {
		h.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignedRoles handles GET /v1/roles: the distinct roles compiled for
// this session.
func (h *PermissionsHandler) AssignedRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.AssignedRoles(r.Context(), h.AuthFromContext(r))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	out := make([]roleDTO, 0, len(roles))
	for _, role := range roles {
		dto := roleDTO{
			Kind:     role.Kind.String(),
			AssignID: role.AssignID,
			UserID:   role.UserID,
			Name:     role.Name,
		}
		if role.HasScope() {
			dto.Scope = &scopeDTO{
				Relation: relationFromDomain(role.Scope.Relation),
				ID:       role.Scope.ID,
			}
		}
		out = append(out, dto)
	}

	h.WriteJSONResponse(w, r, out, http.StatusOK)
}

// Refresh handles POST /v1/refresh: recompile the session's permissions
// from the current rules.
func (h *PermissionsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Refresh(r.Context(), h.AuthFromContext(r)); err != nil {
		h.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionsHandler) decodeTransaction(w http.ResponseWriter, r *http.Request) (domain.Transaction, bool) {
	var dto transactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteJSONError(w, r, "invalid_request", "Invalid transaction body: "+err.Error(), http.StatusBadRequest)
		return domain.Transaction{}, false
	}
	tx, err := dto.toDomain()
	if err != nil {
		h.WriteJSONError(w, r, "invalid_request", err.Error(), http.StatusBadRequest)
		return domain.Transaction{}, false
	}
	return tx, true
}

func changesFromDomain(changes []domain.Change) []changeDTO {
	out := make([]changeDTO, 0, len(changes))
	for _, c := range changes {
		out = append(out, changeFromDomain(c))
	}
	return out
}

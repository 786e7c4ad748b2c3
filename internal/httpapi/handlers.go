package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"keydirectory/internal/apperr"
	"keydirectory/internal/directory"
)

type putBody struct {
	Op               string   `json:"op"`
	Emails           []string `json:"emails"`
	PublicKeyArmored string   `json:"publicKeyArmored"`
	KeyID            string   `json:"keyId"`
	Nonce            string   `json:"nonce"`
	Sig              []string `json:"sig"`
}

// handlePut implements POST /api/v1/key: a fresh upload (spec section 4.2)
// or, when op is "confirmSignatures", the owner's certification selection
// (spec section 4.7).
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body putBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.InvalidRequest, "malformed request body: %v", err))
		return
	}

	if body.Op == "confirmSignatures" {
		if body.KeyID == "" {
			writeError(w, apperr.New(apperr.InvalidRequest, "keyId is required"))
			return
		}
		key, err := s.dir.VerifySignatures(r.Context(), body.KeyID, body.Nonce, body.Sig)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, key.Strip())
		return
	}

	if body.PublicKeyArmored == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "publicKeyArmored is required"))
		return
	}
	key, err := s.dir.Put(r.Context(), directory.PutRequest{
		Emails:           body.Emails,
		PublicKeyArmored: body.PublicKeyArmored,
		Origin:           s.origin(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, key.Strip())
}

func lookupFromQuery(q map[string][]string) directory.Lookup {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return directory.Lookup{
		KeyID:       get("keyId"),
		Fingerprint: get("fingerprint"),
		Email:       get("email"),
	}
}

// handleGet implements the GET /api/v1/key family (spec sections 4.5, 4.6,
// 4.8, 4.9, 4.10): a single resource dispatching on the op query param.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	lookup := lookupFromQuery(q)

	switch q.Get("op") {
	case "verify":
		if lookup.KeyID == "" {
			writeError(w, apperr.New(apperr.InvalidRequest, "keyId is required"))
			return
		}
		key, err := s.dir.Verify(r.Context(), lookup.KeyID, q.Get("nonce"), s.origin(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, key.Strip())
	case "checkSignatures":
		pending, err := s.dir.GetPendingSignatures(r.Context(), lookup, q.Get("nonce"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pending)
	case "verifyRemove":
		if lookup.KeyID == "" {
			writeError(w, apperr.New(apperr.InvalidRequest, "keyId is required"))
			return
		}
		email, err := s.dir.VerifyRemove(r.Context(), lookup.KeyID, q.Get("nonce"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "email": email})
	default:
		key, err := s.dir.Get(r.Context(), lookup)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, key)
	}
}

// handleRequestRemove implements DELETE /api/v1/key (spec section 4.9): the
// dispatch half of key removal. Actual removal happens when the owner
// follows the emailed link back to GET .../api/v1/key?op=verifyRemove.
func (s *Server) handleRequestRemove(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	keyID := q.Get("keyId")
	email := q.Get("email")
	if keyID == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "keyId is required"))
		return
	}
	if err := s.dir.RequestRemove(r.Context(), keyID, email, s.origin(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending confirmation"})
}

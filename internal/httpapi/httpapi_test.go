package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"

	"keydirectory/internal/config"
	"keydirectory/internal/directory"
	"keydirectory/internal/mailer"
	"keydirectory/internal/storage/memstore"
)

type capturingMailer struct {
	sent []mailer.Message
}

func (m *capturingMailer) Send(msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func generateArmored(t *testing.T, name, email string) string {
	t.Helper()
	entity, err := openpgp.NewEntity(name, "", email, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())
	return buf.String()
}

func newTestHandler() (http.Handler, *capturingMailer) {
	mail := &capturingMailer{}
	dir := directory.New(config.PublicKey{PurgeTimeInDays: 30}, memstore.New(), mail, nil)
	return NewHandler(dir, "https", nil), mail
}

func TestHandlePutReturnsCreatedWithPendingKey(t *testing.T) {
	handler, mail := newTestHandler()
	armored := generateArmored(t, "Alice", "alice@example.com")
	body, _ := json.Marshal(map[string]interface{}{"publicKeyArmored": armored})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/key", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, mail.sent, 1)
	assert.Equal(t, mailer.VerifyKey, mail.sent[0].Template)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.NotEmpty(t, decoded["keyId"]) // key id present and echoed back
}

func TestHandlePutRejectsMissingArmor(t *testing.T) {
	handler, _ := newTestHandler()
	body, _ := json.Marshal(map[string]interface{}{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/key", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetVerifyRoundTrip(t *testing.T) {
	handler, mail := newTestHandler()
	armored := generateArmored(t, "Alice", "alice@example.com")
	body, _ := json.Marshal(map[string]interface{}{"publicKeyArmored": armored})

	putReq := httptest.NewRequest(http.MethodPost, "/api/v1/key", bytes.NewReader(body))
	putRec := httptest.NewRecorder()
	handler.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusCreated, putRec.Code)

	var putResp map[string]interface{}
	require.NoError(t, json.Unmarshal(putRec.Body.Bytes(), &putResp))
	keyID, _ := putResp["keyId"].(string)
	require.NotEmpty(t, keyID)

	require.Len(t, mail.sent, 1)
	nonce := mail.sent[0].Nonce
	require.NotEmpty(t, nonce)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/key?op=verify&keyId="+keyID+"&nonce="+nonce, nil)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	lookupReq := httptest.NewRequest(http.MethodGet, "/api/v1/key?keyId="+keyID, nil)
	lookupRec := httptest.NewRecorder()
	handler.ServeHTTP(lookupRec, lookupReq)
	assert.Equal(t, http.StatusOK, lookupRec.Code)
}

func TestHandleGetByEmailAndFingerprint(t *testing.T) {
	handler, mail := newTestHandler()
	armored := generateArmored(t, "Alice", "alice@example.com")
	body, _ := json.Marshal(map[string]interface{}{"publicKeyArmored": armored})

	putReq := httptest.NewRequest(http.MethodPost, "/api/v1/key", bytes.NewReader(body))
	putRec := httptest.NewRecorder()
	handler.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusCreated, putRec.Code)

	var putResp map[string]interface{}
	require.NoError(t, json.Unmarshal(putRec.Body.Bytes(), &putResp))
	keyID, _ := putResp["keyId"].(string)
	fingerprint, _ := putResp["fingerprint"].(string)
	require.NotEmpty(t, keyID)
	require.NotEmpty(t, fingerprint)

	nonce := mail.sent[0].Nonce
	verifyReq := httptest.NewRequest(http.MethodGet, "/api/v1/key?op=verify&keyId="+keyID+"&nonce="+nonce, nil)
	verifyRec := httptest.NewRecorder()
	handler.ServeHTTP(verifyRec, verifyReq)
	require.Equal(t, http.StatusOK, verifyRec.Code)

	byEmail := httptest.NewRequest(http.MethodGet, "/api/v1/key?email=alice@example.com", nil)
	byEmailRec := httptest.NewRecorder()
	handler.ServeHTTP(byEmailRec, byEmail)
	assert.Equal(t, http.StatusOK, byEmailRec.Code)

	byFingerprint := httptest.NewRequest(http.MethodGet, "/api/v1/key?fingerprint="+fingerprint, nil)
	byFingerprintRec := httptest.NewRecorder()
	handler.ServeHTTP(byFingerprintRec, byFingerprint)
	assert.Equal(t, http.StatusOK, byFingerprintRec.Code)
}

func TestHandleGetUnknownKeyReturnsNotFound(t *testing.T) {
	handler, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/key?keyId=deadbeef", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

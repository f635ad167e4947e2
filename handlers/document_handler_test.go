package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"legalqa-backend/parser"
	"legalqa-backend/service"
	"legalqa-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func documentRouter(t *testing.T, retrieval *service.RetrievalService, regulationPath string) *gin.Engine {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewDocumentHandler(retrieval, parser.NewPlainText(), store, nil, regulationPath)
	r.POST("/api/documents/load", h.LoadRegulation)
	r.POST("/api/documents/upload", h.UploadDocument)
	r.GET("/api/session", h.GetSession)
	return r
}

func multipartUpload(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestLoadRegulation(t *testing.T) {
	text := "CHAPTER I\nGeneral provisions\nArticle 1\n" +
		strings.Repeat("This Regulation lays down rules on consent and processing. ", 4)

	regulationPath := filepath.Join(t.TempDir(), "gdpr.txt")
	require.NoError(t, os.WriteFile(regulationPath, []byte(text), 0644))

	retrieval := newRetrievalService(t, false)
	r := documentRouter(t, retrieval, regulationPath)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/documents/load", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success  bool   `json:"success"`
		Document string `json:"document"`
		Chunks   int    `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "gdpr.txt", resp.Document)
	assert.Greater(t, resp.Chunks, 0)

	assert.Equal(t, service.StateReady, retrieval.Session().State)
}

func TestLoadRegulationMissingFile(t *testing.T) {
	r := documentRouter(t, newRetrievalService(t, false), filepath.Join(t.TempDir(), "missing.txt"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/documents/load", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "REGULATION_UNAVAILABLE")
}

func TestUploadDocument(t *testing.T) {
	retrieval := newRetrievalService(t, false)
	r := documentRouter(t, retrieval, "unused.txt")

	content := "Article 1\n" + strings.Repeat("The uploaded contract governs consent for processing. ", 4)
	body, contentType := multipartUpload(t, "contract.txt", "text/plain", content)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success  bool   `json:"success"`
		Document string `json:"document"`
		Chunks   int    `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "contract.txt", resp.Document)
	assert.Greater(t, resp.Chunks, 0)

	info := retrieval.Session()
	assert.Equal(t, service.StateReady, info.State)
	assert.Equal(t, "contract.txt", info.DocumentID)
}

func TestUploadDocumentMissingFile(t *testing.T) {
	r := documentRouter(t, newRetrievalService(t, false), "unused.txt")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_FILE")
}

func TestUploadDocumentUnsupportedMimeType(t *testing.T) {
	r := documentRouter(t, newRetrievalService(t, false), "unused.txt")

	body, contentType := multipartUpload(t, "contract.pdf", "application/pdf", "%PDF-1.4")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNSUPPORTED_TYPE")
}

func TestUploadDocumentEmptyText(t *testing.T) {
	retrieval := newRetrievalService(t, false)
	r := documentRouter(t, retrieval, "unused.txt")

	body, contentType := multipartUpload(t, "blank.txt", "text/plain", "   \n  ")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_INPUT")

	assert.Equal(t, service.StateEmpty, retrieval.Session().State)
}

func TestGetSession(t *testing.T) {
	r := documentRouter(t, newRetrievalService(t, true), "unused.txt")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                `json:"success"`
		Session service.SessionInfo `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, service.StateReady, resp.Session.State)
	assert.Equal(t, "gdpr.txt", resp.Session.DocumentID)
}

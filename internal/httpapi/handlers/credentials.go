package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/agent-portal/internal/common"
	"github.com/suPer8Hu/agent-portal/internal/vault"
)

type credentialReq struct {
	ServiceType string          `json:"service_type" binding:"required"`
	Credentials json.RawMessage `json:"credentials" binding:"required"`
}

func (h *Handler) PutCredential(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	var req credentialReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	service, err := vault.ParseServiceType(req.ServiceType)
	if err != nil {
		common.Abort(c, err)
		return
	}
	payload, err := vault.DecodePayload(service, req.Credentials)
	if err != nil {
		common.Abort(c, err)
		return
	}

	cred, err := h.Vault.Put(c.Request.Context(), uid, payload)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, cred)
}

func (h *Handler) ListCredentials(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	creds, err := h.Vault.List(c.Request.Context(), uid)
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, creds)
}

func (h *Handler) TestCredential(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	service, err := vault.ParseServiceType(c.Param("service"))
	if err != nil {
		common.Abort(c, err)
		return
	}
	outcome, err := h.Vault.Test(c.Request.Context(), uid, service)
	if errors.Is(err, vault.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40402, "Credential not found")
		return
	}
	if err != nil {
		common.Abort(c, err)
		return
	}
	common.OK(c, outcome)
}

func (h *Handler) DeleteCredential(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	service, err := vault.ParseServiceType(c.Param("service"))
	if err != nil {
		common.Abort(c, err)
		return
	}
	existed, err := h.Vault.Delete(c.Request.Context(), uid, service)
	if err != nil {
		common.Abort(c, err)
		return
	}
	if !existed {
		common.Fail(c, http.StatusNotFound, 40402, "Credential not found")
		return
	}
	common.OK(c, gin.H{"message": "Credential deleted successfully"})
}

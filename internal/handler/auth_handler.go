package handler

import (
	dao "edulead_chat_server/internal/dao/mysql/repository"
	"edulead_chat_server/internal/dto/request"
	"edulead_chat_server/internal/dto/respond"
	"edulead_chat_server/pkg/errorx"
	"edulead_chat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler serves dashboard authentication.
type AuthHandler struct {
	counsellors dao.CounsellorRepository
}

func NewAuthHandler(counsellors dao.CounsellorRepository) *AuthHandler {
	return &AuthHandler{counsellors: counsellors}
}

// Login verifies counsellor credentials and issues the dashboard token.
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req request.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}

	counsellor, err := h.counsellors.FindByEmail(req.Email)
	if err != nil {
		// Same answer for unknown account and bad password.
		HandleError(c, errorx.New(errorx.CodeUnauthorized, "invalid email or password"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(counsellor.Password), []byte(req.Password)); err != nil {
		HandleError(c, errorx.New(errorx.CodeUnauthorized, "invalid email or password"))
		return
	}

	token, err := jwt.GenerateAccessToken(counsellor.Uuid, counsellor.Role)
	if err != nil {
		zap.L().Error("token generation failed",
			zap.String("userId", counsellor.Uuid), zap.Error(err))
		HandleError(c, errorx.ErrServerBusy)
		return
	}

	zap.L().Info("dashboard login",
		zap.String("userId", counsellor.Uuid),
		zap.String("role", counsellor.Role))
	HandleSuccess(c, respond.LoginRespond{
		Token:  token,
		UserId: counsellor.Uuid,
		Name:   counsellor.Name,
		Role:   counsellor.Role,
	})
}

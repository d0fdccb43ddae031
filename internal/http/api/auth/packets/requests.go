package packets

type TokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

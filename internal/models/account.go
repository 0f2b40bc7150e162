package models

// Account links a user to an upstream OAuth identity.
type Account struct {
	BaseModel

	UserID            string `gorm:"type:uuid;not null;index" json:"user_id"`
	Type              string `gorm:"size:32;not null" json:"type"`
	Provider          string `gorm:"size:64;not null;uniqueIndex:idx_account_provider" json:"provider"`
	ProviderAccountID string `gorm:"size:255;not null;uniqueIndex:idx_account_provider" json:"provider_account_id"`

	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	ExpiresAt    *int64 `json:"expires_at,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"-"`
}

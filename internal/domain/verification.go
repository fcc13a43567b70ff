package domain

type VerifyQRRequest struct {
	QRData string `json:"qrData" binding:"required"`
}

type VerificationResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    VerificationData `json:"data"`
}

type VerificationData struct {
	VerificationResult VerificationResult `json:"verificationResult"`
}

type VerificationResult struct {
	IsAuthentic bool     `json:"isAuthentic"`
	VerifiedAt  string   `json:"verifiedAt"`
	Product     *Product `json:"product,omitempty"`
	Store       string   `json:"store,omitempty"`
	Order       *Order   `json:"order,omitempty"`
	NFTData     *NFTData `json:"nftData,omitempty"`
}

type NFTData struct {
	Status   string       `json:"status"`
	Message  string       `json:"message"`
	Metadata *NFTMetadata `json:"metadata,omitempty"`
}

type NFTMetadata struct {
	TokenAddress string         `json:"tokenAddress"`
	MintedAt     int64          `json:"mintedAt"`
	Attributes   []NFTAttribute `json:"attributes"`
}

type NFTAttribute struct {
	TraitType string `json:"traitType"`
	Value     string `json:"value"`
}

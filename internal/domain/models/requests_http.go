package models

// Requests for trust API endpoints.

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Source string `query:"source" json:"source" validate:"omitempty,oneof=coingecko kraken"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=50000"`
}

type QualityRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Days   int    `query:"days" json:"days" default:"7" validate:"gte=1,lte=90"`
}

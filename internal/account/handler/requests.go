package handler

import (
	"khata/internal/account/models"
	"khata/internal/account/service"
	id "khata/pkg/domain"
)

// OpenAccountRequest is the payload for opening an account. Amounts are in
// paise. Exactly one scheme amount applies: monthly_target for Daily,
// installment_amount for Monthly, yearly_amount for Yearly.
type OpenAccountRequest struct {
	ClientID          string `json:"client_id"`
	AgentID           string `json:"agent_id"`
	Scheme            string `json:"scheme"`
	TotalPayable      int64  `json:"total_payable"`
	InstallmentAmount int64  `json:"installment_amount"`
	MonthlyTarget     int64  `json:"monthly_target"`
	YearlyAmount      int64  `json:"yearly_amount"`
	TermMonths        int    `json:"term_months"`
}

// Parse validates the identifiers and enum fields into domain types.
// Amount and scheme-config validation stays with the account constructor.
func (r *OpenAccountRequest) Parse() (service.OpenParams, error) {
	clientID, err := id.ParseUserID(r.ClientID)
	if err != nil {
		return service.OpenParams{}, err
	}
	agentID, err := id.ParseUserID(r.AgentID)
	if err != nil {
		return service.OpenParams{}, err
	}
	scheme, err := id.ParsePaymentMode(r.Scheme)
	if err != nil {
		return service.OpenParams{}, err
	}
	return service.OpenParams{
		ClientID:     clientID,
		AgentID:      agentID,
		Scheme:       scheme,
		TotalPayable: r.TotalPayable,
		Config: models.SchemeConfig{
			InstallmentAmount: r.InstallmentAmount,
			MonthlyTarget:     r.MonthlyTarget,
			YearlyAmount:      r.YearlyAmount,
		},
		TermMonths: r.TermMonths,
	}, nil
}

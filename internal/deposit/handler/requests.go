package handler

import (
	"khata/internal/deposit/service"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
)

// CreateDepositRequest is the payload for recording one deposit. Amounts are
// in paise; the date is "2006-01-02" and defaults to the current business
// day. client_id names the account's owner and must match it.
type CreateDepositRequest struct {
	AccountID string `json:"account_id"`
	ClientID  string `json:"client_id"`
	Amount    int64  `json:"amount"`
	Date      string `json:"date"`
}

func (r *CreateDepositRequest) Parse() (service.CreateParams, error) {
	accountID, err := id.ParseAccountID(r.AccountID)
	if err != nil {
		return service.CreateParams{}, err
	}
	if r.ClientID == "" {
		return service.CreateParams{}, dErrors.New(dErrors.CodeValidation, "client id is required")
	}
	clientID, err := id.ParseUserID(r.ClientID)
	if err != nil {
		return service.CreateParams{}, err
	}
	return service.CreateParams{
		AccountID: accountID,
		ClientID:  clientID,
		Amount:    r.Amount,
		Date:      r.Date,
	}, nil
}

// UpdateDepositRequest is the payload for correcting a deposit. Absent
// fields keep their recorded value; at least one must be present.
type UpdateDepositRequest struct {
	Amount      *int64  `json:"amount"`
	Date        *string `json:"date"`
	CollectedBy *string `json:"collected_by"`
}

func (r *UpdateDepositRequest) Parse(depositID id.DepositID) (service.UpdateParams, error) {
	params := service.UpdateParams{
		DepositID: depositID,
		Amount:    r.Amount,
		Date:      r.Date,
	}
	if r.CollectedBy != nil {
		collectedBy, err := id.ParseUserID(*r.CollectedBy)
		if err != nil {
			return service.UpdateParams{}, err
		}
		params.CollectedBy = &collectedBy
	}
	return params, nil
}

// BulkItemRequest is one row of a bulk collection sheet. Identifiers stay
// wire strings here; the batch runner parses them per item so one bad row
// fails alone.
type BulkItemRequest struct {
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
	CollectedBy string `json:"collected_by"`
	Date        string `json:"date"`
}

// BulkCreateRequest is the payload for recording a collection sheet.
type BulkCreateRequest struct {
	Items []BulkItemRequest `json:"items"`
}

func (r *BulkCreateRequest) Parse() ([]service.BulkItem, error) {
	if len(r.Items) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch holds no items")
	}
	items := make([]service.BulkItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = service.BulkItem{
			AccountID:   item.AccountID,
			Amount:      item.Amount,
			CollectedBy: item.CollectedBy,
			Date:        item.Date,
		}
	}
	return items, nil
}

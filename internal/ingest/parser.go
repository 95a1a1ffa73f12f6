package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"oip/txguard/internal/model"
)

var (
	// ErrInvalidJob Job 结构不完整
	ErrInvalidJob = errors.New("invalid job structure")
	// ErrUnknownAction 未注册的动作类型
	ErrUnknownAction = errors.New("unknown action type")
)

// ParseJob 解析 Job 并提取元数据，RequestID 为空时生成一个
func ParseJob(raw []byte) (*Job, *Meta, error) {
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, nil, fmt.Errorf("%w: json unmarshal failed: %v", ErrInvalidJob, err)
	}
	if j.Payload == nil || j.Payload.Data == nil {
		return nil, nil, fmt.Errorf("%w: payload.data is nil", ErrInvalidJob)
	}

	data := j.Payload.Data
	if data.ActionType == "" {
		return nil, nil, fmt.Errorf("%w: action_type is empty", ErrInvalidJob)
	}
	if data.RequestID == "" {
		data.RequestID = uuid.New().String()
	}

	meta := &Meta{
		RequestID:  data.RequestID,
		OrgID:      data.OrgID,
		ActionType: data.ActionType,
		ID:         data.ID,
	}
	return &j, meta, nil
}

// DecodeTransaction 解析 transaction_ingest Job 并校验交易
// accounts <= 0 时跳过账户范围校验。
func DecodeTransaction(raw []byte, accounts int) (model.Transaction, *Meta, error) {
	j, meta, err := ParseJob(raw)
	if err != nil {
		return model.Transaction{}, nil, err
	}
	if meta.ActionType != ActionTransactionIngest {
		return model.Transaction{}, meta, fmt.Errorf("%w: %s", ErrUnknownAction, meta.ActionType)
	}
	if len(j.Payload.Data.Data) == 0 {
		return model.Transaction{}, meta, fmt.Errorf("%w: transaction data is empty", ErrInvalidJob)
	}

	var tx model.Transaction
	if err := json.Unmarshal(j.Payload.Data.Data, &tx); err != nil {
		return model.Transaction{}, meta, fmt.Errorf("%w: decode transaction failed: %v", ErrInvalidJob, err)
	}
	if tx.ID == "" {
		tx.ID = meta.ID
	}
	if tx.ID == "" {
		tx.ID = meta.RequestID
	}

	tx = tx.Normalize()
	if accounts > 0 {
		if err := tx.Validate(accounts); err != nil {
			return model.Transaction{}, meta, err
		}
	}
	return tx, meta, nil
}

// NewJob 构造出站 Job
func NewJob(actionType, id string, data interface{}) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal job data failed: %w", err)
	}
	j := Job{
		Payload: &JobPayload{
			Data: &JobPayloadData{
				RequestID:  uuid.New().String(),
				ActionType: actionType,
				ID:         id,
				Data:       body,
			},
		},
	}
	return json.Marshal(j)
}

// NewTransactionJob 构造 transaction_ingest Job（用于回放与测试）
func NewTransactionJob(tx model.Transaction) ([]byte, error) {
	return NewJob(ActionTransactionIngest, tx.ID, tx)
}
